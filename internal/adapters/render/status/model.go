package status

import (
	"errors"
	"fmt"
	"io"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

type drawMsg struct{}

// statusModel renders one frame and quits.
type statusModel struct {
	snapshot Snapshot
	opts     RenderOptions
	styles   styles
	frame    string
}

func (m statusModel) Init() tea.Cmd {
	return func() tea.Msg { return drawMsg{} }
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(drawMsg); ok {
		m.frame = renderView(m.snapshot, m.opts, m.styles)
		return m, tea.Quit
	}
	return m, nil
}

func (m statusModel) View() string {
	return m.frame
}

// Render draws snapshot once through a headless bubbletea program. Cooldowns
// are listed soonest expiry first.
func Render(snapshot Snapshot, opts RenderOptions) (string, error) {
	snapshot.Cooldowns = soonestFirst(snapshot.Cooldowns)

	program := tea.NewProgram(
		statusModel{snapshot: snapshot, opts: opts, styles: newStyles()},
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutSignalHandler(),
	)

	final, err := program.Run()
	if err != nil {
		return "", err
	}

	m, ok := final.(statusModel)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrUnexpectedRenderModel, final)
	}
	return m.View(), nil
}

func soonestFirst(cooldowns []Cooldown) []Cooldown {
	sorted := append([]Cooldown(nil), cooldowns...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Until.Before(sorted[j].Until)
	})
	return sorted
}
