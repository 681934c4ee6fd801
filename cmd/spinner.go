package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type callDoneMsg struct {
	err error
}

// waitModel animates while one backend call is in flight. Calls held back by
// retries show how long they have been waiting.
type waitModel struct {
	spinner spinner.Model
	label   string
	call    tea.Cmd
	started time.Time
	elapsed time.Duration
	err     error
	done    bool
}

func newWaitModel(label string, call tea.Cmd) waitModel {
	return waitModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.MiniDot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("39"))),
		),
		label:   label,
		call:    call,
		started: time.Now(),
	}
}

func (m waitModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.call)
}

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case callDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		m.elapsed = time.Since(m.started)
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m waitModel) View() string {
	if m.done {
		return ""
	}
	if m.elapsed < 2*time.Second {
		return m.spinner.View() + " " + m.label
	}
	return fmt.Sprintf("%s %s %s", m.spinner.View(), m.label, m.elapsed.Truncate(time.Second))
}

// runSpinner runs fn while a spinner labelled label ticks on output.
func runSpinner(ctx context.Context, output io.Writer, label string, fn func(context.Context) error) error {
	program := tea.NewProgram(
		newWaitModel(label, func() tea.Msg { return callDoneMsg{err: fn(ctx)} }),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	final, err := program.Run()
	if err != nil {
		return err
	}
	m, ok := final.(waitModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", final)
	}
	return m.err
}

// call runs one gateway operation, animating on stderr when it is a terminal.
func call(cmd *cobra.Command, label string, fn func(context.Context) domain.Result) (domain.Result, error) {
	if !isTerminal(cmd.ErrOrStderr()) {
		return fn(cmd.Context()), nil
	}

	var result domain.Result
	err := runSpinner(cmd.Context(), cmd.ErrOrStderr(), label, func(ctx context.Context) error {
		result = fn(ctx)
		return nil
	})
	return result, err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
