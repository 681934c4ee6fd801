package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// Snapshot is everything the status view shows about one client session.
type Snapshot struct {
	Session     domain.SessionState
	ActiveJobID string
	Realtime    string
	Listeners   int
	Cooldowns   []Cooldown
}

type Cooldown struct {
	Endpoint string
	Until    time.Time
}

type RenderOptions struct {
	Now time.Time
	// BarScale is the cooldown length drawn as a full bar.
	BarScale time.Duration
}

func renderView(snapshot Snapshot, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Helper Session"),
		field("session", sessionLabel(snapshot.Session, s), s),
		field("realtime", realtimeLabel(snapshot.Realtime, snapshot.Listeners, s), s),
	}
	if snapshot.ActiveJobID != "" {
		lines = append(lines, field("active job", s.value.Render(snapshot.ActiveJobID), s))
	}

	cooldowns := []string{s.header.Render(fmt.Sprintf("cooldowns: %d", len(snapshot.Cooldowns)))}
	if len(snapshot.Cooldowns) == 0 {
		cooldowns = append(cooldowns, s.empty.Render("No endpoint is cooling down."))
	}
	for _, cooldown := range snapshot.Cooldowns {
		cooldowns = append(cooldowns, cooldownLine(cooldown, opts, s))
	}
	lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, cooldowns...)))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func field(label, value string, s styles) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, s.label.Render(label+":"), " ", value)
}

func sessionLabel(state domain.SessionState, s styles) string {
	switch state {
	case domain.SessionAuthenticated:
		return s.good.Render(state.Label())
	case domain.SessionRefreshing:
		return s.value.Render(state.Label())
	default:
		return s.warning.Render(state.Label())
	}
}

func realtimeLabel(state string, listeners int, s styles) string {
	if state == "" {
		state = "disconnected"
	}
	suffix := "listeners"
	if listeners == 1 {
		suffix = "listener"
	}
	detail := s.header.Render(fmt.Sprintf("(%d %s)", listeners, suffix))

	style := s.warning
	if state == "connected" {
		style = s.good
	}
	return style.Render(state) + " " + detail
}

func cooldownLine(cooldown Cooldown, opts RenderOptions, s styles) string {
	remaining := time.Duration(0)
	if !opts.Now.IsZero() {
		remaining = cooldown.Until.Sub(opts.Now)
	}

	scale := opts.BarScale
	if scale <= 0 {
		scale = 5 * time.Minute
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.endpoint.Render(fmt.Sprintf("%-24s", cooldown.Endpoint)),
		" ",
		renderProgressBar(remaining.Seconds()/scale.Seconds()*100, 20, s),
		" ",
		lipgloss.NewStyle().Foreground(interpolateColor(remaining.Seconds(), 0, scale.Seconds())).Render(formatRemaining(cooldown.Until, opts.Now)),
	)
}

func renderProgressBar(percent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(percent) / 100))
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatRemaining(until, now time.Time) string {
	if now.IsZero() {
		return "until " + until.Format("15:04:05")
	}
	if !until.After(now) {
		return "clear"
	}

	remaining := until.Sub(now).Round(time.Second)
	if remaining < time.Second {
		remaining = time.Second
	}
	return fmt.Sprintf("retry in %s (%s)", remaining, until.Format("15:04:05"))
}

// interpolateColor maps value onto the 240..255 greyscale ramp.
func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	return lipgloss.Color(fmt.Sprintf("%d", int(240+15*normalized)))
}
