package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSpinnerReturnsCallError(t *testing.T) {
	var out bytes.Buffer
	errBackend := errors.New("backend down")

	err := runSpinner(context.Background(), &out, "Loading jobs...", func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return errBackend
	})
	require.ErrorIs(t, err, errBackend)
}

func TestWaitModelShowsElapsedTimeForSlowCalls(t *testing.T) {
	m := newWaitModel("Loading jobs...", nil)
	assert.Contains(t, m.View(), "Loading jobs...")

	m.started = time.Now().Add(-3 * time.Second)
	updated, _ := m.Update(spinner.TickMsg{})
	view := updated.(waitModel).View()
	assert.Contains(t, view, "Loading jobs... 3s")

	done, _ := updated.Update(callDoneMsg{})
	assert.Empty(t, done.(waitModel).View())
}

func TestIsTerminalRejectsBuffers(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
