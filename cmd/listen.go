package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bnema/helper-gateway/internal/adapters/realtime"
	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var errChannelClosed = errors.New("realtime channel closed")

type listenOptions struct {
	events      []string
	count       int
	metricsAddr string
	pollEvery   time.Duration
}

type eventLine struct {
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

func newListenCmd(app *app) *cobra.Command {
	opts := listenOptions{pollEvery: time.Second}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Follow realtime events and print them as JSON lines",
		Long:  "listen connects the realtime channel with the stored session and prints every job, chat, location and payment event as one JSON object per line until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListen(cmd, app, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.events, "events", printableEvents(), "Events to print")
	cmd.Flags().IntVar(&opts.count, "count", 0, "Exit after this many events (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address; overrides metrics.addr")
	return cmd
}

func runListen(cmd *cobra.Command, app *app, opts listenOptions) error {
	for _, event := range opts.events {
		if strings.HasPrefix(event, "auth:") {
			return fmt.Errorf("event %q carries credentials and cannot be printed", event)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := opts.metricsAddr
	if addr == "" {
		addr = app.cfg.Metrics.Addr
	}
	if addr != "" {
		go func() {
			if err := app.metrics.Serve(ctx, addr, app.logger); err != nil {
				app.logger.Error().Err(err).Str("addr", addr).Msg("metrics endpoint stopped")
			}
		}()
	}

	lines := make(chan eventLine, 64)
	for _, event := range opts.events {
		event := event
		app.client.Realtime.Subscribe(event, func(data json.RawMessage) {
			select {
			case lines <- eventLine{Event: event, Data: data, ReceivedAt: app.now().UTC()}:
			default:
				app.logger.Warn().Str("event", event).Msg("output backlog full; event dropped")
			}
		})
	}

	ended := make(chan domain.SignOutReason, 1)
	app.client.Session.OnSignedOut(func(reason domain.SignOutReason) {
		select {
		case ended <- reason:
		default:
		}
	})

	if err := app.client.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime: %w", err)
	}
	defer app.client.Close()
	app.logger.Info().Strs("events", opts.events).Msg("listening")

	poll := time.NewTicker(opts.pollEvery)
	defer poll.Stop()

	encoder := json.NewEncoder(cmd.OutOrStdout())
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-ended:
			return fmt.Errorf("session ended: %s", reason)
		case <-poll.C:
			if app.client.Realtime.State() == realtime.StateDisconnected {
				return errChannelClosed
			}
		case line := <-lines:
			if err := encoder.Encode(line); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
			seen++
			if opts.count > 0 && seen >= opts.count {
				return nil
			}
		}
	}
}

func printableEvents() []string {
	var events []string
	for _, event := range domain.ConsumedEvents() {
		if !strings.HasPrefix(event, "auth:") {
			events = append(events, event)
		}
	}
	return events
}
