package cmd

import (
	"fmt"
	"time"

	statusadapter "github.com/bnema/helper-gateway/internal/adapters/render/status"
	"github.com/spf13/cobra"
)

type statusOptions struct {
	jsonOutput bool
}

type statusJSON struct {
	Session     string           `json:"session"`
	ActiveJobID string           `json:"activeJobId,omitempty"`
	Realtime    string           `json:"realtime"`
	Listeners   int              `json:"listeners"`
	Cooldowns   []cooldownJSON   `json:"cooldowns"`
	Policy      statusPolicyJSON `json:"policy"`
}

type cooldownJSON struct {
	Endpoint  string `json:"endpoint"`
	Until     string `json:"until"`
	Remaining string `json:"remaining"`
}

type statusPolicyJSON struct {
	MaxRetries        int    `json:"maxRetries"`
	HotCooldown       string `json:"hotCooldown"`
	PrefixCooldown    string `json:"prefixCooldown"`
	ExhaustedCooldown string `json:"exhaustedCooldown"`
}

func newStatusCmd(app *app) *cobra.Command {
	opts := statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session, realtime channel and endpoint cooldowns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshot := app.snapshot()
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), app.statusJSON(snapshot))
			}

			view, err := app.statusRenderer(snapshot, statusadapter.RenderOptions{
				Now:      app.now(),
				BarScale: app.client.Gateway.Policy().HotCooldown,
			})
			if err != nil {
				return fmt.Errorf("render status: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), view)
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output JSON")
	return cmd
}

func (a *app) snapshot() statusadapter.Snapshot {
	snapshot := statusadapter.Snapshot{
		Session:     a.client.Session.State(),
		ActiveJobID: a.client.Session.ActiveJobID(),
		Realtime:    string(a.client.Realtime.State()),
		Listeners:   a.client.Realtime.Registry().Events(),
	}
	for _, cooldown := range a.client.Gateway.Cooldowns() {
		snapshot.Cooldowns = append(snapshot.Cooldowns, statusadapter.Cooldown{
			Endpoint: cooldown.Endpoint,
			Until:    cooldown.Until,
		})
	}
	return snapshot
}

func (a *app) statusJSON(snapshot statusadapter.Snapshot) statusJSON {
	now := a.now()
	policy := a.client.Gateway.Policy()

	out := statusJSON{
		Session:     string(snapshot.Session),
		ActiveJobID: snapshot.ActiveJobID,
		Realtime:    snapshot.Realtime,
		Listeners:   snapshot.Listeners,
		Cooldowns:   make([]cooldownJSON, 0, len(snapshot.Cooldowns)),
		Policy: statusPolicyJSON{
			MaxRetries:        policy.MaxRetries,
			HotCooldown:       policy.HotCooldown.String(),
			PrefixCooldown:    policy.PrefixCooldown.String(),
			ExhaustedCooldown: policy.ExhaustedCooldown.String(),
		},
	}
	for _, cooldown := range snapshot.Cooldowns {
		out.Cooldowns = append(out.Cooldowns, cooldownJSON{
			Endpoint:  cooldown.Endpoint,
			Until:     cooldown.Until.UTC().Format(time.RFC3339),
			Remaining: cooldown.Until.Sub(now).Round(time.Second).String(),
		})
	}
	return out
}
