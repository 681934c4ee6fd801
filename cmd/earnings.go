package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/spf13/cobra"
)

var earningsPeriods = map[string]bool{"day": true, "week": true, "month": true, "all": true}

func newEarningsCmd(app *app) *cobra.Command {
	var period string

	earningsCmd := &cobra.Command{
		Use:   "earnings",
		Short: "Show earnings for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !earningsPeriods[period] {
				return fmt.Errorf("invalid period %q: expected day, week, month or all", period)
			}
			result, err := call(cmd, "Loading earnings...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.Earnings(ctx, period)
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}

	earningsCmd.Flags().StringVar(&period, "period", "week", "Period: day, week, month or all")

	earningsCmd.AddCommand(
		&cobra.Command{
			Use:   "summary",
			Short: "Show the analytics summary",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				result, err := call(cmd, "Loading summary...", app.client.Gateway.AnalyticsSummary)
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), result)
			},
		},
		&cobra.Command{
			Use:   "performance",
			Short: "Show rating and completion metrics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				result, err := call(cmd, "Loading performance...", app.client.Gateway.AnalyticsPerformance)
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), result)
			},
		},
	)

	return earningsCmd
}
