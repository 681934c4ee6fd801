package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/helper-gateway/internal/adapters/gateway"
	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/spf13/cobra"
)

func newJobsCmd(app *app) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Work with the jobs assigned to the helper",
	}

	jobsCmd.AddCommand(
		newJobsActiveCmd(app),
		newJobsShowCmd(app),
		newJobsAcceptCmd(app),
		newJobsDeclineCmd(app),
		newJobsArriveCmd(app),
		newJobsVerifyOTPCmd(app),
		newJobsCompleteCmd(app),
		newJobsStatusCmd(app),
		newJobsHistoryCmd(app),
		newJobsRateCmd(app),
	)

	return jobsCmd
}

func newJobsActiveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List active jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var jobs []domain.Job
			result, err := call(cmd, "Loading active jobs...", func(ctx context.Context) domain.Result {
				var result domain.Result
				jobs, result = app.client.Gateway.ActiveJobs(ctx)
				return result
			})
			if err != nil {
				return err
			}
			return writeJobs(cmd, result, jobs, "No active jobs.")
		},
	}
}

func newJobsShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var job domain.Job
			result, err := call(cmd, "Loading job...", func(ctx context.Context) domain.Result {
				var result domain.Result
				job, result = app.client.Gateway.Job(ctx, args[0])
				return result
			})
			if err != nil {
				return err
			}
			if err := resultError(result); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), job)
		},
	}
}

func newJobsAcceptCmd(app *app) *cobra.Command {
	return idCmd("accept <job-id>", "Accept a job offer", "Accepting job...", func(ctx context.Context, id string) domain.Result {
		return app.client.Gateway.AcceptJob(ctx, id)
	})
}

func newJobsArriveCmd(app *app) *cobra.Command {
	return idCmd("arrive <job-id>", "Tell the patient the helper has arrived", "Marking arrival...", func(ctx context.Context, id string) domain.Result {
		return app.client.Gateway.MarkArrived(ctx, id)
	})
}

func newJobsDeclineCmd(app *app) *cobra.Command {
	var reason string

	cmd := idCmd("decline <job-id>", "Decline a job offer", "Declining job...", func(ctx context.Context, id string) domain.Result {
		return app.client.Gateway.DeclineJob(ctx, id, reason)
	})
	cmd.Flags().StringVar(&reason, "reason", "", "Reason shown to the dispatcher")
	return cmd
}

func newJobsVerifyOTPCmd(app *app) *cobra.Command {
	var code string

	cmd := idCmd("verify-otp <job-id>", "Verify the patient's start code", "Verifying code...", func(ctx context.Context, id string) domain.Result {
		return app.client.Gateway.VerifyJobOTP(ctx, id, code)
	})
	cmd.Flags().StringVar(&code, "code", "", "Code given by the patient")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newJobsCompleteCmd(app *app) *cobra.Command {
	var notes string

	cmd := idCmd("complete <job-id>", "Complete a job", "Completing job...", func(ctx context.Context, id string) domain.Result {
		return app.client.Gateway.CompleteJob(ctx, id, notes)
	})
	cmd.Flags().StringVar(&notes, "notes", "", "Visit notes")
	return cmd
}

func newJobsStatusCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id> <status>",
		Short: "Set a job status (pending, accepted, arrived, in_progress, completed, cancelled, declined)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseJobStatus(args[1])
			if err != nil {
				return err
			}
			result, err := call(cmd, "Updating job...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.UpdateJobStatus(ctx, args[0], status)
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}
}

func newJobsHistoryCmd(app *app) *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var jobs []domain.Job
			result, err := call(cmd, "Loading history...", func(ctx context.Context) domain.Result {
				var result domain.Result
				jobs, result = app.client.Gateway.JobHistory(ctx, page, limit)
				return result
			})
			if err != nil {
				return err
			}
			return writeJobs(cmd, result, jobs, "No past jobs.")
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "Jobs per page")
	return cmd
}

func newJobsRateCmd(app *app) *cobra.Command {
	var rating gateway.Rating

	cmd := &cobra.Command{
		Use:   "rate <job-id>",
		Short: "Rate a completed job, or show its rating when --score is omitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("score") {
				result, err := call(cmd, "Loading rating...", func(ctx context.Context) domain.Result {
					return app.client.Gateway.JobRating(ctx, args[0])
				})
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), result)
			}
			if rating.Score < 1 || rating.Score > 5 {
				return fmt.Errorf("score must be between 1 and 5, got %d", rating.Score)
			}
			result, err := call(cmd, "Sending rating...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.RateJob(ctx, args[0], rating)
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().IntVar(&rating.Score, "score", 0, "Score from 1 to 5")
	cmd.Flags().StringVar(&rating.Comment, "comment", "", "Optional comment")
	return cmd
}

func writeJobs(cmd *cobra.Command, result domain.Result, jobs []domain.Job, empty string) error {
	if err := resultError(result); err != nil {
		return err
	}
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), empty)
		return err
	}
	return writeJSON(cmd.OutOrStdout(), jobs)
}
