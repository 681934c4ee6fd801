package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/spf13/cobra"
)

func newNotificationsCmd(app *app) *cobra.Command {
	notificationsCmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Read and manage notifications",
	}

	notificationsCmd.AddCommand(
		newNotificationsListCmd(app),
		simpleCmd("unread", "Count unread notifications", "Counting...", func(ctx context.Context) domain.Result {
			return app.client.Gateway.NotificationUnreadCount(ctx)
		}),
		idCmd("read <notification-id>", "Mark one notification read", "Marking read...", func(ctx context.Context, id string) domain.Result {
			return app.client.Gateway.MarkNotificationRead(ctx, id)
		}),
		simpleCmd("read-all", "Mark every notification read", "Marking read...", func(ctx context.Context) domain.Result {
			return app.client.Gateway.MarkAllNotificationsRead(ctx)
		}),
		idCmd("delete <notification-id>", "Delete a notification", "Deleting...", func(ctx context.Context, id string) domain.Result {
			return app.client.Gateway.DeleteNotification(ctx, id)
		}),
		newNotificationsPreferencesCmd(app),
	)

	return notificationsCmd
}

func newNotificationsListCmd(app *app) *cobra.Command {
	var (
		page       int
		limit      int
		unreadOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := call(cmd, "Loading notifications...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.Notifications(ctx, page, limit, unreadOnly)
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "Notifications per page")
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "Only unread notifications")
	return cmd
}

func newNotificationsPreferencesCmd(app *app) *cobra.Command {
	var set map[string]string

	cmd := &cobra.Command{
		Use:   "preferences",
		Short: "Show notification preferences, or change them with --set channel=true",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(set) == 0 {
				result, err := call(cmd, "Loading preferences...", app.client.Gateway.NotificationPreferences)
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), result)
			}

			preferences := make(map[string]bool, len(set))
			for key, raw := range set {
				value, err := strconv.ParseBool(raw)
				if err != nil {
					return fmt.Errorf("invalid value for %s: %q", key, raw)
				}
				preferences[key] = value
			}
			result, err := call(cmd, "Saving preferences...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.UpdateNotificationPreferences(ctx, preferences)
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringToStringVar(&set, "set", nil, "Preference updates, e.g. --set push=false,sms=true")
	return cmd
}
