package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/helper-gateway/internal/adapters/gateway"
	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/spf13/cobra"
)

func newChatCmd(app *app) *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Read and send job chat messages",
	}

	chatCmd.AddCommand(
		newChatMessagesCmd(app),
		newChatSendCmd(app),
		newChatUploadCmd(app),
		simpleCmd("templates", "List quick-reply templates", "Loading templates...", func(ctx context.Context) domain.Result {
			return app.client.Gateway.ChatTemplates(ctx)
		}),
		simpleCmd("unread", "Count unread chat messages", "Counting...", func(ctx context.Context) domain.Result {
			return app.client.Gateway.ChatUnreadCount(ctx)
		}),
		idCmd("read <job-id>", "Mark a job conversation read", "Marking read...", func(ctx context.Context, jobID string) domain.Result {
			return app.client.Gateway.MarkChatRead(ctx, jobID)
		}),
	)

	return chatCmd
}

func newChatMessagesCmd(app *app) *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "messages <job-id>",
		Short: "List the messages of a job conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := call(cmd, "Loading messages...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.ChatMessages(ctx, args[0], page, limit)
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 50, "Messages per page")
	return cmd
}

func newChatSendCmd(app *app) *cobra.Command {
	var templateID string

	cmd := &cobra.Command{
		Use:   "send <job-id> <message>",
		Short: "Send a text message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := gateway.ChatMessage{Content: args[1], TemplateID: templateID}
			if templateID != "" {
				message.Type = "template"
			}
			result, err := call(cmd, "Sending message...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.SendChatMessage(ctx, args[0], message)
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&templateID, "template", "", "Quick-reply template id")
	return cmd
}

func newChatUploadCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <job-id> <file>",
		Short: "Attach a file to a job conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open attachment: %w", err)
			}
			defer file.Close()

			result, err := call(cmd, "Uploading...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.UploadChatFile(ctx, args[0], gateway.MultipartFile{
					Field:    "file",
					FileName: filepath.Base(args[1]),
					Content:  file,
				})
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}
}
