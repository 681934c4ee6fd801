package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/spf13/cobra"
)

func newAuthCmd(app *app) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in with a one-time code and manage the helper session",
	}

	authCmd.AddCommand(
		newAuthRequestOTPCmd(app),
		newAuthVerifyCmd(app),
		newAuthMeCmd(app),
		newAuthRefreshCmd(app),
		newAuthLogoutCmd(app),
	)

	return authCmd
}

func newAuthRequestOTPCmd(app *app) *cobra.Command {
	var phone string

	cmd := &cobra.Command{
		Use:   "request-otp",
		Short: "Send a one-time sign-in code to a phone number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := call(cmd, "Requesting code...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.RequestOTP(ctx, phone)
			})
			if err != nil {
				return err
			}
			if err := resultError(result); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "code sent to %s\n", phone)
			return err
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "Phone number the code is sent to")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newAuthVerifyCmd(app *app) *cobra.Command {
	var (
		phone string
		code  string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Exchange a one-time code for a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := call(cmd, "Verifying code...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.VerifyOTP(ctx, phone, code)
			})
			if err != nil {
				return err
			}
			if err := resultError(result); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", phone)
			return err
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "Phone number the code was sent to")
	cmd.Flags().StringVar(&code, "code", "", "One-time code")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newAuthMeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := call(cmd, "Loading account...", app.client.Gateway.Me)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}
}

func newAuthRefreshCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the session credential now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := call(cmd, "Refreshing credential...", app.client.Gateway.RefreshCredential)
			if err != nil {
				return err
			}
			if err := resultError(result); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "credential refreshed")
			return err
		},
	}
}

func newAuthLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := call(cmd, "Signing out...", app.client.Gateway.Logout)
			if err != nil {
				return err
			}
			if !result.Success {
				app.logger.Warn().Str("error", result.Error).Int("status", result.Status).Msg("backend logout failed; local session cleared")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return err
		},
	}
}
