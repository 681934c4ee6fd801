package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bnema/helper-gateway/internal/adapters/gateway"
	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/spf13/cobra"
)

func newProfileCmd(app *app) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Read and update the helper profile",
	}

	profileCmd.AddCommand(
		newProfileShowCmd(app),
		newProfileAvailabilityCmd(app),
		newProfileLocationCmd(app),
		newProfileExistsCmd(app),
		newProfileUpdateCmd(app),
		newProfileRegisterCmd(app),
	)

	return profileCmd
}

func newProfileShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the helper profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := call(cmd, "Loading profile...", app.client.Gateway.GetProfile)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}
}

func newProfileAvailabilityCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "availability <helper-id> <on|off>",
		Short: "Mark the helper available or unavailable for new jobs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			available, err := parseToggle(args[1])
			if err != nil {
				return err
			}
			result, err := call(cmd, "Updating availability...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.SetAvailability(ctx, args[0], available)
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}
}

func newProfileLocationCmd(app *app) *cobra.Command {
	var (
		latitude  float64
		longitude float64
		accuracy  float64
	)

	cmd := &cobra.Command{
		Use:   "location <helper-id>",
		Short: "Report the helper's current position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location := domain.Location{Latitude: latitude, Longitude: longitude}
			if cmd.Flags().Changed("accuracy") {
				location.Accuracy = &accuracy
			}
			result, err := call(cmd, "Sending location...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.UpdateLocation(ctx, args[0], location)
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().Float64Var(&latitude, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&longitude, "lng", 0, "Longitude")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0, "Accuracy in meters")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func newProfileExistsCmd(app *app) *cobra.Command {
	var query gateway.ExistsQuery

	cmd := &cobra.Command{
		Use:   "exists",
		Short: "Check whether a helper is registered for a phone or identity number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if query.Phone == "" && query.IdentityNumber == "" {
				return errors.New("one of --phone or --identity-number is required")
			}
			result, err := call(cmd, "Checking registration...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.HelperExists(ctx, query)
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&query.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&query.IdentityNumber, "identity-number", "", "National identity number")
	return cmd
}

func newProfileUpdateCmd(app *app) *cobra.Command {
	var (
		profile gateway.Profile
		create  bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the helper profile, or create it with --create",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := call(cmd, "Saving profile...", func(ctx context.Context) domain.Result {
				if create {
					return app.client.Gateway.CreateProfile(ctx, profile)
				}
				return app.client.Gateway.UpdateProfile(ctx, profile)
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().BoolVar(&create, "create", false, "Create the profile instead of updating it")
	cmd.Flags().StringVar(&profile.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&profile.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&profile.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&profile.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&profile.IdentityNumber, "identity-number", "", "National identity number")
	cmd.Flags().StringSliceVar(&profile.Services, "service", nil, "Offered service, repeatable")
	cmd.Flags().StringVar(&profile.Bio, "bio", "", "Short biography")
	return cmd
}

func newProfileRegisterCmd(app *app) *cobra.Command {
	var (
		fields    map[string]string
		documents map[string]string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Submit registration fields and documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			files := make([]gateway.MultipartFile, 0, len(documents))
			for field, path := range documents {
				file, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open document %s: %w", field, err)
				}
				defer file.Close()
				files = append(files, gateway.MultipartFile{Field: field, FileName: filepath.Base(path), Content: file})
			}

			body, err := gateway.NewMultipart(fields, files...)
			if err != nil {
				return err
			}
			result, err := call(cmd, "Registering...", func(ctx context.Context) domain.Result {
				return app.client.Gateway.RegisterHelper(ctx, body)
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringToStringVar(&fields, "field", nil, "Form fields, e.g. --field firstName=Ana")
	cmd.Flags().StringToStringVar(&documents, "document", nil, "Documents by form field, e.g. --document idCard=./id.jpg")
	return cmd
}

func parseToggle(raw string) (bool, error) {
	switch raw {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid value %q: expected on or off", raw)
	}
	return value, nil
}
