package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const skipWiring = "hg/skip-wiring"

type rootOptions struct {
	logLevel   string
	configFile string
	envFile    string
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := rootOptions{}
	app := &app{}

	rootCmd := &cobra.Command{
		Use:           "hg",
		Short:         "Helper gateway CLI (hg): talk to the home-care backend as a helper",
		Long:          "hg signs a helper in, calls the backend through a rate-limit aware gateway, and follows realtime job and chat events from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipWiring] != "" {
				return nil
			}
			return app.wire(cmd.Context(), wireOptions{
				configFile: opts.configFile,
				envFile:    opts.envFile,
				logLevel:   opts.logLevel,
				logOutput:  cmd.ErrOrStderr(),
			})
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return app.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (trace|debug|info|warn|error); overrides log.level")
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/hg/config.toml)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file loaded before reading HG_* variables")

	rootCmd.AddCommand(
		newVersionCmd(),
		newAuthCmd(app),
		newProfileCmd(app),
		newJobsCmd(app),
		newEarningsCmd(app),
		newNotificationsCmd(app),
		newChatCmd(app),
		newListenCmd(app),
		newStatusCmd(app),
	)

	return rootCmd
}

func newLogger(level string, output io.Writer) (zerolog.Logger, error) {
	parsed := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		var err error
		parsed, err = zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}).
		Level(parsed).
		With().
		Timestamp().
		Logger(), nil
}
