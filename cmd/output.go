package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// writeResult prints the data of a successful result as indented JSON and
// turns a failed one into an error.
func writeResult(w io.Writer, result domain.Result) error {
	if err := resultError(result); err != nil {
		return err
	}
	if len(result.Data) == 0 || string(result.Data) == "null" {
		_, err := fmt.Fprintln(w, "ok")
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, result.Data, "", "  "); err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func resultError(result domain.Result) error {
	err := result.Err()
	if err == nil {
		return nil
	}
	if result.Status > 0 {
		return fmt.Errorf("%w (status %d)", err, result.Status)
	}
	return err
}

// simpleCmd builds a leaf command that runs fn and prints its result.
func simpleCmd(use, short, label string, fn func(context.Context) domain.Result) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := call(cmd, label, fn)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}
}

// idCmd is simpleCmd for operations on one resource named by the only
// positional argument.
func idCmd(use, short, label string, fn func(context.Context, string) domain.Result) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := call(cmd, label, func(ctx context.Context) domain.Result {
				return fn(ctx, args[0])
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}
}
