package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mahirjain10/convertkit/config"
	"github.com/mahirjain10/convertkit/internal/token"
)

func newTokenCmd(st *state) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "token [jwt]",
		Short: "Decode a JWT and report whether it has expired",
		Long:  "Decode a JWT without verifying its signature. The token is read from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 1 {
				raw = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read token: %w", err)
				}
				raw = string(data)
			}

			now := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				now = parsed
			}

			formatter, err := newFormatter(st.cfg.Token)
			if err != nil {
				return err
			}

			report := token.Inspect(raw, now, formatter)
			fmt.Fprint(cmd.OutOrStdout(), report.String())
			if report.Error != "" {
				return errors.New("token could not be decoded")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate expiry at this RFC3339 time instead of now")
	return cmd
}

func newFormatter(cfg config.TokenConfig) (token.Formatter, error) {
	formatter := token.DefaultFormatter()
	if cfg.TimeLayout != "" {
		formatter.Layout = cfg.TimeLayout
	}
	if cfg.TimeZone != "" {
		loc, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return token.Formatter{}, fmt.Errorf("invalid token.time_zone: %w", err)
		}
		formatter.Location = loc
	}
	return formatter, nil
}
