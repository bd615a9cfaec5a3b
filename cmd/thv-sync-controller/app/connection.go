package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stacklok/toolhive-sync-controller/internal/app"
	"github.com/stacklok/toolhive-sync-controller/internal/scheduling"
)

// connectionAction runs one controller operation for a connection
type connectionAction func(ctx context.Context, c *scheduling.Client, id uuid.UUID, out io.Writer) error

func newConnectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection",
		Short: "Steer the controller of a connection",
		Long: `Send signals to and query the controller workflow of a connection.
Every subcommand takes the connection id as its only argument.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := cmd.MarkPersistentFlagRequired("config"); err != nil {
		panic(err)
	}

	var skipNext bool
	reset := connectionSubcommand("reset", "Reset the connection",
		func(ctx context.Context, c *scheduling.Client, id uuid.UUID, _ io.Writer) error {
			return c.Reset(ctx, id, skipNext)
		})
	reset.Flags().BoolVar(&skipNext, "skip-next-scheduling", false,
		"Also run the sync after the reset without waiting for the schedule")

	cmd.AddCommand(
		connectionSubcommand("start", "Start the controller if it is not running",
			func(ctx context.Context, c *scheduling.Client, id uuid.UUID, out io.Writer) error {
				runID, err := c.Start(ctx, id)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, runID)
				return err
			}),
		connectionSubcommand("sync", "Run a sync now",
			func(ctx context.Context, c *scheduling.Client, id uuid.UUID, _ io.Writer) error {
				return c.SubmitManualSync(ctx, id)
			}),
		connectionSubcommand("cancel", "Cancel the running job",
			func(ctx context.Context, c *scheduling.Client, id uuid.UUID, _ io.Writer) error {
				return c.CancelJob(ctx, id)
			}),
		reset,
		connectionSubcommand("update", "Reload the connection configuration",
			func(ctx context.Context, c *scheduling.Client, id uuid.UUID, _ io.Writer) error {
				return c.Update(ctx, id)
			}),
		connectionSubcommand("delete", "Stop the controller for good",
			func(ctx context.Context, c *scheduling.Client, id uuid.UUID, _ io.Writer) error {
				return c.Delete(ctx, id)
			}),
		connectionSubcommand("state", "Print the signal state of the controller",
			func(ctx context.Context, c *scheduling.Client, id uuid.UUID, out io.Writer) error {
				state, err := c.GetState(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(out, state)
			}),
		connectionSubcommand("job", "Print the job and attempt the controller is working on",
			func(ctx context.Context, c *scheduling.Client, id uuid.UUID, out io.Writer) error {
				info, err := c.GetJobInformation(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(out, info)
			}),
	)
	return cmd
}

func connectionSubcommand(use, short string, action connectionAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <connection-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConnectionID(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			tc, err := app.DialTemporal(ctx, cfg.Temporal, nil)
			if err != nil {
				return err
			}
			defer tc.Close()

			return action(ctx, scheduling.NewClient(tc, cfg.Temporal.GetTaskQueue()), id, cmd.OutOrStdout())
		},
	}
}

func parseConnectionID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid connection id %q: %w", arg, err)
	}
	return id, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
