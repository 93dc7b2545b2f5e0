package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrjohn/arcana-pos-go/internal/cli/output"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
)

// queueList renders queued requests
type queueList []offline.QueuedRequest

func (q queueList) Headers() []string {
	return []string{"ID", "Method", "Endpoint", "Age", "Retries", "Last Error"}
}

func (q queueList) Rows() [][]string {
	rows := make([][]string, 0, len(q))
	for _, r := range q {
		rows = append(rows, []string{
			r.ID,
			string(r.Method),
			r.Endpoint,
			time.Since(r.EnqueuedAt()).Truncate(time.Second).String(),
			strconv.Itoa(r.RetryCount),
			r.LastError,
		})
	}
	return rows
}

func newQueueCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued requests",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List pending requests in replay order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printEntries(cmd, flags, func(e *env) []offline.QueuedRequest { return e.service.Queue() })
			},
		},
		&cobra.Command{
			Use:   "failed",
			Short: "List requests dropped after exhausting their retries",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printEntries(cmd, flags, func(e *env) []offline.QueuedRequest { return e.service.FailedRequests() })
			},
		},
		&cobra.Command{
			Use:   "dismiss <id>",
			Short: "Remove a failed request from the failed list",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := openEnv(cmd.Context(), flags)
				if err != nil {
					return err
				}
				defer e.Close()

				e.service.DismissFailed(cmd.Context(), args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "Dismissed %s\n", args[0])
				return nil
			},
		},
		newQueueClearCmd(flags),
	)
	return cmd
}

func newQueueClearCmd(flags *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard every pending and failed request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("queued changes will be lost; pass --yes to confirm")
			}

			e, err := openEnv(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer e.Close()

			pending, failed := e.service.GetQueueSize(), len(e.service.FailedRequests())
			e.service.ClearQueue(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d pending and %d failed requests\n", pending, failed)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm discarding queued changes")
	return cmd
}

func printEntries(cmd *cobra.Command, flags *globalFlags, list func(*env) []offline.QueuedRequest) error {
	format, err := flags.format()
	if err != nil {
		return err
	}

	e, err := openEnv(cmd.Context(), flags)
	if err != nil {
		return err
	}
	defer e.Close()

	entries := list(e)
	if entries == nil {
		entries = []offline.QueuedRequest{}
	}
	if format == output.FormatTable && len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No requests.")
		return nil
	}
	return output.Print(cmd.OutOrStdout(), format, queueList(entries))
}
