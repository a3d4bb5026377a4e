package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage pipeline runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunTriggerCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
	)

	return cmd
}

var runHeaders = []string{"ID", "SLOT", "STATUS", "TRIGGER", "ACTIVE", "ERROR"}

func runRow(r RunResponse) []string {
	return []string{r.ID, r.ScheduledAt, Status(r.Status), r.Trigger, strconv.FormatBool(r.Active), r.Error}
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListRunsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := clientFn().ListRuns(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = runRow(r)
			}

			outputFn().Print(runHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (pending, running, succeeded, failed)")
	cmd.Flags().BoolVar(&opts.Active, "active", false, "Only runs executing right now")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newRunTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var slot string
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Trigger a pipeline run",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var req TriggerRunRequest
			if slot != "" {
				t, err := time.Parse(time.RFC3339, slot)
				if err != nil {
					return fmt.Errorf("invalid --slot %q, expected RFC3339: %w", slot, err)
				}
				req.ScheduledAt = &t
			}

			run, err := client.TriggerRun(req)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Run triggered: %s", run.ID))

			if wait {
				run, err = WaitRun(cmd.Context(), client, run.ID, interval)
				if err != nil {
					return err
				}
			}

			printRun(out, run)
			if wait && run.Status == "failed" {
				return fmt.Errorf("run %s failed: %s", run.ID, run.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&slot, "slot", "", "Logical schedule slot in RFC3339 (default: now)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the run finishes")
	cmd.Flags().DurationVar(&interval, "poll-interval", 2*time.Second, "Polling interval for --wait")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details with stage outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().GetRun(args[0])
			if err != nil {
				return err
			}

			printRun(outputFn(), run)
			return nil
		},
	}
}

func newRunCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an active run",
		Long:  "Cancel an active run. The running stage attempt is not interrupted; the run fails before the next one.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().CancelRun(args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Cancellation requested: %s", args[0]))
			return nil
		},
	}
}

func printRun(out *Output, run *RunResponse) {
	if out.jsonMode {
		out.JSON(run)
		return
	}

	out.Table(runHeaders, [][]string{runRow(*run)})

	if len(run.Outcomes) == 0 {
		return
	}

	out.Title("\nStages")
	rows := make([][]string, len(run.Outcomes))
	for i, o := range run.Outcomes {
		rows[i] = []string{strconv.Itoa(o.Ordinal), o.Stage, Status(o.Status), strconv.Itoa(o.Attempts), o.Output, o.Error}
	}
	out.Table([]string{"#", "STAGE", "STATUS", "ATTEMPTS", "OUTPUT", "ERROR"}, rows)
}

// WaitRun опрашивает API, пока run не перейдёт в терминальный статус.
func WaitRun(ctx context.Context, client *Client, id string, interval time.Duration) (*RunResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := client.GetRun(id)
		if err != nil {
			return nil, err
		}
		if run.Status == "succeeded" || run.Status == "failed" {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}
