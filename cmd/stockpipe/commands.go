package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/shaiso/Stockpipe/internal/config"
	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/engine"
	"github.com/shaiso/Stockpipe/internal/mq"
	"github.com/shaiso/Stockpipe/internal/repo"
	"github.com/shaiso/Stockpipe/internal/steps"
)

// errRunFailed — run-once завершился со статусом failed.
var errRunFailed = errors.New("run failed")

func parseSlot(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC().Truncate(time.Second), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot %q, expected RFC3339: %w", s, err)
	}
	return t.UTC(), nil
}

func newRunOnceCmd(logger *slog.Logger) *cobra.Command {
	var slot string

	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Execute one run synchronously and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			t, err := parseSlot(slot)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.coord.Trigger(ctx, t, domain.TriggerManual)
			if err != nil {
				return err
			}

			for _, o := range run.Outcomes {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%-20s %-10s attempts=%d %s%s\n",
					o.Ordinal, o.Stage, o.Status, o.Attempts, o.Output, o.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s\n", run.ID, run.Status)

			if run.Status != domain.RunStatusSucceeded {
				return fmt.Errorf("%w: %s", errRunFailed, run.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&slot, "slot", "", "Logical schedule slot in RFC3339 (default: now)")
	return cmd
}

func newTriggerCmd(logger *slog.Logger) *cobra.Command {
	var slot string
	var requestedBy string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Publish a run.trigger message to RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			var payload mq.RunTriggerPayload
			payload.RequestedBy = requestedBy
			if slot != "" {
				if payload.ScheduledAt, err = parseSlot(slot); err != nil {
					return err
				}
			}

			url := cfg.RabbitMQURL
			if url == "" {
				url = mq.DefaultURL()
			}
			conn, err := mq.NewConnection(url, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx := cmd.Context()
			if err := mq.SetupTopology(ctx, conn); err != nil {
				return err
			}
			if err := mq.NewPublisher(conn, logger).PublishRunTrigger(ctx, payload); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "run.trigger published")
			return nil
		},
	}

	cmd.Flags().StringVar(&slot, "slot", "", "Logical schedule slot in RFC3339 (default: time of receipt)")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "cli", "Requester name for logs")
	return cmd
}

func newMigrateCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create run history tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := repo.NewPool(ctx, cfg.DBURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repo.Migrate(ctx, pool); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Validate a pipeline spec (embedded stock_market by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &config.Config{}
			if len(args) == 1 {
				cfg.PipelineFile = args[0]
			}

			p, err := buildPipeline(cfg, steps.NewStockMarketRegistry(steps.StockMarket{}))
			if err != nil {
				return err
			}

			printPipeline(cmd, p)
			return nil
		},
	}
}

func printPipeline(cmd *cobra.Command, p *engine.Pipeline) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "pipeline %s (schedule %q, catchup=%v)\n", p.Name, p.Schedule.CronExpr, p.Schedule.Catchup)
	fmt.Fprintf(w, "sensor: every %s, timeout %s\n", p.SensorInterval, p.SensorTimeout)
	for _, n := range p.Nodes {
		fmt.Fprintf(w, "  %d. %s (%s) attempts=%d timeout=%s\n",
			n.Def.Ordinal, n.Name(), n.Def.Type, n.Def.MaxAttempts(), n.Def.Timeout())
	}
}
