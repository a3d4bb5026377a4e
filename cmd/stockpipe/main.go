// Stockpipe — ежедневный pipeline котировок.
//
// Демон ждёт доступности API котировок, сохраняет котировки в MinIO,
// форматирует их задачей в контейнере и загружает CSV в PostgreSQL.
//
// Использование:
//
//	stockpipe serve              # scheduler + очередь runs.trigger + HTTP API
//	stockpipe run-once [--slot]  # один run синхронно, код выхода по статусу
//	stockpipe trigger [--slot]   # публикация run.trigger в RabbitMQ
//	stockpipe migrate            # схема истории runs
//	stockpipe validate [FILE]    # проверка спецификации pipeline
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Stockpipe/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	logger := telemetry.SetupLogger()

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := &cobra.Command{
		Use:           "stockpipe",
		Short:         "Daily stock market pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(logger),
		newRunOnceCmd(logger),
		newTriggerCmd(logger),
		newMigrateCmd(logger),
		newValidateCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
