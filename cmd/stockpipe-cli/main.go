// Stockpipe CLI — управление runs pipeline через HTTP API демона.
//
// Использование:
//
//	stockpipe-cli [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	run       Управление runs (list, trigger, show, cancel)
//	pipeline  Описание pipeline
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Stockpipe/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "stockpipe-cli",
		Short:         "Stockpipe CLI — stock market pipeline runs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("STOCKPIPE_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewPipelineCmd(clientFn, outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cli.NewOutput(jsonOutput).Error(err.Error())
		cancel()
		os.Exit(1)
	}
}
