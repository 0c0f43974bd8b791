package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eliang/homeground/internal/config"
)

var batchResultsOut string

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <tasks.yaml>",
		Short: "Run every task in a YAML task file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	cmd.Flags().StringVar(&batchResultsOut, "results", "", "Write results JSON here (default <output_dir>/results.json)")
	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	tasks, err := config.LoadTasks(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	results := app.pipeline.RunBatch(ctx, tasks)

	succeeded := 0
	for _, r := range results {
		printResult(r)
		if r.Success {
			succeeded++
		}
	}
	fmt.Fprintf(os.Stdout, "\n%d/%d tasks succeeded\n", succeeded, len(results))

	out := batchResultsOut
	if out == "" {
		out = filepath.Join(app.cfg.OutputDir, "results.json")
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	fmt.Fprintf(os.Stdout, "results written to %s\n", out)
	return nil
}
