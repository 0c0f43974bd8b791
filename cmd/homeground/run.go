package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eliang/homeground/internal/types"
)

var runDescription string

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <task title>",
		Short: "Run a single household task",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRun,
	}
	cmd.Flags().StringVar(&runDescription, "description", "", "Longer task description (defaults to the title)")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	title := strings.Join(args, " ")
	desc := runDescription
	if desc == "" {
		desc = title
	}
	task := types.Task{ID: 1, Title: title, Description: desc}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res := app.pipeline.RunTask(ctx, task)
	printResult(res)
	if res.Err != "" {
		return fmt.Errorf("task failed: %s", res.Err)
	}
	return nil
}

func printResult(r types.TaskResult) {
	status := "FAILED"
	if r.Success {
		status = "OK"
	}
	if r.Err != "" {
		status = "FATAL"
	}
	fmt.Fprintf(os.Stdout, "[%s] task %d: %s\n", status, r.TaskID, r.Title)
	if r.Verification != "" {
		fmt.Fprintf(os.Stdout, "  %s\n", r.Verification)
	}
	if r.Repaired {
		fmt.Fprintln(os.Stdout, "  (completed after plan repair)")
	}
	if r.Err != "" {
		fmt.Fprintf(os.Stdout, "  error: %s\n", r.Err)
	}
}
