package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-swarm/internal/dispatch"
	"github.com/jonathan/content-swarm/internal/observability"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <task-id>",
	Short: "Run a task to completion with the simulated agent",
	Long: `Polls the scheduler and throttle, runs every write, edit, rewrite and evaluation with a
deterministic simulated agent, then ranks the drafts. Useful for dry runs of a plan and its
concurrency budget; real model clients plug in through the dispatch.Agent interface.`,
	Args: cobra.ExactArgs(1),
	RunE: runDispatch,
}

var dispatchApproveAfter int

func init() {
	dispatchCmd.Flags().IntVar(&dispatchApproveAfter, "approve-after", 1, "Edit cycle from which the simulated editor approves")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	taskID, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := dispatch.New(rt.svc,
		dispatch.SimulatedAgent{ApproveAfter: dispatchApproveAfter},
		dispatch.Options{PollInterval: time.Duration(rt.cfg.PollIntervalMS) * time.Millisecond},
		rt.logger,
	)
	if err := d.Run(ctx, taskID); err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}

	standings, err := rt.svc.Ranking().Standings(ctx, taskID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), standings)
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintStandings(standings)
	return nil
}
