package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-swarm/internal/observability"
)

var rankCmd = &cobra.Command{
	Use:   "rank <task-id>",
	Short: "Run a tournament phase or show standings",
	Long: `Runs one phase of the tournament for a task:
  initial    recompute round-one averages and ranks
  finalists  mark the best initially ranked outputs as finalists (--top-n, default from task config)
  prepare    create final-round evaluations for every evaluator and finalist
  final      recompute round-two weighted totals and final ranks
  standings  show current standings (default)`,
	Args: cobra.ExactArgs(1),
	RunE: runRank,
}

var (
	rankPhase string
	rankTopN  int
)

func init() {
	rankCmd.Flags().StringVar(&rankPhase, "phase", "standings", "Phase: initial, finalists, prepare, final, standings")
	rankCmd.Flags().IntVar(&rankTopN, "top-n", 0, "Finalist count for --phase finalists (default: task config)")
	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, args []string) error {
	taskID, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	engine := rt.svc.Ranking()
	out := cmd.OutOrStdout()
	printer := observability.NewPrinter(out)

	switch rankPhase {
	case "initial":
		rankings, err := engine.CalculateInitialRankings(ctx, taskID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, rankings)
		}
		_, err = fmt.Fprintf(out, "Ranked %d outputs\n", len(rankings))
		return err

	case "finalists":
		var ids []string
		if rankTopN > 0 {
			finalists, err := engine.SelectFinalists(ctx, taskID, rankTopN)
			if err != nil {
				return err
			}
			for _, id := range finalists {
				ids = append(ids, id.String())
			}
		} else {
			finalists, err := engine.SelectConfiguredFinalists(ctx, taskID)
			if err != nil {
				return err
			}
			for _, id := range finalists {
				ids = append(ids, id.String())
			}
		}
		if jsonOutput {
			return printJSON(out, ids)
		}
		_, err = fmt.Fprintf(out, "Selected %d finalists\n", len(ids))
		return err

	case "prepare":
		created, err := engine.PrepareFinalRound(ctx, taskID)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "Created %d final-round evaluations\n", created)
		return err

	case "final":
		rankings, err := engine.CalculateFinalRankings(ctx, taskID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, rankings)
		}
		printer.PrintFinalRankings(rankings)
		return nil

	case "standings":
		outputs, err := engine.Standings(ctx, taskID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, outputs)
		}
		printer.PrintStandings(outputs)
		return nil
	}
	return fmt.Errorf("unknown phase %q", rankPhase)
}
