package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-swarm/internal/observability"
	"github.com/jonathan/content-swarm/internal/types"
)

var nextStepCmd = &cobra.Command{
	Use:   "next-step <task-id>",
	Short: "Show the next runnable step of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runNextStep,
}

var skipStepCmd = &cobra.Command{
	Use:   "skip-step <step-id>",
	Short: "Mark a pending step skipped so its dependents can run",
	Long:  "Supervisor action: a failed step keeps its dependents blocked until they are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkipStep,
}

var progressCmd = &cobra.Command{
	Use:   "progress <task-id>",
	Short: "Show step counts and completion percentage of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgress,
}

var runningCmd = &cobra.Command{
	Use:   "running <task-id>",
	Short: "Show in-flight outputs per resource class",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunning,
}

var nextOutputsCmd = &cobra.Command{
	Use:   "next-outputs <task-id>",
	Short: "List outputs waiting for an agent in one resource class",
	Args:  cobra.ExactArgs(1),
	RunE:  runNextOutputs,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a task",
	Long:  "Skips pending steps, fails unfinished outputs and evaluations, and marks the task failed.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var (
	nextOutputsClass string
	nextOutputsLimit int
	cancelReason     string
)

func init() {
	nextOutputsCmd.Flags().StringVar(&nextOutputsClass, "class", "", "Resource class: local or cloud (required)")
	nextOutputsCmd.Flags().IntVar(&nextOutputsLimit, "limit", -1, "Maximum outputs to list (default: free budget of the class)")
	if err := nextOutputsCmd.MarkFlagRequired("class"); err != nil {
		panic(fmt.Sprintf("failed to mark class flag as required: %v", err))
	}

	cancelCmd.Flags().StringVar(&cancelReason, "reason", "cancelled by operator", "Reason stored on the task")

	rootCmd.AddCommand(nextStepCmd, skipStepCmd, progressCmd, runningCmd, nextOutputsCmd, cancelCmd)
}

func runNextStep(cmd *cobra.Command, args []string) error {
	taskID, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	step, err := rt.svc.Scheduler().NextReadyStep(cmd.Context(), taskID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), step)
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintStep(step)
	return nil
}

func runSkipStep(cmd *cobra.Command, args []string) error {
	stepID, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	ok, err := rt.svc.Scheduler().SkipStep(cmd.Context(), stepID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("step %s is not pending", stepID)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Skipped step %s\n", stepID)
	return err
}

func runProgress(cmd *cobra.Command, args []string) error {
	taskID, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	progress, err := rt.svc.TaskProgress(cmd.Context(), taskID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), progress)
	}
	task, err := rt.svc.GetTask(cmd.Context(), taskID)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintProgress(task, progress)
	return nil
}

func runRunning(cmd *cobra.Command, args []string) error {
	taskID, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	counts, err := rt.svc.Throttle().RunningCounts(cmd.Context(), taskID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), counts)
	}
	task, err := rt.svc.GetTask(cmd.Context(), taskID)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintRunning(counts, task.Config.Execution)
	return nil
}

func runNextOutputs(cmd *cobra.Command, args []string) error {
	taskID, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	class, err := types.ParseResourceClass(nextOutputsClass)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	th := rt.svc.Throttle()
	limit := nextOutputsLimit
	if limit < 0 {
		if limit, err = th.Budget(cmd.Context(), taskID, class); err != nil {
			return err
		}
	}
	ids, err := th.NextOutputsToProcess(cmd.Context(), taskID, class, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), ids)
	}
	out := cmd.OutOrStdout()
	if len(ids) == 0 {
		_, err = fmt.Fprintf(out, "No %s outputs waiting (limit %d)\n", class, limit)
		return err
	}
	for _, id := range ids {
		if _, err := fmt.Fprintln(out, id); err != nil {
			return err
		}
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	taskID, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	summary, err := rt.svc.CancelTask(cmd.Context(), taskID, cancelReason)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), summary)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Cancelled task %s: %d steps skipped, %d outputs failed, %d evaluations failed\n",
		taskID, summary.StepsSkipped, summary.OutputsFailed, summary.EvaluationsFailed)
	return err
}
