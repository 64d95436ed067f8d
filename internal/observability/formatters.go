// Package observability provides structured logging and formatted CLI output.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
	// progressBarWidth is the number of cells in the progress bar
	progressBarWidth = 40
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintProgress outputs step counts and a completion bar for a task.
func (p *Printer) PrintProgress(task *types.Task, progress types.TaskProgress) {
	if task == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Task:    %s\n", task.ID))
	sb.WriteString(fmt.Sprintf("Status:  %s\n", task.Status))
	sb.WriteString("\n")

	filled := progress.Percentage * progressBarWidth / 100
	sb.WriteString(fmt.Sprintf("[%s%s] %3d%%\n",
		strings.Repeat("#", filled), strings.Repeat(".", progressBarWidth-filled), progress.Percentage))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Total:       %d\n", progress.Total))
	sb.WriteString(fmt.Sprintf("Pending:     %d\n", progress.Pending))
	sb.WriteString(fmt.Sprintf("Processing:  %d\n", progress.Processing))
	sb.WriteString(fmt.Sprintf("Completed:   %d\n", progress.Completed))
	sb.WriteString(fmt.Sprintf("Failed:      %d\n", progress.Failed))
	sb.WriteString(fmt.Sprintf("Skipped:     %d", progress.Skipped))

	p.printBox("TASK PROGRESS", sb.String())
}

// PrintRunning outputs in-flight counts against the task's concurrency budget.
func (p *Printer) PrintRunning(counts types.RunningCounts, exec types.ExecutionConfig) {
	var sb strings.Builder
	for _, class := range types.ResourceClasses {
		sb.WriteString(fmt.Sprintf("%-6s  %d / %d running\n", class, counts.For(class), exec.MaxConcurrent(class)))
	}
	p.printBox("RUNNING OUTPUTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStep outputs a single execution step, or a notice when none is ready.
func (p *Printer) PrintStep(step *types.ExecutionStep) {
	if step == nil {
		p.printBox("NEXT STEP", "No step is ready")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:        %s\n", step.ID))
	sb.WriteString(fmt.Sprintf("Sequence:  %d\n", step.Sequence))
	sb.WriteString(fmt.Sprintf("Type:      %s\n", step.StepType))
	sb.WriteString(fmt.Sprintf("Agent:     %s", step.AgentSlug))
	if step.InputOutputID != nil {
		sb.WriteString(fmt.Sprintf("\nOutput:    %s", *step.InputOutputID))
	}
	if len(step.DependsOn) > 0 {
		sb.WriteString(fmt.Sprintf("\nDepends:   %d steps", len(step.DependsOn)))
	}
	p.printBox("NEXT STEP", sb.String())
}

// PrintStandings outputs outputs in ranking order with their round scores.
func (p *Printer) PrintStandings(outputs []types.Output) {
	if len(outputs) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Outputs: %d\n\n", len(outputs)))

	count := min(len(outputs), maxItemsToShow)
	for i := 0; i < count; i++ {
		out := outputs[i]
		marker := " "
		if out.IsFinalist {
			marker = "*"
		}
		sb.WriteString(fmt.Sprintf("%s %-8s %-12s %s\n", marker, rankLabel(out.FinalRank), out.WriterSlug, out.Status))
		sb.WriteString("    R1: ")
		if out.InitialAvgScore != nil {
			sb.WriteString(fmt.Sprintf("%.1f (%s)", *out.InitialAvgScore, rankLabel(out.InitialRank)))
		} else {
			sb.WriteString("-")
		}
		if out.FinalTotalScore != nil {
			sb.WriteString(fmt.Sprintf("  R2: %d", *out.FinalTotalScore))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(outputs) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n\n... and %d more outputs", len(outputs)-maxItemsToShow))
	}

	p.printBox("STANDINGS", sb.String())
}

// PrintFinalRankings outputs the round-two result, winner first.
func (p *Printer) PrintFinalRankings(rankings []types.FinalRanking) {
	if len(rankings) == 0 {
		return
	}

	var sb strings.Builder
	for i, r := range rankings {
		sb.WriteString(fmt.Sprintf("#%d  %s  %d pts (%d votes)", r.Rank, shortID(r.OutputID), r.TotalScore, r.Responses))
		if i < len(rankings)-1 {
			sb.WriteString("\n")
		}
	}
	p.printBox("FINAL RANKINGS", sb.String())
}

// shortID keeps the first block of a UUID so ranking lines fit the box.
func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func rankLabel(rank *int) string {
	if rank == nil {
		return "-"
	}
	return fmt.Sprintf("#%d", *rank)
}
