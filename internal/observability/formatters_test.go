package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-swarm/internal/types"
)

func intPtr(v int) *int { return &v }

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	task := &types.Task{ID: uuid.New(), Status: types.TaskRunning}
	p.PrintProgress(task, types.TaskProgress{Total: 4, Pending: 1, Completed: 2, Skipped: 1, Percentage: 75})
	output := buf.String()

	assert.Contains(t, output, "TASK PROGRESS")
	assert.Contains(t, output, task.ID.String())
	assert.Contains(t, output, "running")
	assert.Contains(t, output, " 75%")
	assert.Contains(t, output, strings.Repeat("#", 30)+strings.Repeat(".", 10))
}

func TestPrintProgress_Nil(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintProgress(nil, types.TaskProgress{})
	assert.Empty(t, buf.String())
}

func TestPrintRunning(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRunning(types.RunningCounts{Local: 1, Cloud: 3},
		types.ExecutionConfig{MaxLocalConcurrent: 2, MaxCloudConcurrent: 5})
	output := buf.String()

	assert.Contains(t, output, "local   1 / 2 running")
	assert.Contains(t, output, "cloud   3 / 5 running")
}

func TestPrintStep(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	outputID := uuid.New()
	p.PrintStep(&types.ExecutionStep{
		ID:            uuid.New(),
		Sequence:      3,
		StepType:      types.StepEdit,
		AgentSlug:     "editor-1",
		InputOutputID: &outputID,
		DependsOn:     types.NewStepSet(uuid.New()),
	})
	output := buf.String()

	assert.Contains(t, output, "Sequence:  3")
	assert.Contains(t, output, "edit")
	assert.Contains(t, output, "editor-1")
	assert.Contains(t, output, outputID.String())
	assert.Contains(t, output, "1 steps")
}

func TestPrintStep_NoneReady(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintStep(nil)
	assert.Contains(t, buf.String(), "No step is ready")
}

func TestPrintStandings(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	avg := 8.5
	total := 260
	outputs := []types.Output{
		{WriterSlug: "writer-a", Status: types.OutputApproved, IsFinalist: true,
			InitialAvgScore: &avg, InitialRank: intPtr(1), FinalTotalScore: &total, FinalRank: intPtr(1)},
		{WriterSlug: "writer-b", Status: types.OutputFailed},
	}
	p.PrintStandings(outputs)
	output := buf.String()

	assert.Contains(t, output, "STANDINGS")
	assert.Contains(t, output, "* #1")
	assert.Contains(t, output, "writer-a")
	assert.Contains(t, output, "8.5 (#1)")
	assert.Contains(t, output, "R2: 260")
	assert.Contains(t, output, "writer-b")
}

func TestPrintStandings_Truncates(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	outputs := make([]types.Output, maxItemsToShow+3)
	for i := range outputs {
		outputs[i] = types.Output{WriterSlug: "w", Status: types.OutputPendingWrite}
	}
	p.PrintStandings(outputs)
	assert.Contains(t, buf.String(), "... and 3 more outputs")
}

func TestPrintFinalRankings(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	winner := uuid.New()
	runnerUp := uuid.New()
	p.PrintFinalRankings([]types.FinalRanking{
		{OutputID: winner, TotalScore: 260, Rank: 1, Responses: 3},
		{OutputID: runnerUp, TotalScore: 1000, Rank: 2, Responses: 10},
	})
	output := buf.String()

	assert.Contains(t, output, "FINAL RANKINGS")
	assert.Contains(t, output, "#1  "+winner.String()[:8]+"  260 pts (3 votes)")
	assert.Contains(t, output, "#2  "+runnerUp.String()[:8]+"  1000 pts (10 votes)")
	assert.NotContains(t, output, "...")
}

func TestPrintBox_LongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("TEST", strings.Repeat("x", 100))
	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		assert.Equal(t, boxWidth, len([]rune(line)))
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("warn", "json", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "task_id", "t1")

	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, `"msg":"shown"`)
	assert.Contains(t, output, `"task_id":"t1"`)
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := NewLogger("loud", "text", nil)
	assert.Error(t, err)

	_, err = NewLogger("info", "xml", nil)
	assert.Error(t, err)
}
