package types

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepSet_JSON(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	set := NewStepSet(a, b, a)
	assert.Len(t, set, 2)

	data, err := json.Marshal(set)
	require.NoError(t, err)

	var decoded StepSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Contains(a))
	assert.True(t, decoded.Contains(b))
	assert.Equal(t, set.IDs(), decoded.IDs())
}

func TestStepSet_EmptyMarshalsToArray(t *testing.T) {
	data, err := json.Marshal(NewStepSet())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestCanTransitionStep(t *testing.T) {
	tests := []struct {
		from, to StepStatus
		want     bool
	}{
		{StepPending, StepProcessing, true},
		{StepPending, StepSkipped, true},
		{StepProcessing, StepCompleted, true},
		{StepProcessing, StepFailed, true},
		{StepPending, StepCompleted, false},
		{StepCompleted, StepPending, false},
		{StepFailed, StepProcessing, false},
		{StepSkipped, StepPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionStep(tt.from, tt.to))
		})
	}
}

func TestStepStatus_Resolves(t *testing.T) {
	assert.True(t, StepCompleted.Resolves())
	assert.True(t, StepSkipped.Resolves())
	assert.False(t, StepFailed.Resolves())
	assert.False(t, StepPending.Resolves())
	assert.False(t, StepProcessing.Resolves())
}

func TestCanTransitionTask(t *testing.T) {
	assert.True(t, CanTransitionTask(TaskPending, TaskRunning))
	assert.True(t, CanTransitionTask(TaskPending, TaskFailed))
	assert.True(t, CanTransitionTask(TaskRunning, TaskCompleted))
	assert.False(t, CanTransitionTask(TaskCompleted, TaskRunning))
	assert.False(t, CanTransitionTask(TaskFailed, TaskPending))
	assert.False(t, CanTransitionTask(TaskPending, TaskCompleted))
	assert.True(t, TaskFailed.IsTerminal())
	assert.False(t, TaskRunning.IsTerminal())
}

func TestExecutionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ExecutionConfig
		wantErr bool
	}{
		{"valid", ExecutionConfig{2, 5, 3, 5, 1}, false},
		{"zero concurrency allowed", ExecutionConfig{0, 0, 0, 1, 1}, false},
		{"negative local", ExecutionConfig{-1, 5, 3, 5, 1}, true},
		{"zero finalists", ExecutionConfig{2, 5, 3, 0, 1}, true},
		{"deliverables above finalists", ExecutionConfig{2, 5, 3, 2, 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExecutionConfig_MaxConcurrent(t *testing.T) {
	cfg := ExecutionConfig{MaxLocalConcurrent: 2, MaxCloudConcurrent: 7}
	assert.Equal(t, 2, cfg.MaxConcurrent(ClassLocal))
	assert.Equal(t, 7, cfg.MaxConcurrent(ClassCloud))
}

func TestOutput_ActiveProvider(t *testing.T) {
	out := Output{WriterProvider: "ollama", EditorProvider: "openai"}
	for status, want := range map[OutputStatus]string{
		OutputPendingWrite:   "ollama",
		OutputWriting:        "ollama",
		OutputPendingEdit:    "openai",
		OutputEditing:        "openai",
		OutputPendingRewrite: "ollama",
		OutputRewriting:      "ollama",
	} {
		out.Status = status
		assert.Equal(t, want, out.ActiveProvider(), string(status))
	}
}

func TestOutputStatus_Predicates(t *testing.T) {
	assert.True(t, OutputApproved.IsTerminal())
	assert.True(t, OutputMaxCyclesReached.IsTerminal())
	assert.True(t, OutputFailed.IsTerminal())
	assert.False(t, OutputEditing.IsTerminal())

	assert.True(t, OutputRewriting.IsInFlight())
	assert.False(t, OutputPendingRewrite.IsInFlight())

	assert.True(t, OutputPendingEdit.IsPending())
	assert.False(t, OutputApproved.IsPending())
}

func TestParseResourceClass(t *testing.T) {
	class, err := ParseResourceClass("local")
	require.NoError(t, err)
	assert.Equal(t, ClassLocal, class)

	_, err = ParseResourceClass("gpu")
	assert.Error(t, err)

	counts := RunningCounts{Local: 1, Cloud: 4}
	assert.Equal(t, 4, counts.For(ClassCloud))
}
