package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/content-swarm/internal/schemas"
	"github.com/jonathan/content-swarm/internal/types"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Register an org's agents and create a task",
	Long: `Reads a JSON or YAML seed file listing an org and its writer, editor and evaluator agents,
upserts the agents and creates a pending task with its outputs, steps and evaluations.
The task's execution budget comes from the seed file, falling back to the config file.`,
	RunE: runSeed,
}

var (
	seedFile   string
	seedNoTask bool
)

// seedDocument is the seed file layout
type seedDocument struct {
	Org    string        `json:"org" yaml:"org"`
	Agents []types.Agent `json:"agents" yaml:"agents"`
	Task   *struct {
		Config *types.TaskConfig `json:"config" yaml:"config"`
	} `json:"task,omitempty" yaml:"task,omitempty"`
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "Path to seed JSON or YAML file (required)")
	seedCmd.Flags().BoolVar(&seedNoTask, "no-task", false, "Only register agents")

	if err := seedCmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Sprintf("failed to mark file flag as required: %v", err))
	}

	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	doc, err := loadSeed(seedFile)
	if err != nil {
		return err
	}

	rt, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	for i := range doc.Agents {
		agent := doc.Agents[i]
		agent.Org = doc.Org
		if err := rt.svc.RegisterAgent(ctx, &agent); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Registered %d agents for %s\n", len(doc.Agents), doc.Org)

	if seedNoTask {
		return nil
	}

	taskCfg := types.TaskConfig{Execution: rt.cfg.Execution}
	if doc.Task != nil && doc.Task.Config != nil {
		taskCfg = *doc.Task.Config
	}
	task, err := rt.svc.CreateTask(ctx, doc.Org, taskCfg)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(out, task)
	}
	_, err = fmt.Fprintf(out, "Created task %s\n", task.ID)
	return err
}

// loadSeed reads a seed file and validates it against the embedded seed schema.
func loadSeed(path string) (*seedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	docJSON := data
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
		}
		if docJSON, err = json.Marshal(raw); err != nil {
			return nil, fmt.Errorf("failed to convert seed YAML: %w", err)
		}
	}

	if err := schemas.ValidateSeed(docJSON); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}

	var doc seedDocument
	if err := json.Unmarshal(docJSON, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed JSON: %w", err)
	}
	return &doc, nil
}
