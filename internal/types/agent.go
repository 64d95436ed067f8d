package types

import "fmt"

// AgentRole is the part an agent plays in the swarm.
type AgentRole string

// AgentRole values
const (
	RoleWriter    AgentRole = "writer"
	RoleEditor    AgentRole = "editor"
	RoleEvaluator AgentRole = "evaluator"
)

// Agent is a writer, editor or evaluator registered for an org. Slugs are unique per org.
type Agent struct {
	Org      string    `json:"org" yaml:"org"`
	Slug     string    `json:"slug" yaml:"slug" validate:"required"`
	Role     AgentRole `json:"role" yaml:"role" validate:"required,oneof=writer editor evaluator"`
	Provider string    `json:"provider" yaml:"provider" validate:"required"`
	Model    string    `json:"model" yaml:"model"`
}

// ResourceClass partitions inference providers for concurrency budgeting.
type ResourceClass string

// ResourceClass values
const (
	ClassLocal ResourceClass = "local"
	ClassCloud ResourceClass = "cloud"
)

// ResourceClasses lists every class in a stable order.
var ResourceClasses = []ResourceClass{ClassLocal, ClassCloud}

// ParseResourceClass converts a string to a ResourceClass.
func ParseResourceClass(s string) (ResourceClass, error) {
	switch ResourceClass(s) {
	case ClassLocal, ClassCloud:
		return ResourceClass(s), nil
	default:
		return "", fmt.Errorf("unknown resource class %q", s)
	}
}

// RunningCounts holds in-flight output counts per resource class.
type RunningCounts struct {
	Local int `json:"local"`
	Cloud int `json:"cloud"`
}

// For returns the count for a class.
func (c RunningCounts) For(class ResourceClass) int {
	if class == ClassLocal {
		return c.Local
	}
	return c.Cloud
}
