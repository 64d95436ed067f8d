package throttle

import (
	"strings"

	"github.com/jonathan/content-swarm/internal/types"
)

// DefaultLocalProviders are providers that run inference on local hardware.
var DefaultLocalProviders = []string{"ollama", "lmstudio", "llamacpp", "vllm", "local"}

// Classifier maps a provider name to its resource class.
// Providers not in the lookup are cloud.
type Classifier struct {
	local map[string]bool
}

// NewClassifier builds a classifier from the providers considered local.
// An empty list falls back to DefaultLocalProviders.
func NewClassifier(localProviders []string) *Classifier {
	if len(localProviders) == 0 {
		localProviders = DefaultLocalProviders
	}
	c := &Classifier{local: make(map[string]bool, len(localProviders))}
	for _, p := range localProviders {
		c.local[normalizeProvider(p)] = true
	}
	return c
}

// Classify returns the resource class of a provider.
func (c *Classifier) Classify(provider string) types.ResourceClass {
	if c.local[normalizeProvider(provider)] {
		return types.ClassLocal
	}
	return types.ClassCloud
}

// ClassOf returns the resource class of the provider bound to the output's active step.
func (c *Classifier) ClassOf(output *types.Output) types.ResourceClass {
	return c.Classify(output.ActiveProvider())
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
