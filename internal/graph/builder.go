package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskmesh/taskmesh/internal/plan"
)

// Well-known capability tags. The set is open: workers may register under
// any tag, and plan steps with an explicit type pass through unchanged.
const (
	CapabilityDesign = "design"
	CapabilityCode   = "code"
	CapabilityVerify = "verify"
)

// DurationPredictor estimates how long a capability sequence will take.
// Implemented by the learning module; a nil predictor falls back to a
// fixed per-task estimate.
type DurationPredictor interface {
	Predict(sequence []string) time.Duration
}

// FallbackEstimate is the per-task duration used when no predictor is
// available or it has no history for a sequence.
const FallbackEstimate = 30 * time.Second

// Build converts a validated plan into a task graph. Every step becomes one
// pending task with a generated ID, an inferred capability, resolved
// dependency IDs, and a duration estimate. Build fails only on malformed
// input; it never touches a worker.
func Build(p *plan.Plan, predictor DurationPredictor) (*Graph, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("malformed plan: %w", err)
	}

	g := New()
	idByName := make(map[string]string, len(p.Steps))
	for _, step := range p.Steps {
		idByName[step.Name] = uuid.NewString()
	}

	for _, step := range p.Steps {
		capability := InferCapability(step)

		deps := make([]string, 0, len(step.Dependencies))
		for _, depName := range step.Dependencies {
			deps = append(deps, idByName[depName])
		}

		priority := step.Priority
		if priority <= 0 {
			priority = 1
		}

		task := &Task{
			ID:           idByName[step.Name],
			Name:         step.Name,
			Capability:   capability,
			Instructions: step.Description,
			DependsOn:    deps,
			FilesToWrite: append([]string(nil), step.FilesToModify...),
			Status:       StatusPending,
			Priority:     priority,
			Estimated:    estimate(predictor, capability),
			MaxRetries:   DefaultMaxRetries,
		}
		if task.Instructions == "" {
			task.Instructions = step.Name
		}
		if err := g.Add(task); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// InferCapability maps a plan step to a worker capability tag. An explicit
// step type wins; otherwise the step name and description are matched
// against capability keywords, defaulting to "code".
func InferCapability(step plan.Step) string {
	if step.Type != "" {
		return step.Type
	}

	text := strings.ToLower(step.Name + " " + step.Description)
	switch {
	case strings.Contains(text, "test") || strings.Contains(text, "debug"):
		return CapabilityVerify
	case len(step.FilesToModify) > 0 || strings.Contains(text, "implement"):
		return CapabilityCode
	case strings.Contains(text, "design") || strings.Contains(text, "plan"):
		return CapabilityDesign
	default:
		return CapabilityCode
	}
}

func estimate(predictor DurationPredictor, capability string) time.Duration {
	if predictor == nil {
		return FallbackEstimate
	}
	return predictor.Predict([]string{capability})
}
