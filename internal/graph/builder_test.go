package graph

import (
	"testing"
	"time"

	"github.com/taskmesh/taskmesh/internal/plan"
)

// TestInferCapability covers the keyword-matching fallback chain.
func TestInferCapability(t *testing.T) {
	tests := []struct {
		name string
		step plan.Step
		want string
	}{
		{
			name: "explicit type wins",
			step: plan.Step{Name: "write tests", Type: "design"},
			want: "design",
		},
		{
			name: "test keyword maps to verify",
			step: plan.Step{Name: "add unit tests"},
			want: CapabilityVerify,
		},
		{
			name: "debug keyword maps to verify",
			step: plan.Step{Name: "investigate", Description: "debug the flaky startup"},
			want: CapabilityVerify,
		},
		{
			name: "files to modify maps to code",
			step: plan.Step{Name: "touch up", FilesToModify: []string{"main.go"}},
			want: CapabilityCode,
		},
		{
			name: "implement keyword maps to code",
			step: plan.Step{Name: "implement the parser"},
			want: CapabilityCode,
		},
		{
			name: "design keyword maps to design",
			step: plan.Step{Name: "design the schema"},
			want: CapabilityDesign,
		},
		{
			name: "plan keyword maps to design",
			step: plan.Step{Name: "plan the migration"},
			want: CapabilityDesign,
		},
		{
			name: "default is code",
			step: plan.Step{Name: "miscellaneous chores"},
			want: CapabilityCode,
		},
		{
			name: "test keyword beats files to modify",
			step: plan.Step{Name: "fix the tests", FilesToModify: []string{"x_test.go"}},
			want: CapabilityVerify,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferCapability(tt.step); got != tt.want {
				t.Errorf("InferCapability() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	p := &plan.Plan{Steps: []plan.Step{
		{Name: "design api", Description: "sketch endpoints"},
		{Name: "implement api", Dependencies: []string{"design api"}, Priority: 5, FilesToModify: []string{"api.go"}},
		{Name: "test api", Dependencies: []string{"implement api"}},
	}}

	g, err := Build(p, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if g.Len() != 3 {
		t.Fatalf("got %d tasks, want 3", g.Len())
	}

	design, ok := g.ByName("design api")
	if !ok {
		t.Fatal("design task not found")
	}
	impl, _ := g.ByName("implement api")
	verify, _ := g.ByName("test api")

	// Dependency names resolve to generated task IDs.
	if len(impl.DependsOn) != 1 || impl.DependsOn[0] != design.ID {
		t.Errorf("impl.DependsOn = %v, want [%s]", impl.DependsOn, design.ID)
	}
	if len(verify.DependsOn) != 1 || verify.DependsOn[0] != impl.ID {
		t.Errorf("verify.DependsOn = %v, want [%s]", verify.DependsOn, impl.ID)
	}

	// Defaults and passthroughs.
	if design.Priority != 1 {
		t.Errorf("default priority = %d, want 1", design.Priority)
	}
	if impl.Priority != 5 {
		t.Errorf("explicit priority = %d, want 5", impl.Priority)
	}
	if design.Status != StatusPending {
		t.Errorf("status = %v, want pending", design.Status)
	}
	if design.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", design.MaxRetries, DefaultMaxRetries)
	}
	if design.Estimated != FallbackEstimate {
		t.Errorf("Estimated = %v, want fallback %v", design.Estimated, FallbackEstimate)
	}
	if design.Capability != CapabilityDesign {
		t.Errorf("design capability = %q", design.Capability)
	}
	if verify.Capability != CapabilityVerify {
		t.Errorf("verify capability = %q", verify.Capability)
	}
	if g.Len() != len(p.Steps) {
		t.Errorf("task count mismatch")
	}
}

func TestBuildRejectsMalformedPlan(t *testing.T) {
	p := &plan.Plan{Steps: []plan.Step{
		{Name: "a", Dependencies: []string{"missing"}},
	}}
	if _, err := Build(p, nil); err == nil {
		t.Fatal("expected error for unresolved dependency, got nil")
	}
}

type fixedPredictor time.Duration

func (f fixedPredictor) Predict(sequence []string) time.Duration { return time.Duration(f) }

func TestBuildUsesPredictor(t *testing.T) {
	p := &plan.Plan{Steps: []plan.Step{{Name: "implement widget"}}}

	g, err := Build(p, fixedPredictor(42*time.Second))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	task, _ := g.ByName("implement widget")
	if task.Estimated != 42*time.Second {
		t.Errorf("Estimated = %v, want 42s", task.Estimated)
	}
}
