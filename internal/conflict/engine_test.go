package conflict

import (
	"testing"

	"github.com/taskmesh/taskmesh/internal/graph"
	"github.com/taskmesh/taskmesh/internal/registry"
)

func newEngine(t *testing.T, setup func(g *graph.Graph, r *registry.Registry)) (*Engine, *graph.Graph, *registry.Registry) {
	t.Helper()
	g := graph.New()
	r := registry.New()
	setup(g, r)
	return NewEngine(g, r), g, r
}

func countType(conflicts []*Conflict, typ Type) int {
	n := 0
	for _, c := range conflicts {
		if c.Type == typ {
			n++
		}
	}
	return n
}

func TestDetectCleanGraph(t *testing.T) {
	e, _, _ := newEngine(t, func(g *graph.Graph, r *registry.Registry) {
		r.Register(&registry.Profile{ID: "w1", Capabilities: []string{"code"}, MaxConcurrent: 2})
		g.Add(&graph.Task{ID: "a", Capability: "code", Priority: 1})
		g.Add(&graph.Task{ID: "b", Capability: "code", Priority: 1, DependsOn: []string{"a"}})
	})

	if conflicts := e.Detect(); len(conflicts) != 0 {
		t.Fatalf("got %d conflicts on a clean graph, want 0", len(conflicts))
	}
}

// TestCycleDetectedOnceAndBroken: a three-task cycle yields exactly one
// conflict, and resolution removes exactly one edge, leaving a valid graph.
func TestCycleDetectedOnceAndBroken(t *testing.T) {
	e, g, _ := newEngine(t, func(g *graph.Graph, r *registry.Registry) {
		g.Add(&graph.Task{ID: "a", Capability: "code", Priority: 1, DependsOn: []string{"c"}})
		g.Add(&graph.Task{ID: "b", Capability: "code", Priority: 1, DependsOn: []string{"a"}})
		g.Add(&graph.Task{ID: "c", Capability: "code", Priority: 1, DependsOn: []string{"b"}})
	})

	conflicts := e.Detect()
	if got := countType(conflicts, TypeDependencyCycle); got != 1 {
		t.Fatalf("got %d cycle conflicts, want exactly 1", got)
	}

	cycle := conflicts[0]
	if cycle.Severity != SeverityCritical {
		t.Errorf("Severity = %v, want critical", cycle.Severity)
	}
	if cycle.Strategy != StrategyBreakCycle {
		t.Errorf("Strategy = %v, want break-cycle", cycle.Strategy)
	}
	if len(cycle.TaskIDs) != 3 {
		t.Errorf("cycle path has %d tasks, want 3", len(cycle.TaskIDs))
	}

	// Every involved task is annotated with the conflict ID.
	for _, id := range cycle.TaskIDs {
		task, _ := g.Get(id)
		if len(task.Conflicts) != 1 || task.Conflicts[0] != cycle.ID {
			t.Errorf("task %q conflicts = %v, want [%s]", id, task.Conflicts, cycle.ID)
		}
	}

	if resolved := e.Resolve(conflicts); resolved != 1 {
		t.Fatalf("resolved %d conflicts, want 1", resolved)
	}
	if cycle.Status != StatusResolved {
		t.Errorf("Status = %v, want resolved", cycle.Status)
	}

	// Exactly one edge removed: the graph validates and two edges remain.
	if _, err := g.Validate(); err != nil {
		t.Fatalf("graph still invalid after breaking cycle: %v", err)
	}
	edges := 0
	for _, task := range g.Tasks() {
		edges += len(task.DependsOn)
	}
	if edges != 2 {
		t.Errorf("%d edges remain, want 2", edges)
	}
}

func TestDetectResourceConflict(t *testing.T) {
	e, _, _ := newEngine(t, func(g *graph.Graph, r *registry.Registry) {
		r.Register(&registry.Profile{ID: "w1", Capabilities: []string{"code"}, MaxConcurrent: 1})
		g.Add(&graph.Task{ID: "a", Capability: "code", Priority: 1, AssignedTo: "w1"})
		g.Add(&graph.Task{ID: "b", Capability: "code", Priority: 1, AssignedTo: "w1"})
	})

	conflicts := e.Detect()
	if got := countType(conflicts, TypeResource); got != 1 {
		t.Fatalf("got %d resource conflicts, want 1", got)
	}
	c := conflicts[0]
	if c.WorkerID != "w1" {
		t.Errorf("WorkerID = %q, want w1", c.WorkerID)
	}
	if len(c.TaskIDs) != 2 {
		t.Errorf("TaskIDs = %v, want both assigned tasks", c.TaskIDs)
	}
}

func TestResolveRedistributeMovesExcess(t *testing.T) {
	e, g, _ := newEngine(t, func(g *graph.Graph, r *registry.Registry) {
		r.Register(&registry.Profile{ID: "w1", Capabilities: []string{"code"}, MaxConcurrent: 1})
		r.Register(&registry.Profile{ID: "w2", Capabilities: []string{"code"}, MaxConcurrent: 2})
		g.Add(&graph.Task{ID: "a", Capability: "code", Priority: 1, AssignedTo: "w1"})
		g.Add(&graph.Task{ID: "b", Capability: "code", Priority: 1, AssignedTo: "w1"})
	})

	conflicts := e.Detect()
	if resolved := e.Resolve(conflicts); resolved != 1 {
		t.Fatalf("resolved %d, want 1", resolved)
	}

	moved := 0
	for _, task := range g.Tasks() {
		if task.AssignedTo == "w2" {
			moved++
		}
	}
	if moved != 1 {
		t.Errorf("%d tasks moved to w2, want exactly the excess (1)", moved)
	}
}

func TestResolveRedistributeFailsWithoutCapacity(t *testing.T) {
	e, _, _ := newEngine(t, func(g *graph.Graph, r *registry.Registry) {
		r.Register(&registry.Profile{ID: "w1", Capabilities: []string{"code"}, MaxConcurrent: 1})
		g.Add(&graph.Task{ID: "a", Capability: "code", Priority: 1, AssignedTo: "w1"})
		g.Add(&graph.Task{ID: "b", Capability: "code", Priority: 1, AssignedTo: "w1"})
	})

	conflicts := e.Detect()
	if resolved := e.Resolve(conflicts); resolved != 0 {
		t.Errorf("resolved %d, want 0 when nowhere to move tasks", resolved)
	}
	if conflicts[0].Status != StatusFailed {
		t.Errorf("Status = %v, want failed", conflicts[0].Status)
	}
}

func TestDetectWorkerOverload(t *testing.T) {
	e, _, _ := newEngine(t, func(g *graph.Graph, r *registry.Registry) {
		r.Register(&registry.Profile{ID: "w1", Capabilities: []string{"code"}, MaxConcurrent: 1})
		g.Add(&graph.Task{ID: "a", Capability: "code", Priority: 1, AssignedTo: "w1", Status: graph.StatusInProgress})
		g.Add(&graph.Task{ID: "b", Capability: "code", Priority: 1, AssignedTo: "w1", Status: graph.StatusInProgress})
	})

	conflicts := e.Detect()
	if got := countType(conflicts, TypeWorkerOverload); got != 1 {
		t.Errorf("got %d overload conflicts, want 1", got)
	}
	// Both in-progress tasks also count toward the resource detector.
	if got := countType(conflicts, TypeResource); got != 1 {
		t.Errorf("got %d resource conflicts, want 1", got)
	}
}

func TestPriorityInversionDetectAndResolve(t *testing.T) {
	e, g, _ := newEngine(t, func(g *graph.Graph, r *registry.Registry) {
		g.Add(&graph.Task{ID: "dep", Name: "dep", Capability: "code", Priority: 1})
		g.Add(&graph.Task{ID: "top", Name: "top", Capability: "code", Priority: 5, DependsOn: []string{"dep"}})
	})

	conflicts := e.Detect()
	if got := countType(conflicts, TypePriorityInversion); got != 1 {
		t.Fatalf("got %d inversion conflicts, want 1", got)
	}
	if conflicts[0].Severity != SeverityLow {
		t.Errorf("Severity = %v, want low", conflicts[0].Severity)
	}

	if resolved := e.Resolve(conflicts); resolved != 1 {
		t.Fatalf("resolved %d, want 1", resolved)
	}
	dep, _ := g.Get("dep")
	if dep.Priority != 5 {
		t.Errorf("dependency priority = %d, want raised to 5", dep.Priority)
	}
}

func TestCapabilityMismatchReassigns(t *testing.T) {
	e, g, _ := newEngine(t, func(g *graph.Graph, r *registry.Registry) {
		r.Register(&registry.Profile{ID: "designer", Capabilities: []string{"design"}, MaxConcurrent: 1})
		r.Register(&registry.Profile{ID: "coder", Capabilities: []string{"code"}, MaxConcurrent: 1})
		g.Add(&graph.Task{ID: "a", Name: "build", Capability: "code", Priority: 1, AssignedTo: "designer"})
	})

	conflicts := e.Detect()
	if got := countType(conflicts, TypeCapabilityMismatch); got != 1 {
		t.Fatalf("got %d mismatch conflicts, want 1", got)
	}

	if resolved := e.Resolve(conflicts); resolved != 1 {
		t.Fatalf("resolved %d, want 1", resolved)
	}
	task, _ := g.Get("a")
	if task.AssignedTo != "coder" {
		t.Errorf("AssignedTo = %q, want coder", task.AssignedTo)
	}
}

func TestCapabilityMismatchBlocksWhenNoWorker(t *testing.T) {
	e, g, _ := newEngine(t, func(g *graph.Graph, r *registry.Registry) {
		r.Register(&registry.Profile{ID: "designer", Capabilities: []string{"design"}, MaxConcurrent: 1})
		g.Add(&graph.Task{ID: "a", Name: "build", Capability: "code", Priority: 1, AssignedTo: "designer"})
	})

	conflicts := e.Detect()
	if resolved := e.Resolve(conflicts); resolved != 0 {
		t.Errorf("resolved %d, want 0", resolved)
	}
	task, _ := g.Get("a")
	if task.Status != graph.StatusBlocked {
		t.Errorf("Status = %v, want blocked when no capable worker exists", task.Status)
	}
}

func TestMismatchIgnoresTerminalTasks(t *testing.T) {
	e, _, _ := newEngine(t, func(g *graph.Graph, r *registry.Registry) {
		r.Register(&registry.Profile{ID: "designer", Capabilities: []string{"design"}, MaxConcurrent: 1})
		g.Add(&graph.Task{ID: "a", Capability: "code", Priority: 1, AssignedTo: "designer", Status: graph.StatusCompleted})
	})

	conflicts := e.Detect()
	if got := countType(conflicts, TypeCapabilityMismatch); got != 0 {
		t.Errorf("got %d mismatch conflicts for a completed task, want 0", got)
	}
}
