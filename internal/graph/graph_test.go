package graph

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// TestGraphValidate tests validation across a range of graph shapes.
func TestGraphValidate(t *testing.T) {
	tests := []struct {
		name        string
		setup       func() *Graph
		wantErr     bool
		errContains string
	}{
		{
			name: "valid linear chain",
			setup: func() *Graph {
				g := New()
				g.Add(&Task{ID: "a"})
				g.Add(&Task{ID: "b", DependsOn: []string{"a"}})
				g.Add(&Task{ID: "c", DependsOn: []string{"b"}})
				return g
			},
			wantErr: false,
		},
		{
			name: "valid diamond",
			setup: func() *Graph {
				g := New()
				g.Add(&Task{ID: "a"})
				g.Add(&Task{ID: "b", DependsOn: []string{"a"}})
				g.Add(&Task{ID: "c", DependsOn: []string{"a"}})
				g.Add(&Task{ID: "d", DependsOn: []string{"b", "c"}})
				return g
			},
			wantErr: false,
		},
		{
			name: "direct cycle",
			setup: func() *Graph {
				g := New()
				g.Add(&Task{ID: "a", DependsOn: []string{"b"}})
				g.Add(&Task{ID: "b", DependsOn: []string{"a"}})
				return g
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "transitive cycle",
			setup: func() *Graph {
				g := New()
				g.Add(&Task{ID: "a", DependsOn: []string{"c"}})
				g.Add(&Task{ID: "b", DependsOn: []string{"a"}})
				g.Add(&Task{ID: "c", DependsOn: []string{"b"}})
				return g
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "missing dependency",
			setup: func() *Graph {
				g := New()
				g.Add(&Task{ID: "a", DependsOn: []string{"ghost"}})
				return g
			},
			wantErr:     true,
			errContains: "ghost",
		},
		{
			name: "disconnected components",
			setup: func() *Graph {
				g := New()
				g.Add(&Task{ID: "a"})
				g.Add(&Task{ID: "b", DependsOn: []string{"a"}})
				g.Add(&Task{ID: "c"})
				g.Add(&Task{ID: "d", DependsOn: []string{"c"}})
				return g
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.setup()
			order, err := g.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(order) != g.Len() {
				t.Errorf("topological order has %d tasks, graph has %d", len(order), g.Len())
			}
			assertTopological(t, g, order)
		})
	}
}

// assertTopological verifies every task appears after all its dependencies.
func assertTopological(t *testing.T, g *Graph, order []string) {
	t.Helper()
	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}
	for _, task := range g.Tasks() {
		for _, depID := range task.DependsOn {
			if position[depID] >= position[task.ID] {
				t.Errorf("task %q appears before its dependency %q", task.ID, depID)
			}
		}
	}
}

func TestAddDuplicateID(t *testing.T) {
	g := New()
	if err := g.Add(&Task{ID: "a"}); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	if err := g.Add(&Task{ID: "a"}); err == nil {
		t.Fatal("expected error adding duplicate ID, got nil")
	}
}

func TestReadyGating(t *testing.T) {
	g := New()
	g.Add(&Task{ID: "a", Status: StatusPending})
	g.Add(&Task{ID: "b", Status: StatusPending, DependsOn: []string{"a"}})
	g.Add(&Task{ID: "c", Status: StatusPending, DependsOn: []string{"b"}})

	ready := g.Ready()
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Fatalf("Ready = %v, want just [a]", taskIDs(ready))
	}

	if err := g.MarkCompleted("a", "ok", time.Second); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	ready = g.Ready()
	if len(ready) != 1 || ready[0].ID != "b" {
		t.Fatalf("Ready = %v, want just [b]", taskIDs(ready))
	}

	// A failed dependency never satisfies the gate.
	if err := g.MarkFailed("b", errors.New("boom")); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if ready = g.Ready(); len(ready) != 0 {
		t.Fatalf("Ready = %v, want empty after dependency failure", taskIDs(ready))
	}
}

func TestRequeueBumpsPriorityAndRetryCount(t *testing.T) {
	g := New()
	g.Add(&Task{ID: "a", Status: StatusInProgress, AssignedTo: "w1", Priority: 2})

	attemptErr := errors.New("transient")
	if err := g.Requeue("a", attemptErr); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}

	task, _ := g.Get("a")
	if task.Status != StatusPending {
		t.Errorf("Status = %v, want pending", task.Status)
	}
	if task.AssignedTo != "" {
		t.Errorf("AssignedTo = %q, want empty", task.AssignedTo)
	}
	if task.Priority != 3 {
		t.Errorf("Priority = %d, want 3", task.Priority)
	}
	if task.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", task.RetryCount)
	}
	if !errors.Is(task.Err, attemptErr) {
		t.Errorf("Err = %v, want the attempt error", task.Err)
	}
}

func TestDropDependency(t *testing.T) {
	g := New()
	g.Add(&Task{ID: "a", DependsOn: []string{"b"}})
	g.Add(&Task{ID: "b", DependsOn: []string{"a"}})

	if _, err := g.Validate(); err == nil {
		t.Fatal("expected cycle before dropping the edge")
	}
	if err := g.DropDependency("b", "a"); err != nil {
		t.Fatalf("DropDependency failed: %v", err)
	}
	if _, err := g.Validate(); err != nil {
		t.Fatalf("still invalid after dropping edge: %v", err)
	}
	for _, id := range g.Dependents("a") {
		if id == "b" {
			t.Error("dependents index still lists b under a")
		}
	}
}

func TestCloneIsolation(t *testing.T) {
	g := New()
	g.Add(&Task{ID: "a", DependsOn: []string{"x"}, FilesToWrite: []string{"f.go"}})

	clone, _ := g.Get("a")
	clone.DependsOn[0] = "mutated"
	clone.FilesToWrite[0] = "mutated"

	fresh, _ := g.Get("a")
	if fresh.DependsOn[0] != "x" || fresh.FilesToWrite[0] != "f.go" {
		t.Error("mutating a clone leaked into graph state")
	}
}

func TestRemaining(t *testing.T) {
	g := New()
	g.Add(&Task{ID: "a", Status: StatusPending})
	g.Add(&Task{ID: "b", Status: StatusInProgress})
	g.Add(&Task{ID: "c", Status: StatusCompleted})
	g.Add(&Task{ID: "d", Status: StatusFailed})
	g.Add(&Task{ID: "e", Status: StatusBlocked})

	if got := g.Remaining(); got != 2 {
		t.Errorf("Remaining = %d, want 2", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusPending:    false,
		StatusInProgress: false,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusBlocked:    true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%v.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func taskIDs(tasks []*Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
