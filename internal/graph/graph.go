package graph

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/toposort"
)

// Graph holds the task set for one orchestration run.
// All access goes through the mutex; read methods return clones.
type Graph struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by ID
	order      []string            // Task IDs in insertion order (scheduling tie-break)
	dependents map[string][]string // taskID -> IDs of tasks that depend on it
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// Add inserts a task. Returns an error if the ID already exists.
func (g *Graph) Add(task *Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	g.tasks[task.ID] = task
	g.order = append(g.order, task.ID)
	for _, depID := range task.DependsOn {
		g.dependents[depID] = append(g.dependents[depID], task.ID)
	}
	return nil
}

// Get returns a clone of the task with the given ID.
func (g *Graph) Get(taskID string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return nil, false
	}
	return task.Clone(), true
}

// ByName returns a clone of the first task with the given name.
func (g *Graph) ByName(name string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, id := range g.order {
		if g.tasks[id].Name == name {
			return g.tasks[id].Clone(), true
		}
	}
	return nil, false
}

// Tasks returns clones of all tasks in insertion order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, g.tasks[id].Clone())
	}
	return tasks
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// Remaining returns the number of tasks that are pending or in progress.
func (g *Graph) Remaining() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for _, task := range g.tasks {
		if task.Status == StatusPending || task.Status == StatusInProgress {
			n++
		}
	}
	return n
}

// Validate checks that every dependency resolves and the graph is acyclic,
// returning a topological order of task IDs.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for taskID, task := range g.tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.tasks[depID]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, depID)
			}
		}
	}

	var edges []toposort.Edge
	for _, taskID := range g.order {
		task := g.tasks[taskID]
		if len(task.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, depID := range task.DependsOn {
			edges = append(edges, toposort.Edge{depID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("task graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(g.tasks) {
		var missing []string
		seen := make(map[string]bool, len(order))
		for _, id := range order {
			seen[id] = true
		}
		for taskID := range g.tasks {
			if !seen[taskID] {
				missing = append(missing, taskID)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}
	return order, nil
}

// Ready returns clones of pending tasks whose dependencies are all completed,
// in insertion order. A task leaves pending only once every dependency is
// completed; failed or blocked dependencies never satisfy the gate.
func (g *Graph) Ready() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*Task
	for _, id := range g.order {
		task := g.tasks[id]
		if task.Status != StatusPending {
			continue
		}
		if g.depsCompleted(task) {
			ready = append(ready, task.Clone())
		}
	}
	return ready
}

// DepsCompleted reports whether every dependency of the task is completed.
func (g *Graph) DepsCompleted(taskID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return false
	}
	return g.depsCompleted(task)
}

func (g *Graph) depsCompleted(task *Task) bool {
	for _, depID := range task.DependsOn {
		dep, exists := g.tasks[depID]
		if !exists || dep.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// MarkInProgress transitions a task to in-progress and records its worker.
func (g *Graph) MarkInProgress(taskID, workerID string) error {
	return g.mutate(taskID, func(t *Task) {
		t.Status = StatusInProgress
		t.AssignedTo = workerID
	})
}

// MarkCompleted transitions a task to completed with its result and duration.
func (g *Graph) MarkCompleted(taskID, result string, took time.Duration) error {
	return g.mutate(taskID, func(t *Task) {
		t.Status = StatusCompleted
		t.Result = result
		t.Actual = took
	})
}

// MarkFailed transitions a task to failed with its final error.
func (g *Graph) MarkFailed(taskID string, err error) error {
	return g.mutate(taskID, func(t *Task) {
		t.Status = StatusFailed
		t.Err = err
	})
}

// MarkBlocked transitions a task to blocked. Blocked tasks never run;
// they surface in the final report with the given reason.
func (g *Graph) MarkBlocked(taskID string, err error) error {
	return g.mutate(taskID, func(t *Task) {
		t.Status = StatusBlocked
		t.Err = err
	})
}

// Requeue returns a failed attempt to the pending pool with a priority bump
// and an incremented retry count.
func (g *Graph) Requeue(taskID string, attemptErr error) error {
	return g.mutate(taskID, func(t *Task) {
		t.Status = StatusPending
		t.AssignedTo = ""
		t.RetryCount++
		t.Priority++
		t.Err = attemptErr
	})
}

// BumpRetry increments the retry count without changing status.
func (g *Graph) BumpRetry(taskID string) error {
	return g.mutate(taskID, func(t *Task) {
		t.RetryCount++
	})
}

// SetMaxRetries overwrites a task's retry ceiling.
func (g *Graph) SetMaxRetries(taskID string, n int) error {
	return g.mutate(taskID, func(t *Task) {
		t.MaxRetries = n
	})
}

// SetPriority overwrites a task's priority.
func (g *Graph) SetPriority(taskID string, priority int) error {
	return g.mutate(taskID, func(t *Task) {
		t.Priority = priority
	})
}

// Reassign changes the worker a task is assigned to.
func (g *Graph) Reassign(taskID, workerID string) error {
	return g.mutate(taskID, func(t *Task) {
		t.AssignedTo = workerID
	})
}

// AddConflict annotates a task with a conflict ID.
func (g *Graph) AddConflict(taskID, conflictID string) error {
	return g.mutate(taskID, func(t *Task) {
		t.Conflicts = append(t.Conflicts, conflictID)
	})
}

// DropDependency removes the edge taskID -> depID, updating the dependents
// index. Used by cycle resolution; a no-op if the edge doesn't exist.
func (g *Graph) DropDependency(taskID, depID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	kept := task.DependsOn[:0]
	for _, id := range task.DependsOn {
		if id != depID {
			kept = append(kept, id)
		}
	}
	task.DependsOn = kept

	deps := g.dependents[depID][:0]
	for _, id := range g.dependents[depID] {
		if id != taskID {
			deps = append(deps, id)
		}
	}
	g.dependents[depID] = deps
	return nil
}

// Dependents returns the IDs of tasks that directly depend on taskID.
func (g *Graph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[taskID]...)
}

func (g *Graph) mutate(taskID string, fn func(*Task)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	fn(task)
	return nil
}
