package conflict

import (
	"fmt"
	"log"

	"github.com/taskmesh/taskmesh/internal/graph"
	"github.com/taskmesh/taskmesh/internal/registry"
)

// Engine detects conflicts over a (task graph, worker registry) pair and
// applies the matching resolution strategy for each. Detection is a pure
// pass and can be re-run at any point; resolution mutates graph and
// registry state in place.
type Engine struct {
	graph    *graph.Graph
	registry *registry.Registry
}

// NewEngine creates a conflict engine over the given graph and registry.
func NewEngine(g *graph.Graph, r *registry.Registry) *Engine {
	return &Engine{graph: g, registry: r}
}

// Detect runs all five detectors and returns the conflicts found, in a
// deterministic order for a given graph insertion order.
func (e *Engine) Detect() []*Conflict {
	var conflicts []*Conflict
	conflicts = append(conflicts, e.detectCycles()...)
	conflicts = append(conflicts, e.detectResource()...)
	conflicts = append(conflicts, e.detectOverload()...)
	conflicts = append(conflicts, e.detectPriorityInversion()...)
	conflicts = append(conflicts, e.detectCapabilityMismatch()...)

	for _, c := range conflicts {
		for _, taskID := range c.TaskIDs {
			_ = e.graph.AddConflict(taskID, c.ID)
		}
	}
	return conflicts
}

// Resolve applies each conflict's strategy, marking it resolved or failed.
// Returns the number resolved.
func (e *Engine) Resolve(conflicts []*Conflict) int {
	resolved := 0
	for _, c := range conflicts {
		c.Status = StatusResolving
		var ok bool
		switch c.Type {
		case TypeDependencyCycle:
			ok = e.resolveCycle(c)
		case TypeResource, TypeWorkerOverload:
			ok = e.resolveRedistribute(c)
		case TypePriorityInversion:
			ok = e.resolveRaisePriority(c)
		case TypeCapabilityMismatch:
			ok = e.resolveReassign(c)
		}
		if ok {
			c.markResolved()
			resolved++
		} else {
			c.markFailed()
		}
	}
	return resolved
}

// detectCycles walks the dependency graph depth-first and records one
// conflict per cycle found. The cycle path is stored with the dependency
// direction: each task depends on the next, and the last depends on the
// first.
func (e *Engine) detectCycles() []*Conflict {
	tasks := e.graph.Tasks()
	deps := make(map[string][]string, len(tasks))
	var order []string
	for _, t := range tasks {
		deps[t.ID] = t.DependsOn
		order = append(order, t.ID)
	}

	const (
		white = 0 // unvisited
		grey  = 1 // on the current DFS stack
		black = 2 // fully explored
	)
	color := make(map[string]int, len(tasks))
	var stack []string
	var conflicts []*Conflict

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		stack = append(stack, id)
		for _, depID := range deps[id] {
			switch color[depID] {
			case white:
				visit(depID)
			case grey:
				// Back edge: the cycle is the stack segment from depID onward.
				start := 0
				for i, sid := range stack {
					if sid == depID {
						start = i
						break
					}
				}
				cycle := append([]string(nil), stack[start:]...)
				conflicts = append(conflicts, newConflict(
					TypeDependencyCycle,
					SeverityCritical,
					StrategyBreakCycle,
					fmt.Sprintf("dependency cycle through %d tasks", len(cycle)),
					cycle,
				))
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range order {
		if color[id] == white {
			visit(id)
		}
	}
	return conflicts
}

// detectResource flags workers holding more live tasks than their ceiling.
func (e *Engine) detectResource() []*Conflict {
	return e.detectCapacity(TypeResource, SeverityHigh, func(t *graph.Task) bool {
		return t.Status == graph.StatusPending || t.Status == graph.StatusInProgress
	}, "holds")
}

// detectOverload flags workers with more in-progress tasks than their ceiling.
func (e *Engine) detectOverload() []*Conflict {
	return e.detectCapacity(TypeWorkerOverload, SeverityMedium, func(t *graph.Task) bool {
		return t.Status == graph.StatusInProgress
	}, "is running")
}

func (e *Engine) detectCapacity(typ Type, severity Severity, counts func(*graph.Task) bool, verb string) []*Conflict {
	byWorker := make(map[string][]string)
	for _, t := range e.graph.Tasks() {
		if t.AssignedTo != "" && counts(t) {
			byWorker[t.AssignedTo] = append(byWorker[t.AssignedTo], t.ID)
		}
	}

	var conflicts []*Conflict
	for _, w := range e.registry.Profiles() {
		taskIDs := byWorker[w.ID]
		if len(taskIDs) <= w.MaxConcurrent {
			continue
		}
		c := newConflict(typ, severity, StrategyRedistribute,
			fmt.Sprintf("worker %q %s %d tasks, ceiling %d", w.ID, verb, len(taskIDs), w.MaxConcurrent),
			taskIDs)
		c.WorkerID = w.ID
		conflicts = append(conflicts, c)
	}
	return conflicts
}

// detectPriorityInversion flags tasks that depend on strictly lower-priority
// tasks: the dependency would be scheduled after work that needs it done.
func (e *Engine) detectPriorityInversion() []*Conflict {
	tasks := e.graph.Tasks()
	byID := make(map[string]*graph.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	var conflicts []*Conflict
	for _, t := range tasks {
		for _, depID := range t.DependsOn {
			dep, ok := byID[depID]
			if !ok || dep.Priority >= t.Priority {
				continue
			}
			conflicts = append(conflicts, newConflict(
				TypePriorityInversion,
				SeverityLow,
				StrategyRaisePriority,
				fmt.Sprintf("task %q (priority %d) depends on %q (priority %d)", t.Name, t.Priority, dep.Name, dep.Priority),
				[]string{t.ID, depID},
			))
		}
	}
	return conflicts
}

// detectCapabilityMismatch flags tasks assigned to workers that lack the
// required capability.
func (e *Engine) detectCapabilityMismatch() []*Conflict {
	var conflicts []*Conflict
	for _, t := range e.graph.Tasks() {
		if t.AssignedTo == "" || t.Status.Terminal() {
			continue
		}
		w, ok := e.registry.Get(t.AssignedTo)
		if ok && w.Has(t.Capability) {
			continue
		}
		c := newConflict(TypeCapabilityMismatch, SeverityHigh, StrategyReassign,
			fmt.Sprintf("task %q requires %q, worker %q can't provide it", t.Name, t.Capability, t.AssignedTo),
			[]string{t.ID})
		c.WorkerID = t.AssignedTo
		conflicts = append(conflicts, c)
	}
	return conflicts
}

// resolveCycle drops the last dependency edge of the cycle: the edge from
// the final task on the recorded path back to the first. Which edge goes is
// order-dependent; callers must not rely on it.
func (e *Engine) resolveCycle(c *Conflict) bool {
	if len(c.TaskIDs) == 0 {
		return false
	}
	from := c.TaskIDs[len(c.TaskIDs)-1]
	to := c.TaskIDs[0]
	if err := e.graph.DropDependency(from, to); err != nil {
		return false
	}
	log.Printf("WARNING: broke dependency cycle by removing edge %s -> %s", from, to)
	return true
}

// resolveRedistribute moves a worker's excess pending tasks, in task order,
// to the least-loaded capable worker. Succeeds when the worker is brought
// back within its ceiling.
func (e *Engine) resolveRedistribute(c *Conflict) bool {
	w, ok := e.registry.Get(c.WorkerID)
	if !ok {
		return false
	}

	excess := len(c.TaskIDs) - w.MaxConcurrent
	moved := 0
	for _, taskID := range c.TaskIDs {
		if moved >= excess {
			break
		}
		t, ok := e.graph.Get(taskID)
		if !ok || t.Status != graph.StatusPending {
			continue // In-progress work can't move; retries re-enter the scheduler anyway
		}
		target := e.registry.LeastLoaded(t.Capability)
		if target == nil || target.ID == c.WorkerID {
			continue
		}
		if err := e.graph.Reassign(taskID, target.ID); err != nil {
			continue
		}
		moved++
	}
	return moved >= excess
}

// resolveRaisePriority lifts the dependency's priority to its dependent's.
func (e *Engine) resolveRaisePriority(c *Conflict) bool {
	if len(c.TaskIDs) != 2 {
		return false
	}
	dependent, ok1 := e.graph.Get(c.TaskIDs[0])
	dep, ok2 := e.graph.Get(c.TaskIDs[1])
	if !ok1 || !ok2 {
		return false
	}
	if dep.Priority < dependent.Priority {
		if err := e.graph.SetPriority(dep.ID, dependent.Priority); err != nil {
			return false
		}
	}
	return true
}

// resolveReassign moves a mismatched task to any capable worker with spare
// capacity. When none exists the task is blocked: it stays unscheduled and
// surfaces in the final report, but the run goes on.
func (e *Engine) resolveReassign(c *Conflict) bool {
	if len(c.TaskIDs) != 1 {
		return false
	}
	t, ok := e.graph.Get(c.TaskIDs[0])
	if !ok {
		return false
	}
	target := e.registry.PickWorker(t.Capability)
	if target == nil {
		_ = e.graph.MarkBlocked(t.ID, fmt.Errorf("no worker provides capability %q", t.Capability))
		return false
	}
	if err := e.graph.Reassign(t.ID, target.ID); err != nil {
		return false
	}
	return true
}
