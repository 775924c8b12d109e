// Package schedule hands ready work to workers in priority order.
// The scheduler owns a max-priority queue over pending tasks; eligibility
// (dependencies completed, capability match) is checked against the live
// graph at hand-out time, so stale queue entries are harmless.
package schedule

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/taskmesh/taskmesh/internal/graph"
	"github.com/taskmesh/taskmesh/internal/registry"
)

type entry struct {
	taskID   string
	priority int
	seq      int // Insertion sequence, FIFO tie-break
	index    int
}

type priorityQueue []*entry

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*pq)
	*pq = append(*pq, e)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return e
}

// Scheduler is a capability-aware priority scheduler over pending tasks.
type Scheduler struct {
	mu       sync.Mutex
	graph    *graph.Graph
	registry *registry.Registry
	pq       priorityQueue
	seq      int
}

// New creates a scheduler bound to a graph and registry.
func New(g *graph.Graph, r *registry.Registry) *Scheduler {
	s := &Scheduler{graph: g, registry: r}
	heap.Init(&s.pq)
	return s
}

// Schedule enqueues a task by its current priority. Re-scheduling after a
// retry enqueues a fresh entry; the superseded one is dropped at hand-out.
func (s *Scheduler) Schedule(t *graph.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	heap.Push(&s.pq, &entry{taskID: t.ID, priority: t.Priority, seq: s.seq})
}

// Len returns the number of queued entries (including stale ones).
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pq.Len()
}

// Next pops the highest-priority task the given worker can run now: status
// pending, capability within the worker's set, all dependencies completed.
// Entries that don't match are left queued. Returns nil when nothing is
// eligible. The scan is O(queue size), fine at tens to low hundreds of
// tasks.
func (s *Scheduler) Next(workerID string, capabilities []string) *graph.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	capSet := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		capSet[c] = true
	}

	var skipped []*entry
	var picked *graph.Task

	for s.pq.Len() > 0 {
		e := heap.Pop(&s.pq).(*entry)
		t, ok := s.graph.Get(e.taskID)
		if !ok || t.Status != graph.StatusPending {
			continue // Stale entry: task finished, got blocked, or is running
		}
		if t.Priority != e.priority {
			// Priority changed since insertion (conflict resolution or retry
			// bump). Reposition the entry and keep scanning; it can't mismatch
			// twice in one pass.
			e.priority = t.Priority
			heap.Push(&s.pq, e)
			continue
		}
		if t.AssignedTo != "" && t.AssignedTo != workerID {
			skipped = append(skipped, e) // Pinned to another worker by conflict resolution
			continue
		}
		if !capSet[t.Capability] || !s.graph.DepsCompleted(t.ID) {
			skipped = append(skipped, e)
			continue
		}
		picked = t
		break
	}

	for _, e := range skipped {
		heap.Push(&s.pq, e)
	}
	return picked
}

// ReadyTasks returns the queued tasks that are dispatchable right now
// (pending, dependencies completed), best-first. Non-destructive; the
// coordinator uses it to pick a worker per task before calling Next.
func (s *Scheduler) ReadyTasks() []*graph.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := make(priorityQueue, len(s.pq))
	copy(tmp, s.pq)
	heap.Init(&tmp)

	var ready []*graph.Task
	seen := make(map[string]bool)
	for tmp.Len() > 0 {
		e := heap.Pop(&tmp).(*entry)
		if seen[e.taskID] {
			continue
		}
		t, ok := s.graph.Get(e.taskID)
		if !ok || t.Status != graph.StatusPending {
			continue
		}
		if !s.graph.DepsCompleted(t.ID) {
			continue
		}
		seen[e.taskID] = true
		ready = append(ready, t)
	}
	return ready
}

// Assign commits a task to a worker: the worker's load is taken first (it
// can refuse at ceiling), then the task moves to in-progress.
func (s *Scheduler) Assign(t *graph.Task, workerID string) error {
	if err := s.registry.RecordDispatch(workerID); err != nil {
		return fmt.Errorf("assigning task %q: %w", t.ID, err)
	}
	if err := s.graph.MarkInProgress(t.ID, workerID); err != nil {
		s.registry.Release(workerID)
		return err
	}
	return nil
}
