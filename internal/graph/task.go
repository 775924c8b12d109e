package graph

import (
	"time"
)

// Status represents the current state of a task.
type Status int

const (
	StatusPending    Status = iota // Waiting for dependencies or a worker slot
	StatusInProgress               // Dispatched to a worker
	StatusCompleted                // Finished successfully
	StatusFailed                   // Finished with error after exhausting retries
	StatusBlocked                  // Unschedulable: no capable worker, or an upstream task failed
)

// String returns a human-readable name for a status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Terminal reports whether a task in this status will never run again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusBlocked
}

// DefaultMaxRetries is the retry ceiling applied to tasks that don't set one.
const DefaultMaxRetries = 3

// Task represents one unit of work derived from a plan step.
type Task struct {
	ID           string        // Unique identifier (UUID)
	Name         string        // Plan step name, unique within a run
	Capability   string        // Worker capability tag required to run this task
	Instructions string        // What the worker is asked to do
	DependsOn    []string      // Task IDs that must complete first
	FilesToWrite []string      // Paths this task will modify (for path locking)
	Status       Status
	Priority     int           // Positive; higher runs first
	Estimated    time.Duration // Duration estimate from the learning module
	Actual       time.Duration // Measured duration (populated after completion)
	AssignedTo   string        // Worker ID once assigned, empty otherwise
	Result       string        // Worker output on success
	Err          error         // Last error on failure
	Conflicts    []string      // IDs of conflicts this task was involved in
	RetryCount   int
	MaxRetries   int
}

// Clone returns a deep copy of the task. The graph hands out clones so
// callers can't mutate shared state outside the graph's lock.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.FilesToWrite != nil {
		cp.FilesToWrite = append([]string(nil), t.FilesToWrite...)
	}
	if t.Conflicts != nil {
		cp.Conflicts = append([]string(nil), t.Conflicts...)
	}
	return &cp
}
