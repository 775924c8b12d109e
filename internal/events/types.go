package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask     = "task"
	TopicConflict = "conflict"
	TopicRun      = "run"
)

// Event type constants
const (
	EventTypeTaskScheduled    = "task.scheduled"
	EventTypeTaskStarted      = "task.started"
	EventTypeTaskCompleted    = "task.completed"
	EventTypeTaskRetried      = "task.retried"
	EventTypeTaskFailed       = "task.failed"
	EventTypeTaskBlocked      = "task.blocked"
	EventTypeConflictDetected = "conflict.detected"
	EventTypeConflictResolved = "conflict.resolved"
	EventTypeRunProgress      = "run.progress"
	EventTypeRunFinished      = "run.finished"
)

// TaskScheduledEvent is published when a task enters the scheduler queue.
type TaskScheduledEvent struct {
	ID        string
	Name      string
	Priority  int
	Timestamp time.Time
}

func (e TaskScheduledEvent) EventType() string { return EventTypeTaskScheduled }
func (e TaskScheduledEvent) TaskID() string    { return e.ID }

// TaskStartedEvent is published when a task is dispatched to a worker.
type TaskStartedEvent struct {
	ID         string
	Name       string
	Capability string
	WorkerID   string
	Timestamp  time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	ID        string
	WorkerID  string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskRetriedEvent is published when a failed attempt is re-queued.
type TaskRetriedEvent struct {
	ID        string
	Attempt   int // Retry count after the bump
	Err       error
	Timestamp time.Time
}

func (e TaskRetriedEvent) EventType() string { return EventTypeTaskRetried }
func (e TaskRetriedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails terminally.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Retries   int
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskBlockedEvent is published when a task is marked unschedulable.
type TaskBlockedEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskBlockedEvent) EventType() string { return EventTypeTaskBlocked }
func (e TaskBlockedEvent) TaskID() string    { return e.ID }

// ConflictDetectedEvent is published for each conflict the pre-pass finds.
type ConflictDetectedEvent struct {
	ConflictID  string
	Type        string
	Severity    string
	Description string
	Timestamp   time.Time
}

func (e ConflictDetectedEvent) EventType() string { return EventTypeConflictDetected }
func (e ConflictDetectedEvent) TaskID() string    { return "" }

// ConflictResolvedEvent is published when a conflict's resolution finishes.
type ConflictResolvedEvent struct {
	ConflictID string
	Type       string
	Strategy   string
	Resolved   bool
	Timestamp  time.Time
}

func (e ConflictResolvedEvent) EventType() string { return EventTypeConflictResolved }
func (e ConflictResolvedEvent) TaskID() string    { return "" }

// RunProgressEvent is published as the run's task counts change.
type RunProgressEvent struct {
	Total      int
	Completed  int
	InProgress int
	Failed     int
	Blocked    int
	Pending    int
	Timestamp  time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
func (e RunProgressEvent) TaskID() string    { return "" }

// RunFinishedEvent is published once, after the run loop terminates.
type RunFinishedEvent struct {
	Success   bool
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) TaskID() string    { return "" }
