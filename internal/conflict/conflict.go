// Package conflict detects and resolves inconsistencies between the task
// graph and worker assignments before (and opportunistically during) a run.
package conflict

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies a detected conflict.
type Type string

const (
	TypeResource           Type = "resource-conflict"   // Worker holds more tasks than its ceiling
	TypeDependencyCycle    Type = "dependency-cycle"    // Cycle in the dependency graph
	TypeWorkerOverload     Type = "worker-overload"     // In-progress count exceeds ceiling
	TypePriorityInversion  Type = "priority-inversion"  // Task depends on a lower-priority task
	TypeCapabilityMismatch Type = "capability-mismatch" // Task assigned to an incapable worker
)

// Severity grades how urgent a conflict is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status tracks a conflict through its lifecycle.
type Status string

const (
	StatusDetected  Status = "detected"
	StatusResolving Status = "resolving"
	StatusResolved  Status = "resolved"
	StatusFailed    Status = "failed"
)

// Resolution strategies, one per conflict type.
const (
	StrategyRedistribute  = "redistribute"
	StrategyBreakCycle    = "break-cycle"
	StrategyRaisePriority = "raise-priority"
	StrategyReassign      = "reassign"
)

// Conflict records one detected inconsistency and how it was handled.
// Conflicts live for the duration of a run and are discarded afterwards.
type Conflict struct {
	ID          string
	Type        Type
	Description string
	TaskIDs     []string // Involved tasks, detection order
	WorkerID    string   // Involved worker, if any
	Severity    Severity
	Strategy    string
	Status      Status
	DetectedAt  time.Time
	ResolvedAt  time.Time
}

func newConflict(t Type, severity Severity, strategy, description string, taskIDs []string) *Conflict {
	return &Conflict{
		ID:          uuid.NewString(),
		Type:        t,
		Description: description,
		TaskIDs:     taskIDs,
		Severity:    severity,
		Strategy:    strategy,
		Status:      StatusDetected,
		DetectedAt:  time.Now(),
	}
}

func (c *Conflict) markResolved() {
	c.Status = StatusResolved
	c.ResolvedAt = time.Now()
}

func (c *Conflict) markFailed() {
	c.Status = StatusFailed
	c.ResolvedAt = time.Now()
}
