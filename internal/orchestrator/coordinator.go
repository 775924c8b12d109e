// Package orchestrator drives a plan to completion: it builds the task
// graph, runs the conflict pre-pass, schedules ready work by priority,
// dispatches accepted work to capability-tagged workers concurrently, and
// feeds execution statistics back into the learning module.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/taskmesh/taskmesh/internal/conflict"
	"github.com/taskmesh/taskmesh/internal/events"
	"github.com/taskmesh/taskmesh/internal/graph"
	"github.com/taskmesh/taskmesh/internal/learning"
	"github.com/taskmesh/taskmesh/internal/plan"
	"github.com/taskmesh/taskmesh/internal/registry"
	"github.com/taskmesh/taskmesh/internal/schedule"
	"github.com/taskmesh/taskmesh/internal/worker"
)

// Config wires the coordinator's collaborators.
type Config struct {
	Registry   *registry.Registry
	Workers    map[string]worker.Worker // workerID -> executor; must cover the registry
	Learner    *learning.Module         // Optional; nil disables learning
	Bus        *events.Bus              // Optional; nil disables events
	MaxRetries int                      // Per-task retry ceiling override (0 keeps the default)
	Tick       time.Duration            // Loop yield interval (default 10ms)
	Retry      *RetryConfig             // Transient-failure backoff; nil means single attempt
}

// Coordinator owns the run loop. Task status and worker load are mutated
// only on the loop goroutine; dispatched workers communicate back over the
// completions channel.
type Coordinator struct {
	cfg      Config
	locks    *PathLocks
	breakers *BreakerRegistry
}

// TaskResult is the terminal outcome of one task.
type TaskResult struct {
	TaskID   string
	Name     string
	WorkerID string
	Status   graph.Status
	Output   string
	Err      error
	Retries  int
	Duration time.Duration
}

// Report is returned to the caller for every run, covering every task
// regardless of terminal state.
type Report struct {
	Success           bool
	Results           map[string]TaskResult
	Tasks             []*graph.Task // Terminal task snapshots in plan order
	ConflictsDetected int
	ConflictsResolved int
	ExecutionTime     time.Duration
	Suggestions       []learning.Suggestion
}

// completion is what a dispatch goroutine reports back to the loop.
type completion struct {
	taskID   string
	workerID string
	output   string
	err      error
	took     time.Duration
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Millisecond
	}
	return &Coordinator{
		cfg:      cfg,
		locks:    NewPathLocks(),
		breakers: NewBreakerRegistry(),
	}
}

// Run executes a plan end to end. The only error it returns is a malformed
// plan or cancellation; task failures and unresolved conflicts are encoded
// in the report.
func (c *Coordinator) Run(ctx context.Context, p *plan.Plan) (*Report, error) {
	start := time.Now()

	var predictor graph.DurationPredictor
	if c.cfg.Learner != nil {
		predictor = c.cfg.Learner
	}
	g, err := graph.Build(p, predictor)
	if err != nil {
		return nil, err
	}
	if c.cfg.MaxRetries > 0 {
		for _, t := range g.Tasks() {
			_ = g.SetMaxRetries(t.ID, c.cfg.MaxRetries)
		}
	}

	// Conflict pre-pass. Cycles are broken rather than rejected: rejecting
	// would deadlock the run, so liveness wins over plan fidelity here.
	engine := conflict.NewEngine(g, c.cfg.Registry)
	detected := engine.Detect()
	for _, cf := range detected {
		c.publish(events.TopicConflict, events.ConflictDetectedEvent{
			ConflictID: cf.ID, Type: string(cf.Type), Severity: string(cf.Severity),
			Description: cf.Description, Timestamp: time.Now(),
		})
	}
	resolved := engine.Resolve(detected)
	for _, cf := range detected {
		c.publish(events.TopicConflict, events.ConflictResolvedEvent{
			ConflictID: cf.ID, Type: string(cf.Type), Strategy: cf.Strategy,
			Resolved: cf.Status == conflict.StatusResolved, Timestamp: time.Now(),
		})
	}

	sched := schedule.New(g, c.cfg.Registry)
	for _, t := range g.Tasks() {
		if t.Status != graph.StatusPending {
			continue
		}
		sched.Schedule(t)
		c.publish(events.TopicTask, events.TaskScheduledEvent{
			ID: t.ID, Name: t.Name, Priority: t.Priority, Timestamp: time.Now(),
		})
	}

	runErr := c.loop(ctx, g, sched)

	elapsed := time.Since(start)
	report := c.buildReport(g, len(detected), resolved, elapsed)
	c.learn(g, report.Success, elapsed)
	if c.cfg.Learner != nil {
		report.Suggestions = c.cfg.Learner.Suggest(capabilitySequence(g))
	}

	c.publish(events.TopicRun, events.RunFinishedEvent{
		Success: report.Success, Duration: elapsed, Timestamp: time.Now(),
	})
	return report, runErr
}

// loop is the single-threaded coordination loop: reap finished work,
// cascade blockage from dead dependencies, dispatch ready work up to each
// worker's spare capacity, then yield briefly.
func (c *Coordinator) loop(ctx context.Context, g *graph.Graph, sched *schedule.Scheduler) error {
	completions := make(chan completion, g.Len())

	for {
		// Reap everything that has finished since the last pass.
	drain:
		for {
			select {
			case done := <-completions:
				c.reap(g, sched, done)
			default:
				break drain
			}
		}

		c.blockOrphans(g)

		if g.Remaining() == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			c.abandon(g, err)
			return err
		}

		dispatched := c.dispatch(ctx, g, sched, completions)
		c.publishProgress(g)

		if dispatched == 0 && countInProgress(g) == 0 {
			// Nothing running and nothing dispatchable: the remaining
			// pending tasks can never be scheduled with this worker set.
			c.markStalled(g)
			continue
		}

		// Yield: wake on the next completion or after a short tick.
		select {
		case done := <-completions:
			c.reap(g, sched, done)
		case <-time.After(c.cfg.Tick):
		case <-ctx.Done():
		}
	}
}

// dispatch hands ready tasks to workers, best worker first, without ever
// exceeding a worker's ceiling. Returns how many tasks were dispatched.
func (c *Coordinator) dispatch(ctx context.Context, g *graph.Graph, sched *schedule.Scheduler, completions chan<- completion) int {
	dispatched := 0
	for _, t := range sched.ReadyTasks() {
		profile := c.pickWorker(t)
		if profile == nil {
			continue // No capable worker has room; the task stays queued
		}

		got := sched.Next(profile.ID, profile.Capabilities)
		if got == nil {
			continue
		}
		if err := sched.Assign(got, profile.ID); err != nil {
			log.Printf("ERROR: failed to assign task %q to worker %q: %v", got.ID, profile.ID, err)
			continue
		}

		c.publish(events.TopicTask, events.TaskStartedEvent{
			ID: got.ID, Name: got.Name, Capability: got.Capability,
			WorkerID: profile.ID, Timestamp: time.Now(),
		})

		go c.execute(ctx, g, got, profile.ID, completions)
		dispatched++
	}
	return dispatched
}

// pickWorker chooses a worker for a task: a pinned assignment from
// conflict resolution is honored when that worker has room; otherwise the
// registry ranks capable workers by specialization, spare capacity, and
// success rate.
func (c *Coordinator) pickWorker(t *graph.Task) *registry.Profile {
	if t.AssignedTo != "" {
		p, ok := c.cfg.Registry.Get(t.AssignedTo)
		if ok && p.Has(t.Capability) && p.SpareCapacity() > 0 {
			return p
		}
		return nil
	}
	return c.cfg.Registry.PickWorker(t.Capability)
}

// execute runs one dispatched task on its worker goroutine and reports the
// outcome. Path locks serialize tasks that declare overlapping files.
func (c *Coordinator) execute(ctx context.Context, g *graph.Graph, t *graph.Task, workerID string, completions chan<- completion) {
	w, ok := c.cfg.Workers[workerID]
	if !ok {
		completions <- completion{taskID: t.ID, workerID: workerID,
			err: fmt.Errorf("no executor registered for worker %q", workerID)}
		return
	}

	c.locks.LockAll(t.FilesToWrite)
	defer c.locks.UnlockAll(t.FilesToWrite)

	req := worker.Request{
		TaskID:            t.ID,
		Capability:        t.Capability,
		Instructions:      t.Instructions,
		DependencyResults: c.dependencyResults(g, t),
	}

	start := time.Now()
	resp, err := executeThrough(ctx, w, req, c.breakers.Get(t.Capability), c.cfg.Retry)
	completions <- completion{
		taskID:   t.ID,
		workerID: workerID,
		output:   resp.Output,
		err:      err,
		took:     time.Since(start),
	}
}

// reap folds one finished execution back into graph and registry state.
// Failures re-enter the queue with a priority bump until the task's retry
// ceiling is exhausted.
func (c *Coordinator) reap(g *graph.Graph, sched *schedule.Scheduler, done completion) {
	t, ok := g.Get(done.taskID)
	if !ok || t.Status != graph.StatusInProgress {
		return
	}

	if done.err == nil {
		_ = g.MarkCompleted(done.taskID, done.output, done.took)
		_ = c.cfg.Registry.RecordCompletion(done.workerID, true, done.took)
		c.recordTaskPattern(t.Capability, true, done.took)
		c.publish(events.TopicTask, events.TaskCompletedEvent{
			ID: done.taskID, WorkerID: done.workerID, Duration: done.took, Timestamp: time.Now(),
		})
		return
	}

	_ = c.cfg.Registry.RecordCompletion(done.workerID, false, done.took)
	c.recordTaskPattern(t.Capability, false, done.took)

	if t.RetryCount+1 < t.MaxRetries {
		_ = g.Requeue(done.taskID, done.err)
		if updated, ok := g.Get(done.taskID); ok {
			sched.Schedule(updated)
			c.publish(events.TopicTask, events.TaskRetriedEvent{
				ID: done.taskID, Attempt: updated.RetryCount, Err: done.err, Timestamp: time.Now(),
			})
		}
		return
	}

	_ = g.BumpRetry(done.taskID)
	_ = g.MarkFailed(done.taskID, done.err)
	if failed, ok := g.Get(done.taskID); ok {
		c.publish(events.TopicTask, events.TaskFailedEvent{
			ID: done.taskID, Err: done.err, Retries: failed.RetryCount, Timestamp: time.Now(),
		})
	}
}

// blockOrphans marks pending tasks whose dependencies can never complete.
// One pass handles one level; the loop reaches a fixpoint across
// iterations.
func (c *Coordinator) blockOrphans(g *graph.Graph) {
	for _, t := range g.Tasks() {
		if t.Status != graph.StatusPending {
			continue
		}
		for _, depID := range t.DependsOn {
			dep, ok := g.Get(depID)
			if !ok {
				continue
			}
			if dep.Status == graph.StatusFailed || dep.Status == graph.StatusBlocked {
				reason := fmt.Errorf("dependency %q did not complete: %w", dep.Name, dep.Err)
				_ = g.MarkBlocked(t.ID, reason)
				c.publish(events.TopicTask, events.TaskBlockedEvent{
					ID: t.ID, Reason: reason.Error(), Timestamp: time.Now(),
				})
				break
			}
		}
	}
}

// markStalled blocks every remaining pending task. Reached only when no
// worker can take any of them and nothing is in flight.
func (c *Coordinator) markStalled(g *graph.Graph) {
	for _, t := range g.Tasks() {
		if t.Status != graph.StatusPending {
			continue
		}
		reason := fmt.Errorf("no worker available for capability %q", t.Capability)
		_ = g.MarkBlocked(t.ID, reason)
		log.Printf("WARNING: task %q is unschedulable: %v", t.Name, reason)
		c.publish(events.TopicTask, events.TaskBlockedEvent{
			ID: t.ID, Reason: reason.Error(), Timestamp: time.Now(),
		})
	}
}

// abandon marks every live task after cancellation so the report still
// covers the full task set.
func (c *Coordinator) abandon(g *graph.Graph, cause error) {
	for _, t := range g.Tasks() {
		if t.Status == graph.StatusPending || t.Status == graph.StatusInProgress {
			_ = g.MarkBlocked(t.ID, fmt.Errorf("run cancelled: %w", cause))
		}
	}
}

// dependencyResults collects completed upstream outputs by task name.
func (c *Coordinator) dependencyResults(g *graph.Graph, t *graph.Task) map[string]string {
	results := make(map[string]string, len(t.DependsOn))
	for _, depID := range t.DependsOn {
		if dep, ok := g.Get(depID); ok && dep.Status == graph.StatusCompleted {
			results[dep.Name] = dep.Result
		}
	}
	return results
}

// recordTaskPattern feeds a single-capability sample into the learner, so
// per-task duration estimates improve over time.
func (c *Coordinator) recordTaskPattern(capability string, success bool, took time.Duration) {
	if c.cfg.Learner != nil {
		c.cfg.Learner.Record([]string{capability}, success, took)
	}
}

// learn records the run-level capability sequence outcome.
func (c *Coordinator) learn(g *graph.Graph, success bool, took time.Duration) {
	if c.cfg.Learner == nil {
		return
	}
	c.cfg.Learner.Record(capabilitySequence(g), success, took)
}

// buildReport assembles the final report from terminal task state.
func (c *Coordinator) buildReport(g *graph.Graph, detected, resolved int, elapsed time.Duration) *Report {
	tasks := g.Tasks()
	results := make(map[string]TaskResult, len(tasks))
	success := true
	for _, t := range tasks {
		if t.Status != graph.StatusCompleted {
			success = false
		}
		results[t.ID] = TaskResult{
			TaskID:   t.ID,
			Name:     t.Name,
			WorkerID: t.AssignedTo,
			Status:   t.Status,
			Output:   t.Result,
			Err:      t.Err,
			Retries:  t.RetryCount,
			Duration: t.Actual,
		}
	}
	return &Report{
		Success:           success,
		Results:           results,
		Tasks:             tasks,
		ConflictsDetected: detected,
		ConflictsResolved: resolved,
		ExecutionTime:     elapsed,
	}
}

func (c *Coordinator) publish(topic string, e events.Event) {
	if c.cfg.Bus != nil {
		c.cfg.Bus.Publish(topic, e)
	}
}

func (c *Coordinator) publishProgress(g *graph.Graph) {
	if c.cfg.Bus == nil {
		return
	}
	var completed, inProgress, failed, blocked, pending int
	for _, t := range g.Tasks() {
		switch t.Status {
		case graph.StatusCompleted:
			completed++
		case graph.StatusInProgress:
			inProgress++
		case graph.StatusFailed:
			failed++
		case graph.StatusBlocked:
			blocked++
		case graph.StatusPending:
			pending++
		}
	}
	c.cfg.Bus.Publish(events.TopicRun, events.RunProgressEvent{
		Total: g.Len(), Completed: completed, InProgress: inProgress,
		Failed: failed, Blocked: blocked, Pending: pending, Timestamp: time.Now(),
	})
}

// capabilitySequence is the run's capability tags in task insertion order,
// the key the learning module records against.
func capabilitySequence(g *graph.Graph) []string {
	tasks := g.Tasks()
	seq := make([]string, 0, len(tasks))
	for _, t := range tasks {
		seq = append(seq, t.Capability)
	}
	return seq
}

func countInProgress(g *graph.Graph) int {
	n := 0
	for _, t := range g.Tasks() {
		if t.Status == graph.StatusInProgress {
			n++
		}
	}
	return n
}
