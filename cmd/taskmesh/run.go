package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/taskmesh/taskmesh/internal/config"
	"github.com/taskmesh/taskmesh/internal/events"
	"github.com/taskmesh/taskmesh/internal/learning"
	"github.com/taskmesh/taskmesh/internal/orchestrator"
	"github.com/taskmesh/taskmesh/internal/persistence"
	"github.com/taskmesh/taskmesh/internal/plan"
	"github.com/taskmesh/taskmesh/internal/registry"
	"github.com/taskmesh/taskmesh/internal/worker"
)

func newRunCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Execute a plan file (YAML or JSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := plan.Load(args[0])
			if err != nil {
				return err
			}
			return runPlan(cmd.Context(), cfg, p, quiet)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress per-task progress output")
	return cmd
}

func runPlan(ctx context.Context, cfg *config.Config, p *plan.Plan, quiet bool) error {
	if cfg.Engine.DefaultPriority > 0 {
		for i := range p.Steps {
			if p.Steps[i].Priority <= 0 {
				p.Steps[i].Priority = cfg.Engine.DefaultPriority
			}
		}
	}

	reg, workers, pm, err := buildWorkers(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, w := range workers {
			_ = w.Close()
		}
		if err := pm.KillAll(); err != nil {
			log.Printf("ERROR: killing worker subprocesses: %v", err)
		}
	}()

	learner := learning.NewModule()
	var store *persistence.SQLiteStore
	if cfg.Learning.Enabled {
		dbPath, err := patternDBPath(cfg)
		if err != nil {
			return fmt.Errorf("resolving pattern database path: %w", err)
		}
		store, err = persistence.NewSQLiteStore(ctx, dbPath)
		if err != nil {
			return fmt.Errorf("opening pattern database: %w", err)
		}
		defer store.Close()
		if err := learner.Restore(ctx, store); err != nil {
			log.Printf("WARNING: failed to restore learned patterns: %v", err)
		}
	}

	bus := events.NewBus()
	coord := orchestrator.New(orchestrator.Config{
		Registry:   reg,
		Workers:    workers,
		Learner:    learner,
		Bus:        bus,
		MaxRetries: cfg.Engine.MaxRetries,
		Tick:       time.Duration(cfg.Engine.TickMillis) * time.Millisecond,
		Retry:      orchestrator.DefaultRetryConfig(),
	})

	var report *orchestrator.Report
	startedAt := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	if !quiet {
		sub := bus.SubscribeAll(1024)
		g.Go(func() error {
			logEvents(sub)
			return nil
		})
	}
	g.Go(func() error {
		defer bus.Close()
		var runErr error
		report, runErr = coord.Run(gctx, p)
		return runErr
	})
	if err := g.Wait(); err != nil && report == nil {
		return err
	}

	printReport(report)

	if store != nil {
		if err := learner.Snapshot(context.Background(), store); err != nil {
			log.Printf("WARNING: failed to persist learned patterns: %v", err)
		}
		rec := persistence.RunRecord{
			ID:                uuid.NewString(),
			Goal:              p.Goal,
			Success:           report.Success,
			ConflictsDetected: report.ConflictsDetected,
			ConflictsResolved: report.ConflictsResolved,
			Duration:          report.ExecutionTime,
			StartedAt:         startedAt,
		}
		if err := store.SaveRun(context.Background(), rec, report.Tasks); err != nil {
			log.Printf("WARNING: failed to record run history: %v", err)
		}
	}

	if !report.Success {
		return fmt.Errorf("run finished with failures")
	}
	return nil
}

// buildWorkers materializes the configured workers into a registry of
// profiles plus their executors.
func buildWorkers(cfg *config.Config) (*registry.Registry, map[string]worker.Worker, *worker.ProcessManager, error) {
	reg := registry.New()
	workers := make(map[string]worker.Worker, len(cfg.Workers))
	pm := worker.NewProcessManager()

	// Deterministic registration order: map iteration would shuffle
	// tie-breaks between equally scored workers.
	ids := make([]string, 0, len(cfg.Workers))
	for id := range cfg.Workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		wc := cfg.Workers[id]
		w, err := worker.New(worker.Config{
			Type:    wc.Type,
			Command: wc.Command,
			Args:    wc.Args,
		}, pm)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating worker %q: %w", id, err)
		}
		profile := &registry.Profile{
			ID:             id,
			Capabilities:   wc.Capabilities,
			MaxConcurrent:  wc.MaxConcurrent,
			Specialization: wc.Specialization,
		}
		if err := reg.Register(profile); err != nil {
			return nil, nil, nil, err
		}
		workers[id] = w
	}
	return reg, workers, pm, nil
}

func logEvents(sub <-chan events.Event) {
	for e := range sub {
		switch ev := e.(type) {
		case events.TaskStartedEvent:
			log.Printf("task %q -> worker %q (%s)", ev.Name, ev.WorkerID, ev.Capability)
		case events.TaskCompletedEvent:
			log.Printf("task %s completed in %s", ev.ID, ev.Duration.Round(time.Millisecond))
		case events.TaskRetriedEvent:
			log.Printf("task %s retrying (attempt %d): %v", ev.ID, ev.Attempt, ev.Err)
		case events.TaskFailedEvent:
			log.Printf("task %s failed after %d retries: %v", ev.ID, ev.Retries, ev.Err)
		case events.TaskBlockedEvent:
			log.Printf("task %s blocked: %s", ev.ID, ev.Reason)
		case events.ConflictDetectedEvent:
			log.Printf("conflict [%s/%s]: %s", ev.Type, ev.Severity, ev.Description)
		case events.ConflictResolvedEvent:
			if ev.Resolved {
				log.Printf("conflict %s resolved via %s", ev.ConflictID, ev.Strategy)
			} else {
				log.Printf("conflict %s could not be resolved", ev.ConflictID)
			}
		}
	}
}

func printReport(report *orchestrator.Report) {
	fmt.Printf("\nRun %s in %s: %d conflicts detected, %d resolved\n",
		statusWord(report.Success), report.ExecutionTime.Round(time.Millisecond),
		report.ConflictsDetected, report.ConflictsResolved)

	results := make([]orchestrator.TaskResult, 0, len(report.Results))
	for _, r := range report.Results {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("  [%s] %s: %v\n", r.Status, r.Name, r.Err)
			continue
		}
		fmt.Printf("  [%s] %s (%s, worker %s)\n", r.Status, r.Name, r.Duration.Round(time.Millisecond), r.WorkerID)
	}

	for _, s := range report.Suggestions {
		fmt.Printf("  hint: sequence %v succeeded %.0f%% of the time (similarity %.2f)\n",
			s.Sequence, s.SuccessRate*100, s.Similarity)
	}
}

func statusWord(success bool) string {
	if success {
		return "succeeded"
	}
	return "finished with failures"
}
