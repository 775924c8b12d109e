// Package worker defines the external executor collaborators the engine
// dispatches tasks to. The engine never inspects what happens inside a
// worker; it only sees a result or an error.
package worker

import (
	"context"
	"fmt"
)

// Request carries one dispatched task to a worker.
type Request struct {
	TaskID       string
	Capability   string
	Instructions string
	// DependencyResults maps completed upstream task names to their results,
	// so workers can build on prior output.
	DependencyResults map[string]string
}

// Response is a worker's successful result.
type Response struct {
	Output string
}

// Worker executes tasks for the capabilities it was registered under.
type Worker interface {
	// Execute performs one task and returns its result.
	Execute(ctx context.Context, req Request) (Response, error)

	// Close releases any resources the worker holds.
	Close() error
}

// Config defines how a worker executes work.
type Config struct {
	Type    string   // "command" or "echo"
	Command string   // For "command": binary to run
	Args    []string // For "command": args prepended before the instructions
	WorkDir string
}

// New creates a worker from its configuration. This factory switches on
// cfg.Type and returns the appropriate executor.
func New(cfg Config, pm *ProcessManager) (Worker, error) {
	switch cfg.Type {
	case "command":
		return NewCommandWorker(cfg, pm)
	case "echo":
		return NewEchoWorker(), nil
	default:
		return nil, fmt.Errorf("unknown worker type: %s", cfg.Type)
	}
}

// Func adapts a plain function into a Worker. Handy for embedding the
// engine as a library and in tests.
type Func func(ctx context.Context, req Request) (Response, error)

func (f Func) Execute(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }
func (f Func) Close() error                                               { return nil }
