package worker

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CommandWorker executes tasks by invoking an external command once per
// task. The instructions are passed on stdin; dependency results are
// exposed through the environment. Whatever the command prints to stdout
// is the task result.
type CommandWorker struct {
	command string
	args    []string
	workDir string
	pm      *ProcessManager
}

// NewCommandWorker creates a subprocess-backed worker.
func NewCommandWorker(cfg Config, pm *ProcessManager) (*CommandWorker, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("command worker requires a command")
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		workDir = wd
	}
	return &CommandWorker{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		workDir: workDir,
		pm:      pm,
	}, nil
}

// Execute runs the command with the task's capability appended to the
// default args and the instructions on stdin.
func (w *CommandWorker) Execute(ctx context.Context, req Request) (Response, error) {
	args := append(append([]string(nil), w.args...), req.Capability)
	cmd := newCommand(ctx, w.command, args...)
	cmd.Dir = w.workDir
	cmd.Stdin = strings.NewReader(req.Instructions)
	cmd.Env = append(os.Environ(), dependencyEnv(req.DependencyResults)...)

	stdout, _, err := runCommand(cmd, w.pm)
	if err != nil {
		return Response{}, fmt.Errorf("worker command %q: %w", w.command, err)
	}
	return Response{Output: strings.TrimRight(string(stdout), "\n")}, nil
}

// Close is a no-op: the subprocess-per-task model holds nothing open.
func (w *CommandWorker) Close() error { return nil }

// dependencyEnv encodes upstream results as TASKMESH_DEP_<NAME> variables.
func dependencyEnv(results map[string]string) []string {
	env := make([]string, 0, len(results))
	for name, result := range results {
		key := strings.ToUpper(strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				return r
			default:
				return '_'
			}
		}, name))
		env = append(env, fmt.Sprintf("TASKMESH_DEP_%s=%s", key, result))
	}
	return env
}
