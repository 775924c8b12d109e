package worker

import (
	"context"
	"runtime"
	"strings"
	"testing"
)

func TestFactory(t *testing.T) {
	pm := NewProcessManager()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"echo", Config{Type: "echo"}, false},
		{"command", Config{Type: "command", Command: "cat"}, false},
		{"command without binary", Config{Type: "command"}, true},
		{"unknown type", Config{Type: "carrier-pigeon"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(tt.cfg, pm)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if w == nil {
				t.Fatal("New returned nil worker")
			}
		})
	}
}

func TestEchoWorker(t *testing.T) {
	w := NewEchoWorker()
	resp, err := w.Execute(context.Background(), Request{
		Capability:   "code",
		Instructions: "write the parser",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(resp.Output, "code") || !strings.Contains(resp.Output, "write the parser") {
		t.Errorf("Output = %q, want capability and instructions echoed", resp.Output)
	}
}

func TestEchoWorkerHonorsCancellation(t *testing.T) {
	w := NewEchoWorker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.Execute(ctx, Request{Instructions: "anything"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestCommandWorkerRunsCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	pm := NewProcessManager()
	// The capability is appended as an argument; read instructions via stdin.
	w, err := NewCommandWorker(Config{
		Type:    "command",
		Command: "sh",
		Args:    []string{"-c", "cat", "--"},
	}, pm)
	if err != nil {
		t.Fatalf("NewCommandWorker failed: %v", err)
	}

	resp, err := w.Execute(context.Background(), Request{
		Capability:   "code",
		Instructions: "hello from stdin",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.Output != "hello from stdin" {
		t.Errorf("Output = %q, want the instructions echoed back", resp.Output)
	}
}

func TestCommandWorkerExposesDependencyResults(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	pm := NewProcessManager()
	w, err := NewCommandWorker(Config{
		Type:    "command",
		Command: "sh",
		Args:    []string{"-c", `printf '%s' "$TASKMESH_DEP_BUILD_API"`, "--"},
	}, pm)
	if err != nil {
		t.Fatalf("NewCommandWorker failed: %v", err)
	}

	resp, err := w.Execute(context.Background(), Request{
		Capability: "verify",
		DependencyResults: map[string]string{
			"build api": "api built",
		},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.Output != "api built" {
		t.Errorf("Output = %q, want the dependency result from the environment", resp.Output)
	}
}

func TestCommandWorkerReportsFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	pm := NewProcessManager()
	w, err := NewCommandWorker(Config{
		Type:    "command",
		Command: "sh",
		Args:    []string{"-c", "exit 3", "--"},
	}, pm)
	if err != nil {
		t.Fatalf("NewCommandWorker failed: %v", err)
	}

	if _, err := w.Execute(context.Background(), Request{Capability: "code"}); err == nil {
		t.Fatal("expected error for non-zero exit, got nil")
	}
}

func TestDependencyEnvSanitizesNames(t *testing.T) {
	env := dependencyEnv(map[string]string{"build-api v2": "done"})
	if len(env) != 1 {
		t.Fatalf("got %d vars, want 1", len(env))
	}
	if env[0] != "TASKMESH_DEP_BUILD_API_V2=done" {
		t.Errorf("env = %q, want sanitized upper-case key", env[0])
	}
}

func TestFuncAdapter(t *testing.T) {
	var w Worker = Func(func(ctx context.Context, req Request) (Response, error) {
		return Response{Output: req.TaskID}, nil
	})
	resp, err := w.Execute(context.Background(), Request{TaskID: "t1"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.Output != "t1" {
		t.Errorf("Output = %q, want t1", resp.Output)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
