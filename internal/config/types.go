package config

// WorkerConfig declares one worker: what it can do, how many tasks it may
// hold at once, and how it executes work.
type WorkerConfig struct {
	Capabilities   []string           `json:"capabilities"`              // Capability tags this worker accepts
	MaxConcurrent  int                `json:"max_concurrent,omitempty"`  // Concurrency ceiling (default 1)
	Specialization map[string]float64 `json:"specialization,omitempty"`  // capability -> score in [0, 1]
	Type           string             `json:"type"`                      // Executor type matching worker.Config.Type: "command", "echo"
	Command        string             `json:"command,omitempty"`         // For "command" workers: binary to run
	Args           []string           `json:"args,omitempty"`            // Default args prepended to every invocation
}

// EngineConfig tunes the execution coordinator.
type EngineConfig struct {
	MaxRetries      int `json:"max_retries,omitempty"`       // Per-task retry ceiling (default 3)
	TickMillis      int `json:"tick_millis,omitempty"`       // Coordinator yield interval (default 10)
	DefaultPriority int `json:"default_priority,omitempty"`  // Priority for steps that don't set one (default 1)
}

// LearningConfig controls the pattern store.
type LearningConfig struct {
	Enabled bool   `json:"enabled"`            // Persist learned patterns between processes
	DBPath  string `json:"db_path,omitempty"`  // SQLite path; empty means the XDG data dir
}

// Config is the top-level configuration.
type Config struct {
	Workers  map[string]WorkerConfig `json:"workers"`
	Engine   EngineConfig            `json:"engine"`
	Learning LearningConfig          `json:"learning"`
}
