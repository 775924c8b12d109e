package config

// DefaultConfig returns the default configuration: three echo workers
// covering the built-in capabilities, sensible engine knobs, learning off.
func DefaultConfig() *Config {
	return &Config{
		Workers: map[string]WorkerConfig{
			"designer": {
				Capabilities:   []string{"design"},
				MaxConcurrent:  2,
				Specialization: map[string]float64{"design": 0.9},
				Type:           "echo",
			},
			"coder": {
				Capabilities:   []string{"code", "design"},
				MaxConcurrent:  2,
				Specialization: map[string]float64{"code": 0.8, "design": 0.4},
				Type:           "echo",
			},
			"verifier": {
				Capabilities:   []string{"verify"},
				MaxConcurrent:  2,
				Specialization: map[string]float64{"verify": 0.9},
				Type:           "echo",
			},
		},
		Engine: EngineConfig{
			MaxRetries:      3,
			TickMillis:      10,
			DefaultPriority: 1,
		},
		Learning: LearningConfig{
			Enabled: false,
		},
	}
}
