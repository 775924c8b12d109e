package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Step is one unit of a decomposed plan, as produced by an external planner.
// Dependencies reference other steps by name and must resolve within the plan.
type Step struct {
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description" yaml:"description"`
	Type          string   `json:"type,omitempty" yaml:"type,omitempty"`
	Dependencies  []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Priority      int      `json:"priority,omitempty" yaml:"priority,omitempty"`
	FilesToModify []string `json:"files_to_modify,omitempty" yaml:"files_to_modify,omitempty"`
}

// Plan is an ordered list of steps. Order matters: it is the tie-break
// for scheduling and the sequence the learning module records.
type Plan struct {
	Goal  string `json:"goal,omitempty" yaml:"goal,omitempty"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Validate checks structural invariants: every step has a name, names are
// unique, and every dependency resolves to another step in the plan.
func (p *Plan) Validate() error {
	names := make(map[string]bool, len(p.Steps))
	for i, step := range p.Steps {
		if step.Name == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		if names[step.Name] {
			return fmt.Errorf("duplicate step name %q", step.Name)
		}
		names[step.Name] = true
	}
	for _, step := range p.Steps {
		for _, dep := range step.Dependencies {
			if !names[dep] {
				return fmt.Errorf("step %q depends on unknown step %q", step.Name, dep)
			}
		}
	}
	return nil
}

// Load reads a plan from a YAML or JSON file, selected by extension.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan %s: %w", path, err)
	}

	var p Plan
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parsing plan %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parsing plan %s: %w", path, err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return &p, nil
}
