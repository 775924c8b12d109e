// Package learning accumulates execution statistics keyed by capability
// sequence and answers duration-prediction and reordering queries. Patterns
// survive across runs within the process; callers can snapshot them into a
// longer-lived store.
package learning

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Pattern is a learned statistic for one exact ordered capability sequence.
type Pattern struct {
	Sequence    []string
	SuccessRate float64
	AvgDuration time.Duration
	UseCount    int
	LastUsed    time.Time
}

// Clone returns a deep copy of the pattern.
func (p *Pattern) Clone() *Pattern {
	cp := *p
	cp.Sequence = append([]string(nil), p.Sequence...)
	return &cp
}

// Suggestion is an advisory reordering candidate: a historically successful
// sequence similar to the plan's. Never applied automatically.
type Suggestion struct {
	Sequence    []string
	SuccessRate float64
	AvgDuration time.Duration
	Similarity  float64
}

// Store persists patterns beyond the process lifetime. Implemented by the
// persistence package; the module works fine without one.
type Store interface {
	SavePattern(ctx context.Context, p *Pattern) error
	LoadPatterns(ctx context.Context) ([]*Pattern, error)
}

const (
	// perTaskFallback is the estimate for a sequence with no history.
	perTaskFallback = 30 * time.Second

	// Suggestion thresholds: sequences at least this similar, with at
	// least this success rate, are surfaced.
	similarityFloor  = 0.7
	successRateFloor = 0.8
)

// Module holds learned patterns behind a mutex.
type Module struct {
	mu       sync.RWMutex
	patterns map[string]*Pattern
}

// NewModule creates an empty learning module.
func NewModule() *Module {
	return &Module{patterns: make(map[string]*Pattern)}
}

// key builds the exact-match map key for a sequence.
func key(sequence []string) string {
	return strings.Join(sequence, ",")
}

// Record folds one run outcome into the pattern for the sequence, creating
// it on first use. Averages are incremental: no per-run history is kept.
func (m *Module) Record(sequence []string, success bool, duration time.Duration) {
	if len(sequence) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(sequence)
	p, ok := m.patterns[k]
	if !ok {
		p = &Pattern{Sequence: append([]string(nil), sequence...)}
		m.patterns[k] = p
	}

	p.UseCount++
	p.LastUsed = time.Now()
	n := float64(p.UseCount)
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	if p.UseCount == 1 {
		p.SuccessRate = outcome
		p.AvgDuration = duration
		return
	}
	p.SuccessRate += (outcome - p.SuccessRate) / n
	p.AvgDuration += time.Duration((float64(duration) - float64(p.AvgDuration)) / n)
}

// Predict returns the learned mean duration for an exact sequence match,
// or len(sequence) times the fixed per-task fallback. Deterministic between
// Record calls.
func (m *Module) Predict(sequence []string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.patterns[key(sequence)]; ok && p.UseCount > 0 {
		return p.AvgDuration
	}
	return time.Duration(len(sequence)) * perTaskFallback
}

// Suggest returns stored patterns similar to the given sequence with a high
// success rate, ordered most similar first.
func (m *Module) Suggest(sequence []string) []Suggestion {
	m.mu.RLock()
	defer m.mu.RUnlock()

	own := key(sequence)
	var out []Suggestion
	for k, p := range m.patterns {
		if k == own {
			continue
		}
		sim := similarity(sequence, p.Sequence)
		if sim < similarityFloor || p.SuccessRate <= successRateFloor {
			continue
		}
		out = append(out, Suggestion{
			Sequence:    append([]string(nil), p.Sequence...),
			SuccessRate: p.SuccessRate,
			AvgDuration: p.AvgDuration,
			Similarity:  sim,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].SuccessRate > out[j].SuccessRate
	})
	return out
}

// Patterns returns clones of all stored patterns, in no particular order.
func (m *Module) Patterns() []*Pattern {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Pattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p.Clone())
	}
	return out
}

// Restore seeds the module from a store. Existing in-memory patterns with
// the same key are overwritten.
func (m *Module) Restore(ctx context.Context, store Store) error {
	patterns, err := store.LoadPatterns(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range patterns {
		m.patterns[key(p.Sequence)] = p.Clone()
	}
	return nil
}

// Snapshot writes every pattern to the store.
func (m *Module) Snapshot(ctx context.Context, store Store) error {
	for _, p := range m.Patterns() {
		if err := store.SavePattern(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// similarity is the position-wise match ratio between two sequences,
// normalized by the longer length. Identical sequences score 1.0.
func similarity(a, b []string) float64 {
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return 0
	}
	shorter := len(a)
	if len(b) < shorter {
		shorter = len(b)
	}
	matches := 0
	for i := 0; i < shorter; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(longer)
}
