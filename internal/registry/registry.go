// Package registry tracks worker profiles: what each worker can do, how
// loaded it is, and how it has performed historically. Load and rolling
// statistics are mutated only through the registry so the coordinator and
// the conflict engine share one consistent view.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Profile describes one registered worker.
type Profile struct {
	ID             string
	Capabilities   []string           // Capability tags this worker accepts
	MaxConcurrent  int                // Concurrency ceiling (>= 1)
	CurrentLoad    int                // In-flight task count, 0 <= load <= ceiling
	Specialization map[string]float64 // capability -> score in [0, 1]
	SuccessRate    float64            // Rolling success rate over completed dispatches
	ResponseTime   time.Duration      // Rolling mean execution time
	completed      int                // Samples behind the rolling stats
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Capabilities = append([]string(nil), p.Capabilities...)
	if p.Specialization != nil {
		cp.Specialization = make(map[string]float64, len(p.Specialization))
		for k, v := range p.Specialization {
			cp.Specialization[k] = v
		}
	}
	return &cp
}

// Has reports whether the worker is registered under the given capability.
func (p *Profile) Has(capability string) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// SpareCapacity returns how many more tasks the worker can hold.
func (p *Profile) SpareCapacity() int {
	return p.MaxConcurrent - p.CurrentLoad
}

// Registry is a mutex-guarded collection of worker profiles.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	order    []string // Worker IDs in registration order, for deterministic iteration
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{profiles: make(map[string]*Profile)}
}

// Register adds a worker profile. Fresh workers start optimistic: an
// unknown success rate counts as 1.0 until real samples arrive.
func (r *Registry) Register(p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		return fmt.Errorf("worker profile has no ID")
	}
	if _, exists := r.profiles[p.ID]; exists {
		return fmt.Errorf("worker %q already registered", p.ID)
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 1
	}
	if p.Specialization == nil {
		p.Specialization = make(map[string]float64)
	}
	if p.completed == 0 && p.SuccessRate == 0 {
		p.SuccessRate = 1.0
	}

	r.profiles[p.ID] = p
	r.order = append(r.order, p.ID)
	return nil
}

// Get returns a clone of the worker profile.
func (r *Registry) Get(workerID string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.profiles[workerID]
	if !exists {
		return nil, false
	}
	return p.Clone(), true
}

// Profiles returns clones of all profiles in registration order.
func (r *Registry) Profiles() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Profile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.profiles[id].Clone())
	}
	return out
}

// Capable returns clones of workers registered under the capability,
// in registration order.
func (r *Registry) Capable(capability string) []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Profile
	for _, id := range r.order {
		if r.profiles[id].Has(capability) {
			out = append(out, r.profiles[id].Clone())
		}
	}
	return out
}

// PickWorker selects the best worker for a capability among those with
// spare capacity. Score favors specialization, then spare capacity, then
// historical success rate; ties fall back to registration order.
// Returns nil when no capable worker has room.
func (r *Registry) PickWorker(capability string) *Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type candidate struct {
		p     *Profile
		score float64
		rank  int
	}
	var candidates []candidate
	for rank, id := range r.order {
		p := r.profiles[id]
		if !p.Has(capability) || p.SpareCapacity() <= 0 {
			continue
		}
		candidates = append(candidates, candidate{p: p, score: score(p, capability), rank: rank})
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rank < candidates[j].rank
	})
	return candidates[0].p.Clone()
}

// LeastLoaded returns the capable worker with the most spare capacity,
// or nil if none has room. Used by conflict redistribution.
func (r *Registry) LeastLoaded(capability string) *Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Profile
	for _, id := range r.order {
		p := r.profiles[id]
		if !p.Has(capability) || p.SpareCapacity() <= 0 {
			continue
		}
		if best == nil || p.SpareCapacity() > best.SpareCapacity() {
			best = p
		}
	}
	return best.Clone()
}

// RecordDispatch increments a worker's load. Fails if the worker is
// already at its ceiling; the scheduler must never over-commit a worker.
func (r *Registry) RecordDispatch(workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.profiles[workerID]
	if !exists {
		return fmt.Errorf("worker %q not registered", workerID)
	}
	if p.CurrentLoad >= p.MaxConcurrent {
		return fmt.Errorf("worker %q is at capacity (%d/%d)", workerID, p.CurrentLoad, p.MaxConcurrent)
	}
	p.CurrentLoad++
	return nil
}

// Release decrements a worker's load without recording an outcome, for
// assignments that were rolled back before dispatch.
func (r *Registry) Release(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, exists := r.profiles[workerID]; exists && p.CurrentLoad > 0 {
		p.CurrentLoad--
	}
}

// RecordCompletion decrements a worker's load and folds the outcome into
// its rolling success rate and mean response time.
func (r *Registry) RecordCompletion(workerID string, success bool, took time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.profiles[workerID]
	if !exists {
		return fmt.Errorf("worker %q not registered", workerID)
	}
	if p.CurrentLoad > 0 {
		p.CurrentLoad--
	}

	p.completed++
	n := float64(p.completed)
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	if p.completed == 1 {
		p.SuccessRate = outcome
		p.ResponseTime = took
		return nil
	}
	p.SuccessRate += (outcome - p.SuccessRate) / n
	p.ResponseTime += time.Duration((float64(took) - float64(p.ResponseTime)) / n)
	return nil
}

// score ranks a worker for a capability. Weights favor specialists, then
// idle workers, then historically reliable ones.
func score(p *Profile, capability string) float64 {
	spec := p.Specialization[capability]
	spare := float64(p.SpareCapacity()) / float64(p.MaxConcurrent)
	return 0.5*spec + 0.3*spare + 0.2*p.SuccessRate
}
