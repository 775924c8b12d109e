package orchestrator

import (
	"sort"
	"sync"
)

// PathLocks provides per-path mutual exclusion for concurrently executing
// tasks that declare overlapping files_to_modify. Each path gets its own
// mutex, so tasks touching disjoint files run in parallel while tasks
// touching the same file serialize.
type PathLocks struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-path mutexes
}

// NewPathLocks creates an empty lock manager.
func NewPathLocks() *PathLocks {
	return &PathLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for one path, creating it on first use.
func (l *PathLocks) Lock(path string) {
	l.mu.Lock()
	pathLock, exists := l.locks[path]
	if !exists {
		pathLock = &sync.Mutex{}
		l.locks[path] = pathLock
	}
	l.mu.Unlock()

	// Acquire outside the manager lock to avoid blocking other paths.
	pathLock.Lock()
}

// Unlock releases the mutex for one path.
func (l *PathLocks) Unlock(path string) {
	l.mu.Lock()
	pathLock, exists := l.locks[path]
	l.mu.Unlock()

	if exists {
		pathLock.Unlock()
	}
}

// LockAll acquires every path in sorted order. Sorting before acquiring is
// what prevents two tasks with overlapping path sets from deadlocking.
func (l *PathLocks) LockAll(paths []string) {
	if len(paths) == 0 {
		return
	}
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)
	for _, p := range sorted {
		l.Lock(p)
	}
}

// UnlockAll releases every path in reverse sorted order.
func (l *PathLocks) UnlockAll(paths []string) {
	if len(paths) == 0 {
		return
	}
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)
	for i := len(sorted) - 1; i >= 0; i-- {
		l.Unlock(sorted[i])
	}
}
