package counter

import "sync"

// projectLocks serializes value commits per project. A cascade never leaves
// its project, so one lock covers the whole unit of work and two concurrent
// updates touching the same counter can never interleave.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *projectLocks) acquire(projectID string) *sync.Mutex {
	p.mu.Lock()
	m, ok := p.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		p.locks[projectID] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m
}
