package tracks

import "sync"

// cameraLocks serializes track mutation per camera so a rebuild and an
// incremental match never interleave on the same partition. The all-cameras
// scope is exclusive against every per-camera holder, not just other
// all-camera passes.
type cameraLocks struct {
	// scope is read-locked by per-camera holders and write-locked by the
	// all-cameras scope, so an all-camera rebuild waits for (and blocks)
	// every per-camera pass.
	scope sync.RWMutex

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCameraLocks() *cameraLocks {
	return &cameraLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for the given camera id. The empty camera id locks
// the all-cameras scope.
func (c *cameraLocks) lock(cameraID string) func() {
	if cameraID == "" {
		c.scope.Lock()
		return c.scope.Unlock
	}

	c.scope.RLock()

	c.mu.Lock()
	m, ok := c.locks[cameraID]
	if !ok {
		m = &sync.Mutex{}
		c.locks[cameraID] = m
	}
	c.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		c.scope.RUnlock()
	}
}
