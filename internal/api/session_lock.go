package api

import (
	"hash/fnv"
	"sync"
)

const sessionLockStripes = 64

// sessionLocks serializes the load, book, save cycle of one limiter session
// within this process. Distinct sessions may share a stripe.
type sessionLocks struct {
	stripes [sessionLockStripes]sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{}
}

// Lock holds the stripe for key and returns its release.
func (l *sessionLocks) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &l.stripes[h.Sum32()%sessionLockStripes]
	mu.Lock()
	return mu.Unlock
}
