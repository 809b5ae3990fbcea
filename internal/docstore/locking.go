package docstore

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// slowLockThreshold is how long a writer may wait before it is logged.
const slowLockThreshold = 250 * time.Millisecond

// DatabaseLocker serializes writers against the in-memory collections and
// the backing file. Readers share the lock.
type DatabaseLocker struct {
	mu sync.RWMutex
}

// NewDatabaseLocker creates a new database locker
func NewDatabaseLocker() *DatabaseLocker {
	return &DatabaseLocker{}
}

// WithWrite runs fn while holding the exclusive writer lock.
func (l *DatabaseLocker) WithWrite(operation string, fn func() error) error {
	start := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if waited := time.Since(start); waited > slowLockThreshold {
		log.Warn().
			Str("operation", operation).
			Dur("waited", waited).
			Msg("Document store writer waited for lock")
	}

	return fn()
}

// WithRead runs fn while holding the shared reader lock.
func (l *DatabaseLocker) WithRead(fn func() error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn()
}
