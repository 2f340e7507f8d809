package snapshot

import (
	"sync"
	"time"

	"github.com/stationwatch/stationwatch/internal/telemetry"
)

// Snapshot is the most recent completed cycle's full row set and the time it
// was taken.
type Snapshot struct {
	Rows      []telemetry.Observation
	UpdatedAt time.Time
}

// Service owns the "last good snapshot". Readers observe either the previous
// cycle or the new one atomically, never a partial write. The zero snapshot
// has nil Rows and a zero UpdatedAt.
type Service struct {
	mu  sync.RWMutex
	cur Snapshot
}

// New creates an empty snapshot service.
func New() *Service {
	return &Service{}
}

// Get returns the current snapshot.
func (s *Service) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Replace installs the row set of a completed cycle. Called exactly once per
// cycle; the slice must not be mutated afterwards.
func (s *Service) Replace(rows []telemetry.Observation, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = Snapshot{Rows: rows, UpdatedAt: at}
}
