package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/persistcheck/models"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
)

// entry holds a run and when it was last written.
type entry struct {
	status    string
	report    *models.Report
	updatedAt time.Time
}

// Store is an in-memory record of check runs keyed by run ID.
// It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	runs       map[string]*entry
	maxEntries int
	ttl        time.Duration
	done       chan struct{}
	stopOnce   sync.Once
}

// New creates a Store holding at most maxEntries runs. A background
// goroutine evicts runs older than ttl every ttl/4, capped at one minute.
func New(maxEntries int, ttl time.Duration) *Store {
	if maxEntries < 1 {
		maxEntries = 1
	}
	s := &Store{
		runs:       make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		done:       make(chan struct{}),
	}
	if ttl > 0 {
		go s.cleanupLoop()
	}
	return s
}

// NewID returns a fresh run ID.
func NewID() string {
	return "run-" + uuid.NewString()
}

// Start records a run as in progress.
func (s *Store) Start(id string) {
	s.put(id, &entry{status: StatusRunning})
}

// Complete stores the final report of a run.
func (s *Store) Complete(id string, rep *models.Report) {
	s.put(id, &entry{status: StatusCompleted, report: rep})
}

// Get returns the status and report (nil while running) of a run.
func (s *Store) Get(id string) (status string, rep *models.Report, ok bool) {
	s.mu.RLock()
	e, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return "", nil, false
	}
	if s.ttl > 0 && time.Since(e.updatedAt) > s.ttl {
		return "", nil, false
	}
	return e.status, e.report, true
}

// Len returns the number of stored runs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// Stop terminates the cleanup goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Store) put(id string, e *entry) {
	e.updatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[id]; !exists && len(s.runs) >= s.maxEntries {
		s.evictOldestLocked()
	}
	s.runs[id] = e
}

// evictOldestLocked drops the least recently written run. Running entries
// are preferred to survive. Caller must hold s.mu.
func (s *Store) evictOldestLocked() {
	var victim string
	var oldest time.Time
	for _, completedOnly := range []bool{true, false} {
		for id, e := range s.runs {
			if completedOnly && e.status != StatusCompleted {
				continue
			}
			if victim == "" || e.updatedAt.Before(oldest) {
				victim, oldest = id, e.updatedAt
			}
		}
		if victim != "" {
			break
		}
	}
	delete(s.runs, victim)
}

func (s *Store) cleanupLoop() {
	interval := s.ttl / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.ttl)
			s.mu.Lock()
			for id, e := range s.runs {
				if e.updatedAt.Before(cutoff) {
					delete(s.runs, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
