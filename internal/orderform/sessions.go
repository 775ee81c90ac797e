package orderform

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Sessions maps browser session ids to their form controllers.
type Sessions struct {
	factory func(id string) *Controller
	ttl     time.Duration
	now     func() time.Time
	logger  *logrus.Logger

	mutex   sync.Mutex
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	controller *Controller
	lastSeen   time.Time
}

func NewSessions(factory func(id string) *Controller, ttl time.Duration, logger *logrus.Logger) *Sessions {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Sessions{
		factory: factory,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
		entries: make(map[string]*sessionEntry),
	}
}

// Get returns the controller of a live session and marks it as used.
func (s *Sessions) Get(id string) (*Controller, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = s.now()
	return entry.controller, true
}

// GetOrCreate returns the session for id, starting a fresh one under a
// new id when id is empty or unknown.
func (s *Sessions) GetOrCreate(id string) (string, *Controller) {
	if c, ok := s.Get(id); ok {
		return id, c
	}

	id = uuid.New().String()
	c := s.factory(id)

	s.mutex.Lock()
	s.entries[id] = &sessionEntry{controller: c, lastSeen: s.now()}
	count := len(s.entries)
	s.mutex.Unlock()

	s.logger.WithFields(logrus.Fields{
		"session_id":    id,
		"session_count": count,
	}).Debug("Form session started")
	return id, c
}

func (s *Sessions) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.entries)
}

// Sweep drops sessions idle for longer than the TTL. Sessions with a
// submission in flight are kept.
func (s *Sessions) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	var expired []*Controller
	s.mutex.Lock()
	for id, entry := range s.entries {
		if entry.lastSeen.Before(cutoff) && !entry.controller.Busy() {
			expired = append(expired, entry.controller)
			delete(s.entries, id)
		}
	}
	s.mutex.Unlock()

	for _, c := range expired {
		c.Close()
	}
	if len(expired) > 0 {
		s.logger.WithField("expired", len(expired)).Info("Expired idle form sessions")
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
