package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/forecast-controller/internal/controller"
	"github.com/i474232898/forecast-controller/internal/weather"
)

var (
	// ErrNotFound is returned when no transition matches.
	ErrNotFound = errors.New("no state transitions recorded")
)

// Transition is one published controller state, flattened for reporting.
type Transition struct {
	At       time.Time `json:"at"` // always UTC
	State    string    `json:"state"`
	Location string    `json:"location,omitempty"`
	Days     int       `json:"days,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// FromState flattens s into a Transition stamped at.
func FromState(s controller.State, at time.Time) Transition {
	t := Transition{At: at.UTC(), State: s.Kind().String()}
	return controller.Match(s,
		func() Transition { return t },
		func(r weather.ForecastResult) Transition {
			t.Location = r.Location.Name
			t.Days = r.Days()
			return t
		},
		func(msg string) Transition {
			t.Message = msg
			return t
		},
	)
}

// MemoryStore is a concurrency-safe, retention-bounded history of transitions.
type MemoryStore struct {
	mu      sync.RWMutex
	history []Transition

	// retention configuration
	maxHistory int           // max number of transitions kept
	maxAge     time.Duration // optional max age for transitions

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Observe records s; it has the controller.Observer signature.
func (s *MemoryStore) Observe(state controller.State) {
	s.Save(FromState(state, s.now()))
}

// Save appends a transition and enforces retention.
func (s *MemoryStore) Save(t Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, t)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.history) > s.maxHistory {
		over := len(s.history) - s.maxHistory
		s.history = append([]Transition(nil), s.history[over:]...)
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.history); i++ {
			if !s.history[i].At.Before(cutoff) {
				break
			}
		}
		if i > 0 {
			s.history = append([]Transition(nil), s.history[i:]...)
		}
	}
}

// GetLatest returns the most recent transition.
func (s *MemoryStore) GetLatest() (Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) == 0 {
		return Transition{}, ErrNotFound
	}
	return s.history[len(s.history)-1], nil
}

// GetRange returns all transitions between from and to (inclusive).
func (s *MemoryStore) GetRange(from, to time.Time) ([]Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Transition
	for _, t := range s.history {
		if !t.At.Before(from) && !t.At.After(to) {
			result = append(result, t)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
