package engine

import (
	"sync"

	"github.com/tanq16/pullq/internal/types"
)

// serialObserver forwards events one at a time.
type serialObserver struct {
	mu   sync.Mutex
	next types.Observer
}

func newSerialObserver(next types.Observer) *serialObserver {
	if next == nil {
		next = types.NopObserver{}
	}
	return &serialObserver{next: next}
}

func (s *serialObserver) Started() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next.Started()
}

func (s *serialObserver) Progress(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next.Progress(percent)
}

func (s *serialObserver) Finished(outcome types.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next.Finished(outcome)
}
