package transfer

import (
	"sort"
	"sync"
)

// Entry is one active transfer's accounting.
type Entry struct {
	Declared    int64
	Transferred int64
}

// State is the shared accounting for one pass. Every method is one critical
// section under mu.
type State struct {
	mu            sync.Mutex
	entries       map[string]*Entry
	totalDeclared int64
	failed        map[string]struct{}
}

// NewState starts a pass. failed carries URLs that failed in earlier passes.
func NewState(failed ...string) *State {
	s := &State{
		entries: make(map[string]*Entry),
		failed:  make(map[string]struct{}, len(failed)),
	}
	for _, url := range failed {
		s.failed[url] = struct{}{}
	}
	return s
}

// Register records url with its declared size. Unknown sizes (<= 0) are
// stored as zero.
func (s *State) Register(url string, declared int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if declared < 0 {
		declared = 0
	}
	if old, ok := s.entries[url]; ok {
		s.totalDeclared -= old.Declared
	}
	s.entries[url] = &Entry{Declared: declared}
	s.totalDeclared += declared
}

// Add credits n bytes to url and returns the recomputed aggregate percentage.
func (s *State) Add(url string, n int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[url]; ok {
		e.Transferred += n
	}
	return s.percentLocked()
}

// Fail backs url out of the totals and records it as failed.
func (s *State) Fail(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(url)
	s.failed[url] = struct{}{}
}

// Discard drops url without recording a failure.
func (s *State) Discard(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(url)
}

func (s *State) removeLocked(url string) {
	if e, ok := s.entries[url]; ok {
		s.totalDeclared -= e.Declared
		delete(s.entries, url)
	}
}

func (s *State) Percent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.percentLocked()
}

func (s *State) percentLocked() int {
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, *e)
	}
	return Percentage(entries)
}

// TotalDeclared is the sum of declared sizes of active transfers.
func (s *State) TotalDeclared() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalDeclared
}

func (s *State) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *State) FailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := make([]string, 0, len(s.failed))
	for url := range s.failed {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Percentage is floor(100 * transferred / max(1, denominator)) clamped to
// [0,100]. Each entry contributes max(declared, transferred) to the
// denominator so unknown sizes never push the result past 100.
func Percentage(entries []Entry) int {
	var transferred, total int64
	for _, e := range entries {
		t := max(e.Transferred, 0)
		transferred += t
		total += max(e.Declared, t)
	}
	total = max(total, 1)
	pct := transferred * 100 / total
	return int(min(max(pct, 0), 100))
}
