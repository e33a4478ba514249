package tracker

import (
	"sync"
)

// Status is a tracked file's lifecycle state. Transitions move forward
// (pending -> processing -> processed/failed) within an attempt; failed
// re-enters processing only through manual resolution.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// TrackedFile is one observed source file. Path is its identity and stays
// stable while the file is pending; ResolvedName is empty until resolution
// succeeds.
type TrackedFile struct {
	Path         string `json:"path"`
	OriginalName string `json:"original_name"`
	ResolvedName string `json:"resolved_name,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// Store is the observable list of tracked files. All mutation goes through
// the store's lock so the coordinator's per-file tasks never race on the
// collection; readers get snapshot copies.
type Store struct {
	mu    sync.Mutex
	files map[string]*TrackedFile
	order []string
	subs  []chan struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{files: map[string]*TrackedFile{}}
}

// Add starts tracking a path in the pending state. It reports whether the
// path was newly added; a path already tracked (in any state) is left
// untouched, keeping at most one entry per source path.
func (s *Store) Add(path, originalName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[path]; ok {
		return false
	}
	s.files[path] = &TrackedFile{
		Path:         path,
		OriginalName: originalName,
		Status:       StatusPending,
	}
	s.order = append(s.order, path)
	s.notifyLocked()
	return true
}

// Get returns a copy of the tracked file for path.
func (s *Store) Get(path string) (TrackedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[path]
	if !ok {
		return TrackedFile{}, false
	}
	return *f, true
}

// SetStatus transitions the path's state, clearing any previous error.
func (s *Store) SetStatus(path, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.files[path]; ok {
		f.Status = status
		f.Error = ""
		s.notifyLocked()
	}
}

// Fail transitions the path to failed and records the cause.
func (s *Store) Fail(path, cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.files[path]; ok {
		f.Status = StatusFailed
		f.Error = cause
		s.notifyLocked()
	}
}

// SetResolved records the resolved destination name and marks the file
// processed.
func (s *Store) SetResolved(path, resolvedName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.files[path]; ok {
		f.ResolvedName = resolvedName
		f.Status = StatusProcessed
		f.Error = ""
		s.notifyLocked()
	}
}

// List returns a snapshot of all tracked files in admission order.
func (s *Store) List() []TrackedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TrackedFile, 0, len(s.order))
	for _, path := range s.order {
		out = append(out, *s.files[path])
	}
	return out
}

// Subscribe returns a channel that receives a (coalesced) signal whenever the
// store changes. The presentation layer uses it to refresh without polling.
// Callers must Unsubscribe when done.
func (s *Store) Subscribe() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	s.subs = append(s.subs, ch)
	return ch
}

// Unsubscribe removes a channel returned by Subscribe.
func (s *Store) Unsubscribe(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// notifyLocked publishes a change signal without blocking: a subscriber that
// hasn't drained its previous signal just keeps the one pending notification.
func (s *Store) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
