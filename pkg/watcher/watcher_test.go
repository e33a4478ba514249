package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shishobooks/bookdrop/pkg/mediafile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	events chan string
	errs   chan error
	once   sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan string), errs: make(chan error)}
}

func (s *fakeSource) Events() <-chan string { return s.events }
func (s *fakeSource) Errors() <-chan error  { return s.errs }

func (s *fakeSource) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

type fakeAdmitter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newFakeAdmitter() *fakeAdmitter {
	return &fakeAdmitter{calls: map[string]int{}}
}

func (a *fakeAdmitter) Process(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[path]++
	return a.calls[path] == 1
}

func (a *fakeAdmitter) count(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[path]
}

func (a *fakeAdmitter) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		n += c
	}
	return n
}

func pdfRegistry() *mediafile.Registry {
	return mediafile.NewRegistry(mediafile.Format{
		Extension: ".pdf",
		MimeTypes: []string{"application/pdf"},
	})
}

func writePDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n%some content\n"), 0644))
	return path
}

func TestStartupRescanAdmitsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := writePDF(t, dir, "existing.pdf")

	source := newFakeSource()
	admitter := newFakeAdmitter()
	w := New(source, pdfRegistry(), admitter, dir, time.Hour)
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		return admitter.count(path) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDebounceCoalescesEventBursts(t *testing.T) {
	dir := t.TempDir()
	path := writePDF(t, dir, "burst.pdf")

	source := newFakeSource()
	admitter := newFakeAdmitter()
	w := New(source, pdfRegistry(), admitter, dir, 50*time.Millisecond)
	w.Start()
	defer w.Stop()

	// Startup rescan sees the file once.
	require.Eventually(t, func() bool {
		return admitter.count(path) == 1
	}, time.Second, 10*time.Millisecond)

	// A burst of raw events while a copy is in flight.
	source.events <- path
	source.events <- path
	source.events <- path

	// The burst collapses into a single rescan after the quiet period.
	require.Eventually(t, func() bool {
		return admitter.count(path) == 2
	}, time.Second, 10*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 2, admitter.count(path))
}

func TestRescanSkipsNonMatchingFiles(t *testing.T) {
	dir := t.TempDir()

	// Right extension, wrong content.
	disguised := filepath.Join(dir, "disguised.pdf")
	require.NoError(t, os.WriteFile(disguised, []byte("plain text, not a pdf"), 0644))
	// Wrong extension.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("notes"), 0644))
	// Destination directory contents are never scanned.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Books"), 0755))
	writePDF(t, filepath.Join(dir, "Books"), "Organized - Author.pdf")

	source := newFakeSource()
	admitter := newFakeAdmitter()
	w := New(source, pdfRegistry(), admitter, dir, 20*time.Millisecond)
	w.Start()
	defer w.Stop()

	source.events <- disguised

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, admitter.total())
}

func TestStopEndsLoop(t *testing.T) {
	dir := t.TempDir()

	source := newFakeSource()
	w := New(source, pdfRegistry(), newFakeAdmitter(), dir, time.Hour)
	w.Start()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
