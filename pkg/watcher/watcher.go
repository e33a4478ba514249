package watcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/bookdrop/pkg/mediafile"
)

// EventSource produces change notifications for the watch directory. The
// payload is just the affected path; the watcher treats every event as
// "something changed" and rescans.
type EventSource interface {
	Events() <-chan string
	Errors() <-chan error
	Close() error
}

// Admitter hands a discovered file to the processing pipeline. Process
// reports whether the file was admitted.
type Admitter interface {
	Process(path string) bool
}

// fsnotifySource adapts fsnotify to EventSource, forwarding create and write
// events.
type fsnotifySource struct {
	watcher *fsnotify.Watcher
	events  chan string
	done    chan struct{}
}

// NewSource starts watching dir with fsnotify.
func NewSource(dir string) (EventSource, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "watch %q", dir)
	}

	s := &fsnotifySource{
		watcher: fsw,
		events:  make(chan string),
		done:    make(chan struct{}),
	}
	go s.forward()
	return s, nil
}

func (s *fsnotifySource) forward() {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			select {
			case s.events <- ev.Name:
			case <-s.done:
				return
			}
		}
	}
}

func (s *fsnotifySource) Events() <-chan string { return s.events }
func (s *fsnotifySource) Errors() <-chan error  { return s.watcher.Errors }

func (s *fsnotifySource) Close() error {
	close(s.done)
	return s.watcher.Close()
}

// Watcher debounces raw filesystem events and rescans the watch directory,
// admitting files whose extension and sniffed content type both match a
// registered format. A copy-in-progress keeps emitting write events, so the
// rescan only runs after the directory has been quiet for the debounce
// interval.
type Watcher struct {
	source   EventSource
	registry *mediafile.Registry
	admitter Admitter
	watchDir string
	debounce time.Duration
	log      logger.Logger

	stop chan struct{}
	done chan struct{}
}

// Option customizes the watcher.
type Option func(*Watcher)

// WithLogger overrides the root logger.
func WithLogger(log logger.Logger) Option {
	return func(w *Watcher) {
		w.log = log
	}
}

// New creates a watcher over watchDir.
func New(source EventSource, registry *mediafile.Registry, admitter Admitter, watchDir string, debounce time.Duration, opts ...Option) *Watcher {
	w := &Watcher{
		source:   source,
		registry: registry,
		admitter: admitter,
		watchDir: filepath.Clean(watchDir),
		debounce: debounce,
		log:      logger.New(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start scans once for files that arrived while the daemon was down, then
// watches for events until Stop.
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	defer close(w.done)

	w.rescan()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case _, ok := <-w.source.Events():
			if !ok {
				return
			}
			// Restart the quiet-period timer on every raw event.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.source.Errors():
			if !ok {
				continue
			}
			w.log.Err(err).Warn("watch error")
		case <-timer.C:
			w.rescan()
		}
	}
}

// Stop closes the event source and waits for the loop to exit. In-flight
// processing is not cancelled.
func (w *Watcher) Stop() {
	close(w.stop)
	if err := w.source.Close(); err != nil {
		w.log.Err(err).Warn("event source close error")
	}
	<-w.done
}

// rescan lists the watch directory and admits every matching file. Admission
// is idempotent, so files seen on a previous rescan are cheap no-ops.
func (w *Watcher) rescan() {
	entries, err := os.ReadDir(w.watchDir)
	if err != nil {
		w.log.Err(err).Warn("watch directory list error", logger.Data{"path": w.watchDir})
		return
	}

	for _, entry := range entries {
		// Subdirectories, including the destination directory, are never
		// scanned.
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.watchDir, entry.Name())
		if !w.matches(path) {
			continue
		}
		if w.admitter.Process(path) {
			w.log.Info("file admitted", logger.Data{"path": path})
		}
	}
}

// matches requires both the extension and the sniffed content type to agree
// with a registered format, so a text file renamed to .pdf is not admitted.
func (w *Watcher) matches(path string) bool {
	format, ok := w.registry.ForPath(path)
	if !ok {
		return false
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		w.log.Err(err).Warn("mimetype sniff error", logger.Data{"path": path})
		return false
	}
	for _, allowed := range format.MimeTypes {
		if mtype.Is(allowed) {
			return true
		}
	}
	return false
}
