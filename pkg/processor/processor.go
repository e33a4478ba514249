package processor

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/bookdrop/pkg/catalog"
	"github.com/shishobooks/bookdrop/pkg/fileutils"
	"github.com/shishobooks/bookdrop/pkg/history"
	"github.com/shishobooks/bookdrop/pkg/identify"
	"github.com/shishobooks/bookdrop/pkg/isbn"
	"github.com/shishobooks/bookdrop/pkg/mediafile"
	"github.com/shishobooks/bookdrop/pkg/tracker"
)

// Errors returned by ResolveManually. The HTTP layer maps these onto API
// error codes.
var (
	ErrNotTracked      = errors.New("file is not tracked")
	ErrNotFailed       = errors.New("file is not in the failed state")
	ErrAlreadyRunning  = errors.New("file is already being processed")
	ErrInvalidISBN     = errors.New("identifier is not a valid ISBN")
	ErrEmptyIdentifier = errors.New("identifier value is empty")
)

// Resolver is the catalog lookup the pipeline depends on.
type Resolver interface {
	Resolve(ctx context.Context, id identify.Identifier) (*catalog.Result, error)
}

// Recorder persists terminal outcomes. Recording is best-effort; failures are
// logged and do not affect the file's tracked status.
type Recorder interface {
	Record(ctx context.Context, rec *history.Record) error
}

// Processor drives each admitted file through
// extract -> resolve -> move -> write-back, one goroutine per file. An
// in-flight set gives single-flight admission per source path.
type Processor struct {
	registry *mediafile.Registry
	resolver Resolver
	tracker  *tracker.Store
	recorder Recorder
	destDir  string
	log      logger.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// Option customizes the processor.
type Option func(*Processor)

// WithRecorder attaches a history recorder for terminal outcomes.
func WithRecorder(recorder Recorder) Option {
	return func(p *Processor) {
		p.recorder = recorder
	}
}

// WithLogger overrides the root logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Processor) {
		p.log = log
	}
}

// New creates a processor that moves resolved files into destDir.
func New(registry *mediafile.Registry, resolver Resolver, store *tracker.Store, destDir string, opts ...Option) *Processor {
	p := &Processor{
		registry: registry,
		resolver: resolver,
		tracker:  store,
		destDir:  filepath.Clean(destDir),
		log:      logger.New(),
		inflight: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process admits a source file and starts its pipeline in the background. It
// reports whether the file was admitted: already-in-flight paths, files
// sitting inside the destination directory, and paths already tracked from an
// earlier attempt are all rejected. A failed file re-enters only through
// ResolveManually.
func (p *Processor) Process(path string) bool {
	path = filepath.Clean(path)
	if filepath.Dir(path) == p.destDir {
		return false
	}
	if _, ok := p.registry.ForPath(path); !ok {
		return false
	}

	if !p.acquire(path) {
		return false
	}
	if !p.tracker.Add(path, filepath.Base(path)) {
		p.release(path)
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release(path)
		p.run(path)
	}()
	return true
}

// ResolveManually re-drives a failed file with an operator-supplied
// identifier, skipping extraction. ISBN values are normalized and must pass
// the checksum; title values just need to be non-empty.
func (p *Processor) ResolveManually(ctx context.Context, path string, kind identify.Kind, value string) error {
	path = filepath.Clean(path)

	id, err := buildIdentifier(kind, value)
	if err != nil {
		return err
	}

	file, ok := p.tracker.Get(path)
	if !ok {
		return errors.WithStack(ErrNotTracked)
	}
	if file.Status != tracker.StatusFailed {
		return errors.WithStack(ErrNotFailed)
	}

	if !p.acquire(path) {
		return errors.WithStack(ErrAlreadyRunning)
	}

	log := logger.FromContext(ctx)
	log.Info("manual resolution accepted", logger.Data{"path": path, "kind": string(id.Kind), "value": id.Value})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release(path)

		log, ctx := p.taskContext(path)
		p.tracker.SetStatus(path, tracker.StatusProcessing)
		p.resolveAndMove(ctx, log, path, id)
	}()
	return nil
}

// Wait blocks until all in-flight pipelines finish. Shutdown lets running
// tasks complete rather than cancelling them.
func (p *Processor) Wait() {
	p.wg.Wait()
}

func buildIdentifier(kind identify.Kind, value string) (identify.Identifier, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return identify.Identifier{}, errors.WithStack(ErrEmptyIdentifier)
	}

	switch kind {
	case identify.KindISBN:
		normalized := isbn.Normalize(value)
		if !isbn.IsValid(normalized) {
			return identify.Identifier{}, errors.WithStack(ErrInvalidISBN)
		}
		return identify.Identifier{Kind: identify.KindISBN, Value: normalized}, nil
	case identify.KindTitle:
		return identify.Identifier{Kind: identify.KindTitle, Value: value}, nil
	default:
		return identify.Identifier{}, errors.Errorf("unknown identifier kind %q", kind)
	}
}

func (p *Processor) acquire(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inflight[path]; ok {
		return false
	}
	p.inflight[path] = struct{}{}
	return true
}

func (p *Processor) release(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, path)
}

// taskContext builds the per-task logger and context the pipeline runs under.
func (p *Processor) taskContext(path string) (logger.Logger, context.Context) {
	id, err := uuid.NewRandom()
	if err != nil {
		log := p.log.Root(logger.Data{"path": path})
		return log, log.WithContext(context.Background())
	}
	log := p.log.ID(id.String()).Root(logger.Data{"path": path, "file": filepath.Base(path)})
	return log, log.WithContext(context.Background())
}

func (p *Processor) run(path string) {
	log, ctx := p.taskContext(path)
	p.tracker.SetStatus(path, tracker.StatusProcessing)
	log.Info("processing file")

	id, err := p.extract(path)
	if err != nil {
		log.Err(err).Warn("identifier extraction failed")
		p.fail(ctx, path, identify.Identifier{}, "no identifier found")
		return
	}
	log.Info("identifier extracted", logger.Data{"kind": string(id.Kind), "value": id.Value})

	p.resolveAndMove(ctx, log, path, id)
}

func (p *Processor) extract(path string) (identify.Identifier, error) {
	doc, err := p.registry.Open(path)
	if err != nil {
		return identify.Identifier{}, errors.WithStack(err)
	}
	defer doc.Close()

	return identify.Extract(doc)
}

// resolveAndMove is the shared back half of the pipeline: catalog lookup,
// move into the destination directory, best-effort metadata write-back.
func (p *Processor) resolveAndMove(ctx context.Context, log logger.Logger, path string, id identify.Identifier) {
	result, err := p.resolver.Resolve(ctx, id)
	if err != nil {
		log.Err(err).Warn("catalog lookup error")
		p.fail(ctx, path, id, "catalog lookup failed")
		return
	}
	if result == nil {
		log.Warn("catalog returned no result")
		p.fail(ctx, path, id, "no catalog result")
		return
	}

	resolvedName := fileutils.SanitizeName(result.DisplayName) + strings.ToLower(filepath.Ext(path))
	target := filepath.Join(p.destDir, resolvedName)

	if err := fileutils.MoveFile(path, target); err != nil {
		log.Err(err).Error("move error", logger.Data{"target": target})
		p.fail(ctx, path, id, "failed to move file")
		return
	}

	// Write-back is best-effort: the file has already been organized, so a
	// metadata failure only logs.
	if err := p.registry.WriteMetadata(target, result.Metadata); err != nil {
		log.Err(err).Warn("metadata write-back error", logger.Data{"target": target})
	}

	p.tracker.SetResolved(path, resolvedName)
	log.Info("file processed", logger.Data{"resolved_name": resolvedName})
	p.record(ctx, path, id, &history.Record{
		ResolvedName: resolvedName,
		Status:       tracker.StatusProcessed,
	})
}

func (p *Processor) fail(ctx context.Context, path string, id identify.Identifier, cause string) {
	p.tracker.Fail(path, cause)
	p.record(ctx, path, id, &history.Record{
		Status: tracker.StatusFailed,
		Error:  cause,
	})
}

func (p *Processor) record(ctx context.Context, path string, id identify.Identifier, rec *history.Record) {
	if p.recorder == nil {
		return
	}
	rec.Path = path
	rec.OriginalName = filepath.Base(path)
	rec.IdentifierKind = string(id.Kind)
	rec.IdentifierValue = id.Value

	if err := p.recorder.Record(ctx, rec); err != nil {
		logger.FromContext(ctx).Err(err).Warn("history record error")
	}
}
