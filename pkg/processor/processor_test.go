package processor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shishobooks/bookdrop/pkg/catalog"
	"github.com/shishobooks/bookdrop/pkg/identify"
	"github.com/shishobooks/bookdrop/pkg/mediafile"
	"github.com/shishobooks/bookdrop/pkg/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocument struct {
	fields []mediafile.Field
	blocks []string
}

func (d *fakeDocument) Fields() []mediafile.Field        { return d.fields }
func (d *fakeDocument) TextBlocks(int) ([]string, error) { return d.blocks, nil }
func (d *fakeDocument) Close() error                     { return nil }

type fakeResolver struct {
	mu      sync.Mutex
	got     []identify.Identifier
	result  *catalog.Result
	err     error
	release chan struct{}
}

func (r *fakeResolver) Resolve(_ context.Context, id identify.Identifier) (*catalog.Result, error) {
	r.mu.Lock()
	r.got = append(r.got, id)
	r.mu.Unlock()
	if r.release != nil {
		<-r.release
	}
	return r.result, r.err
}

func (r *fakeResolver) calls() []identify.Identifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]identify.Identifier{}, r.got...)
}

type writeBack struct {
	mu     sync.Mutex
	path   string
	meta   mediafile.Metadata
	called bool
}

func testRegistry(doc *fakeDocument, wb *writeBack) *mediafile.Registry {
	return mediafile.NewRegistry(mediafile.Format{
		Extension: ".pdf",
		Open: func(string) (mediafile.Document, error) {
			return doc, nil
		},
		WriteMetadata: func(path string, meta mediafile.Metadata) error {
			if wb != nil {
				wb.mu.Lock()
				wb.path, wb.meta, wb.called = path, meta, true
				wb.mu.Unlock()
			}
			return nil
		},
	})
}

func dropFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))
	return path
}

func TestProcessEndToEnd(t *testing.T) {
	dir := t.TempDir()
	destDir := filepath.Join(dir, "Books")
	source := dropFile(t, dir, "mystery.pdf")

	doc := &fakeDocument{fields: []mediafile.Field{{Key: "Title", Value: "Mystery"}}}
	resolver := &fakeResolver{result: &catalog.Result{
		DisplayName: "Mystery - Author",
		Metadata:    mediafile.Metadata{Title: "Mystery", Authors: []string{"Author"}},
	}}
	wb := &writeBack{}
	store := tracker.New()
	p := New(testRegistry(doc, wb), resolver, store, destDir)

	require.True(t, p.Process(source))
	p.Wait()

	// Without an ISBN the title field drives the lookup.
	calls := resolver.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, identify.KindTitle, calls[0].Kind)
	assert.Equal(t, "Mystery", calls[0].Value)

	target := filepath.Join(destDir, "Mystery - Author.pdf")
	_, err := os.Stat(target)
	require.NoError(t, err)
	_, err = os.Stat(source)
	assert.True(t, os.IsNotExist(err))

	file, ok := store.Get(source)
	require.True(t, ok)
	assert.Equal(t, tracker.StatusProcessed, file.Status)
	assert.Equal(t, "Mystery - Author.pdf", file.ResolvedName)

	assert.True(t, wb.called)
	assert.Equal(t, target, wb.path)
	assert.Equal(t, "Mystery", wb.meta.Title)
}

func TestProcessSanitizesDisplayName(t *testing.T) {
	dir := t.TempDir()
	destDir := filepath.Join(dir, "Books")
	source := dropFile(t, dir, "tcpip.pdf")

	doc := &fakeDocument{fields: []mediafile.Field{{Key: "Title", Value: "networking"}}}
	resolver := &fakeResolver{result: &catalog.Result{
		DisplayName: `TCP/IP Illustrated: Volume 1 - Stevens`,
		Metadata:    mediafile.Metadata{Title: "TCP/IP Illustrated"},
	}}
	store := tracker.New()
	p := New(testRegistry(doc, nil), resolver, store, destDir)

	require.True(t, p.Process(source))
	p.Wait()

	_, err := os.Stat(filepath.Join(destDir, "TCP_IP Illustrated_ Volume 1 - Stevens.pdf"))
	require.NoError(t, err)
}

func TestProcessSingleFlight(t *testing.T) {
	dir := t.TempDir()
	source := dropFile(t, dir, "a.pdf")

	doc := &fakeDocument{fields: []mediafile.Field{{Key: "Title", Value: "Stuck Book"}}}
	resolver := &fakeResolver{
		result:  &catalog.Result{DisplayName: "Stuck Book - A", Metadata: mediafile.Metadata{Title: "Stuck Book"}},
		release: make(chan struct{}),
	}
	store := tracker.New()
	p := New(testRegistry(doc, nil), resolver, store, filepath.Join(dir, "Books"))

	require.True(t, p.Process(source))
	assert.False(t, p.Process(source))

	close(resolver.release)
	p.Wait()

	// One pipeline ran, not two.
	assert.Len(t, resolver.calls(), 1)
}

func TestProcessRejects(t *testing.T) {
	dir := t.TempDir()
	destDir := filepath.Join(dir, "Books")
	require.NoError(t, os.MkdirAll(destDir, 0755))
	organized := dropFile(t, destDir, "Already - Done.pdf")
	unknown := dropFile(t, dir, "notes.txt")

	p := New(testRegistry(&fakeDocument{}, nil), &fakeResolver{}, tracker.New(), destDir)

	assert.False(t, p.Process(organized), "files already in the destination directory are skipped")
	assert.False(t, p.Process(unknown), "unregistered extensions are skipped")
}

func TestProcessNoIdentifierFails(t *testing.T) {
	dir := t.TempDir()
	source := dropFile(t, dir, "blank.pdf")

	store := tracker.New()
	p := New(testRegistry(&fakeDocument{}, nil), &fakeResolver{}, store, filepath.Join(dir, "Books"))

	require.True(t, p.Process(source))
	p.Wait()

	file, ok := store.Get(source)
	require.True(t, ok)
	assert.Equal(t, tracker.StatusFailed, file.Status)
	assert.Equal(t, "no identifier found", file.Error)

	// The file stays put for manual recovery.
	_, err := os.Stat(source)
	require.NoError(t, err)
}

func TestProcessNoCatalogResultFails(t *testing.T) {
	dir := t.TempDir()
	source := dropFile(t, dir, "obscure.pdf")

	doc := &fakeDocument{fields: []mediafile.Field{{Key: "Title", Value: "Very Obscure"}}}
	store := tracker.New()
	p := New(testRegistry(doc, nil), &fakeResolver{}, store, filepath.Join(dir, "Books"))

	require.True(t, p.Process(source))
	p.Wait()

	file, _ := store.Get(source)
	assert.Equal(t, tracker.StatusFailed, file.Status)
	assert.Equal(t, "no catalog result", file.Error)
}

func TestResolveManually(t *testing.T) {
	dir := t.TempDir()
	destDir := filepath.Join(dir, "Books")
	source := dropFile(t, dir, "unknown.pdf")

	doc := &fakeDocument{}
	resolver := &fakeResolver{}
	store := tracker.New()
	p := New(testRegistry(doc, nil), resolver, store, destDir)

	// First pass fails: nothing to extract.
	require.True(t, p.Process(source))
	p.Wait()
	file, _ := store.Get(source)
	require.Equal(t, tracker.StatusFailed, file.Status)

	resolver.result = &catalog.Result{
		DisplayName: "Recovered - Author",
		Metadata:    mediafile.Metadata{Title: "Recovered", Authors: []string{"Author"}},
	}
	err := p.ResolveManually(context.Background(), source, identify.KindISBN, "978-0-306-40615-7")
	require.NoError(t, err)
	p.Wait()

	calls := resolver.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, identify.KindISBN, calls[0].Kind)
	assert.Equal(t, "9780306406157", calls[0].Value)

	file, _ = store.Get(source)
	assert.Equal(t, tracker.StatusProcessed, file.Status)
	assert.Equal(t, "Recovered - Author.pdf", file.ResolvedName)
	_, statErr := os.Stat(filepath.Join(destDir, "Recovered - Author.pdf"))
	require.NoError(t, statErr)
}

func TestResolveManuallyValidation(t *testing.T) {
	dir := t.TempDir()
	source := dropFile(t, dir, "a.pdf")

	store := tracker.New()
	p := New(testRegistry(&fakeDocument{}, nil), &fakeResolver{}, store, filepath.Join(dir, "Books"))

	ctx := context.Background()

	err := p.ResolveManually(ctx, source, identify.KindISBN, "9780306406157")
	assert.ErrorIs(t, err, ErrNotTracked)

	require.True(t, p.Process(source))
	p.Wait()

	err = p.ResolveManually(ctx, source, identify.KindISBN, "0306406153")
	assert.ErrorIs(t, err, ErrInvalidISBN)

	err = p.ResolveManually(ctx, source, identify.KindTitle, "   ")
	assert.ErrorIs(t, err, ErrEmptyIdentifier)
}

func TestResolveManuallyRejectsNonFailed(t *testing.T) {
	dir := t.TempDir()
	source := dropFile(t, dir, "fine.pdf")

	doc := &fakeDocument{fields: []mediafile.Field{{Key: "Title", Value: "Fine Book"}}}
	resolver := &fakeResolver{result: &catalog.Result{
		DisplayName: "Fine Book - A",
		Metadata:    mediafile.Metadata{Title: "Fine Book"},
	}}
	store := tracker.New()
	p := New(testRegistry(doc, nil), resolver, store, filepath.Join(dir, "Books"))

	require.True(t, p.Process(source))
	p.Wait()

	err := p.ResolveManually(context.Background(), source, identify.KindISBN, "9780306406157")
	assert.ErrorIs(t, err, ErrNotFailed)
}
