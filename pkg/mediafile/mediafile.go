package mediafile

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	FileTypePDF  = "pdf"
	FileTypeEPUB = "epub"
)

// Field is a single metadata key/value pair read from a file. Fields are kept
// as an ordered slice rather than a map so candidate scanning is
// deterministic.
type Field struct {
	Key   string
	Value string
}

// Document is the capability a format adapter exposes to the identifier
// extractor: ordered metadata fields and a bounded sequence of text blocks
// (pages for PDF, content documents for EPUB).
type Document interface {
	Fields() []Field
	TextBlocks(max int) ([]string, error)
	Close() error
}

// Metadata is the resolved metadata bundle written back into a file after a
// successful catalog lookup. Extra carries through response fields that have
// no named slot.
type Metadata struct {
	Title      string
	Authors    []string
	Categories []string
	Extra      map[string]string
}

// DisplayName renders the bundle as "Title - Author, Author".
func (m Metadata) DisplayName() string {
	authors := m.Authors
	if len(authors) == 0 {
		authors = []string{"Unknown Author"}
	}
	return fmt.Sprintf("%s - %s", m.Title, strings.Join(authors, ", "))
}

// Format bundles the open and write-back capabilities for one container type.
type Format struct {
	// Extension including the dot, e.g. ".pdf".
	Extension string
	// MimeTypes that a file with this extension is allowed to sniff as.
	MimeTypes []string
	// Open parses the file and exposes it as a Document.
	Open func(path string) (Document, error)
	// WriteMetadata rewrites the file's title/author/subject fields. May be a
	// no-op for formats without write-back support.
	WriteMetadata func(path string, meta Metadata) error
}

// Registry maps file extensions to format adapters.
type Registry struct {
	formats map[string]Format
}

// NewRegistry builds a registry from the given formats.
func NewRegistry(formats ...Format) *Registry {
	r := &Registry{formats: map[string]Format{}}
	for _, f := range formats {
		r.formats[f.Extension] = f
	}
	return r
}

// ForPath returns the format registered for the path's extension.
func (r *Registry) ForPath(path string) (Format, bool) {
	f, ok := r.formats[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// Extensions returns the registered extensions.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.formats))
	for ext := range r.formats {
		exts = append(exts, ext)
	}
	return exts
}

// Open opens the path with its registered format.
func (r *Registry) Open(path string) (Document, error) {
	f, ok := r.ForPath(path)
	if !ok {
		return nil, errors.Errorf("no format registered for %s", filepath.Ext(path))
	}
	return f.Open(path)
}

// WriteMetadata writes resolved metadata back with the registered format.
func (r *Registry) WriteMetadata(path string, meta Metadata) error {
	f, ok := r.ForPath(path)
	if !ok {
		return errors.Errorf("no format registered for %s", filepath.Ext(path))
	}
	if f.WriteMetadata == nil {
		return nil
	}
	return f.WriteMetadata(path, meta)
}
