package epub

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shishobooks/bookdrop/pkg/htmlutil"
	"github.com/shishobooks/bookdrop/pkg/mediafile"
)

// Format returns the EPUB adapter. Metadata write-back for EPUB is a known
// gap: rewriting the OPF inside the archive is not implemented, so
// WriteMetadata is nil and the registry treats it as a no-op.
func Format() mediafile.Format {
	return mediafile.Format{
		Extension: ".epub",
		MimeTypes: []string{"application/epub+zip"},
		Open:      Open,
	}
}

type document struct {
	file   *os.File
	reader *zip.Reader
	opf    *OPF
}

// Open parses the EPUB's OPF and exposes the archive as a mediafile.Document.
func Open(path string) (mediafile.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	stats, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}

	zipReader, err := zip.NewReader(f, stats.Size())
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}

	var opf *OPF
	for _, file := range zipReader.File {
		if filepath.Ext(file.Name) == ".opf" {
			r, err := file.Open()
			if err != nil {
				f.Close()
				return nil, errors.WithStack(err)
			}
			opf, err = ParseOPF(file.Name, r)
			r.Close()
			if err != nil {
				f.Close()
				return nil, errors.WithStack(err)
			}
			break
		}
	}
	if opf == nil {
		f.Close()
		return nil, errors.New("no opf file found")
	}

	return &document{file: f, reader: zipReader, opf: opf}, nil
}

// Fields returns the OPF metadata in a fixed order: identifiers first so a
// declared ISBN wins candidate scanning, then title, creators, subjects,
// publisher, and description.
func (d *document) Fields() []mediafile.Field {
	var fields []mediafile.Field
	for _, id := range d.opf.Identifiers {
		value := id.Value
		if id.Scheme != "" {
			value = id.Scheme + " " + value
		}
		fields = append(fields, mediafile.Field{Key: "identifier", Value: value})
	}
	if d.opf.Title != "" {
		fields = append(fields, mediafile.Field{Key: "title", Value: d.opf.Title})
	}
	for _, creator := range d.opf.Creators {
		fields = append(fields, mediafile.Field{Key: "creator", Value: creator})
	}
	for _, subject := range d.opf.Subjects {
		fields = append(fields, mediafile.Field{Key: "subject", Value: subject})
	}
	if d.opf.Publisher != "" {
		fields = append(fields, mediafile.Field{Key: "publisher", Value: d.opf.Publisher})
	}
	if d.opf.Description != "" {
		fields = append(fields, mediafile.Field{Key: "description", Value: d.opf.Description})
	}
	return fields
}

// TextBlocks returns up to max content documents in spine order, stripped of
// markup. Archives without a usable spine fall back to the archive's own
// ordering of html/xhtml entries.
func (d *document) TextBlocks(max int) ([]string, error) {
	paths := d.opf.ContentPaths
	if len(paths) == 0 {
		for _, file := range d.reader.File {
			ext := strings.ToLower(filepath.Ext(file.Name))
			if ext == ".html" || ext == ".xhtml" || ext == ".htm" {
				paths = append(paths, file.Name)
			}
		}
	}

	byName := map[string]*zip.File{}
	for _, file := range d.reader.File {
		byName[file.Name] = file
	}

	var blocks []string
	for _, path := range paths {
		if len(blocks) >= max {
			break
		}
		file, ok := byName[path]
		if !ok {
			continue
		}
		r, err := file.Open()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		b, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if text := htmlutil.StripTags(string(b)); text != "" {
			blocks = append(blocks, text)
		}
	}
	return blocks, nil
}

func (d *document) Close() error {
	return errors.WithStack(d.file.Close())
}
