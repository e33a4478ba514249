package pdf

import (
	"strings"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/responses"
	"github.com/klippa-app/go-pdfium/webassembly"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pkg/errors"
	"github.com/shishobooks/bookdrop/pkg/mediafile"
)

const instanceTimeout = 30 * time.Second

// metaTags are the info-dict keys surfaced as metadata fields, in scan order.
var metaTags = []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer"}

// Pool wraps a pdfium WebAssembly worker pool. One pool is shared by all
// per-file tasks; each open document checks out its own instance.
type Pool struct {
	pool pdfium.Pool
}

// NewPool starts the pdfium runtime with workers instances.
func NewPool(workers int) (*Pool, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  workers,
		MaxTotal: workers,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Pool{pool: pool}, nil
}

// Close shuts the pdfium runtime down.
func (p *Pool) Close() error {
	return errors.WithStack(p.pool.Close())
}

// Format returns the PDF adapter backed by this pool.
func (p *Pool) Format() mediafile.Format {
	return mediafile.Format{
		Extension:     ".pdf",
		MimeTypes:     []string{"application/pdf"},
		Open:          p.Open,
		WriteMetadata: WriteMetadata,
	}
}

type document struct {
	instance pdfium.Pdfium
	handle   *responses.OpenDocument
	fields   []mediafile.Field
}

// Open loads the PDF and reads its info dictionary up front.
func (p *Pool) Open(path string) (mediafile.Document, error) {
	instance, err := p.pool.GetInstance(instanceTimeout)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	handle, err := instance.OpenDocument(&requests.OpenDocument{FilePath: &path})
	if err != nil {
		instance.Close()
		return nil, errors.WithStack(err)
	}

	var fields []mediafile.Field
	for _, tag := range metaTags {
		meta, err := instance.FPDF_GetMetaText(&requests.FPDF_GetMetaText{
			Document: handle.Document,
			Tag:      tag,
		})
		if err != nil {
			continue
		}
		if meta.Value != "" {
			fields = append(fields, mediafile.Field{Key: tag, Value: meta.Value})
		}
	}

	return &document{instance: instance, handle: handle, fields: fields}, nil
}

func (d *document) Fields() []mediafile.Field {
	return d.fields
}

// TextBlocks extracts text page by page, up to max pages.
func (d *document) TextBlocks(max int) ([]string, error) {
	count, err := d.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: d.handle.Document,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	pages := count.PageCount
	if pages > max {
		pages = max
	}

	var blocks []string
	for i := 0; i < pages; i++ {
		text, err := d.instance.GetPageText(&requests.GetPageText{
			Page: requests.Page{
				ByIndex: &requests.PageByIndex{
					Document: d.handle.Document,
					Index:    i,
				},
			},
		})
		if err != nil {
			// A single unreadable page shouldn't abort the scan.
			continue
		}
		if text.Text != "" {
			blocks = append(blocks, text.Text)
		}
	}
	return blocks, nil
}

func (d *document) Close() error {
	_, err := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.handle.Document,
	})
	closeErr := d.instance.Close()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(closeErr)
}

// WriteMetadata rewrites the PDF's info dictionary in place with the resolved
// title, author, and categories.
func WriteMetadata(path string, meta mediafile.Metadata) error {
	properties := map[string]string{}
	if meta.Title != "" {
		properties["Title"] = meta.Title
	}
	if len(meta.Authors) > 0 {
		properties["Author"] = strings.Join(meta.Authors, ", ")
	}
	if len(meta.Categories) > 0 {
		properties["Subject"] = strings.Join(meta.Categories, ", ")
	}
	if len(properties) == 0 {
		return nil
	}
	return errors.WithStack(api.AddPropertiesFile(path, "", properties, nil))
}
