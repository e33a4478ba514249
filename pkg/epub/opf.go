package epub

import (
	"encoding/xml"
	"io"
	"path/filepath"

	"github.com/pkg/errors"
)

// Package is the parsed representation of an EPUB's OPF descriptor. Only the
// metadata, manifest, and spine parts bookdrop cares about are mapped.
type Package struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	Metadata struct {
		Title   []string `xml:"title"`
		Creator []struct {
			Text string `xml:",chardata"`
			Role string `xml:"role,attr"`
		} `xml:"creator"`
		Subject     []string `xml:"subject"`
		Description string   `xml:"description"`
		Publisher   string   `xml:"publisher"`
		Identifier  []struct {
			Text   string `xml:",chardata"`
			ID     string `xml:"id,attr"`
			Scheme string `xml:"scheme,attr"`
		} `xml:"identifier"`
	} `xml:"metadata"`
	Manifest struct {
		Item []struct {
			ID        string `xml:"id,attr"`
			Href      string `xml:"href,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemref []struct {
			Idref string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// OPF is the lookup-friendly view of a parsed package.
type OPF struct {
	Title       string
	Creators    []string
	Subjects    []string
	Description string
	Publisher   string
	Identifiers []Identifier
	// ContentPaths lists the spine's content documents in reading order,
	// resolved relative to the archive root.
	ContentPaths []string
}

// Identifier is a dc:identifier entry with its scheme, if declared.
type Identifier struct {
	Scheme string
	Value  string
}

// ParseOPF decodes the OPF descriptor read from r. filename is the
// descriptor's path inside the archive; manifest hrefs are resolved against
// its directory.
func ParseOPF(filename string, r io.Reader) (*OPF, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	pkg := &Package{}
	err = xml.Unmarshal(b, pkg)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// All files are referenced from the location of the OPF file. If basePath
	// is `.` the OPF sits at the archive root and hrefs are used as-is.
	basePath := filepath.Dir(filename)
	if basePath == "." {
		basePath = ""
	} else {
		basePath += "/"
	}

	opf := &OPF{
		Description: pkg.Metadata.Description,
		Publisher:   pkg.Metadata.Publisher,
	}

	if len(pkg.Metadata.Title) > 0 {
		opf.Title = pkg.Metadata.Title[0]
	}
	for _, creator := range pkg.Metadata.Creator {
		// Creators without a role count as authors, matching how most EPUBs
		// in the wild are tagged.
		if creator.Role == "" || creator.Role == "aut" {
			opf.Creators = append(opf.Creators, creator.Text)
		}
	}
	opf.Subjects = append(opf.Subjects, pkg.Metadata.Subject...)
	for _, id := range pkg.Metadata.Identifier {
		opf.Identifiers = append(opf.Identifiers, Identifier{Scheme: id.Scheme, Value: id.Text})
	}

	// Resolve the spine's reading order into archive paths.
	hrefs := map[string]string{}
	for _, item := range pkg.Manifest.Item {
		hrefs[item.ID] = basePath + item.Href
	}
	for _, ref := range pkg.Spine.Itemref {
		if href, ok := hrefs[ref.Idref]; ok {
			opf.ContentPaths = append(opf.ContentPaths, href)
		}
	}

	return opf, nil
}
