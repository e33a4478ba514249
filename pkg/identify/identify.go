package identify

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shishobooks/bookdrop/pkg/isbn"
	"github.com/shishobooks/bookdrop/pkg/mediafile"
)

// Kind tags what an Identifier holds.
type Kind string

const (
	KindISBN  Kind = "isbn"
	KindTitle Kind = "title"
)

// Identifier is the extraction result: a checksum-valid ISBN or a heuristic
// title, never both.
type Identifier struct {
	Kind  Kind
	Value string
}

// ErrNoIdentifier is returned when neither an ISBN nor a usable title can be
// found; processing of the file terminates in the failed state.
var ErrNoIdentifier = errors.New("no identifier found")

// textBlockWindow bounds how deep into the document body the ISBN scan goes.
const textBlockWindow = 10

// Title-line length bounds. Lines at or below the floor are usually page
// furniture; lines at or above the ceiling are body text. Heuristic, tuned
// against common front matter.
const (
	titleMinLen = 5
	titleMaxLen = 100
)

// Extract finds the file's identifier. ISBN candidates are collected from the
// metadata fields first, then from the first textBlockWindow text blocks; the
// scan stops at the first block that yields a checksum-valid candidate. When
// several valid ISBNs appear, the first one in scan order wins (metadata
// field order, then block order) so extraction is deterministic. Without a
// valid ISBN it falls back to the title heuristic.
func Extract(doc mediafile.Document) (Identifier, error) {
	fields := doc.Fields()

	var fieldText strings.Builder
	for _, f := range fields {
		fieldText.WriteString(f.Value)
		fieldText.WriteString("\n")
	}
	for _, candidate := range isbn.ExtractCandidates(fieldText.String()) {
		if isbn.IsValid(candidate) {
			return Identifier{Kind: KindISBN, Value: candidate}, nil
		}
	}

	blocks, err := doc.TextBlocks(textBlockWindow)
	if err != nil {
		return Identifier{}, errors.WithStack(err)
	}
	for _, block := range blocks {
		for _, candidate := range isbn.ExtractCandidates(block) {
			if isbn.IsValid(candidate) {
				return Identifier{Kind: KindISBN, Value: candidate}, nil
			}
		}
	}

	if title := fallbackTitle(fields, blocks); title != "" {
		return Identifier{Kind: KindTitle, Value: title}, nil
	}

	return Identifier{}, ErrNoIdentifier
}

// fallbackTitle prefers an explicit title metadata field; otherwise it scans
// the first text block for the first line whose length sits strictly between
// the heuristic bounds.
func fallbackTitle(fields []mediafile.Field, blocks []string) string {
	for _, f := range fields {
		if strings.EqualFold(f.Key, "title") && strings.TrimSpace(f.Value) != "" {
			return strings.TrimSpace(f.Value)
		}
	}

	if len(blocks) == 0 {
		return ""
	}
	for _, line := range strings.Split(blocks[0], "\n") {
		line = strings.TrimSpace(line)
		if len(line) > titleMinLen && len(line) < titleMaxLen {
			return line
		}
	}
	return ""
}
