package extract

import (
	"fmt"
	"time"

	"github.com/mike-a-ellis/ctxindex/internal/markdown"
)

// WarningKind classifies a non-fatal extraction problem.
type WarningKind string

const (
	// WarningMetadataParse means the header block was present but malformed.
	WarningMetadataParse WarningKind = "metadata_parse"
	// WarningExtractionFailed means extraction panicked and a minimal document was returned.
	WarningExtractionFailed WarningKind = "extraction_failed"
)

// Warning is attached to a Document when extraction degraded to defaults.
type Warning struct {
	Kind    WarningKind
	Path    string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Kind, w.Path, w.Message)
}

// Document is the result of reading one source file. It is not modified
// after Read returns.
type Document struct {
	ID           string // "doc:" + hash of the path relative to the content root
	ContextID    string // immediate parent directory name
	Title        string
	Tags         []string // sorted, lower-cased, always contains the context id
	Category     string   // empty when neither the header nor a classifier set one
	Summary      string
	Body         string // text with the header block removed
	LastModified time.Time
	SourcePath   string
	RelPath      string
	FileName     string
	Extension    string
	Size         int64
	Header       map[string]any
	Outline      []markdown.Heading
	Warnings     []Warning
}
