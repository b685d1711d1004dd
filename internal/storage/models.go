package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Backend field names. Filters and payloads use these names on every store.
const (
	FieldID             = "id"
	FieldDocumentID     = "document_id"
	FieldText           = "text"
	FieldContextID      = "context_id"
	FieldTitle          = "title"
	FieldTags           = "tags"
	FieldCategory       = "category"
	FieldSourcePath     = "source_path"
	FieldFileName       = "file_name"
	FieldExtension      = "extension"
	FieldLastModified   = "last_modified"
	FieldLastModifiedAt = "last_modified_at"
	FieldChunkIndex     = "chunk_index"
	FieldChunkCount     = "chunk_count"
	FieldPlaceholder    = "embedding_placeholder"
)

// TagSeparator joins tags into the single string stored in the tags field.
const TagSeparator = ","

// DefaultCollection is the Qdrant collection used when none is configured.
const DefaultCollection = "context_chunks"

// VectorName is the named vector holding chunk embeddings.
const VectorName = "content"

// Mode selects which backend call a search issues.
type Mode string

const (
	ModeKeyword Mode = "keyword"
	ModeVector  Mode = "vector"
	ModeHybrid  Mode = "hybrid"
)

// ParseMode validates a mode name. An empty name means hybrid.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeHybrid, nil
	case ModeKeyword, ModeVector, ModeHybrid:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// IndexDocument is one chunk as persisted to the backend.
type IndexDocument struct {
	ID           string // UUID derived from DocumentID and ChunkIndex
	DocumentID   string
	Text         string
	Vector       []float32
	ContextID    string
	Title        string
	Tags         []string
	Category     string
	SourcePath   string
	FileName     string
	Extension    string
	LastModified time.Time
	ChunkIndex   int
	ChunkCount   int
	Placeholder  bool // Vector is a zero stand-in for a failed embedding
}

// ChunkID derives the point ID for a chunk. The same document and ordinal
// always map to the same ID, so re-ingestion overwrites.
func ChunkID(documentID string, ordinal int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(documentID+"#"+strconv.Itoa(ordinal))).String()
}

// Fields returns the flat field map stored alongside the vector.
func (d *IndexDocument) Fields() map[string]any {
	return map[string]any{
		FieldID:             d.ID,
		FieldDocumentID:     d.DocumentID,
		FieldText:           d.Text,
		FieldContextID:      d.ContextID,
		FieldTitle:          d.Title,
		FieldTags:           strings.Join(d.Tags, TagSeparator),
		FieldCategory:       d.Category,
		FieldSourcePath:     d.SourcePath,
		FieldFileName:       d.FileName,
		FieldExtension:      d.Extension,
		FieldLastModified:   d.LastModified.Unix(),
		FieldLastModifiedAt: d.LastModified.UTC().Format(time.RFC3339),
		FieldChunkIndex:     int64(d.ChunkIndex),
		FieldChunkCount:     int64(d.ChunkCount),
		FieldPlaceholder:    d.Placeholder,
	}
}

// Record returns the normalized search record for d with the given score.
func (d *IndexDocument) Record(score float64) Record {
	return Record{
		ID:           d.ID,
		DocumentID:   d.DocumentID,
		Text:         d.Text,
		Score:        score,
		ContextID:    d.ContextID,
		Title:        d.Title,
		Tags:         append([]string(nil), d.Tags...),
		Category:     d.Category,
		SourcePath:   d.SourcePath,
		FileName:     d.FileName,
		Extension:    d.Extension,
		LastModified: d.LastModified.UTC(),
		ChunkIndex:   d.ChunkIndex,
		ChunkCount:   d.ChunkCount,
		Placeholder:  d.Placeholder,
	}
}

// Record is a search hit normalized across backends.
type Record struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	Text         string    `json:"text"`
	Score        float64   `json:"score"`
	ContextID    string    `json:"context_id"`
	Title        string    `json:"title"`
	Tags         []string  `json:"tags"`
	Category     string    `json:"category"`
	SourcePath   string    `json:"source_path"`
	FileName     string    `json:"file_name"`
	Extension    string    `json:"extension"`
	LastModified time.Time `json:"last_modified"`
	ChunkIndex   int       `json:"chunk_index"`
	ChunkCount   int       `json:"chunk_count"`
	Placeholder  bool      `json:"embedding_placeholder,omitempty"`
}

// Fields returns r in the same flat shape as IndexDocument.Fields, for
// evaluating filters that a backend could not apply itself.
func (r *Record) Fields() map[string]any {
	return map[string]any{
		FieldID:             r.ID,
		FieldDocumentID:     r.DocumentID,
		FieldText:           r.Text,
		FieldContextID:      r.ContextID,
		FieldTitle:          r.Title,
		FieldTags:           strings.Join(r.Tags, TagSeparator),
		FieldCategory:       r.Category,
		FieldSourcePath:     r.SourcePath,
		FieldFileName:       r.FileName,
		FieldExtension:      r.Extension,
		FieldLastModified:   r.LastModified.Unix(),
		FieldLastModifiedAt: r.LastModified.UTC().Format(time.RFC3339),
		FieldChunkIndex:     int64(r.ChunkIndex),
		FieldChunkCount:     int64(r.ChunkCount),
		FieldPlaceholder:    r.Placeholder,
	}
}

// SplitTags reverses the tags encoding.
func SplitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, TagSeparator)
}

// FacetCount is one distinct field value and how many chunks carry it.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
