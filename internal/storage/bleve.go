package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	bolt "go.etcd.io/bbolt"

	"github.com/mike-a-ellis/ctxindex/internal/filter"
)

// bleveOpenTimeout bounds how long opening an on-disk index waits for the
// lock held by another process.
var bleveOpenTimeout = 2 * time.Second

// BleveStore is the KeywordStore backed by a Bleve index.
type BleveStore struct {
	index bleve.Index
}

// NewBleveStore creates or opens a Bleve index at path. An empty path
// creates an in-memory index. Only one process can hold an on-disk index;
// a second open fails with ErrKeywordIndexLocked after bleveOpenTimeout.
// If the mapping changes, remove the index directory to force a full re-index.
func NewBleveStore(path string) (*BleveStore, error) {
	im := newIndexMapping()

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveStore{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.OpenUsing(path, map[string]interface{}{
			"bolt_timeout": bleveOpenTimeout.String(),
		})
		if errors.Is(openErr, bolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrKeywordIndexLocked, path)
		}
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveStore{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveStore{index: index}, nil
}

func newIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false

	// Standard analyzer (lowercase + tokenize, no stemming).
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(FieldText, text)
	docMapping.AddFieldMappingsAt(FieldTitle, text)

	keyword := bleve.NewKeywordFieldMapping()
	for _, f := range keywordFields {
		docMapping.AddFieldMappingsAt(f, keyword)
	}

	numeric := bleve.NewNumericFieldMapping()
	for _, f := range numericFields {
		docMapping.AddFieldMappingsAt(f, numeric)
	}

	docMapping.AddFieldMappingsAt(FieldPlaceholder, bleve.NewBooleanFieldMapping())

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

var keywordFields = []string{
	FieldID, FieldDocumentID, FieldContextID, FieldCategory, FieldTags,
	FieldSourcePath, FieldFileName, FieldExtension, FieldLastModifiedAt,
}

var numericFields = []string{FieldChunkIndex, FieldChunkCount, FieldLastModified}

// bleveDoc is the indexed shape. Tags are a list so each tag is a term.
func bleveDoc(d *IndexDocument) map[string]any {
	tags := make([]any, len(d.Tags))
	for i, t := range d.Tags {
		tags[i] = t
	}
	return map[string]any{
		FieldID:             d.ID,
		FieldDocumentID:     d.DocumentID,
		FieldText:           d.Text,
		FieldTitle:          d.Title,
		FieldContextID:      d.ContextID,
		FieldCategory:       d.Category,
		FieldTags:           tags,
		FieldSourcePath:     d.SourcePath,
		FieldFileName:       d.FileName,
		FieldExtension:      d.Extension,
		FieldChunkIndex:     float64(d.ChunkIndex),
		FieldChunkCount:     float64(d.ChunkCount),
		FieldLastModified:   float64(d.LastModified.Unix()),
		FieldLastModifiedAt: d.LastModified.UTC().Format(time.RFC3339),
		FieldPlaceholder:    d.Placeholder,
	}
}

// Upsert indexes docs in one batch keyed by chunk ID.
func (b *BleveStore) Upsert(_ context.Context, docs []IndexDocument) ([]error, error) {
	errs := make([]error, len(docs))
	batch := b.index.NewBatch()
	for i := range docs {
		if err := batch.Index(docs[i].ID, bleveDoc(&docs[i])); err != nil {
			errs[i] = fmt.Errorf("%w: %s: %v", ErrWrite, docs[i].ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return nil, fmt.Errorf("%w: bleve batch: %v", ErrWrite, err)
	}
	return errs, nil
}

// Delete removes chunks matching expr; nil removes all.
func (b *BleveStore) Delete(_ context.Context, expr filter.Expr) (int, error) {
	ids, err := b.matchingIDs(expr)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("bleve delete: %w", err)
	}
	return len(ids), nil
}

func (b *BleveStore) matchingIDs(expr filter.Expr) ([]string, error) {
	fq, residual := toBleveQuery(expr)
	var q blevequery.Query = bleve.NewMatchAllQuery()
	if fq != nil {
		q = fq
	}

	const page = 1000
	var ids []string
	for from := 0; ; from += page {
		req := bleve.NewSearchRequestOptions(q, page, from, false)
		if residual != nil {
			req.Fields = []string{"*"}
		}
		res, err := b.index.Search(req)
		if err != nil {
			return nil, fmt.Errorf("bleve search: %w", err)
		}
		for _, hit := range res.Hits {
			if residual != nil {
				rec := recordFromHit(hit.ID, hit.Score, hit.Fields)
				if !residual.Match(rec.Fields()) {
					continue
				}
			}
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < page {
			return ids, nil
		}
	}
}

// Search matches query against text and title. An empty query lists
// chunks matching the filter with a constant score.
func (b *BleveStore) Search(_ context.Context, queryText string, expr filter.Expr, topK int) ([]Record, error) {
	var q blevequery.Query
	if queryText == "" {
		q = bleve.NewMatchAllQuery()
	} else {
		text := bleve.NewMatchQuery(queryText)
		text.SetField(FieldText)
		title := bleve.NewMatchQuery(queryText)
		title.SetField(FieldTitle)
		q = bleve.NewDisjunctionQuery(text, title)
	}

	fq, residual := toBleveQuery(expr)
	if fq != nil {
		q = bleve.NewConjunctionQuery(q, fq)
	}
	size := topK
	if residual != nil {
		size = overfetch(topK)
	}

	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	req.Fields = []string{"*"}
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]Record, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, recordFromHit(hit.ID, hit.Score, hit.Fields))
	}
	return applyResidual(out, residual, topK), nil
}

// DocCount returns the total number of chunks in the index.
func (b *BleveStore) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveStore) Close() error {
	return b.index.Close()
}

func recordFromHit(id string, score float64, fields map[string]any) Record {
	str := func(k string) string {
		s, _ := fields[k].(string)
		return s
	}
	num := func(k string) float64 {
		f, _ := fields[k].(float64)
		return f
	}
	var tags []string
	switch v := fields[FieldTags].(type) {
	case string:
		tags = []string{v}
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	placeholder, _ := fields[FieldPlaceholder].(bool)
	return Record{
		ID:           id,
		DocumentID:   str(FieldDocumentID),
		Text:         str(FieldText),
		Score:        score,
		ContextID:    str(FieldContextID),
		Title:        str(FieldTitle),
		Tags:         tags,
		Category:     str(FieldCategory),
		SourcePath:   str(FieldSourcePath),
		FileName:     str(FieldFileName),
		Extension:    str(FieldExtension),
		LastModified: time.Unix(int64(num(FieldLastModified)), 0).UTC(),
		ChunkIndex:   int(num(FieldChunkIndex)),
		ChunkCount:   int(num(FieldChunkCount)),
		Placeholder:  placeholder,
	}
}
