package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/mike-a-ellis/ctxindex/internal/filter"
)

// QdrantConfig holds connection and schema settings for QdrantStore.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
}

// QdrantStore is the VectorStore backed by a Qdrant collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStore creates a Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, cfg.Dimension)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return s, nil
}

func newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// healthCheckWithRetry performs health check with exponential backoff.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Dimension returns the configured vector size.
func (s *QdrantStore) Dimension() int { return s.dimension }

// Collection returns the collection name.
func (s *QdrantStore) Collection() string { return s.collection }

// EnsureCollection creates the collection with its payload indexes if it
// does not exist. An existing collection whose vector size differs from the
// configured dimension is rejected with ErrDimensionMismatch.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return s.verifyDimension(ctx)
	}

	// Named vectors let placeholder chunks be stored without a vector.
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			VectorName: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}
	return nil
}

func (s *QdrantStore) verifyDimension(ctx context.Context) error {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to get collection: %w", err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParamsMap().GetMap()[VectorName]
	if params == nil {
		return fmt.Errorf("%w: collection %q has no %q vector", ErrCollectionNotFound, s.collection, VectorName)
	}
	if int(params.GetSize()) != s.dimension {
		return fmt.Errorf("%w: collection %q has %d dimensions, expected %d",
			ErrDimensionMismatch, s.collection, params.GetSize(), s.dimension)
	}
	return nil
}

// createPayloadIndexes indexes every filterable field. Tags are left
// unindexed so text matches on them are substring matches.
func (s *QdrantStore) createPayloadIndexes(ctx context.Context) error {
	indexes := map[string]qdrant.FieldType{
		FieldContextID:      qdrant.FieldType_FieldTypeKeyword,
		FieldCategory:       qdrant.FieldType_FieldTypeKeyword,
		FieldDocumentID:     qdrant.FieldType_FieldTypeKeyword,
		FieldSourcePath:     qdrant.FieldType_FieldTypeKeyword,
		FieldFileName:       qdrant.FieldType_FieldTypeKeyword,
		FieldExtension:      qdrant.FieldType_FieldTypeKeyword,
		FieldTitle:          qdrant.FieldType_FieldTypeKeyword,
		FieldLastModifiedAt: qdrant.FieldType_FieldTypeKeyword,
		FieldText:           qdrant.FieldType_FieldTypeText,
		FieldChunkIndex:     qdrant.FieldType_FieldTypeInteger,
		FieldLastModified:   qdrant.FieldType_FieldTypeInteger,
		FieldPlaceholder:    qdrant.FieldType_FieldTypeBool,
	}

	for field, fieldType := range indexes {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      fieldType.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// DropCollection deletes the collection and everything in it.
func (s *QdrantStore) DropCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (s *QdrantStore) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}, backoff.WithContext(newBackoff(), ctx))
}

// Upsert stores docs as points. Documents with a wrong-size vector are
// rejected individually. If the batch write fails after retries, each
// point is retried on its own so one bad point does not fail the rest.
func (s *QdrantStore) Upsert(ctx context.Context, docs []IndexDocument) ([]error, error) {
	errs := make([]error, len(docs))
	points := make([]*qdrant.PointStruct, 0, len(docs))
	pos := make([]int, 0, len(docs))

	for i := range docs {
		p, err := s.toPoint(&docs[i])
		if err != nil {
			errs[i] = err
			continue
		}
		points = append(points, p)
		pos = append(pos, i)
	}
	if len(points) == 0 {
		return errs, nil
	}

	if err := s.upsertWithRetry(ctx, points); err == nil {
		return errs, nil
	} else if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	for k, p := range points {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         []*qdrant.PointStruct{p},
		})
		if err != nil {
			errs[pos[k]] = fmt.Errorf("%w: %s: %v", ErrWrite, docs[pos[k]].ID, err)
		}
	}
	return errs, nil
}

func (s *QdrantStore) toPoint(d *IndexDocument) (*qdrant.PointStruct, error) {
	vectors := map[string]*qdrant.Vector{}
	if !d.Placeholder {
		if len(d.Vector) != s.dimension {
			return nil, fmt.Errorf("%w: %s: %w: has %d dimensions, expected %d",
				ErrWrite, d.ID, ErrDimensionMismatch, len(d.Vector), s.dimension)
		}
		vectors[VectorName] = qdrant.NewVector(d.Vector...)
	}
	payload, err := qdrant.TryValueMap(d.Fields())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: payload: %v", ErrWrite, d.ID, err)
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(d.ID),
		Vectors: qdrant.NewVectorsMap(vectors),
		Payload: payload,
	}, nil
}

// Delete removes points matching expr and returns how many were removed.
// A nil expr clears the collection by recreating it.
func (s *QdrantStore) Delete(ctx context.Context, expr filter.Expr) (int, error) {
	if expr == nil {
		return s.clearCollection(ctx)
	}

	qf, residual := toQdrantFilter(expr)
	if residual != nil {
		return s.deleteScrolled(ctx, qf, residual)
	}

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         qf,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(qf),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete points: %w", err)
	}
	return int(n), nil
}

// deleteScrolled handles filters with a residual part: matching IDs are
// collected by scrolling, then deleted by ID.
func (s *QdrantStore) deleteScrolled(ctx context.Context, qf *qdrant.Filter, residual filter.Expr) (int, error) {
	var ids []*qdrant.PointId
	err := s.scroll(ctx, qf, func(p *qdrant.RetrievedPoint) {
		rec := recordFromPayload(p.Id, p.Payload, 0)
		if residual.Match(rec.Fields()) {
			ids = append(ids, p.Id)
		}
	})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorIDs(ids),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete points: %w", err)
	}
	return len(ids), nil
}

// clearCollection deletes and recreates the collection.
func (s *QdrantStore) clearCollection(ctx context.Context) (int, error) {
	n, err := s.Count(ctx, nil)
	if err != nil {
		return 0, err
	}
	if err := s.DropCollection(ctx); err != nil {
		return 0, err
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

// scroll visits every point matching qf.
func (s *QdrantStore) scroll(ctx context.Context, qf *qdrant.Filter, visit func(*qdrant.RetrievedPoint)) error {
	var offset *qdrant.PointId
	batchSize := uint32(256)
	for {
		points, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         qf,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return fmt.Errorf("failed to scroll points: %w", err)
		}
		for _, p := range points {
			visit(p)
		}
		if next == nil || len(points) == 0 {
			return nil
		}
		offset = next
	}
}

// Search performs vector similarity search over the named vector. Parts of
// the filter Qdrant cannot express are applied to an over-fetched result.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, expr filter.Expr, topK int) ([]Record, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	qf, residual := toQdrantFilter(expr)
	limit := topK
	if residual != nil {
		limit = overfetch(topK)
	}

	vectorName := VectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Using:          &vectorName,
		Filter:         qf,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	records := make([]Record, 0, len(results))
	for _, r := range results {
		records = append(records, recordFromPayload(r.Id, r.Payload, float64(r.Score)))
	}
	return applyResidual(records, residual, topK), nil
}

// Facet counts distinct values of a keyword-indexed field.
func (s *QdrantStore) Facet(ctx context.Context, field string, expr filter.Expr, limit int) ([]FacetCount, error) {
	qf, residual := toQdrantFilter(expr)
	if residual != nil || field == FieldTags {
		return s.facetScrolled(ctx, field, qf, residual, limit)
	}

	req := &qdrant.FacetCounts{
		CollectionName: s.collection,
		Key:            field,
		Filter:         qf,
		Exact:          qdrant.PtrOf(true),
	}
	if limit > 0 {
		req.Limit = qdrant.PtrOf(uint64(limit))
	}
	hits, err := s.client.Facet(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to facet %s: %w", field, err)
	}

	out := make([]FacetCount, 0, len(hits))
	for _, h := range hits {
		v := h.GetValue().GetStringValue()
		if v == "" {
			v = fmt.Sprint(h.GetValue().GetIntegerValue())
		}
		out = append(out, FacetCount{Value: v, Count: int(h.GetCount())})
	}
	return out, nil
}

// facetScrolled counts values client-side for tags and residual filters.
func (s *QdrantStore) facetScrolled(ctx context.Context, field string, qf *qdrant.Filter, residual filter.Expr, limit int) ([]FacetCount, error) {
	counts := make(map[string]int)
	err := s.scroll(ctx, qf, func(p *qdrant.RetrievedPoint) {
		rec := recordFromPayload(p.Id, p.Payload, 0)
		fields := rec.Fields()
		if residual != nil && !residual.Match(fields) {
			return
		}
		if field == FieldTags {
			for _, t := range rec.Tags {
				counts[t]++
			}
			return
		}
		if v, ok := fields[field]; ok && fmt.Sprint(v) != "" {
			counts[fmt.Sprint(v)]++
		}
	})
	if err != nil {
		return nil, err
	}
	return facetList(counts, limit), nil
}

// Count returns the number of points matching expr.
func (s *QdrantStore) Count(ctx context.Context, expr filter.Expr) (int, error) {
	qf, residual := toQdrantFilter(expr)
	if residual != nil {
		n := 0
		err := s.scroll(ctx, qf, func(p *qdrant.RetrievedPoint) {
			rec := recordFromPayload(p.Id, p.Payload, 0)
			if residual.Match(rec.Fields()) {
				n++
			}
		})
		return n, err
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         qf,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

// recordFromPayload converts a Qdrant payload back into a Record.
func recordFromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value, score float64) Record {
	get := func(k string) *qdrant.Value { return payload[k] }
	return Record{
		ID:           id.GetUuid(),
		DocumentID:   get(FieldDocumentID).GetStringValue(),
		Text:         get(FieldText).GetStringValue(),
		Score:        score,
		ContextID:    get(FieldContextID).GetStringValue(),
		Title:        get(FieldTitle).GetStringValue(),
		Tags:         SplitTags(get(FieldTags).GetStringValue()),
		Category:     get(FieldCategory).GetStringValue(),
		SourcePath:   get(FieldSourcePath).GetStringValue(),
		FileName:     get(FieldFileName).GetStringValue(),
		Extension:    get(FieldExtension).GetStringValue(),
		LastModified: time.Unix(get(FieldLastModified).GetIntegerValue(), 0).UTC(),
		ChunkIndex:   int(get(FieldChunkIndex).GetIntegerValue()),
		ChunkCount:   int(get(FieldChunkCount).GetIntegerValue()),
		Placeholder:  get(FieldPlaceholder).GetBoolValue(),
	}
}
