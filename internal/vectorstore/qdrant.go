package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the original opaque chunk id in the point payload,
// since Qdrant point ids must be UUIDs or unsigned integers.
const payloadIDField = "_original_id"

type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrant connects to a Qdrant instance (gRPC, default port 6334) and
// ensures the target collection exists with the requested dimension and
// distance metric.
func NewQdrant(dsn, collection string, dimension int, metric string) (VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("vectorstore: qdrant collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if key := parsed.Query().Get("api_key"); key != "" {
		cfg.APIKey = key
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create qdrant client: %w", err)
	}
	q := &qdrantStore{client: client, collection: collection, dimension: dimension, metric: strings.ToLower(strings.TrimSpace(metric))}
	if err := q.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("vectorstore: ensure collection: %w", err)
	}
	return q, nil
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("dimension must be > 0 to create a collection")
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	default:
		distance = qdrant.Distance_Cosine
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *qdrantStore) Upsert(ctx context.Context, records []Record) error {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		if q.dimension != 0 && len(r.Vector) != q.dimension {
			return ErrDimensionMismatch
		}
		payload := recordPayload(r)
		uuidStr := pointID(r.ID)
		if uuidStr != r.ID {
			payload[payloadIDField] = r.ID
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(r.Vector),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: points})
	return err
}

func recordPayload(r Record) map[string]any {
	return map[string]any{
		"codebase_id":  r.CodebaseID,
		"file_path":    r.FilePath,
		"line_start":   r.LineStart,
		"line_end":     r.LineEnd,
		"language":     r.Language,
		"chunk_type":   r.ChunkType,
		"name":         r.Name,
		"parent_class": r.ParentClass,
		"document":     r.Document,
		"dependencies": strings.Join(r.Dependencies, ","),
	}
}

func (q *qdrantStore) Query(ctx context.Context, vector []float32, k int, where Where) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	filter := qdrantFilter(where)
	limit := uint64(k)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          &limit,
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(results))
	for _, hit := range results {
		hits = append(hits, hitFromPayload(hit.Id, hit.Payload, float64(hit.Score)))
	}
	return hits, nil
}

func qdrantFilter(where Where) *qdrant.Filter {
	m := where.toMap()
	if len(m) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(m))
	for k, v := range m {
		must = append(must, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: must}
}

func hitFromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value, score float64) Hit {
	originalID := ""
	h := Hit{Score: score}
	for k, v := range payload {
		switch k {
		case payloadIDField:
			originalID = v.GetStringValue()
		case "codebase_id":
			h.CodebaseID = v.GetStringValue()
		case "file_path":
			h.FilePath = v.GetStringValue()
		case "line_start":
			h.LineStart = int(v.GetIntegerValue())
		case "line_end":
			h.LineEnd = int(v.GetIntegerValue())
		case "language":
			h.Language = v.GetStringValue()
		case "chunk_type":
			h.ChunkType = v.GetStringValue()
		case "name":
			h.Name = v.GetStringValue()
		case "parent_class":
			h.ParentClass = v.GetStringValue()
		case "document":
			h.Document = v.GetStringValue()
		case "dependencies":
			if raw := v.GetStringValue(); raw != "" {
				h.Dependencies = strings.Split(raw, ",")
			}
		}
	}
	h.ID = originalID
	if h.ID == "" && id != nil {
		h.ID = id.GetUuid()
	}
	return h
}

func (q *qdrantStore) DeleteByCodebase(ctx context.Context, codebaseID string) error {
	filter := qdrantFilter(Where{CodebaseID: codebaseID})
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	return err
}

func (q *qdrantStore) Count(ctx context.Context, where Where) (int, error) {
	filter := qdrantFilter(where)
	exact := true
	result, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, err
	}
	return int(result), nil
}
