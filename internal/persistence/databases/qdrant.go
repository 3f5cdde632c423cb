package databases

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
)

// payloadIDField stores the caller-supplied memory id in the point
// payload, since Qdrant point ids must be UUIDs or positive integers.
const payloadIDField = "_original_id"

// QdrantStore wraps the long_term_memory collection over Qdrant's gRPC
// API (default port 6334).
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStore connects to cfg.URL and ensures the configured
// collection exists with the configured dimensionality and distance
// metric. An API key can be supplied as a query parameter on URL:
// "http://host:6334?api_key=...".
func NewQdrantStore(ctx context.Context, cfg config.VectorStoreConfig) (*QdrantStore, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant store: collection name is required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("qdrant store: parse url: %w", err)
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
		return nil, fmt.Errorf("qdrant store: invalid port: %w", err)
	}
	qcfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		qcfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		qcfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant store: create client: %w", err)
	}
	s := &QdrantStore{client: client, collection: cfg.Collection, dimension: cfg.Dimensions}
	if err := s.ensureCollection(ctx, strings.ToLower(strings.TrimSpace(cfg.Distance))); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant store: ensure collection: %w", err)
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, metric string) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if s.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	var distance qdrant.Distance
	switch metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default: // cosine
		distance = qdrant.Distance_Cosine
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: distance,
		}),
	})
}

// pointIDFor maps an arbitrary caller id onto a Qdrant-legal point id: a
// real UUID is used as-is, anything else is deterministically rehashed
// into one via uuid.NewSHA1 so repeated calls with the same id always
// address the same point.
func pointIDFor(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (s *QdrantStore) upsertPoint(ctx context.Context, id string, vector []float32, text string, metadata map[string]string) error {
	uuidStr := pointIDFor(id)
	payloadMap := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		payloadMap[k] = v
	}
	payloadMap["content"] = text
	if uuidStr != id {
		payloadMap[payloadIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	points := []*qdrant.PointStruct{{
		Id:      qdrant.NewIDUUID(uuidStr),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: qdrant.NewValueMap(payloadMap),
	}}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	return err
}

// Upsert inserts a new long-term memory, used by the decision pipeline's
// ADD outcome.
func (s *QdrantStore) Upsert(ctx context.Context, id string, vector []float32, text string, metadata map[string]string) error {
	return s.upsertPoint(ctx, id, vector, text, metadata)
}

// UpdateVector replaces an existing memory's embedding and text in
// place, used by the decision pipeline's UPDATE outcome. Qdrant upserts
// are idempotent on point id, so this is the same call as Upsert; the
// distinct method name documents the decision-pipeline intent at the
// call site.
func (s *QdrantStore) UpdateVector(ctx context.Context, id string, vector []float32, text string, metadata map[string]string) error {
	return s.upsertPoint(ctx, id, vector, text, metadata)
}

// Delete removes a memory, used by the decision pipeline's DELETE
// outcome.
func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	uuidStr := pointIDFor(id)
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(uuidStr)),
	})
	return err
}

// SimilaritySearch returns the k nearest long-term memories to vector,
// optionally scoped by filter (e.g. conversation id).
func (s *QdrantStore) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]MemoryEntry, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	var queryFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for key, val := range filter {
			must = append(must, qdrant.NewMatch(key, val))
		}
		queryFilter = &qdrant.Filter{Must: must}
	}
	limit := uint64(k)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	results := make([]MemoryEntry, 0, len(hits))
	for _, hit := range hits {
		uuidStr := hit.Id.GetUuid()
		if uuidStr == "" {
			uuidStr = hit.Id.String()
		}
		metadata := make(map[string]string)
		var originalID, text string
		if hit.Payload != nil {
			for k, v := range hit.Payload {
				switch k {
				case payloadIDField:
					originalID = v.GetStringValue()
				case "content":
					text = v.GetStringValue()
				default:
					metadata[k] = v.GetStringValue()
				}
			}
		}
		id := originalID
		if id == "" {
			id = uuidStr
		}
		results = append(results, MemoryEntry{
			ID:       id,
			Text:     text,
			Score:    float64(hit.Score),
			Metadata: metadata,
		})
	}
	return results, nil
}

// Close releases the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
