package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	payloadPassageID = "passage_id"
	payloadContent   = "content"
)

// pointNamespace derives stable point UUIDs from passage IDs
var pointNamespace = uuid.MustParse("6f2d1c8e-4b7a-4f0e-9a51-3c2e8d7b1a90")

// QdrantStore implements Index using a single Qdrant collection
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// QdrantConfig holds configuration for the Qdrant store
type QdrantConfig struct {
	// URL should be in format "host:port" (e.g., "localhost:6334")
	URL        string
	APIKey     string
	Collection string
	Dimension  int
}

// NewQdrantStore creates a new Qdrant vector store client
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(cfg.URL)
	if err != nil {
		// If no port specified, assume default
		host = cfg.URL
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}, nil
}

// Close closes the Qdrant client connection
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the collection with cosine distance if it does not exist
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	if s.dimension <= 0 {
		return fmt.Errorf("cannot create collection %s without a vector dimension", s.collection)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Count returns the exact number of points in the collection
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

// Upsert inserts or updates passages in the collection
func (s *QdrantStore) Upsert(ctx context.Context, passages []Passage) error {
	if len(passages) == 0 {
		return nil
	}
	if err := checkDimensions(passages, s.dimension); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(passages))
	for i, p := range passages {
		payload := map[string]*qdrant.Value{
			payloadPassageID: qdrant.NewValueString(p.ID),
			payloadContent:   qdrant.NewValueString(p.Content),
		}
		for k, v := range p.Metadata {
			payload[k] = qdrant.NewValueString(v)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(p.ID)),
			Payload: payload,
			Vectors: qdrant.NewVectors(p.Embedding...),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// NearestNeighbors performs a cosine similarity query.
// Qdrant reports cosine similarity as the score, so distance is 1 - score.
func (s *QdrantStore) NearestNeighbors(ctx context.Context, vector []float32, n int) ([]Neighbor, error) {
	if n <= 0 {
		return nil, nil
	}

	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(n)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	neighbors := make([]Neighbor, 0, len(response))
	for _, point := range response {
		neighbor := Neighbor{
			ID:       point.Id.GetUuid(),
			Distance: 1 - point.Score,
			Metadata: make(map[string]string),
		}

		for k, v := range point.Payload {
			switch k {
			case payloadPassageID:
				neighbor.ID = v.GetStringValue()
			case payloadContent:
				neighbor.Content = v.GetStringValue()
			default:
				neighbor.Metadata[k] = v.GetStringValue()
			}
		}

		neighbors = append(neighbors, neighbor)
	}

	return neighbors, nil
}

// PointID maps a passage ID onto the UUID Qdrant requires
func PointID(passageID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(passageID)).String()
}

var _ Index = (*QdrantStore)(nil)
