// Package vectorindex wraps the Qdrant collection holding document chunks.
package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/pasokh-ai/pasokh/internal/embedding"
)

// Point is one chunk to index.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Hit is one scored candidate from the index.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Client talks to one multi-vector Qdrant collection. The collection carries
// a named vector field per supported dimension so deployments can swap
// embedding models without reindexing unrelated fields.
type Client struct {
	qdrant     *qdrant.Client
	collection string
}

// New connects to Qdrant over gRPC.
func New(host string, port int, collection string) (*Client, error) {
	c, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &Client{qdrant: c, collection: collection}, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.qdrant.Close()
}

func vectorField(dim int) string {
	return fmt.Sprintf("dim_%d", dim)
}

// EnsureCollection creates the collection with all named vector fields if it
// does not exist yet.
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.qdrant.CollectionExists(ctx, c.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	params := make(map[string]*qdrant.VectorParams, len(embedding.SupportedDimensions))
	for _, dim := range embedding.SupportedDimensions {
		params[vectorField(dim)] = &qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}
	}
	err = c.qdrant.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig:  qdrant.NewVectorsConfigMap(params),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", c.collection, err)
	}
	return nil
}

// Upsert writes chunks into the vector field matching their dimension.
func (c *Client) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &qdrant.PointStruct{
			Id: qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				vectorField(len(p.Vector)): qdrant.NewVector(p.Vector...),
			}),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}
	_, err := c.qdrant.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Search runs a filtered similarity query over the field matching the vector's
// dimension. Index failure propagates; retrieval cannot degrade without it.
func (c *Client) Search(ctx context.Context, vector []float32, filters map[string]string, scoreFloor float64, limit int) ([]Hit, error) {
	points, err := c.qdrant.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQuery(vector...),
		Using:          qdrant.PtrOf(vectorField(len(vector))),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(float32(scoreFloor)),
		Filter:         buildFilter(filters),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return toHits(points), nil
}

// HybridSearch combines vector similarity with keyword overlap between the
// query text and each candidate's text payload:
//
//	score = vectorWeight*similarity + keywordWeight*overlap
//
// Candidates are over-fetched so keyword-strong passages just under the floor
// cut are not lost to the vector ordering.
func (c *Client) HybridSearch(ctx context.Context, vector []float32, queryText string, limit int, vectorWeight, keywordWeight float64, scoreFloor float64, filters map[string]string) ([]Hit, error) {
	hits, err := c.Search(ctx, vector, filters, scoreFloor, limit*2)
	if err != nil {
		return nil, err
	}

	terms := splitTerms(queryText)
	for i := range hits {
		text, _ := hits[i].Payload["text"].(string)
		hits[i].Score = vectorWeight*hits[i].Score + keywordWeight*keywordOverlap(terms, text)
	}
	sortHitsByScore(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func buildFilter(filters map[string]string) *qdrant.Filter {
	if len(filters) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(filters))
	for key, value := range filters {
		must = append(must, qdrant.NewMatch(key, value))
	}
	return &qdrant.Filter{Must: must}
}

func toHits(points []*qdrant.ScoredPoint) []Hit {
	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, Hit{
			ID:      p.GetId().GetUuid(),
			Score:   float64(p.GetScore()),
			Payload: payloadToMap(p.GetPayload()),
		})
	}
	return hits
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		out[key] = valueToAny(value)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, 0, len(values))
		for _, item := range values {
			out = append(out, valueToAny(item))
		}
		return out
	default:
		return nil
	}
}

func splitTerms(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, term := range strings.Fields(strings.ToLower(text)) {
		if len([]rune(term)) < 2 {
			continue
		}
		terms[term] = struct{}{}
	}
	return terms
}

// keywordOverlap is the fraction of query terms present in the candidate text.
func keywordOverlap(terms map[string]struct{}, text string) float64 {
	if len(terms) == 0 || text == "" {
		return 0
	}
	lowered := strings.ToLower(text)
	matched := 0
	for term := range terms {
		if strings.Contains(lowered, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func sortHitsByScore(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}
