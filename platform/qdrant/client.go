// Package qdrant wraps the Qdrant gRPC client for a single collection.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// Client is bound to one Qdrant collection.
type Client struct {
	client     *qdrant.Client
	collection string
}

// Config configures the Qdrant client.
type Config struct {
	// URL is the server address, e.g. "https://example.qdrant.io:6334".
	URL        string
	APIKey     string
	Collection string
}

// Point is a search hit.
type Point struct {
	ID      string
	Score   float64
	Payload map[string]string
}

// NewClient creates a new Qdrant client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Client{client: c, collection: cfg.Collection}, nil
}

// EnsureCollection creates the collection with cosine distance if missing.
func (c *Client) EnsureCollection(ctx context.Context, size int) error {
	exists, err := c.client.CollectionExists(ctx, c.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection check failed: %w", err)
	}
	if exists {
		return nil
	}
	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(size),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection failed: %w", err)
	}
	return nil
}

// Search performs a vector similarity search in the configured collection.
func (c *Client) Search(ctx context.Context, vector []float32, limit int) ([]Point, error) {
	if limit <= 0 {
		limit = 5
	}
	l := uint64(limit)

	hits, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &l,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	points := make([]Point, 0, len(hits))
	for _, hit := range hits {
		p := Point{Score: float64(hit.Score), Payload: make(map[string]string, len(hit.Payload))}
		if hit.Id != nil {
			if id := hit.Id.GetUuid(); id != "" {
				p.ID = id
			} else {
				p.ID = strconv.FormatUint(hit.Id.GetNum(), 10)
			}
		}
		for k, v := range hit.Payload {
			p.Payload[k] = v.GetStringValue()
		}
		points = append(points, p)
	}
	return points, nil
}

// Upsert stores one point keyed by a UUID and waits for it to be indexed.
func (c *Client) Upsert(ctx context.Context, id string, vector []float32, payload map[string]any) error {
	wait := true
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}
