package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
)

type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// QdrantStore is a minimal REST client for Qdrant.
type QdrantStore struct {
	config QdrantConfig
	client *http.Client
}

func NewQdrantWithConfig(config QdrantConfig) (*QdrantStore, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: qdrant url is empty", types.ErrInvalidInput)
	}
	if _, err := url.Parse(config.URL); err != nil {
		return nil, fmt.Errorf("%w: qdrant url: %v", types.ErrInvalidInput, err)
	}
	config.URL = strings.TrimRight(config.URL, "/")
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	return &QdrantStore{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

type qdrantPoint struct {
	ID      int64          `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload"`
	Score   float64        `json:"score,omitempty"`
}

func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(name), nil, nil)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dim int, metric types.Metric) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", types.ErrInvalidInput, dim)
	}
	if err := checkMetric(metric); err != nil {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	status, err := s.do(ctx, http.MethodPut, s.collectionURL(name), body, nil)
	if status == http.StatusConflict {
		return fmt.Errorf("collection %s: %w", name, types.ErrAlreadyExists)
	}
	return err
}

// Upsert waits for Qdrant to apply the write before returning.
func (s *QdrantStore) Upsert(ctx context.Context, name string, vectors []models.StoredVector) error {
	points := make([]qdrantPoint, len(vectors))
	for i, v := range vectors {
		points[i] = qdrantPoint{
			ID:     v.ID,
			Vector: v.Embedding,
			Payload: map[string]any{
				"page": v.Payload.Page,
				"text": v.Payload.Text,
			},
		}
	}
	status, err := s.do(ctx, http.MethodPut, s.collectionURL(name)+"/points?wait=true", map[string]any{"points": points}, nil)
	if status == http.StatusNotFound {
		return fmt.Errorf("collection %s: %w", name, types.ErrCollectionNotFound)
	}
	return err
}

func (s *QdrantStore) Search(ctx context.Context, name string, vector []float32, k int) ([]models.RetrievalHit, error) {
	if k <= 0 {
		return []models.RetrievalHit{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL(name)+"/points/search", req, &resp)
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("collection %s: %w", name, types.ErrCollectionNotFound)
	}
	if err != nil {
		return nil, err
	}

	hits := make([]models.RetrievalHit, 0, len(resp.Result))
	for _, p := range resp.Result {
		hit := models.RetrievalHit{ID: p.ID, Score: p.Score}
		if v, ok := p.Payload["page"].(float64); ok {
			hit.Page = int(v)
		}
		if v, ok := p.Payload["text"].(string); ok {
			hit.Text = v
		}
		hits = append(hits, hit)
	}
	SortHits(hits)
	return hits, nil
}

func (s *QdrantStore) DropCollection(ctx context.Context, name string) error {
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(name), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

func (s *QdrantStore) Close() {
	s.client.CloseIdleConnections()
}

func (s *QdrantStore) collectionURL(name string) string {
	return s.config.URL + "/collections/" + url.PathEscape(name)
}

// do sends a JSON request and decodes the response into out when given.
// The status code is returned alongside any error so callers can map 404s.
func (s *QdrantStore) do(ctx context.Context, method, endpoint string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.config.APIKey != "" {
		req.Header.Set("api-key", s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, endpoint, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
