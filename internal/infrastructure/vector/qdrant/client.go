package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/resilience"
)

// Client is a Qdrant-backed chunk corpus. Qdrant reports cosine similarity,
// which is converted to cosine distance as 1 - score.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL, collection string) *Client {
	return NewWithOptions(baseURL, collection, Options{})
}

func NewWithOptions(baseURL, collection string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) WriteBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	size := len(chunks[0].Embedding)
	for _, ch := range chunks {
		if len(ch.Embedding) != size || size == 0 {
			return fmt.Errorf("chunk %s/%d: inconsistent embedding size", ch.SourceID, ch.ChunkNumber)
		}
	}
	if err := c.ensureCollection(ctx, size); err != nil {
		return err
	}

	points := make([]point, 0, len(chunks))
	for _, ch := range chunks {
		points = append(points, point{
			ID:     ch.ID,
			Vector: ch.Embedding,
			Payload: map[string]any{
				"source_id":    ch.SourceID,
				"source_name":  ch.SourceName,
				"level":        string(ch.Level),
				"topic":        ch.Topic,
				"text":         ch.Text,
				"chunk_number": ch.ChunkNumber,
				"download_url": ch.DownloadURL,
				"created_at":   ch.CreatedAt.UTC().Format(time.RFC3339Nano),
			},
		})
	}
	return c.do(ctx, http.MethodPut, c.pointsPath("?wait=true"), map[string]any{"points": points}, nil, "upsert")
}

func (c *Client) DeleteBySource(ctx context.Context, sourceID string) (int, error) {
	n, err := c.CountBySource(ctx, sourceID)
	if err != nil || n == 0 {
		return 0, err
	}
	body := map[string]any{"filter": sourceFilter(sourceID)}
	if err := c.do(ctx, http.MethodPost, c.pointsPath("/delete?wait=true"), body, nil, "delete"); err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// DeleteBatch scrolls one page of point ids and deletes them.
func (c *Client) DeleteBatch(ctx context.Context, limit int) (int, error) {
	var scroll struct {
		Result struct {
			Points []struct {
				ID any `json:"id"`
			} `json:"points"`
		} `json:"result"`
	}
	req := map[string]any{"limit": limit, "with_payload": false, "with_vector": false}
	if err := c.do(ctx, http.MethodPost, c.pointsPath("/scroll"), req, &scroll, "scroll"); err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if len(scroll.Result.Points) == 0 {
		return 0, nil
	}

	ids := make([]any, 0, len(scroll.Result.Points))
	for _, p := range scroll.Result.Points {
		ids = append(ids, p.ID)
	}
	if err := c.do(ctx, http.MethodPost, c.pointsPath("/delete?wait=true"), map[string]any{"points": ids}, nil, "delete"); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (c *Client) CountBySource(ctx context.Context, sourceID string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	body := map[string]any{"filter": sourceFilter(sourceID), "exact": true}
	if err := c.do(ctx, http.MethodPost, c.pointsPath("/count"), body, &resp, "count"); err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return resp.Result.Count, nil
}

func (c *Client) FindNearest(ctx context.Context, queryVector []float32, limit int) ([]domain.SearchResult, error) {
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	body := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if err := c.do(ctx, http.MethodPost, c.pointsPath("/search"), body, &resp, "search"); err != nil {
		if isNotFound(err) {
			return []domain.SearchResult{}, nil
		}
		return nil, err
	}

	out := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.SearchResult{
			SourceID:    getStringPayload(r.Payload, "source_id"),
			SourceName:  getStringPayload(r.Payload, "source_name"),
			Level:       domain.SourceLevel(getStringPayload(r.Payload, "level")),
			Topic:       getStringPayload(r.Payload, "topic"),
			Text:        getStringPayload(r.Payload, "text"),
			ChunkNumber: getIntPayload(r.Payload, "chunk_number"),
			DownloadURL: getStringPayload(r.Payload, "download_url"),
			Distance:    1 - r.Score,
		})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.do(ctx, http.MethodPut, "/collections/"+c.collection, reqBody, nil, "ensure collection")
	// 409 when the collection already exists (depends on version/config).
	var statusErr *resilience.HTTPStatusError
	if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return err
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any, operation string) error {
	_, err := resilience.Call(ctx, c.executor, "qdrant."+operation, func(callCtx context.Context) (struct{}, error) {
		return struct{}{}, c.roundTrip(callCtx, method, path, payload, out, operation)
	}, resilience.ClassifyHTTP)
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("qdrant", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) pointsPath(suffix string) string {
	return "/collections/" + c.collection + "/points" + suffix
}

func sourceFilter(sourceID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "source_id", "match": map[string]any{"value": sourceID}},
		},
	}
}

func isNotFound(err error) bool {
	var statusErr *resilience.HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
