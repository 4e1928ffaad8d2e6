// Package flag provides the flag-embedding backend for FE models.
//
// BGE-family models are served by a text-embeddings-inference (TEI) instance;
// this client calls its /embed route and implements the embedder.Provider
// interface.
package flag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oceanbase/plmteb-go/pkg/embedder"
)

// DefaultBaseURL is the address of a local TEI service.
const DefaultBaseURL = "http://localhost:8080"

var _ embedder.Provider = (*Client)(nil)

// Client implements embedder.Provider on top of the TEI /embed route.
type Client struct {
	// client issues the /embed requests.
	client *http.Client

	// apiKey is sent as a bearer token when set.
	apiKey string

	// model is only used for labeling; TEI serves one model per instance.
	model string

	// baseURL is the base URL of the TEI service.
	baseURL string

	// normalize asks TEI for unit-length vectors.
	normalize bool

	// dimensions is learned from the first response.
	dimensions int
}

// Config contains configuration for creating a flag-embedding client.
type Config struct {
	// APIKey is an optional bearer token.
	APIKey string

	// Model is the model name served by the instance (required).
	Model string

	// BaseURL is the TEI base URL (default: "http://localhost:8080").
	BaseURL string

	// Normalize requests L2-normalized vectors. BGE models expect it.
	Normalize bool

	// HTTPClient is a custom HTTP client (uses default if nil).
	HTTPClient *http.Client
}

// NewClient creates a new flag-embedding client.
//
// Returns:
//   - *Client: client for a TEI instance serving a BGE-style model
//   - error: Error if the model name is missing
func NewClient(cfg *Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 120 * time.Second,
		}
	}

	return &Client{
		client:    client,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		baseURL:   baseURL,
		normalize: cfg.Normalize,
	}, nil
}

// Embed embeds one text through EmbedBatch.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple text strings into vector embeddings in a single request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	reqBody := map[string]interface{}{
		"inputs":    texts,
		"normalize": c.normalize,
		"truncate":  true,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/embed", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("TEI request failed with status %d: %s", resp.StatusCode, string(body))
	}

	// TEI answers with a bare array of vectors.
	var embeddings [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding generation failed: unexpected number of results from TEI (got %d, expected %d)", len(embeddings), len(texts))
	}
	if c.dimensions == 0 && len(embeddings[0]) > 0 {
		c.dimensions = len(embeddings[0])
	}

	return embeddings, nil
}

// Dimensions returns the vector dimensions observed so far.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op; TEI keeps the model loaded on its side.
func (c *Client) Close() error {
	return nil
}
