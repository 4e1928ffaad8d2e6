// Package transformer provides the raw transformer backend for T models.
//
// The model is served without a pooling head: the TEI /embed_all route returns
// one hidden-state vector per token and the client mean-pools them into a
// single text vector.
package transformer

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

// Client mean-pools token embeddings returned by TEI.
type Client struct {
	client     *http.Client
	apiKey     string
	model      string
	baseURL    string
	normalize  bool
	dimensions int
}

// Config contains configuration for the raw transformer backend.
type Config struct {
	// APIKey is an optional bearer token.
	APIKey string

	// Model is the model served by the instance (required).
	Model string

	// BaseURL is the TEI base URL (default: "http://localhost:8080").
	BaseURL string

	// Normalize L2-normalizes pooled vectors.
	Normalize bool

	// HTTPClient is a custom HTTP client (uses default if nil).
	HTTPClient *http.Client
}

// NewClient creates a new raw transformer client.
//
// Args:
//   - cfg: TEI configuration; Model is required
//
// Returns:
//   - *Client: client pooling token states into text vectors
//   - error: returned if the model name is missing
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

// Embed converts a single text string into a vector embedding.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts and mean-pools the token states of each one.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	jsonData, err := json.Marshal(map[string]interface{}{
		"inputs":   texts,
		"truncate": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/embed_all", c.baseURL)
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
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	// texts x tokens x hidden
	var states [][][]float64
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(states) != len(texts) {
		return nil, fmt.Errorf("embedding generation failed: unexpected number of results from TEI (got %d, expected %d)", len(states), len(texts))
	}

	embeddings := make([][]float64, len(states))
	for i, tokens := range states {
		if len(tokens) == 0 {
			return nil, fmt.Errorf("embedding generation failed: no token states for input %d", i)
		}
		v := embedder.MeanPool(tokens)
		if c.normalize {
			embedder.Normalize(v)
		}
		embeddings[i] = v
	}
	if c.dimensions == 0 {
		c.dimensions = len(embeddings[0])
	}

	return embeddings, nil
}

// Dimensions returns the hidden size observed so far.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op.
func (c *Client) Close() error {
	return nil
}
