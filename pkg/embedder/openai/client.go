// Package openai provides the hosted-API backend for NV models.
//
// It talks to any OpenAI-compatible embeddings endpoint (NVIDIA NIM, OpenAI,
// vLLM) and implements the embedder.Provider interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/oceanbase/plmteb-go/pkg/embedder"
)

// DefaultBaseURL is the NVIDIA API catalog endpoint.
const DefaultBaseURL = "https://integrate.api.nvidia.com/v1"

var _ embedder.Provider = (*Client)(nil)

// Client is a hosted embeddings API client.
type Client struct {
	client     *openai.Client
	model      string
	dimensions int
	normalize  bool
}

// Config is the configuration for the hosted-API backend.
// APIKey: API key (required)
// Model: Model name as exposed by the endpoint (required)
// BaseURL: API base URL, defaults to DefaultBaseURL
// Dimensions: Vector dimensions if known in advance, otherwise learned from the first response
// Normalize: L2-normalize returned vectors
// HTTPClient: Custom HTTP client, if nil uses a client with a 120 second timeout
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
	Normalize  bool
	HTTPClient *http.Client
}

// NewClient creates a new hosted-API client.
//
// The model name is sent verbatim in every request, so any model served by
// an OpenAI-compatible endpoint can be used.
//
// Args:
//   - cfg: configuration containing APIKey, Model, BaseURL, etc.
//
// Returns:
//   - *Client: client instance
//   - error: returned if the API key or model is missing
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	httpClient := &http.Client{Timeout: 120 * time.Second}
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		httpClient = &c
	}
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = &modelTransport{model: cfg.Model, base: base}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = DefaultBaseURL
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = httpClient

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		normalize:  cfg.Normalize,
	}, nil
}

// Embed converts a single text to a vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple texts to vectors in one request.
//
// Results are ordered by the index reported by the API, which matches the
// order of texts.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	// Model is filled in by modelTransport.
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings %s: %w", c.model, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding generation failed: unexpected number of results (got %d, expected %d)", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([][]float64, len(texts))
	for i, d := range data {
		v := embedder.ToFloat64(d.Embedding)
		if c.normalize {
			embedder.Normalize(v)
		}
		embeddings[i] = v
	}
	if c.dimensions == 0 && len(embeddings[0]) > 0 {
		c.dimensions = len(embeddings[0])
	}

	return embeddings, nil
}

// Dimensions returns the vector dimensions.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (c *Client) Close() error {
	return nil
}
