// Package ollama provides the sentence-embedding backend for ST models.
//
// Sentence-embedding models are served by an Ollama instance through its
// /api/embed endpoint. This package implements the embedder.Provider interface.
package ollama

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

// DefaultBaseURL is the address of a local Ollama service.
const DefaultBaseURL = "http://localhost:11434"

var (
	_ embedder.Provider = (*Client)(nil)
	_ embedder.Loader   = (*Client)(nil)
)

// Client is an Ollama sentence-embedding client.
type Client struct {
	client       *http.Client
	apiKey       string
	model        string
	baseURL      string
	maxSeqLength int
	inference    bool
	half         bool
	dimensions   int
}

// Config is the configuration for the Ollama backend.
// APIKey: API key (optional, usually not required for local deployment)
// Model: Model name (required)
// BaseURL: Ollama service address, defaults to "http://localhost:11434"
// HTTPClient: Custom HTTP client, if nil uses a client with a 300 second timeout
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new Ollama embedding client.
//
// Args:
//   - cfg: Ollama configuration containing Model, BaseURL, etc.
//
// Returns:
//   - *Client: Ollama client instance
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
		// Large batches on CPU can take minutes.
		client = &http.Client{
			Timeout: 300 * time.Second,
		}
	}

	return &Client{
		client:  client,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: baseURL,
	}, nil
}

// SetMaxSeqLength truncates every input to n tokens (num_ctx).
// Zero leaves the model default.
func (c *Client) SetMaxSeqLength(n int) {
	c.maxSeqLength = n
}

// MaxSeqLength returns the configured truncation length.
func (c *Client) MaxSeqLength() int {
	return c.maxSeqLength
}

// Eval switches the client to inference mode: weights are loaded once and
// stay resident until Close instead of expiring between requests.
func (c *Client) Eval() {
	c.inference = true
}

// InEvalMode reports whether Eval has been called.
func (c *Client) InEvalMode() bool {
	return c.inference
}

// Half requests half precision (f16) for the model state.
func (c *Client) Half() {
	c.half = true
}

// IsHalf reports whether half precision was requested.
func (c *Client) IsHalf() bool {
	return c.half
}

type embedRequest struct {
	Model     string                 `json:"model"`
	Input     []string               `json:"input"`
	Truncate  bool                   `json:"truncate"`
	KeepAlive interface{}            `json:"keep_alive,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

func (c *Client) request(input []string) embedRequest {
	req := embedRequest{
		Model:    c.model,
		Input:    input,
		Truncate: true,
	}
	options := map[string]interface{}{}
	if c.maxSeqLength > 0 {
		options["num_ctx"] = c.maxSeqLength
	}
	if c.half {
		options["f16_kv"] = true
	}
	if len(options) > 0 {
		req.Options = options
	}
	if c.inference {
		req.KeepAlive = -1
	}
	return req
}

// Load asks Ollama to load the model weights without embedding anything.
func (c *Client) Load(ctx context.Context) error {
	_, err := c.send(ctx, c.request([]string{}))
	return err
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
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	resp, err := c.send(ctx, c.request(texts))
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding generation failed: unexpected number of results from Ollama API (got %d, expected %d)", len(resp.Embeddings), len(texts))
	}
	if c.dimensions == 0 && len(resp.Embeddings[0]) > 0 {
		c.dimensions = len(resp.Embeddings[0])
	}
	return resp.Embeddings, nil
}

func (c *Client) send(ctx context.Context, body embedRequest) (*embedResponse, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embed", c.baseURL)
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
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(b))
	}

	var response embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// Dimensions returns the vector dimensions observed so far.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close unloads the model from the Ollama service when it was pinned by Eval.
func (c *Client) Close() error {
	if !c.inference {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req := c.request([]string{})
	req.KeepAlive = 0
	_, err := c.send(ctx, req)
	return err
}
