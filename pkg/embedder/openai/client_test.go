package openai_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/plmteb-go/pkg/embedder/openai"
)

func newEmbeddingsServer(t *testing.T, handler func(inputs []string) []map[string]interface{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nvidia/nv-embed-v2", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   handler(req.Input),
			"model":  req.Model,
		})
	}))
}

func TestClient_EmbedBatch(t *testing.T) {
	srv := newEmbeddingsServer(t, func(inputs []string) []map[string]interface{} {
		// Out of order on purpose; the client must sort by index.
		return []map[string]interface{}{
			{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
			{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
		}
	})
	defer srv.Close()

	client, err := openai.NewClient(&openai.Config{
		APIKey:  "test-key",
		Model:   "nvidia/nv-embed-v2",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	vectors, err := client.EmbedBatch(t.Context(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vectors)
	assert.Equal(t, 2, client.Dimensions())
	assert.NoError(t, client.Close())
}

func TestClient_EmbedBatchCountMismatch(t *testing.T) {
	srv := newEmbeddingsServer(t, func(inputs []string) []map[string]interface{} {
		return []map[string]interface{}{
			{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
		}
	})
	defer srv.Close()

	client, err := openai.NewClient(&openai.Config{
		APIKey:  "test-key",
		Model:   "nvidia/nv-embed-v2",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	_, err = client.EmbedBatch(t.Context(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestClient_Normalize(t *testing.T) {
	srv := newEmbeddingsServer(t, func(inputs []string) []map[string]interface{} {
		return []map[string]interface{}{
			{"object": "embedding", "index": 0, "embedding": []float32{3, 4}},
		}
	})
	defer srv.Close()

	client, err := openai.NewClient(&openai.Config{
		APIKey:    "test-key",
		Model:     "nvidia/nv-embed-v2",
		BaseURL:   srv.URL,
		Normalize: true,
	})
	require.NoError(t, err)

	v, err := client.Embed(t.Context(), "a")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, v, 1e-6)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := openai.NewClient(&openai.Config{Model: "m"})
	assert.Error(t, err)

	_, err = openai.NewClient(&openai.Config{APIKey: "k"})
	assert.Error(t, err)
}

type countingTransport struct {
	calls int
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	return http.DefaultTransport.RoundTrip(req)
}

func TestClient_ModelNamePassthrough(t *testing.T) {
	tests := []struct {
		name  string
		model string
	}{
		{"catalog name", "nvidia/nv-embed-v2"},
		{"plain name", "text-embedding-3-small"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req map[string]interface{}
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				got, _ = req["model"].(string)
				assert.Equal(t, []interface{}{"a"}, req["input"])

				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"object": "list",
					"data":   []map[string]interface{}{{"object": "embedding", "index": 0, "embedding": []float32{1}}},
					"model":  got,
				})
			}))
			defer srv.Close()

			transport := &countingTransport{}
			custom := &http.Client{Transport: transport}
			client, err := openai.NewClient(&openai.Config{
				APIKey:     "test-key",
				Model:      tt.model,
				BaseURL:    srv.URL,
				HTTPClient: custom,
			})
			require.NoError(t, err)

			_, err = client.Embed(t.Context(), "a")
			require.NoError(t, err)
			assert.Equal(t, tt.model, got)
			assert.Equal(t, 1, transport.calls)
			assert.Same(t, transport, custom.Transport)
		})
	}
}
