package flag_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/plmteb-go/pkg/embedder/flag"
)

func TestClient_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req struct {
			Inputs    []string `json:"inputs"`
			Normalize bool     `json:"normalize"`
			Truncate  bool     `json:"truncate"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Normalize)
		assert.True(t, req.Truncate)

		out := make([][]float64, len(req.Inputs))
		for i := range req.Inputs {
			out[i] = []float64{1, 0, 0}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	client, err := flag.NewClient(&flag.Config{
		APIKey:    "secret",
		Model:     "BAAI/bge-m3",
		BaseURL:   srv.URL,
		Normalize: true,
	})
	require.NoError(t, err)

	vectors, err := client.EmbedBatch(t.Context(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 3, client.Dimensions())

	empty, err := client.EmbedBatch(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClient_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float64{{1}})
	}))
	defer srv.Close()

	client, err := flag.NewClient(&flag.Config{Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.EmbedBatch(t.Context(), []string{"a", "b"})
	assert.Error(t, err)
}
