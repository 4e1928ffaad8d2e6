// Package wrapper adapts base model backends to the calling conventions the
// benchmark tasks expect.
//
// Task type decides the adapter shape: retrieval tasks get a
// RetrievalModelWrapper with separate query and corpus entry points, every
// other task gets a ModelWrapper with a single Encode entry point.
package wrapper

import (
	"context"
	"fmt"
	"strings"

	"github.com/oceanbase/plmteb-go/pkg/core"
	"github.com/oceanbase/plmteb-go/pkg/embedder"
)

// Model is implemented by every adapter.
type Model interface {
	// Info returns the model the adapter was built for.
	Info() core.ModelInfo
}

// Encoder is the generic adapter contract used by similarity, classification
// and clustering tasks.
type Encoder interface {
	Model
	Encode(ctx context.Context, texts []string) ([][]float64, error)
}

// Document is one corpus entry of a retrieval task.
type Document struct {
	ID    string `json:"_id"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// RetrievalEncoder is the retrieval adapter contract.
type RetrievalEncoder interface {
	Model
	EncodeQueries(ctx context.Context, queries []string) ([][]float64, error)
	EncodeCorpus(ctx context.Context, corpus []Document) ([][]float64, error)
}

var (
	_ Encoder          = (*ModelWrapper)(nil)
	_ RetrievalEncoder = (*RetrievalModelWrapper)(nil)
)

// ForTask returns the adapter t expects: a RetrievalModelWrapper for
// retrieval tasks and a ModelWrapper for everything else.
func ForTask(backend embedder.Provider, info core.ModelInfo, t core.TaskInfo) Model {
	if t.Type.IsRetrieval() {
		return NewRetrievalModelWrapper(backend, info)
	}
	return NewModelWrapper(backend, info)
}

// ModelWrapper forwards texts to the backend in batches.
type ModelWrapper struct {
	backend embedder.Provider
	info    core.ModelInfo
}

// NewModelWrapper creates a generic adapter.
func NewModelWrapper(backend embedder.Provider, info core.ModelInfo) *ModelWrapper {
	return &ModelWrapper{backend: backend, info: info}
}

// Info returns the wrapped model's description.
func (w *ModelWrapper) Info() core.ModelInfo {
	return w.info
}

// Encode embeds texts, preserving their order.
func (w *ModelWrapper) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	return encodeBatched(ctx, w.backend, texts, w.info.EffectiveBatchSize())
}

// RetrievalModelWrapper encodes queries and passages through separate paths.
//
// Queries are prefixed with the model's q_prefix and passages with its
// p_prefix; the prefixes come from the models configuration.
type RetrievalModelWrapper struct {
	backend embedder.Provider
	info    core.ModelInfo
}

// NewRetrievalModelWrapper creates a retrieval adapter.
func NewRetrievalModelWrapper(backend embedder.Provider, info core.ModelInfo) *RetrievalModelWrapper {
	return &RetrievalModelWrapper{backend: backend, info: info}
}

// Info returns the wrapped model's description.
func (w *RetrievalModelWrapper) Info() core.ModelInfo {
	return w.info
}

// EncodeQueries embeds search queries.
func (w *RetrievalModelWrapper) EncodeQueries(ctx context.Context, queries []string) ([][]float64, error) {
	texts := make([]string, len(queries))
	for i, q := range queries {
		texts[i] = w.info.QPrefix + q
	}
	return encodeBatched(ctx, w.backend, texts, w.info.EffectiveBatchSize())
}

// EncodeCorpus embeds corpus passages as "<title> <text>".
func (w *RetrievalModelWrapper) EncodeCorpus(ctx context.Context, corpus []Document) ([][]float64, error) {
	texts := make([]string, len(corpus))
	for i, doc := range corpus {
		texts[i] = w.info.PPrefix + PassageText(doc)
	}
	return encodeBatched(ctx, w.backend, texts, w.info.EffectiveBatchSize())
}

// PassageText joins a document's title and body.
func PassageText(doc Document) string {
	return strings.TrimSpace(doc.Title + " " + doc.Text)
}

func encodeBatched(ctx context.Context, backend embedder.Provider, texts []string, batchSize int) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := backend.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("encode batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("encode batch %d-%d: %w: got %d vectors", start, end, core.ErrEmbeddingFailed, len(vectors))
		}
		out = append(out, vectors...)
	}
	return out, nil
}
