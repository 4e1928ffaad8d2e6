package benchmark

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/oceanbase/plmteb-go/pkg/core"
	"github.com/oceanbase/plmteb-go/pkg/wrapper"
)

// DefaultTopK is the ranked list length of retrieval predictions.
const DefaultTopK = 100

type datasetTask struct {
	def  Definition
	root string
}

func (t *datasetTask) Name() string        { return t.def.Name }
func (t *datasetTask) Type() core.TaskType { return t.def.Type }
func (t *datasetTask) Languages() []string { return append([]string(nil), t.def.Languages...) }
func (t *datasetTask) String() string      { return fmt.Sprintf("%s(%s)", t.def.Name, t.def.Type) }

// Evaluate dispatches on the task type.
func (t *datasetTask) Evaluate(ctx context.Context, model wrapper.Model, split string) (*Predictions, error) {
	switch t.def.Type {
	case core.TaskTypeRetrieval:
		enc, ok := model.(wrapper.RetrievalEncoder)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a retrieval adapter, got %T", ErrAdapterMismatch, t.def.Name, model)
		}
		return t.evaluateRetrieval(ctx, enc, split)
	case core.TaskTypeSTS, core.TaskTypePairClassification, core.TaskTypeClassification, core.TaskTypeClustering:
		enc, ok := model.(wrapper.Encoder)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a generic adapter, got %T", ErrAdapterMismatch, t.def.Name, model)
		}
		switch t.def.Type {
		case core.TaskTypeSTS:
			return t.evaluateSTS(ctx, enc, split)
		case core.TaskTypePairClassification:
			return t.evaluatePairClassification(ctx, enc, split)
		case core.TaskTypeClassification:
			return t.evaluateClassification(ctx, enc, split)
		default:
			return t.evaluateClustering(ctx, enc, split)
		}
	default:
		return nil, fmt.Errorf("benchmark: task %s: unknown task type %q", t.def.Name, t.def.Type)
	}
}

// PairPrediction is the similarity a model assigns to one sentence pair.
type PairPrediction struct {
	Index      int      `json:"index"`
	Similarity float64  `json:"cosine"`
	Score      *float64 `json:"score,omitempty"`
	Label      *int     `json:"label,omitempty"`
}

// EmbeddingPrediction is a text embedding together with its gold label.
type EmbeddingPrediction struct {
	Set       int         `json:"set,omitempty"`
	Index     int         `json:"index"`
	Label     interface{} `json:"label"`
	Embedding []float64   `json:"embedding"`
}

// Hit is one ranked corpus document.
type Hit struct {
	CorpusID string  `json:"corpus_id"`
	Score    float64 `json:"score"`
}

// RetrievalPrediction is the ranked list for one query.
type RetrievalPrediction struct {
	QueryID  string         `json:"query_id"`
	Hits     []Hit          `json:"hits"`
	Relevant map[string]int `json:"relevant,omitempty"`
}

func (t *datasetTask) evaluateSTS(ctx context.Context, enc wrapper.Encoder, split string) (*Predictions, error) {
	path, err := splitFile(t.root, split)
	if err != nil {
		return nil, err
	}
	rows, err := readJSONLines[STSRecord](path)
	if err != nil {
		return nil, err
	}

	left := make([]string, len(rows))
	right := make([]string, len(rows))
	for i, r := range rows {
		left[i], right[i] = r.Sentence1, r.Sentence2
	}
	sims, err := pairSimilarities(ctx, enc, left, right)
	if err != nil {
		return nil, err
	}

	out := &Predictions{NumSamples: len(rows)}
	for i, r := range rows {
		score := r.Score
		out.Records = append(out.Records, PairPrediction{Index: i, Similarity: sims[i], Score: &score})
	}
	return out, nil
}

func (t *datasetTask) evaluatePairClassification(ctx context.Context, enc wrapper.Encoder, split string) (*Predictions, error) {
	path, err := splitFile(t.root, split)
	if err != nil {
		return nil, err
	}
	rows, err := readJSONLines[PairClassificationRecord](path)
	if err != nil {
		return nil, err
	}

	var left, right []string
	var labels []int
	for i, r := range rows {
		if len(r.Sent1) != len(r.Sent2) || len(r.Sent1) != len(r.Labels) {
			return nil, fmt.Errorf("%s record %d: column lengths differ (%d, %d, %d)", path, i, len(r.Sent1), len(r.Sent2), len(r.Labels))
		}
		left = append(left, r.Sent1...)
		right = append(right, r.Sent2...)
		labels = append(labels, r.Labels...)
	}
	sims, err := pairSimilarities(ctx, enc, left, right)
	if err != nil {
		return nil, err
	}

	out := &Predictions{NumSamples: len(labels)}
	for i := range labels {
		label := labels[i]
		out.Records = append(out.Records, PairPrediction{Index: i, Similarity: sims[i], Label: &label})
	}
	return out, nil
}

func (t *datasetTask) evaluateClassification(ctx context.Context, enc wrapper.Encoder, split string) (*Predictions, error) {
	out, err := t.encodeLabeled(ctx, enc, split)
	if err != nil {
		return nil, err
	}
	if split == TrainSplit {
		return out, nil
	}
	train, err := t.encodeLabeled(ctx, enc, TrainSplit)
	if err != nil {
		return nil, fmt.Errorf("classifier training data: %w", err)
	}
	out.Train = train
	return out, nil
}

func (t *datasetTask) encodeLabeled(ctx context.Context, enc wrapper.Encoder, split string) (*Predictions, error) {
	path, err := splitFile(t.root, split)
	if err != nil {
		return nil, err
	}
	rows, err := readJSONLines[ClassificationRecord](path)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.Text
	}
	vectors, err := enc.Encode(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := &Predictions{NumSamples: len(rows)}
	for i, r := range rows {
		out.Records = append(out.Records, EmbeddingPrediction{Index: i, Label: r.Label, Embedding: vectors[i]})
	}
	return out, nil
}

func (t *datasetTask) evaluateClustering(ctx context.Context, enc wrapper.Encoder, split string) (*Predictions, error) {
	path, err := splitFile(t.root, split)
	if err != nil {
		return nil, err
	}
	rows, err := readJSONLines[ClusteringRecord](path)
	if err != nil {
		return nil, err
	}

	out := &Predictions{}
	for set, r := range rows {
		if len(r.Sentences) != len(r.Labels) {
			return nil, fmt.Errorf("%s record %d: %d sentences but %d labels", path, set, len(r.Sentences), len(r.Labels))
		}
		vectors, err := enc.Encode(ctx, r.Sentences)
		if err != nil {
			return nil, err
		}
		for i := range r.Sentences {
			out.Records = append(out.Records, EmbeddingPrediction{Set: set, Index: i, Label: r.Labels[i], Embedding: vectors[i]})
		}
		out.NumSamples += len(r.Sentences)
	}
	return out, nil
}

func (t *datasetTask) evaluateRetrieval(ctx context.Context, enc wrapper.RetrievalEncoder, split string) (*Predictions, error) {
	queryOrder, qrels, err := readQrels(filepath.Join(t.root, "qrels", split+".tsv"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSplitNotFound, split, err)
	}
	corpus, err := readJSONLines[wrapper.Document](filepath.Join(t.root, "corpus.jsonl"))
	if err != nil {
		return nil, err
	}
	allQueries, err := readJSONLines[Query](filepath.Join(t.root, "queries.jsonl"))
	if err != nil {
		return nil, err
	}

	byID := make(map[string]string, len(allQueries))
	for _, q := range allQueries {
		byID[q.ID] = q.Text
	}
	var ids, texts []string
	for _, qid := range queryOrder {
		if text, ok := byID[qid]; ok {
			ids = append(ids, qid)
			texts = append(texts, text)
		}
	}

	docVectors, err := enc.EncodeCorpus(ctx, corpus)
	if err != nil {
		return nil, err
	}
	queryVectors, err := enc.EncodeQueries(ctx, texts)
	if err != nil {
		return nil, err
	}

	k := t.def.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	out := &Predictions{NumSamples: len(ids)}
	for i, qv := range queryVectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Records = append(out.Records, RetrievalPrediction{
			QueryID:  ids[i],
			Hits:     topK(qv, corpus, docVectors, k),
			Relevant: qrels[ids[i]],
		})
	}
	return out, nil
}

func pairSimilarities(ctx context.Context, enc wrapper.Encoder, left, right []string) ([]float64, error) {
	a, err := enc.Encode(ctx, left)
	if err != nil {
		return nil, err
	}
	b, err := enc.Encode(ctx, right)
	if err != nil {
		return nil, err
	}
	sims := make([]float64, len(a))
	for i := range a {
		sims[i] = CosineSimilarity(a[i], b[i])
	}
	return sims, nil
}

// CosineSimilarity returns the cosine similarity between two vectors.
// Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// hitHeap is a min-heap on score so the weakest kept hit is evicted first.
type hitHeap []Hit

func (h hitHeap) Len() int { return len(h) }
func (h hitHeap) Less(i, j int) bool {
	if h[i].Score == h[j].Score {
		return h[i].CorpusID > h[j].CorpusID
	}
	return h[i].Score < h[j].Score
}
func (h hitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x interface{}) { *h = append(*h, x.(Hit)) }

func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK ranks the corpus for one query, best first. Ties break on corpus id.
func topK(query []float64, corpus []wrapper.Document, vectors [][]float64, k int) []Hit {
	h := make(hitHeap, 0, k+1)
	for i, v := range vectors {
		hit := Hit{CorpusID: corpus[i].ID, Score: CosineSimilarity(query, v)}
		if h.Len() < k {
			heap.Push(&h, hit)
			continue
		}
		if weakest := h[0]; hit.Score > weakest.Score || (hit.Score == weakest.Score && hit.CorpusID < weakest.CorpusID) {
			h[0] = hit
			heap.Fix(&h, 0)
		}
	}
	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Hit)
	}
	return out
}
