// Package core provides the configuration entities and error taxonomy shared by
// the PL-MTEB evaluation harness.
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelType selects the backend variant used to encode text for a model.
//
// The set is closed: every value maps to exactly one backend in the evaluator,
// and any other tag is rejected when the configuration is decoded.
type ModelType string

const (
	// ModelTypeHostedAPI is a model served by an OpenAI-compatible embeddings API.
	ModelTypeHostedAPI ModelType = "NV"

	// ModelTypeSentenceTransformer is a general sentence-embedding model.
	ModelTypeSentenceTransformer ModelType = "ST"

	// ModelTypeTransformer is a raw transformer whose token states are pooled locally.
	ModelTypeTransformer ModelType = "T"

	// ModelTypeStaticVectors is a static word-vector model.
	ModelTypeStaticVectors ModelType = "SWE"

	// ModelTypeFlagEmbedding is a flag-embedding (BGE family) model.
	ModelTypeFlagEmbedding ModelType = "FE"
)

// ModelTypes lists every recognized model type.
var ModelTypes = []ModelType{
	ModelTypeHostedAPI,
	ModelTypeSentenceTransformer,
	ModelTypeTransformer,
	ModelTypeStaticVectors,
	ModelTypeFlagEmbedding,
}

// Valid reports whether t is one of the recognized model types.
func (t ModelType) Valid() bool {
	for _, known := range ModelTypes {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the configuration tag.
func (t ModelType) String() string {
	return string(t)
}

// UnmarshalJSON rejects unknown model types at parse time.
func (t *ModelType) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	return t.set(tag)
}

// UnmarshalYAML rejects unknown model types at parse time.
func (t *ModelType) UnmarshalYAML(value *yaml.Node) error {
	var tag string
	if err := value.Decode(&tag); err != nil {
		return err
	}
	return t.set(tag)
}

func (t *ModelType) set(tag string) error {
	mt := ModelType(tag)
	if !mt.Valid() {
		return UnknownModelTypeError(tag)
	}
	*t = mt
	return nil
}

// UnknownModelTypeError returns an error naming the offending model type.
func UnknownModelTypeError(tag string) error {
	return fmt.Errorf("%w: %q", ErrUnknownModelType, tag)
}

// DefaultBatchSize is used when a model does not set batch_size.
const DefaultBatchSize = 32

// DefaultAPIKeyEnv is the environment variable read for backend API keys.
const DefaultAPIKeyEnv = "EMBEDDING_API_KEY"

// ModelInfo describes one model to evaluate.
//
// ModelInfo values are decoded once from the models configuration file and are
// never modified afterwards.
//
// Example:
//
//	info := core.ModelInfo{
//	    ModelName: "sdadas/mmlw-roberta-base",
//	    ModelType: core.ModelTypeSentenceTransformer,
//	    FP16:      true,
//	    QPrefix:   "zapytanie: ",
//	}
type ModelInfo struct {
	// ModelName identifies the model to the backend and labels its output.
	ModelName string `json:"model_name" yaml:"model_name"`

	// ModelType selects the backend variant.
	ModelType ModelType `json:"model_type" yaml:"model_type"`

	// FP16 requests half precision weights. Only the ST backend honors it.
	FP16 bool `json:"fp16,omitempty" yaml:"fp16,omitempty"`

	// QPrefix is prepended to retrieval queries.
	QPrefix string `json:"q_prefix,omitempty" yaml:"q_prefix,omitempty"`

	// PPrefix is prepended to retrieval passages.
	PPrefix string `json:"p_prefix,omitempty" yaml:"p_prefix,omitempty"`

	// BatchSize is the number of texts sent to the backend per call.
	BatchSize int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`

	// BaseURL overrides the backend endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// APIKeyEnv names the environment variable holding the backend API key.
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`

	// VectorsPath is the word-vector file for SWE models (defaults to ModelName).
	VectorsPath string `json:"vectors_path,omitempty" yaml:"vectors_path,omitempty"`

	// Normalize requests L2-normalized vectors where the backend supports it.
	Normalize bool `json:"normalize,omitempty" yaml:"normalize,omitempty"`
}

// ShortName returns a filesystem-safe name used to namespace results.
//
// A name made of "/"-separated segments of letters, digits, "." and "-" maps
// to the segments joined by "__" ("sdadas/mmlw-e5-small" becomes
// "sdadas__mmlw-e5-small"). Any other name is sanitized and suffixed with
// "_" and a hash of the full name, so distinct model names never share a
// short name.
func (m ModelInfo) ShortName() string {
	if plainModelName(m.ModelName) {
		return strings.ReplaceAll(m.ModelName, "/", "__")
	}

	var b strings.Builder
	b.Grow(len(m.ModelName) + 1 + shortNameHashLen)
	for _, r := range m.ModelName {
		switch {
		case r == '/':
			b.WriteString("__")
		case plainRune(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	sum := sha256.Sum256([]byte(m.ModelName))
	// A single "_" never occurs in plain names, so the suffix cannot collide with one.
	return strings.TrimRight(b.String(), "_") + "_" + hex.EncodeToString(sum[:])[:shortNameHashLen]
}

const shortNameHashLen = 12

func plainModelName(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
		for _, r := range seg {
			if !plainRune(r) {
				return false
			}
		}
	}
	return true
}

func plainRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '-'
}

// EffectiveBatchSize returns BatchSize or DefaultBatchSize when unset.
func (m ModelInfo) EffectiveBatchSize() int {
	if m.BatchSize > 0 {
		return m.BatchSize
	}
	return DefaultBatchSize
}

// EffectiveAPIKeyEnv returns APIKeyEnv or DefaultAPIKeyEnv when unset.
func (m ModelInfo) EffectiveAPIKeyEnv() string {
	if m.APIKeyEnv != "" {
		return m.APIKeyEnv
	}
	return DefaultAPIKeyEnv
}

// Validate checks the fields every backend needs.
func (m ModelInfo) Validate() error {
	if m.ModelName == "" {
		return NewEvalError("Validate", fmt.Errorf("%w: model_name is required", ErrInvalidConfig))
	}
	if !m.ModelType.Valid() {
		return NewEvalError("Validate", UnknownModelTypeError(string(m.ModelType)))
	}
	if m.BatchSize < 0 {
		return NewEvalError("Validate", fmt.Errorf("%w: batch_size must not be negative", ErrInvalidConfig))
	}
	return nil
}

// TaskType tags a benchmark task with its evaluation protocol.
type TaskType string

const (
	// TaskTypeRetrieval ranks corpus passages for queries.
	TaskTypeRetrieval TaskType = "Retrieval"

	// TaskTypeSTS scores semantic similarity of sentence pairs.
	TaskTypeSTS TaskType = "STS"

	// TaskTypePairClassification labels sentence pairs.
	TaskTypePairClassification TaskType = "PairClassification"

	// TaskTypeClassification labels single texts.
	TaskTypeClassification TaskType = "Classification"

	// TaskTypeClustering groups texts.
	TaskTypeClustering TaskType = "Clustering"
)

// TaskTypes lists every recognized task type.
var TaskTypes = []TaskType{
	TaskTypeRetrieval,
	TaskTypeSTS,
	TaskTypePairClassification,
	TaskTypeClassification,
	TaskTypeClustering,
}

// Valid reports whether t is one of the recognized task types.
func (t TaskType) Valid() bool {
	for _, known := range TaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsRetrieval reports whether tasks of this type need the retrieval adapter.
func (t TaskType) IsRetrieval() bool {
	return t == TaskTypeRetrieval
}

// TaskInfo names one task of the evaluation roster.
type TaskInfo struct {
	// Name is the canonical task name.
	Name string

	// Type selects the evaluation protocol and the model adapter.
	Type TaskType
}
