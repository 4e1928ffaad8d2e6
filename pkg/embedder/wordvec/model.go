// Package wordvec provides the static word-vector backend for SWE models.
//
// Vectors are read from a word2vec text file. A text is embedded as the mean
// of the vectors of its lower-cased tokens; tokens missing from the vocabulary
// are skipped and a text with no known token embeds to the zero vector.
package wordvec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/oceanbase/plmteb-go/pkg/embedder"
)

var _ embedder.Provider = (*Model)(nil)

// Model holds a word-vector vocabulary in memory.
type Model struct {
	vectors    map[string][]float64
	dimensions int
	normalize  bool
}

// Config contains configuration for the static word-vector backend.
type Config struct {
	// Path is the word2vec text file (required).
	Path string

	// Normalize L2-normalizes text vectors.
	Normalize bool
}

// NewModel loads the vocabulary named by cfg.Path.
//
// Returns an error when the file holds no vectors or its rows disagree on
// dimension.
func NewModel(cfg *Config) (*Model, error) {
	if cfg.Path == "" {
		return nil, errors.New("vectors path is required")
	}
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open vectors: %w", err)
	}
	defer func() { _ = f.Close() }()

	m, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read vectors %s: %w", cfg.Path, err)
	}
	m.normalize = cfg.Normalize
	return m, nil
}

// Read parses word2vec text format. The "<count> <dim>" header line is optional.
func Read(r io.Reader) (*Model, error) {
	m := &Model{vectors: make(map[string][]float64)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if line == 1 && len(fields) == 2 {
			if _, err := strconv.Atoi(fields[0]); err == nil {
				dim, err := strconv.Atoi(fields[1])
				if err != nil {
					return nil, fmt.Errorf("line %d: bad header: %w", line, err)
				}
				m.dimensions = dim
				continue
			}
		}

		vec := make([]float64, len(fields)-1)
		for i, s := range fields[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			vec[i] = v
		}
		if m.dimensions == 0 {
			m.dimensions = len(vec)
		}
		if len(vec) != m.dimensions {
			return nil, fmt.Errorf("line %d: expected %d dimensions, got %d", line, m.dimensions, len(vec))
		}
		m.vectors[strings.ToLower(fields[0])] = vec
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(m.vectors) == 0 {
		return nil, errors.New("no vectors found")
	}
	return m, nil
}

// Tokenize lower-cases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Embed averages the vectors of the known tokens of text.
func (m *Model) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var known [][]float64
	for _, token := range Tokenize(text) {
		if v, ok := m.vectors[token]; ok {
			known = append(known, v)
		}
	}
	if len(known) == 0 {
		return make([]float64, m.dimensions), nil
	}
	v := embedder.MeanPool(known)
	if m.normalize {
		embedder.Normalize(v)
	}
	return v, nil
}

// EmbedBatch embeds each text in turn.
func (m *Model) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the vector size.
func (m *Model) Dimensions() int {
	return m.dimensions
}

// Vocabulary returns the number of words loaded.
func (m *Model) Vocabulary() int {
	return len(m.vectors)
}

// Close drops the vocabulary so it can be garbage collected.
func (m *Model) Close() error {
	m.vectors = nil
	return nil
}
