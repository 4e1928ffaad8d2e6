// Package prepare converts raw Polish benchmark exports into the dataset
// layout read by the locally registered tasks.
//
// Raw data is read from <raw>/<source>/<split>.jsonl, one JSON object per
// line, as exported from the upstream dataset hubs. Nothing is downloaded.
package prepare

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrUnknownRoutine indicates that no routine has the requested name.
var ErrUnknownRoutine = errors.New("unknown preparation routine")

// Defaults of the clustering routines.
const (
	DefaultEightTagsChunkSize = 5000
	DefaultMinTopicRows       = 200
	DefaultHateSpeechSets     = 4
)

// Row is one raw record.
type Row map[string]interface{}

// Split is the rows of one named split.
type Split struct {
	Name string
	Rows []Row
}

// Routine prepares one task dataset.
type Routine struct {
	// Name is the task the routine prepares.
	Name string

	// Source is the raw dataset directory, relative to the raw root.
	Source string

	// Output is the prepared dataset directory, relative to the output root.
	Output string

	run func(p *Preparer, splits []Split, out string) error
}

// Preparer runs preparation routines.
type Preparer struct {
	// RawDir is the root of the raw exports.
	RawDir string

	// OutputDir is the root of the prepared datasets.
	OutputDir string

	// EightTagsChunkSize is the number of sentences per 8Tags clustering set.
	EightTagsChunkSize int

	// MinTopicRows drops hate speech topics with fewer rows.
	MinTopicRows int

	// HateSpeechSets is the number of hate speech clustering sets.
	HateSpeechSets int

	logger *zap.Logger
}

// New creates a Preparer with the default clustering parameters.
func New(rawDir, outputDir string, logger *zap.Logger) *Preparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preparer{
		RawDir:             rawDir,
		OutputDir:          outputDir,
		EightTagsChunkSize: DefaultEightTagsChunkSize,
		MinTopicRows:       DefaultMinTopicRows,
		HateSpeechSets:     DefaultHateSpeechSets,
		logger:             logger,
	}
}

// Names returns the routine names in run order.
func Names() []string {
	names := make([]string, len(routines))
	for i, r := range routines {
		names[i] = r.Name
	}
	return names
}

// Lookup returns the routine preparing name.
func Lookup(name string) (Routine, bool) {
	for _, r := range routines {
		if r.Name == name {
			return r, true
		}
	}
	return Routine{}, false
}

// RunAll runs every routine in order and stops at the first failure.
func (p *Preparer) RunAll(ctx context.Context) error {
	for _, r := range routines {
		if err := p.Run(ctx, r.Name); err != nil {
			return err
		}
	}
	return nil
}

// Run runs the routine preparing name.
func (p *Preparer) Run(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoutine, name)
	}

	splits, err := readSplits(filepath.Join(p.RawDir, r.Source))
	if err != nil {
		return fmt.Errorf("prepare %s: %w", name, err)
	}
	out := filepath.Join(p.OutputDir, r.Output)
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("prepare %s: %w", name, err)
	}
	if err := r.run(p, splits, out); err != nil {
		return fmt.Errorf("prepare %s: %w", name, err)
	}
	p.logger.Info("dataset prepared",
		zap.String("task", name),
		zap.String("source", r.Source),
		zap.String("output", out),
		zap.Int("splits", len(splits)))
	return nil
}

// readSplits reads every <split>.jsonl file of dir, sorted by split name.
func readSplits(dir string) ([]Split, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no raw splits in %s", dir)
	}
	sort.Strings(paths)

	splits := make([]Split, 0, len(paths))
	for _, path := range paths {
		rows, err := readRows(path)
		if err != nil {
			return nil, err
		}
		splits = append(splits, Split{
			Name: strings.TrimSuffix(filepath.Base(path), ".jsonl"),
			Rows: rows,
		})
	}
	return splits, nil
}

func readRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var rows []Row
	dec := json.NewDecoder(bufio.NewReader(f))
	dec.UseNumber()
	for {
		var row Row
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode %s record %d: %w", path, len(rows), err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// writeRecords writes one JSON object per line to path.
func writeRecords[T any](path string, records []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (r Row) text(key string) (string, error) {
	v, ok := r[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %T", key, v)
	}
	return s, nil
}

func (r Row) number(key string) (float64, error) {
	v, ok := r[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("field %q: expected number, got %T", key, v)
	}
}

func (r Row) integer(key string) (int, error) {
	f, err := r.number(key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// value returns a field as decoded, with numbers narrowed to int when integral.
func (r Row) value(key string) (interface{}, error) {
	v, ok := r[key]
	if !ok {
		return nil, fmt.Errorf("missing field %q", key)
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		return f, nil
	}
	return v, nil
}

// chunk splits items into consecutive slices of at most size items.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
