// Package benchmark executes embedding benchmark tasks.
//
// It is the boundary between the evaluation harness and benchmark content: a
// Task knows how to read its prepared dataset and run a model adapter over one
// split, a Catalog resolves task names constrained by language, and a Runner
// persists what a task produced under a model's output folder. Scoring the
// predictions is left to downstream tooling.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oceanbase/plmteb-go/pkg/core"
	"github.com/oceanbase/plmteb-go/pkg/wrapper"
)

// ErrUnknownTask indicates that a catalog has no task with the requested name
// and languages.
var ErrUnknownTask = errors.New("unknown task")

// ErrSplitNotFound indicates that a task has no data for the requested split.
var ErrSplitNotFound = errors.New("split not found")

// ErrAdapterMismatch indicates that a task received an adapter of the wrong shape.
var ErrAdapterMismatch = errors.New("adapter does not match task type")

// Task is one benchmark unit that can be run against a model adapter.
type Task interface {
	// Name returns the canonical task name.
	Name() string

	// Type returns the evaluation protocol.
	Type() core.TaskType

	// Languages returns the ISO 639-3 language codes of the task.
	Languages() []string

	// Evaluate runs model over split and returns what the model produced.
	Evaluate(ctx context.Context, model wrapper.Model, split string) (*Predictions, error)
}

// Predictions are the raw model outputs of one task split.
//
// Records are written one JSON object per line next to the result artifact.
type Predictions struct {
	// NumSamples is the number of evaluated items (pairs, texts, queries).
	NumSamples int

	// Records are the per-item outputs.
	Records []interface{}

	// Train is the classifier training data of a Classification task,
	// encoded from its train split. Nil for every other task type.
	Train *Predictions
}

// TrainSplit is the split Classification tasks fit their classifier on.
const TrainSplit = "train"

// Definition declares a dataset-backed task.
type Definition struct {
	// Name is the canonical task name.
	Name string

	// Type is the evaluation protocol.
	Type core.TaskType

	// Languages are ISO 639-3 codes.
	Languages []string

	// Dir is the dataset directory, relative to the data root.
	Dir string

	// TopK bounds the ranked list of retrieval tasks (default 100).
	TopK int
}

// Bind returns the task reading its data under dataDir.
func (d Definition) Bind(dataDir string) Task {
	return &datasetTask{def: d, root: filepath.Join(dataDir, d.Dir)}
}

// HasLanguage reports whether the task covers one of languages.
// An empty languages list matches every task.
func (d Definition) HasLanguage(languages []string) bool {
	if len(languages) == 0 {
		return true
	}
	for _, want := range languages {
		for _, have := range d.Languages {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// Catalog is an immutable name-keyed table of task definitions.
type Catalog struct {
	dataDir string
	defs    map[string]Definition
	order   []string
}

// NewCatalog builds a catalog reading datasets under dataDir.
//
// Duplicate names and unknown task types are rejected.
func NewCatalog(dataDir string, defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		dataDir: dataDir,
		defs:    make(map[string]Definition, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("benchmark: task definition without name")
		}
		if !d.Type.Valid() {
			return nil, fmt.Errorf("benchmark: task %s: unknown task type %q", d.Name, d.Type)
		}
		if _, dup := c.defs[d.Name]; dup {
			return nil, fmt.Errorf("benchmark: duplicate task %s", d.Name)
		}
		c.defs[d.Name] = d
		c.order = append(c.order, d.Name)
	}
	return c, nil
}

// Get returns the task named name that covers one of languages.
//
// Every call returns a fresh task value; two tasks obtained for the same name
// read the same data and behave identically.
func (c *Catalog) Get(name string, languages []string) (Task, error) {
	d, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if !d.HasLanguage(languages) {
		return nil, fmt.Errorf("%w: %s has no language in %v", ErrUnknownTask, name, languages)
	}
	return d.Bind(c.dataDir), nil
}

// Definition returns the definition of name.
func (c *Catalog) Definition(name string) (Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Names returns task names in declaration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// NamesByType returns the sorted task names of one type.
func (c *Catalog) NamesByType(t core.TaskType) []string {
	var names []string
	for name, d := range c.defs {
		if d.Type == t {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
