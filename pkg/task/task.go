// Package task holds the task registries and resolves task names to
// executable benchmark tasks.
package task

import (
	"errors"
	"fmt"

	"github.com/oceanbase/plmteb-go/pkg/benchmark"
	"github.com/oceanbase/plmteb-go/pkg/core"
)

// ErrTaskNotFound indicates that neither registry knows a task.
var ErrTaskNotFound = errors.New("task not found")

// DefaultLanguages constrains catalog lookups to Polish.
var DefaultLanguages = []string{"pol"}

// TaskInfo names one task of the evaluation roster.
type TaskInfo = core.TaskInfo

// Tasks is the evaluation roster in catalog order.
var Tasks = []TaskInfo{
	{Name: "CBD", Type: core.TaskTypeClassification},
	{Name: "PolEmo2.0-IN", Type: core.TaskTypeClassification},
	{Name: "PolEmo2.0-OUT", Type: core.TaskTypeClassification},
	{Name: "AllegroReviews", Type: core.TaskTypeClassification},
	{Name: "PAC", Type: core.TaskTypeClassification},
	{Name: "MassiveIntentClassification", Type: core.TaskTypeClassification},
	{Name: "MassiveScenarioClassification", Type: core.TaskTypeClassification},
	{Name: "8TagsClustering", Type: core.TaskTypeClustering},
	{Name: "HateSpeechPLClustering", Type: core.TaskTypeClustering},
	{Name: "SICK-E-PL", Type: core.TaskTypePairClassification},
	{Name: "PPC", Type: core.TaskTypePairClassification},
	{Name: "CDSC-E", Type: core.TaskTypePairClassification},
	{Name: "PSC", Type: core.TaskTypePairClassification},
	{Name: "SICK-R-PL", Type: core.TaskTypeSTS},
	{Name: "CDSC-R", Type: core.TaskTypeSTS},
	{Name: "STS22", Type: core.TaskTypeSTS},
	{Name: "ArguAna-PL", Type: core.TaskTypeRetrieval},
	{Name: "DBPedia-PL", Type: core.TaskTypeRetrieval},
	{Name: "FiQA-PL", Type: core.TaskTypeRetrieval},
	{Name: "HotpotQA-PL", Type: core.TaskTypeRetrieval},
	{Name: "MSMARCO-PL", Type: core.TaskTypeRetrieval},
	{Name: "NFCorpus-PL", Type: core.TaskTypeRetrieval},
	{Name: "NQ-PL", Type: core.TaskTypeRetrieval},
	{Name: "Quora-PL", Type: core.TaskTypeRetrieval},
	{Name: "SCIDOCS-PL", Type: core.TaskTypeRetrieval},
	{Name: "SciFact-PL", Type: core.TaskTypeRetrieval},
	{Name: "TRECCOVID-PL", Type: core.TaskTypeRetrieval},
}

// localDefinitions are the tasks prepared on disk by the prepare routines.
var localDefinitions = []benchmark.Definition{
	{Name: "SICK-R-PL", Type: core.TaskTypeSTS, Dir: "sickr-pl-sts"},
	{Name: "SICK-E-PL", Type: core.TaskTypePairClassification, Dir: "sicke-pl-pairclassification"},
	{Name: "CDSC-R", Type: core.TaskTypeSTS, Dir: "cdscr-sts"},
	{Name: "CDSC-E", Type: core.TaskTypePairClassification, Dir: "cdsce-pairclassification"},
	{Name: "PPC", Type: core.TaskTypePairClassification, Dir: "ppc-pairclassification"},
	{Name: "PSC", Type: core.TaskTypePairClassification, Dir: "psc-pairclassification"},
	{Name: "CBD", Type: core.TaskTypeClassification, Dir: "cbd"},
	{Name: "PolEmo2.0-IN", Type: core.TaskTypeClassification, Dir: "polemo2_in"},
	{Name: "PolEmo2.0-OUT", Type: core.TaskTypeClassification, Dir: "polemo2_out"},
	{Name: "AllegroReviews", Type: core.TaskTypeClassification, Dir: "allegro-reviews"},
	{Name: "8TagsClustering", Type: core.TaskTypeClustering, Dir: "8tags-clustering"},
	{Name: "HateSpeechPLClustering", Type: core.TaskTypeClustering, Dir: "hate_speech_pl-clustering"},
}

// LocalDirs maps each locally prepared task to its dataset directory.
func LocalDirs() map[string]string {
	dirs := make(map[string]string, len(localDefinitions))
	for _, d := range localDefinitions {
		dirs[d.Name] = d.Dir
	}
	return dirs
}

// NewTasks builds the supplementary registry over dataDir.
func NewTasks(dataDir string) map[string]benchmark.Task {
	tasks := make(map[string]benchmark.Task, len(localDefinitions))
	for _, d := range localDefinitions {
		d.Languages = DefaultLanguages
		tasks[d.Name] = d.Bind(dataDir)
	}
	return tasks
}

// EvalSplits returns the splits evaluated for a task.
func EvalSplits(name string) []string {
	if name == "MSMARCO-PL" {
		return []string{"validation"}
	}
	return []string{"test"}
}

// Catalog is the external task catalog.
type Catalog interface {
	Get(name string, languages []string) (benchmark.Task, error)
}

// Resolver turns a task name into a runnable task.
type Resolver struct {
	// NewTasks is consulted first.
	NewTasks map[string]benchmark.Task

	// Catalog is consulted when NewTasks has no entry.
	Catalog Catalog

	// Languages constrain catalog lookups.
	Languages []string
}

// Resolve returns the task named by info.
func (r *Resolver) Resolve(info TaskInfo) (benchmark.Task, error) {
	if t, ok := r.NewTasks[info.Name]; ok && t != nil {
		return t, nil
	}
	if r.Catalog == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, info.Name)
	}
	t, err := r.Catalog.Get(info.Name, r.Languages)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTaskNotFound, info.Name, err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, info.Name)
	}
	return t, nil
}
