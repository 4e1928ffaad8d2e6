// Package evaluator runs every configured model against every task.
//
// The run is strictly sequential: models in configuration order form the
// outer loop, tasks in catalog order the inner loop. A model's backend is
// built once before its first task and closed after its last one, so only
// one backend is resident at a time. The first error aborts the run; results
// written by completed pairs stay on disk.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oceanbase/plmteb-go/pkg/benchmark"
	"github.com/oceanbase/plmteb-go/pkg/core"
	"github.com/oceanbase/plmteb-go/pkg/embedder"
	"github.com/oceanbase/plmteb-go/pkg/ledger"
	"github.com/oceanbase/plmteb-go/pkg/metrics"
	"github.com/oceanbase/plmteb-go/pkg/task"
	"github.com/oceanbase/plmteb-go/pkg/wrapper"
)

// TaskResolver resolves a task name to a runnable task.
type TaskResolver interface {
	Resolve(info task.TaskInfo) (benchmark.Task, error)
}

// TaskRunner executes one task for one model adapter.
type TaskRunner interface {
	Run(ctx context.Context, t benchmark.Task, model wrapper.Model, opts benchmark.RunOptions) error
}

var (
	_ TaskResolver = (*task.Resolver)(nil)
	_ TaskRunner   = (*benchmark.Runner)(nil)
)

// Options configures an Evaluator.
type Options struct {
	// ModelInfos is the model roster in evaluation order (required).
	ModelInfos []core.ModelInfo

	// Tasks is the task roster in evaluation order (default task.Tasks).
	Tasks []task.TaskInfo

	// Resolver turns task names into tasks (required).
	Resolver TaskResolver

	// Runner executes tasks (required).
	Runner TaskRunner

	// NewBackend builds model backends (default NewBackend).
	NewBackend BackendFactory

	// Env is passed to NewBackend.
	Env *core.Env

	// OutputDir is the results root (default "results").
	OutputDir string

	// Ledger, when set, skips completed pairs and records new ones.
	Ledger ledger.Ledger

	// IDs issues ledger ids. Built on node 1 when Ledger is set and IDs is nil.
	IDs *ledger.IDGenerator

	// Metrics is optional.
	Metrics *metrics.Collector

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Evaluator drives a (model × task) evaluation.
type Evaluator struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New validates opts and creates an Evaluator.
func New(opts Options) (*Evaluator, error) {
	if opts.Resolver == nil || opts.Runner == nil {
		return nil, core.NewEvalError("New", fmt.Errorf("%w: resolver and runner are required", core.ErrInvalidConfig))
	}
	if opts.Tasks == nil {
		opts.Tasks = task.Tasks
	}
	if opts.NewBackend == nil {
		opts.NewBackend = NewBackend
	}
	if opts.OutputDir == "" {
		opts.OutputDir = core.DefaultOutputDir
	}
	if opts.Ledger != nil && opts.IDs == nil {
		ids, err := ledger.NewIDGenerator(1)
		if err != nil {
			return nil, core.NewEvalError("New", err)
		}
		opts.IDs = ids
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{opts: opts, logger: logger, now: time.Now}, nil
}

// OutputFolder returns the results directory of a model.
func (e *Evaluator) OutputFolder(info core.ModelInfo) string {
	return (&core.Args{OutputDir: e.opts.OutputDir}).ModelOutputDir(info)
}

// Run evaluates the roster.
//
// Every model record is validated before any backend is built, so an unknown
// model_type fails the run before the first task.
func (e *Evaluator) Run(ctx context.Context) error {
	for i, info := range e.opts.ModelInfos {
		if err := info.Validate(); err != nil {
			return core.NewEvalError("Run", fmt.Errorf("model %d (%s): %w", i, info.ModelName, err))
		}
	}

	var runID string
	if e.opts.IDs != nil {
		runID = e.opts.IDs.NewRunID()
	}
	e.logger.Info("evaluation started",
		zap.String("run_id", runID),
		zap.Int("models", len(e.opts.ModelInfos)),
		zap.Int("tasks", len(e.opts.Tasks)))

	for _, info := range e.opts.ModelInfos {
		if err := e.runModel(ctx, runID, info); err != nil {
			return err
		}
	}

	e.logger.Info("evaluation finished", zap.String("run_id", runID))
	return nil
}

func (e *Evaluator) runModel(ctx context.Context, runID string, info core.ModelInfo) (err error) {
	logger := e.logger.With(
		zap.String("model", info.ModelName),
		zap.String("model_type", info.ModelType.String()))

	if err := ctx.Err(); err != nil {
		return core.NewEvalError("Run", err)
	}

	logger.Info("loading model")
	start := e.now()
	backend, err := e.opts.NewBackend(ctx, info, e.opts.Env)
	if err != nil {
		if !errors.Is(err, core.ErrBackendLoad) && !errors.Is(err, core.ErrUnknownModelType) {
			err = fmt.Errorf("%w: %s: %w", core.ErrBackendLoad, info.ModelName, err)
		}
		return core.NewEvalError("Run", err)
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.RecordBackendLoad(info.ModelType.String(), e.now().Sub(start))
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil && err == nil {
			err = core.NewEvalError("Run", fmt.Errorf("close backend %s: %w", info.ModelName, cerr))
		}
	}()

	for _, t := range e.opts.Tasks {
		if err := ctx.Err(); err != nil {
			return core.NewEvalError("Run", err)
		}
		if err := e.runTask(ctx, runID, info, backend, t, logger); err != nil {
			return err
		}
	}
	logger.Info("model finished")
	return nil
}

func (e *Evaluator) runTask(ctx context.Context, runID string, info core.ModelInfo, backend embedder.Provider, t task.TaskInfo, logger *zap.Logger) error {
	short := info.ShortName()
	logger = logger.With(zap.String("task", t.Name))

	if e.opts.Ledger != nil {
		done, err := e.opts.Ledger.IsCompleted(ctx, short, t.Name)
		if err != nil {
			return core.NewEvalError("Run", fmt.Errorf("ledger: %w", err))
		}
		if done {
			logger.Info("skipping completed task")
			if e.opts.Metrics != nil {
				e.opts.Metrics.RecordTaskEvaluation(short, t.Name, metrics.StatusSkipped, 0)
			}
			return nil
		}
	}

	model := wrapper.ForTask(backend, info, t)
	resolved, err := e.opts.Resolver.Resolve(t)
	if err != nil {
		return core.NewEvalError("Run", err)
	}
	splits := task.EvalSplits(t.Name)
	out := e.OutputFolder(info)

	logger.Info("evaluating task", zap.Strings("splits", splits), zap.String("output", out))
	start := e.now()
	err = e.opts.Runner.Run(ctx, resolved, model, benchmark.RunOptions{
		EvalSplits:   splits,
		OutputFolder: out,
	})
	elapsed := e.now().Sub(start)
	if err != nil {
		if e.opts.Metrics != nil {
			e.opts.Metrics.RecordTaskEvaluation(short, t.Name, metrics.StatusFailure, elapsed)
		}
		return core.NewEvalError("Run", fmt.Errorf("%w: %s on %s: %w", core.ErrExecution, info.ModelName, t.Name, err))
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.RecordTaskEvaluation(short, t.Name, metrics.StatusSuccess, elapsed)
	}
	logger.Info("task finished", zap.Duration("elapsed", elapsed))

	if e.opts.Ledger != nil {
		entry := &ledger.Entry{
			ID:          e.opts.IDs.NextID(),
			RunID:       runID,
			Model:       short,
			Task:        t.Name,
			Split:       strings.Join(splits, ","),
			CompletedAt: e.now().UTC(),
		}
		if err := e.opts.Ledger.MarkCompleted(ctx, entry); err != nil {
			return core.NewEvalError("Run", fmt.Errorf("ledger: %w", err))
		}
	}
	return nil
}
