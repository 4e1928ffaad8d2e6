package benchmark

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/oceanbase/plmteb-go/pkg/wrapper"
)

// RunOptions selects what a Runner evaluates and where it writes.
type RunOptions struct {
	// EvalSplits are the splits to evaluate, in order.
	EvalSplits []string

	// OutputFolder receives the result artifact and prediction files.
	OutputFolder string
}

// SplitResult describes one evaluated split.
type SplitResult struct {
	NumSamples      int     `json:"num_samples"`
	EvaluationTime  float64 `json:"evaluation_time"`
	PredictionsFile string  `json:"predictions_file"`

	// Classification only: the encoded train split the classifier is fit on.
	NumTrainSamples      int    `json:"num_train_samples,omitempty"`
	TrainPredictionsFile string `json:"train_predictions_file,omitempty"`
}

// Result is the artifact written to <OutputFolder>/<Task>.json.
type Result struct {
	TaskName   string                 `json:"task_name"`
	TaskType   string                 `json:"task_type"`
	Languages  []string               `json:"languages"`
	ModelName  string                 `json:"model_name"`
	Splits     map[string]SplitResult `json:"splits"`
	FinishedAt time.Time              `json:"finished_at"`
}

// Runner evaluates tasks and persists what they produce.
type Runner struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewRunner creates a runner. A nil logger discards output.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger, now: time.Now}
}

// Run evaluates model on every split of opts and writes the artifacts.
// Artifacts of a previous run are overwritten.
func (r *Runner) Run(ctx context.Context, task Task, model wrapper.Model, opts RunOptions) error {
	if len(opts.EvalSplits) == 0 {
		return fmt.Errorf("benchmark: %s: no evaluation splits", task.Name())
	}
	if opts.OutputFolder == "" {
		return fmt.Errorf("benchmark: %s: output folder is required", task.Name())
	}
	if err := os.MkdirAll(opts.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("benchmark: create output folder: %w", err)
	}

	result := Result{
		TaskName:  task.Name(),
		TaskType:  string(task.Type()),
		Languages: task.Languages(),
		ModelName: model.Info().ModelName,
		Splits:    make(map[string]SplitResult, len(opts.EvalSplits)),
	}

	for _, split := range opts.EvalSplits {
		start := r.now()
		preds, err := task.Evaluate(ctx, model, split)
		if err != nil {
			return fmt.Errorf("benchmark: %s/%s: %w", task.Name(), split, err)
		}
		if preds == nil {
			return fmt.Errorf("benchmark: %s/%s: task returned no predictions", task.Name(), split)
		}
		elapsed := r.now().Sub(start)

		name := fmt.Sprintf("%s.%s.predictions.jsonl", task.Name(), split)
		if err := writePredictions(filepath.Join(opts.OutputFolder, name), preds.Records); err != nil {
			return fmt.Errorf("benchmark: %s/%s: %w", task.Name(), split, err)
		}
		splitResult := SplitResult{
			NumSamples:      preds.NumSamples,
			EvaluationTime:  elapsed.Seconds(),
			PredictionsFile: name,
		}
		if preds.Train != nil {
			trainName := fmt.Sprintf("%s.%s.predictions.jsonl", task.Name(), TrainSplit)
			if err := writePredictions(filepath.Join(opts.OutputFolder, trainName), preds.Train.Records); err != nil {
				return fmt.Errorf("benchmark: %s/%s: %w", task.Name(), TrainSplit, err)
			}
			splitResult.NumTrainSamples = preds.Train.NumSamples
			splitResult.TrainPredictionsFile = trainName
		}
		result.Splits[split] = splitResult
		r.logger.Debug("split evaluated",
			zap.String("task", task.Name()),
			zap.String("split", split),
			zap.Int("samples", preds.NumSamples),
			zap.Duration("elapsed", elapsed))
	}

	result.FinishedAt = r.now().UTC()
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("benchmark: marshal result: %w", err)
	}
	return writeAtomic(filepath.Join(opts.OutputFolder, task.Name()+".json"), func(w *bufio.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}

func writePredictions(path string, records []interface{}) error {
	return writeAtomic(path, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeAtomic writes to a temporary sibling and renames it over path.
func writeAtomic(path string, fill func(*bufio.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := bufio.NewWriter(tmp)
	if err := fill(w); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
