package benchmark_test

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oceanbase/plmteb-go/pkg/benchmark"
	"github.com/oceanbase/plmteb-go/pkg/core"
	"github.com/oceanbase/plmteb-go/pkg/wrapper"
)

// letterBackend embeds a text as counts of the letters a, b and c.
type letterBackend struct{}

func (letterBackend) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{
		float64(strings.Count(text, "a")),
		float64(strings.Count(text, "b")),
		float64(strings.Count(text, "c")),
	}, nil
}

func (b letterBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i], _ = b.Embed(ctx, text)
	}
	return out, nil
}

func (letterBackend) Dimensions() int { return 3 }
func (letterBackend) Close() error    { return nil }

var model = core.ModelInfo{ModelName: "org/letters", ModelType: core.ModelTypeStaticVectors}

func adapter(task benchmark.Task) wrapper.Model {
	return wrapper.ForTask(letterBackend{}, model, core.TaskInfo{Name: task.Name(), Type: task.Type()})
}

func writeFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, benchmark.CosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, benchmark.CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, benchmark.CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, benchmark.CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, benchmark.CosineSimilarity([]float64{1}, []float64{1, 1}))
}

func TestCatalog(t *testing.T) {
	catalog, err := benchmark.DefaultCatalog("data")
	require.NoError(t, err)

	task, err := catalog.Get("CDSC-E", []string{"pol"})
	require.NoError(t, err)
	assert.Equal(t, "CDSC-E", task.Name())
	assert.Equal(t, core.TaskTypePairClassification, task.Type())
	assert.Equal(t, []string{"pol"}, task.Languages())

	_, err = catalog.Get("CDSC-E", []string{"eng"})
	assert.ErrorIs(t, err, benchmark.ErrUnknownTask)

	_, err = catalog.Get("NoSuchTask", []string{"pol"})
	assert.ErrorIs(t, err, benchmark.ErrUnknownTask)

	assert.Contains(t, catalog.NamesByType(core.TaskTypeRetrieval), "MSMARCO-PL")
	assert.Equal(t, "CBD", catalog.Names()[0])
}

func TestNewCatalogRejectsBadDefinitions(t *testing.T) {
	_, err := benchmark.NewCatalog("data",
		benchmark.Definition{Name: "A", Type: core.TaskTypeSTS},
		benchmark.Definition{Name: "A", Type: core.TaskTypeSTS},
	)
	assert.Error(t, err)

	_, err = benchmark.NewCatalog("data", benchmark.Definition{Name: "B", Type: "Reranking"})
	assert.Error(t, err)
}

func TestRunnerSTS(t *testing.T) {
	data := t.TempDir()
	writeFile(t, filepath.Join(data, "sts", "test.jsonl"),
		`{"sentence1":"aa","sentence2":"a","score":5}`,
		`{"sentence1":"a","sentence2":"b","score":0.5}`,
	)
	task := benchmark.Definition{Name: "SICK-R-PL", Type: core.TaskTypeSTS, Languages: []string{"pol"}, Dir: "sts"}.Bind(data)

	out := filepath.Join(t.TempDir(), "org__letters")
	runner := benchmark.NewRunner(zap.NewNop())
	m := adapter(task)
	require.NoError(t, runner.Run(t.Context(), task, m, benchmark.RunOptions{EvalSplits: []string{"test"}, OutputFolder: out}))

	raw, err := os.ReadFile(filepath.Join(out, "SICK-R-PL.json"))
	require.NoError(t, err)
	var result benchmark.Result
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "SICK-R-PL", result.TaskName)
	assert.Equal(t, "STS", result.TaskType)
	assert.Equal(t, "org/letters", result.ModelName)
	require.Contains(t, result.Splits, "test")
	assert.Equal(t, 2, result.Splits["test"].NumSamples)
	assert.Equal(t, "SICK-R-PL.test.predictions.jsonl", result.Splits["test"].PredictionsFile)

	preds := readLines(t, filepath.Join(out, result.Splits["test"].PredictionsFile))
	require.Len(t, preds, 2)
	assert.InDelta(t, 1.0, preds[0]["cosine"], 1e-9)
	assert.Equal(t, 5.0, preds[0]["score"])
	assert.InDelta(t, 0.0, preds[1]["cosine"], 1e-9)
}

func TestRunnerPairClassification(t *testing.T) {
	data := t.TempDir()
	writeFile(t, filepath.Join(data, "pairs", "test.json"),
		`{"sent1":["a","b","c"],"sent2":["a","c","c"],"labels":[1,0,1]}`,
	)
	task := benchmark.Definition{Name: "CDSC-E", Type: core.TaskTypePairClassification, Dir: "pairs"}.Bind(data)

	out := t.TempDir()
	m := adapter(task)
	require.NoError(t, benchmark.NewRunner(nil).Run(t.Context(), task, m, benchmark.RunOptions{EvalSplits: []string{"test"}, OutputFolder: out}))

	preds := readLines(t, filepath.Join(out, "CDSC-E.test.predictions.jsonl"))
	require.Len(t, preds, 3)
	assert.Equal(t, 1.0, preds[0]["label"])
	assert.InDelta(t, 1.0, preds[0]["cosine"], 1e-9)
	assert.Equal(t, 0.0, preds[1]["label"])
	assert.InDelta(t, 0.0, preds[1]["cosine"], 1e-9)
}

func TestRunnerClassificationAndClustering(t *testing.T) {
	data := t.TempDir()
	writeFile(t, filepath.Join(data, "cls", "test.jsonl"),
		`{"text":"abc","label":"positive"}`,
		`{"text":"cc","label":"negative"}`,
	)
	writeFile(t, filepath.Join(data, "cls", "train.jsonl"),
		`{"text":"a","label":"positive"}`,
	)
	writeFile(t, filepath.Join(data, "clu", "test.jsonl"),
		`{"sentences":["a","b"],"labels":[0,1]}`,
		`{"sentences":["c"],"labels":[2]}`,
	)
	out := t.TempDir()
	runner := benchmark.NewRunner(nil)

	cls := benchmark.Definition{Name: "CBD", Type: core.TaskTypeClassification, Dir: "cls"}.Bind(data)
	require.NoError(t, runner.Run(t.Context(), cls, adapter(cls),
		benchmark.RunOptions{EvalSplits: []string{"test"}, OutputFolder: out}))
	preds := readLines(t, filepath.Join(out, "CBD.test.predictions.jsonl"))
	require.Len(t, preds, 2)
	assert.Equal(t, "positive", preds[0]["label"])
	assert.Equal(t, []interface{}{1.0, 1.0, 1.0}, preds[0]["embedding"])

	clu := benchmark.Definition{Name: "8TagsClustering", Type: core.TaskTypeClustering, Dir: "clu"}.Bind(data)
	require.NoError(t, runner.Run(t.Context(), clu, adapter(clu),
		benchmark.RunOptions{EvalSplits: []string{"test"}, OutputFolder: out}))
	preds = readLines(t, filepath.Join(out, "8TagsClustering.test.predictions.jsonl"))
	require.Len(t, preds, 3)
	assert.Equal(t, 1.0, preds[2]["set"])
	assert.Equal(t, 2.0, preds[2]["label"])
}

func TestRunnerRetrieval(t *testing.T) {
	data := t.TempDir()
	root := filepath.Join(data, "msmarco")
	writeFile(t, filepath.Join(root, "corpus.jsonl"),
		`{"_id":"d1","title":"a","text":"a"}`,
		`{"_id":"d2","title":"","text":"b"}`,
		`{"_id":"d3","title":"c","text":"cc"}`,
	)
	writeFile(t, filepath.Join(root, "queries.jsonl"),
		`{"_id":"q1","text":"bbb"}`,
		`{"_id":"q2","text":"ccc"}`,
		`{"_id":"q3","text":"unused"}`,
	)
	writeFile(t, filepath.Join(root, "qrels", "validation.tsv"),
		"query-id\tcorpus-id\tscore",
		"q2\td3\t1",
		"q1\td2\t1",
	)
	task := benchmark.Definition{Name: "MSMARCO-PL", Type: core.TaskTypeRetrieval, Dir: "msmarco", TopK: 2}.Bind(data)

	out := t.TempDir()
	m := adapter(task)
	require.NoError(t, benchmark.NewRunner(nil).Run(t.Context(), task, m,
		benchmark.RunOptions{EvalSplits: []string{"validation"}, OutputFolder: out}))

	preds := readLines(t, filepath.Join(out, "MSMARCO-PL.validation.predictions.jsonl"))
	require.Len(t, preds, 2)
	assert.Equal(t, "q2", preds[0]["query_id"])
	hits := preds[0]["hits"].([]interface{})
	require.Len(t, hits, 2)
	assert.Equal(t, "d3", hits[0].(map[string]interface{})["corpus_id"])
	assert.Equal(t, map[string]interface{}{"d3": 1.0}, preds[0]["relevant"])

	assert.Equal(t, "q1", preds[1]["query_id"])
	assert.Equal(t, "d2", preds[1]["hits"].([]interface{})[0].(map[string]interface{})["corpus_id"])

	_, err := os.Stat(filepath.Join(out, "MSMARCO-PL.test.predictions.jsonl"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunnerErrors(t *testing.T) {
	data := t.TempDir()
	sts := benchmark.Definition{Name: "CDSC-R", Type: core.TaskTypeSTS, Dir: "missing"}.Bind(data)
	runner := benchmark.NewRunner(nil)
	out := t.TempDir()

	err := runner.Run(t.Context(), sts, adapter(sts),
		benchmark.RunOptions{EvalSplits: []string{"test"}, OutputFolder: out})
	assert.ErrorIs(t, err, benchmark.ErrSplitNotFound)

	err = runner.Run(t.Context(), sts, wrapper.ForTask(letterBackend{}, model, core.TaskInfo{Name: sts.Name(), Type: core.TaskTypeRetrieval}),
		benchmark.RunOptions{EvalSplits: []string{"test"}, OutputFolder: out})
	assert.ErrorIs(t, err, benchmark.ErrAdapterMismatch)

	err = runner.Run(t.Context(), sts, adapter(sts),
		benchmark.RunOptions{OutputFolder: out})
	assert.Error(t, err)

	_, err = os.Stat(filepath.Join(out, "CDSC-R.json"))
	assert.True(t, os.IsNotExist(err))
}

// recordingEncoder records every text it is asked to encode.
type recordingEncoder struct {
	seen []string
}

func (r *recordingEncoder) Info() core.ModelInfo { return model }

func (r *recordingEncoder) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	r.seen = append(r.seen, texts...)
	return letterBackend{}.EmbedBatch(ctx, texts)
}

func TestRunnerClassificationEncodesTrainSplit(t *testing.T) {
	data := t.TempDir()
	writeFile(t, filepath.Join(data, "cbd", "train.jsonl"),
		`{"text":"TRAIN-a","label":0}`,
		`{"text":"TRAIN-b","label":1}`,
		`{"text":"TRAIN-c","label":1}`,
	)
	writeFile(t, filepath.Join(data, "cbd", "test.jsonl"),
		`{"text":"TEST","label":0}`,
	)
	task := benchmark.Definition{Name: "CBD", Type: core.TaskTypeClassification, Dir: "cbd"}.Bind(data)
	enc := &recordingEncoder{}
	out := t.TempDir()

	require.NoError(t, benchmark.NewRunner(nil).Run(t.Context(), task, enc,
		benchmark.RunOptions{EvalSplits: []string{"test"}, OutputFolder: out}))
	assert.ElementsMatch(t, []string{"TEST", "TRAIN-a", "TRAIN-b", "TRAIN-c"}, enc.seen)

	train := readLines(t, filepath.Join(out, "CBD.train.predictions.jsonl"))
	require.Len(t, train, 3)
	assert.Equal(t, 1.0, train[1]["label"])
	assert.Len(t, readLines(t, filepath.Join(out, "CBD.test.predictions.jsonl")), 1)

	raw, err := os.ReadFile(filepath.Join(out, "CBD.json"))
	require.NoError(t, err)
	var result benchmark.Result
	require.NoError(t, json.Unmarshal(raw, &result))
	split := result.Splits["test"]
	assert.Equal(t, 1, split.NumSamples)
	assert.Equal(t, 3, split.NumTrainSamples)
	assert.Equal(t, "CBD.train.predictions.jsonl", split.TrainPredictionsFile)
	assert.NotContains(t, result.Splits, "train")
}

func TestRunnerClassificationRequiresTrainSplit(t *testing.T) {
	data := t.TempDir()
	writeFile(t, filepath.Join(data, "cbd", "test.jsonl"), `{"text":"x","label":0}`)
	task := benchmark.Definition{Name: "CBD", Type: core.TaskTypeClassification, Dir: "cbd"}.Bind(data)

	err := benchmark.NewRunner(nil).Run(t.Context(), task, &recordingEncoder{},
		benchmark.RunOptions{EvalSplits: []string{"test"}, OutputFolder: t.TempDir()})
	assert.ErrorIs(t, err, benchmark.ErrSplitNotFound)
}

// emptyTask returns neither predictions nor an error.
type emptyTask struct{}

func (emptyTask) Name() string        { return "Empty" }
func (emptyTask) Type() core.TaskType { return core.TaskTypeSTS }
func (emptyTask) Languages() []string { return []string{"pol"} }

func (emptyTask) Evaluate(context.Context, wrapper.Model, string) (*benchmark.Predictions, error) {
	return nil, nil
}

func TestRunnerRejectsMissingPredictions(t *testing.T) {
	out := t.TempDir()
	err := benchmark.NewRunner(nil).Run(t.Context(), emptyTask{}, &recordingEncoder{},
		benchmark.RunOptions{EvalSplits: []string{"test"}, OutputFolder: out})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no predictions")

	_, err = os.Stat(filepath.Join(out, "Empty.json"))
	assert.True(t, os.IsNotExist(err))
}
