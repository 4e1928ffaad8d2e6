package benchmark

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// splitFile returns the data file of split under dir, accepting both the
// .jsonl and .json extensions written by the preparation routines.
func splitFile(dir, split string) (string, error) {
	for _, ext := range []string{".jsonl", ".json"} {
		path := filepath.Join(dir, split+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrSplitNotFound, split, dir)
}

// readJSONLines decodes every line of path into a new T.
func readJSONLines[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var rows []T
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var row T
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

// STSRecord is one sentence pair with a relatedness score.
type STSRecord struct {
	Sentence1 string  `json:"sentence1"`
	Sentence2 string  `json:"sentence2"`
	Score     float64 `json:"score"`
}

// PairClassificationRecord holds aligned columns of sentence pairs and labels.
type PairClassificationRecord struct {
	Sent1  []string `json:"sent1"`
	Sent2  []string `json:"sent2"`
	Labels []int    `json:"labels"`
}

// ClassificationRecord is one labeled text.
type ClassificationRecord struct {
	Text  string      `json:"text"`
	Label interface{} `json:"label"`
}

// ClusteringRecord is one set of texts with their cluster labels.
type ClusteringRecord struct {
	Sentences []string      `json:"sentences"`
	Labels    []interface{} `json:"labels"`
}

// Query is one retrieval query.
type Query struct {
	ID   string `json:"_id"`
	Text string `json:"text"`
}

// readQrels returns the query ids of a BEIR qrels TSV in file order.
// The first line is a header.
func readQrels(path string) ([]string, map[string]map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(bufio.NewReader(f))
	r.Comma = '\t'
	r.FieldsPerRecord = -1

	var order []string
	qrels := make(map[string]map[string]int)
	line := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		line++
		if line == 1 || len(rec) < 3 {
			continue
		}
		score, err := strconv.Atoi(rec[2])
		if err != nil {
			return nil, nil, fmt.Errorf("read %s line %d: %w", path, line, err)
		}
		qid, did := rec[0], rec[1]
		if _, seen := qrels[qid]; !seen {
			qrels[qid] = make(map[string]int)
			order = append(order, qid)
		}
		qrels[qid][did] = score
	}
	return order, qrels, nil
}
