package prepare

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/oceanbase/plmteb-go/pkg/benchmark"
)

var routines = []Routine{
	{Name: "SICK-R-PL", Source: "sdadas/sick_pl", Output: "sickr-pl-sts", run: stsRoutine("sentence_A", "sentence_B", "relatedness_score")},
	{Name: "SICK-E-PL", Source: "sdadas/sick_pl", Output: "sicke-pl-pairclassification", run: pairRoutine("sentence_A", "sentence_B", entailment)},
	{Name: "CDSC-R", Source: "allegro/klej-cdsc-r", Output: "cdscr-sts", run: stsRoutine("sentence_A", "sentence_B", "relatedness_score")},
	{Name: "CDSC-E", Source: "allegro/klej-cdsc-e", Output: "cdsce-pairclassification", run: pairRoutine("sentence_A", "sentence_B", entailment)},
	{Name: "PPC", Source: "sdadas/ppc", Output: "ppc-pairclassification", run: pairRoutine("sentence_A", "sentence_B", paraphrase)},
	{Name: "PSC", Source: "allegro/klej-psc", Output: "psc-pairclassification", run: pairRoutine("extract_text", "summary_text", intLabel("label"))},
	{Name: "CBD", Source: "allegro/klej-cbd", Output: "cbd", run: classificationRoutine("sentence", "target", false)},
	{Name: "PolEmo2.0-IN", Source: "allegro/klej-polemo2-in", Output: "polemo2_in", run: classificationRoutine("sentence", "target", true)},
	{Name: "PolEmo2.0-OUT", Source: "allegro/klej-polemo2-out", Output: "polemo2_out", run: classificationRoutine("sentence", "target", true)},
	{Name: "AllegroReviews", Source: "allegro/klej-allegro-reviews", Output: "allegro-reviews", run: classificationRoutine("text", "rating", false)},
	{Name: "8TagsClustering", Source: "sdadas/8tags", Output: "8tags-clustering", run: eightTags},
	{Name: "HateSpeechPLClustering", Source: "hate_speech_pl", Output: "hate_speech_pl-clustering", run: hateSpeech},
}

func splitPath(out, split, ext string) string {
	return filepath.Join(out, split+ext)
}

// stsRoutine renames a scored sentence pair to sentence1, sentence2, score.
func stsRoutine(a, b, score string) func(*Preparer, []Split, string) error {
	return func(_ *Preparer, splits []Split, out string) error {
		for _, s := range splits {
			records := make([]benchmark.STSRecord, 0, len(s.Rows))
			for i, row := range s.Rows {
				var rec benchmark.STSRecord
				var err error
				if rec.Sentence1, err = row.text(a); err != nil {
					return fmt.Errorf("%s row %d: %w", s.Name, i, err)
				}
				if rec.Sentence2, err = row.text(b); err != nil {
					return fmt.Errorf("%s row %d: %w", s.Name, i, err)
				}
				if rec.Score, err = row.number(score); err != nil {
					return fmt.Errorf("%s row %d: %w", s.Name, i, err)
				}
				records = append(records, rec)
			}
			if err := writeRecords(splitPath(out, s.Name, ".jsonl"), records); err != nil {
				return err
			}
		}
		return nil
	}
}

type labelFunc func(Row) (int, error)

func entailment(row Row) (int, error) {
	j, err := row.text("entailment_judgment")
	if err != nil {
		return 0, err
	}
	if j == "ENTAILMENT" {
		return 1, nil
	}
	return 0, nil
}

// paraphrase maps the PPC 1-3 scale to binary: exact and close paraphrases are positive.
func paraphrase(row Row) (int, error) {
	l, err := row.integer("label")
	if err != nil {
		return 0, err
	}
	if l <= 2 {
		return 1, nil
	}
	return 0, nil
}

func intLabel(key string) labelFunc {
	return func(row Row) (int, error) { return row.integer(key) }
}

// pairRoutine writes every split as a single record of aligned columns.
func pairRoutine(a, b string, label labelFunc) func(*Preparer, []Split, string) error {
	return func(_ *Preparer, splits []Split, out string) error {
		for _, s := range splits {
			rec := benchmark.PairClassificationRecord{
				Sent1:  make([]string, 0, len(s.Rows)),
				Sent2:  make([]string, 0, len(s.Rows)),
				Labels: make([]int, 0, len(s.Rows)),
			}
			for i, row := range s.Rows {
				s1, err := row.text(a)
				if err != nil {
					return fmt.Errorf("%s row %d: %w", s.Name, i, err)
				}
				s2, err := row.text(b)
				if err != nil {
					return fmt.Errorf("%s row %d: %w", s.Name, i, err)
				}
				l, err := label(row)
				if err != nil {
					return fmt.Errorf("%s row %d: %w", s.Name, i, err)
				}
				rec.Sent1 = append(rec.Sent1, s1)
				rec.Sent2 = append(rec.Sent2, s2)
				rec.Labels = append(rec.Labels, l)
			}
			if err := writeRecords(splitPath(out, s.Name, ".json"), []benchmark.PairClassificationRecord{rec}); err != nil {
				return err
			}
		}
		return nil
	}
}

// classificationRoutine renames text and label columns. With encode set,
// labels are replaced by their index among the sorted distinct labels of all
// splits.
func classificationRoutine(textKey, labelKey string, encode bool) func(*Preparer, []Split, string) error {
	return func(_ *Preparer, splits []Split, out string) error {
		var classes map[string]int
		if encode {
			var err error
			if classes, err = classIndex(splits, labelKey); err != nil {
				return err
			}
		}

		for _, s := range splits {
			records := make([]benchmark.ClassificationRecord, 0, len(s.Rows))
			for i, row := range s.Rows {
				text, err := row.text(textKey)
				if err != nil {
					return fmt.Errorf("%s row %d: %w", s.Name, i, err)
				}
				label, err := row.value(labelKey)
				if err != nil {
					return fmt.Errorf("%s row %d: %w", s.Name, i, err)
				}
				if encode {
					label = classes[fmt.Sprint(label)]
				}
				records = append(records, benchmark.ClassificationRecord{Text: text, Label: label})
			}
			if err := writeRecords(splitPath(out, s.Name, ".jsonl"), records); err != nil {
				return err
			}
		}
		return nil
	}
}

func classIndex(splits []Split, key string) (map[string]int, error) {
	seen := map[string]bool{}
	for _, s := range splits {
		for i, row := range s.Rows {
			v, err := row.value(key)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", s.Name, i, err)
			}
			seen[fmt.Sprint(v)] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	classes := make(map[string]int, len(names))
	for i, name := range names {
		classes[name] = i
	}
	return classes, nil
}

// eightTags pools every split and cuts it into fixed-size clustering sets.
func eightTags(p *Preparer, splits []Split, out string) error {
	var sentences []string
	var labels []interface{}
	for _, s := range splits {
		for i, row := range s.Rows {
			text, err := row.text("sentence")
			if err != nil {
				return fmt.Errorf("%s row %d: %w", s.Name, i, err)
			}
			label, err := row.value("label")
			if err != nil {
				return fmt.Errorf("%s row %d: %w", s.Name, i, err)
			}
			sentences = append(sentences, text)
			labels = append(labels, label)
		}
	}
	return writeClusters(splitPath(out, "test", ".jsonl"), sentences, labels, p.EightTagsChunkSize)
}

var markupWords = map[string]bool{"lt": true, "gt": true, "align": true, "strong": true, "justify": true}

// CleanHTML returns the text content of s with leftover markup words removed.
func CleanHTML(s string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return "", err
	}
	words := strings.Fields(doc.Text())
	kept := words[:0]
	for _, w := range words {
		if !markupWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " "), nil
}

// hateSpeech keeps the train split, drops rare topics and cuts the rest into
// HateSpeechSets clustering sets labeled by topic.
func hateSpeech(p *Preparer, splits []Split, out string) error {
	var train *Split
	for i := range splits {
		if splits[i].Name == "train" {
			train = &splits[i]
		}
	}
	if train == nil {
		return fmt.Errorf("no train split")
	}

	counts := map[string]int{}
	topics := make([]interface{}, len(train.Rows))
	for i, row := range train.Rows {
		topic, err := row.value("topic")
		if err != nil {
			return fmt.Errorf("train row %d: %w", i, err)
		}
		topics[i] = topic
		counts[fmt.Sprint(topic)]++
	}

	var sentences []string
	var labels []interface{}
	for i, row := range train.Rows {
		if counts[fmt.Sprint(topics[i])] < p.MinTopicRows {
			continue
		}
		raw, err := row.text("text")
		if err != nil {
			return fmt.Errorf("train row %d: %w", i, err)
		}
		text, err := CleanHTML(raw)
		if err != nil {
			return fmt.Errorf("train row %d: %w", i, err)
		}
		sentences = append(sentences, text)
		labels = append(labels, topics[i])
	}

	sets := p.HateSpeechSets
	if sets <= 0 {
		sets = DefaultHateSpeechSets
	}
	size := int(math.Ceil(float64(len(sentences)) / float64(sets)))
	return writeClusters(splitPath(out, "test", ".json"), sentences, labels, size)
}

func writeClusters(path string, sentences []string, labels []interface{}, size int) error {
	textSets := chunk(sentences, size)
	labelSets := chunk(labels, size)
	records := make([]benchmark.ClusteringRecord, len(textSets))
	for i := range textSets {
		records[i] = benchmark.ClusteringRecord{Sentences: textSets[i], Labels: labelSets[i]}
	}
	return writeRecords(path, records)
}
