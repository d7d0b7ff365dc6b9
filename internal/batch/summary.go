package batch

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// FieldSummary describes the finite values of one numeric report field.
type FieldSummary struct {
	Field  string  `json:"field"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summary aggregates the reports of a batch.
type Summary struct {
	Images  int            `json:"images"`
	Failed  int            `json:"failed"`
	Flagged int            `json:"flagged"`
	Fields  []FieldSummary `json:"fields"`
	Errors  map[string]int `json:"errors"`
}

// Summarize computes per-field statistics and flag counts. Fields without
// any finite value are left out.
func Summarize(items []Item) Summary {
	s := Summary{Images: len(items), Errors: map[string]int{}}
	values := map[string][]float64{}

	for _, it := range items {
		if it.Report == nil {
			s.Failed++
			continue
		}
		errs := it.Report.Errors()
		if len(errs) > 0 {
			s.Flagged++
		}
		for _, e := range errs {
			s.Errors[e]++
		}
		for _, f := range it.Report.Fields {
			v, ok := f.Value.(float64)
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			values[f.Key] = append(values[f.Key], v)
		}
	}

	for field, xs := range values {
		sort.Float64s(xs)
		s.Fields = append(s.Fields, FieldSummary{
			Field:  field,
			Count:  len(xs),
			Mean:   stat.Mean(xs, nil),
			Median: stat.Quantile(0.5, stat.Empirical, xs, nil),
			Min:    xs[0],
			Max:    xs[len(xs)-1],
		})
	}
	sort.Slice(s.Fields, func(i, j int) bool {
		return s.Fields[i].Field < s.Fields[j].Field
	})
	return s
}

// Field returns the summary of one field.
func (s Summary) Field(name string) (FieldSummary, bool) {
	for _, f := range s.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldSummary{}, false
}

func writeSummary(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
