package timeline

import (
	"github.com/montanaflynn/stats"
)

// SeriesSummary holds per-series figures shown next to the chart legend.
type SeriesSummary struct {
	Name  string  `json:"name"`
	Total int64   `json:"total"`
	Peak  int64   `json:"peak"`
	Mean  float64 `json:"mean"`
}

// Summarize computes totals over the aligned values of every series column.
// Gap markers count as zero.
func Summarize(t Table) []SeriesSummary {
	if len(t.Columns) < 2 {
		return []SeriesSummary{}
	}

	out := make([]SeriesSummary, 0, len(t.Columns)-1)
	for _, col := range t.Columns[1:] {
		name, _ := col[0].(string)
		values := make(stats.Float64Data, 0, len(col)-1)
		for _, v := range col[1:] {
			values = append(values, asFloat(v))
		}

		item := SeriesSummary{Name: name}
		if sum, err := values.Sum(); err == nil {
			item.Total = int64(sum)
		}
		if peak, err := values.Max(); err == nil {
			item.Peak = int64(peak)
		}
		if mean, err := values.Mean(); err == nil {
			item.Mean = mean
		}
		out = append(out, item)
	}
	return out
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case float64:
		return x
	default:
		return 0
	}
}
