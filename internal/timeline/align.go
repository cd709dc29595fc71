// Package timeline turns the sparse per-series counts returned by the
// analytics API into the dense, shared-x-axis table consumed by chart widgets.
package timeline

import "sort"

// XLabel marks the x-axis column of an aligned table.
const XLabel = "x"

// Metadata keys of an analytics timeline answer. They are never series.
const (
	KeyInterval = "interval"
	KeyFromDate = "from_date"
)

// Entry is one observation of a series.
type Entry struct {
	Time  float64 `json:"time"`
	Count int64   `json:"count"`
}

// Series is a named sequence of observations, e.g. one protocol or host.
type Series struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
}

// Response is a decoded timeline answer. Series keep the order their keys
// appeared in the source document.
type Response struct {
	Series   []Series `json:"series"`
	Interval any      `json:"interval,omitempty"`
	FromDate any      `json:"from_date,omitempty"`
}

// Table is the aligned output: Columns[0] is the x column, every other column
// starts with the series name followed by one value per timestamp.
type Table struct {
	X       string  `json:"x"`
	Columns [][]any `json:"columns"`
}

// Timestamps returns the x column values without the label.
func (t Table) Timestamps() []float64 {
	if len(t.Columns) == 0 {
		return nil
	}
	out := make([]float64, 0, len(t.Columns[0])-1)
	for _, v := range t.Columns[0][1:] {
		if f, ok := v.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}

// Empty reports whether the table carries no data. Charts are not rendered
// for empty tables.
func (t Table) Empty() bool {
	return len(t.Columns) == 0
}

// Aligner densifies sparse series. Fill is the value used for timestamps a
// series did not report; the zero Aligner uses int64(0).
type Aligner struct {
	Fill    any
	fillSet bool
}

// WithFill returns an Aligner filling gaps with v. A nil v renders as JSON null.
func WithFill(v any) Aligner {
	return Aligner{Fill: v, fillSet: true}
}

// WithGaps returns an Aligner that leaves gaps as null markers.
func WithGaps() Aligner {
	return WithFill(nil)
}

func (a Aligner) fill() any {
	if !a.fillSet && a.Fill == nil {
		return int64(0)
	}
	return a.Fill
}

// Align aligns resp filling gaps with zero.
func Align(resp Response) Table {
	return Aligner{}.Align(resp)
}

// Align builds the aligned table for resp. The x column holds the sorted union
// of all timestamps; series columns follow in first-seen order. When no series
// reported any timestamp the column list is empty. A series named like the x
// column is dropped since the chart widget would read it as the axis.
func (a Aligner) Align(resp Response) Table {
	type indexed struct {
		name   string
		counts map[float64]int64
	}

	rows := make([]indexed, 0, len(resp.Series))
	seen := make(map[float64]struct{})
	for _, s := range resp.Series {
		if isReserved(s.Name) {
			continue
		}
		counts := make(map[float64]int64, len(s.Entries))
		for _, e := range s.Entries {
			counts[e.Time] = e.Count
			seen[e.Time] = struct{}{}
		}
		rows = append(rows, indexed{name: s.Name, counts: counts})
	}

	out := Table{X: XLabel, Columns: [][]any{}}
	if len(seen) == 0 {
		return out
	}

	times := make([]float64, 0, len(seen))
	for t := range seen {
		times = append(times, t)
	}
	sort.Float64s(times)

	xcol := make([]any, 0, len(times)+1)
	xcol = append(xcol, XLabel)
	for _, t := range times {
		xcol = append(xcol, t)
	}
	out.Columns = append(out.Columns, xcol)

	fill := a.fill()
	for _, r := range rows {
		col := make([]any, 0, len(times)+1)
		col = append(col, r.name)
		for _, t := range times {
			if v, ok := r.counts[t]; ok {
				col = append(col, v)
			} else {
				col = append(col, fill)
			}
		}
		out.Columns = append(out.Columns, col)
	}
	return out
}

func isReserved(key string) bool {
	return key == KeyInterval || key == KeyFromDate || key == XLabel
}
