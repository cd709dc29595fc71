package timeline

import (
	"encoding/json"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) Response {
	t.Helper()
	resp, err := ParseResponse([]byte(raw), Strict)
	require.NoError(t, err)
	return resp
}

func TestAlign_SingleSeriesSkipsMetadata(t *testing.T) {
	resp := mustParse(t, `{"interval":"1h","from_date":100,"seriesA":{"entries":[{"time":5,"count":3},{"time":10,"count":7}]}}`)

	got := Align(resp)

	assert.Equal(t, "x", got.X)
	assert.Equal(t, [][]any{
		{"x", 5.0, 10.0},
		{"seriesA", int64(3), int64(7)},
	}, got.Columns)
}

func TestAlign_TwoSeriesDensifiedWithZero(t *testing.T) {
	resp := mustParse(t, `{"seriesA":{"entries":[{"time":1,"count":2}]},"seriesB":{"entries":[{"time":2,"count":9}]}}`)

	got := Align(resp)

	assert.Equal(t, [][]any{
		{"x", 1.0, 2.0},
		{"seriesA", int64(2), int64(0)},
		{"seriesB", int64(0), int64(9)},
	}, got.Columns)
}

func TestAlign_AllEmptyEntriesYieldsNoColumns(t *testing.T) {
	resp := mustParse(t, `{"interval":"1h","seriesA":{"entries":[]},"seriesB":{"entries":[]}}`)

	got := Align(resp)

	require.NotNil(t, got.Columns)
	assert.Empty(t, got.Columns)
	assert.True(t, got.Empty())

	blob, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":"x","columns":[]}`, string(blob))
}

func TestAlign_SingleZeroCountEntry(t *testing.T) {
	resp := mustParse(t, `{"seriesA":{"entries":[{"time":42,"count":0}]}}`)

	got := Align(resp)

	assert.Equal(t, [][]any{
		{"x", 42.0},
		{"seriesA", int64(0)},
	}, got.Columns)
}

func TestAlign_NoSeries(t *testing.T) {
	got := Align(Response{})
	assert.Equal(t, "x", got.X)
	assert.Empty(t, got.Columns)
}

func TestAlign_SortsNumericallyNotLexically(t *testing.T) {
	resp := Response{Series: []Series{
		{Name: "dns", Entries: []Entry{{Time: 100, Count: 1}, {Time: 9, Count: 2}, {Time: 20, Count: 3}}},
	}}

	got := Align(resp)

	assert.Equal(t, []any{"x", 9.0, 20.0, 100.0}, got.Columns[0])
	assert.Equal(t, []any{"dns", int64(2), int64(3), int64(1)}, got.Columns[1])
}

func TestAlign_SeriesOrderFollowsInput(t *testing.T) {
	resp := mustParse(t, `{"zeta":{"entries":[{"time":1,"count":1}]},"alpha":{"entries":[{"time":1,"count":2}]},"from_date":0,"mid":{"entries":[]}}`)

	got := Align(resp)

	require.Len(t, got.Columns, 4)
	assert.Equal(t, "zeta", got.Columns[1][0])
	assert.Equal(t, "alpha", got.Columns[2][0])
	assert.Equal(t, []any{"mid", int64(0)}, got.Columns[3])
}

func TestAlign_DuplicateTimestampKeepsLastCount(t *testing.T) {
	resp := Response{Series: []Series{
		{Name: "http", Entries: []Entry{{Time: 5, Count: 1}, {Time: 5, Count: 4}}},
	}}

	got := Align(resp)

	assert.Equal(t, [][]any{{"x", 5.0}, {"http", int64(4)}}, got.Columns)
}

func TestAlign_ReservedNamesInjectedDirectlyAreIgnored(t *testing.T) {
	resp := Response{Series: []Series{
		{Name: KeyInterval, Entries: []Entry{{Time: 1, Count: 1}}},
		{Name: "tls", Entries: []Entry{{Time: 2, Count: 3}}},
	}}

	got := Align(resp)

	assert.Equal(t, [][]any{{"x", 2.0}, {"tls", int64(3)}}, got.Columns)
}

func TestAlign_SeriesNamedLikeXColumnIsDropped(t *testing.T) {
	resp := mustParse(t, `{"x":{"entries":[{"time":7,"count":1}]},"tls":{"entries":[{"time":2,"count":3}]}}`)

	got := Align(resp)

	assert.Equal(t, [][]any{{"x", 2.0}, {"tls", int64(3)}}, got.Columns)
}

func TestAligner_GapFill(t *testing.T) {
	resp := Response{Series: []Series{
		{Name: "a", Entries: []Entry{{Time: 1, Count: 2}}},
		{Name: "b", Entries: []Entry{{Time: 2, Count: 9}}},
	}}

	got := WithGaps().Align(resp)
	assert.Equal(t, []any{"a", int64(2), nil}, got.Columns[1])
	assert.Equal(t, []any{"b", nil, int64(9)}, got.Columns[2])

	custom := WithFill(int64(-1)).Align(resp)
	assert.Equal(t, []any{"a", int64(2), int64(-1)}, custom.Columns[1])
}

func TestAlign_DoesNotShareStateAcrossCalls(t *testing.T) {
	first := Align(Response{Series: []Series{{Name: "a", Entries: []Entry{{Time: 1, Count: 1}}}}})
	second := Align(Response{Series: []Series{{Name: "b", Entries: []Entry{{Time: 2, Count: 2}}}}})

	assert.Equal(t, [][]any{{"x", 1.0}, {"a", int64(1)}}, first.Columns)
	assert.Equal(t, [][]any{{"x", 2.0}, {"b", int64(2)}}, second.Columns)
}

func TestAlign_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		resp := Response{}
		present := map[string]map[float64]int64{}
		distinct := map[float64]struct{}{}

		nSeries := rng.Intn(5)
		for s := 0; s < nSeries; s++ {
			name := string(rune('a' + s))
			present[name] = map[float64]int64{}
			series := Series{Name: name}
			nEntries := rng.Intn(8)
			for e := 0; e < nEntries; e++ {
				ts := float64(rng.Intn(20) * 60000)
				count := int64(rng.Intn(1000))
				series.Entries = append(series.Entries, Entry{Time: ts, Count: count})
				present[name][ts] = count
				distinct[ts] = struct{}{}
			}
			resp.Series = append(resp.Series, series)
		}

		got := Align(resp)

		if len(distinct) == 0 {
			assert.Empty(t, got.Columns)
			continue
		}

		xcol := got.Columns[0]
		require.Equal(t, len(distinct)+1, len(xcol))
		times := got.Timestamps()
		assert.True(t, sort.Float64sAreSorted(times))

		require.Len(t, got.Columns, nSeries+1)
		for _, col := range got.Columns[1:] {
			require.Len(t, col, len(xcol))
			name := col[0].(string)
			assert.NotEqual(t, KeyInterval, name)
			assert.NotEqual(t, KeyFromDate, name)
			for i, ts := range times {
				want, ok := present[name][ts]
				if !ok {
					want = 0
				}
				assert.Equal(t, want, col[i+1])
			}
		}
	}
}
