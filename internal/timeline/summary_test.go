package timeline

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	table := Table{X: XLabel, Columns: [][]any{
		{"x", 1.0, 2.0, 3.0},
		{"http", int64(2), int64(0), int64(7)},
		{"dns", nil, int64(3), nil},
	}}

	got := Summarize(table)

	require.Len(t, got, 2)
	assert.Equal(t, SeriesSummary{Name: "http", Total: 9, Peak: 7, Mean: 3}, got[0])
	assert.Equal(t, "dns", got[1].Name)
	assert.Equal(t, int64(3), got[1].Total)
	assert.Equal(t, int64(3), got[1].Peak)
	assert.InDelta(t, 1.0, got[1].Mean, 1e-9)
}

func TestSummarize_EmptyTable(t *testing.T) {
	got := Summarize(Table{X: XLabel, Columns: [][]any{}})
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRenderChart(t *testing.T) {
	table := Align(Response{Series: []Series{
		{Name: "alerts", Entries: []Entry{{Time: 1530000000000, Count: 4}}},
	}})

	var buf bytes.Buffer
	require.NoError(t, RenderChart(&buf, table, "Alerts timeline"))

	html := buf.String()
	assert.Contains(t, html, "Alerts timeline")
	assert.Contains(t, html, "alerts")
	assert.Contains(t, html, "2018-06-26 08:00")
}

func TestRenderChart_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderChart(&buf, Align(Response{}), "Alerts timeline"))
	assert.Contains(t, buf.String(), "no data")
}
