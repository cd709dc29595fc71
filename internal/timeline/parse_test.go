package timeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse_KeepsKeyOrderAndMetadata(t *testing.T) {
	raw := `{"smtp":{"entries":[{"time":1530000000000,"count":4}]},"interval":"30m","dns":{"entries":[]},"from_date":1529990000000}`

	resp, err := ParseResponse([]byte(raw), Strict)
	require.NoError(t, err)

	require.Len(t, resp.Series, 2)
	assert.Equal(t, "smtp", resp.Series[0].Name)
	assert.Equal(t, []Entry{{Time: 1530000000000, Count: 4}}, resp.Series[0].Entries)
	assert.Equal(t, "dns", resp.Series[1].Name)
	assert.Empty(t, resp.Series[1].Entries)
	assert.Equal(t, "30m", resp.Interval)
	assert.Equal(t, float64(1529990000000), resp.FromDate)
}

func TestParseResponse_StrictRejectsMissingEntries(t *testing.T) {
	_, err := ParseResponse([]byte(`{"ok":{"entries":[]},"broken":{"values":[]}}`), Strict)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedSeriesData))

	var mse *MalformedSeriesError
	require.True(t, errors.As(err, &mse))
	assert.Equal(t, "broken", mse.Series)
	assert.Contains(t, err.Error(), "broken")
}

func TestParseResponse_StrictRejectsNonNumericTime(t *testing.T) {
	_, err := ParseResponse([]byte(`{"alerts":{"entries":[{"time":"yesterday","count":1}]}}`), Strict)

	var mse *MalformedSeriesError
	require.True(t, errors.As(err, &mse))
	assert.Equal(t, "alerts", mse.Series)
}

func TestParseResponse_StrictRejectsFractionalCount(t *testing.T) {
	_, err := ParseResponse([]byte(`{"alerts":{"entries":[{"time":1,"count":1.5}]}}`), Strict)
	assert.ErrorIs(t, err, ErrMalformedSeriesData)
}

func TestParseResponse_KeepsLargeCountsExact(t *testing.T) {
	raw := `{"a":{"entries":[{"time":1,"count":9007199254740993},{"time":2,"count":-9007199254740995}]}}`

	for _, mode := range []ParseMode{Strict, Lenient} {
		t.Run(mode.String(), func(t *testing.T) {
			resp, err := ParseResponse([]byte(raw), mode)
			require.NoError(t, err)

			got := Align(resp)
			assert.Equal(t, []any{"a", int64(9007199254740993), int64(-9007199254740995)}, got.Columns[1])
		})
	}
}

func TestParseResponse_LenientRoundsFractionalCounts(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"a":{"entries":[{"time":1,"count":2.6},{"time":2,"count":1e3}]}}`), Lenient)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Time: 1, Count: 3}, {Time: 2, Count: 1000}}, resp.Series[0].Entries)
}

func TestParseResponse_RepeatedKeyKeepsFirstPositionLastValue(t *testing.T) {
	raw := `{"http":{"entries":[{"time":1,"count":1}]},"dns":{"entries":[{"time":1,"count":2}]},"http":{"entries":[{"time":3,"count":9}]}}`

	resp, err := ParseResponse([]byte(raw), Strict)
	require.NoError(t, err)

	require.Len(t, resp.Series, 2)
	assert.Equal(t, "http", resp.Series[0].Name)
	assert.Equal(t, []Entry{{Time: 3, Count: 9}}, resp.Series[0].Entries)
	assert.Equal(t, "dns", resp.Series[1].Name)
}

func TestParseResponse_StrictAllowsAnyMetadataShape(t *testing.T) {
	_, err := ParseResponse([]byte(`{"interval":60000,"from_date":"2018-01-01","a":{"entries":[]}}`), Strict)
	assert.NoError(t, err)
}

func TestParseResponse_LenientCoerces(t *testing.T) {
	raw := `{
		"nolist": {"entries": "oops"},
		"missing": {},
		"scalar": 5,
		"mixed": {"entries": [
			{"time": "bad", "count": 3},
			{"time": 10, "count": "many"},
			{"time": 20, "count": 7}
		]}
	}`

	resp, err := ParseResponse([]byte(raw), Lenient)
	require.NoError(t, err)
	require.Len(t, resp.Series, 4)

	assert.Empty(t, resp.Series[0].Entries)
	assert.Empty(t, resp.Series[1].Entries)
	assert.Empty(t, resp.Series[2].Entries)
	assert.Equal(t, []Entry{{Time: 10, Count: 0}, {Time: 20, Count: 7}}, resp.Series[3].Entries)

	got := Align(resp)
	assert.Equal(t, [][]any{
		{"x", 10.0, 20.0},
		{"nolist", int64(0), int64(0)},
		{"missing", int64(0), int64(0)},
		{"scalar", int64(0), int64(0)},
		{"mixed", int64(0), int64(7)},
	}, got.Columns)
}

func TestParseResponse_RejectsNonObjectInBothModes(t *testing.T) {
	for _, mode := range []ParseMode{Strict, Lenient} {
		t.Run(mode.String(), func(t *testing.T) {
			_, err := ParseResponse([]byte(`"no data"`), mode)
			assert.ErrorIs(t, err, ErrMalformedSeriesData)

			_, err = ParseResponse([]byte(`{"a":`), mode)
			assert.ErrorIs(t, err, ErrMalformedSeriesData)
		})
	}
}

func TestSeriesFromField(t *testing.T) {
	assert.Equal(t, "", seriesFromField("(root)"))
	assert.Equal(t, "http", seriesFromField("http"))
	assert.Equal(t, "http", seriesFromField("http.entries.2.count"))
}
