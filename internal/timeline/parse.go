package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// ParseMode selects how malformed series are treated.
type ParseMode int

const (
	// Strict rejects the whole answer when one series is malformed.
	Strict ParseMode = iota
	// Lenient coerces malformed series: missing entries become an empty
	// series, entries with a non-numeric time are skipped and non-numeric
	// counts become zero.
	Lenient
)

func (m ParseMode) String() string {
	if m == Lenient {
		return "lenient"
	}
	return "strict"
}

// ErrMalformedSeriesData is matched by every parse failure.
var ErrMalformedSeriesData = errors.New("malformed series data")

// MalformedSeriesError describes why a timeline answer was rejected. Series
// is empty when the problem is not tied to one series.
type MalformedSeriesError struct {
	Series string
	Reason string
}

func (e *MalformedSeriesError) Error() string {
	if e.Series == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedSeriesData, e.Reason)
	}
	return fmt.Sprintf("%s: series %q: %s", ErrMalformedSeriesData, e.Series, e.Reason)
}

func (e *MalformedSeriesError) Unwrap() error { return ErrMalformedSeriesData }

const responseSchema = `{
  "type": "object",
  "properties": {
    "interval": {},
    "from_date": {}
  },
  "additionalProperties": {
    "type": "object",
    "required": ["entries"],
    "properties": {
      "entries": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["time", "count"],
          "properties": {
            "time": {"type": "number"},
            "count": {"type": "integer"}
          }
        }
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(responseSchema))
})

// ParseResponse decodes a timeline answer, preserving the key order of its
// series.
func ParseResponse(raw []byte, mode ParseMode) (Response, error) {
	if !gjson.ValidBytes(raw) {
		return Response{}, &MalformedSeriesError{Reason: "invalid JSON"}
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Response{}, &MalformedSeriesError{Reason: "top-level value is not an object"}
	}

	if mode == Strict {
		if err := validate(raw); err != nil {
			return Response{}, err
		}
	}

	var out Response
	// A repeated key keeps its first position and its last value, the way a
	// JSON object decodes in the dashboard.
	index := make(map[string]int)
	doc.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		switch name {
		case KeyInterval:
			out.Interval = value.Value()
			return true
		case KeyFromDate:
			out.FromDate = value.Value()
			return true
		}
		entries := parseEntries(value.Get("entries"))
		if i, ok := index[name]; ok {
			out.Series[i].Entries = entries
			return true
		}
		index[name] = len(out.Series)
		out.Series = append(out.Series, Series{Name: name, Entries: entries})
		return true
	})
	return out, nil
}

// parseEntries is lenient; strict input has been validated already.
func parseEntries(entries gjson.Result) []Entry {
	if !entries.IsArray() {
		return []Entry{}
	}
	items := entries.Array()
	out := make([]Entry, 0, len(items))
	for _, item := range items {
		t := item.Get("time")
		if t.Type != gjson.Number {
			continue
		}
		out = append(out, Entry{Time: t.Float(), Count: parseCount(item.Get("count"))})
	}
	return out
}

// parseCount keeps integer literals exact past 2^53; only fractional or
// exponent forms go through float64 and get rounded.
func parseCount(c gjson.Result) int64 {
	if c.Type != gjson.Number {
		return 0
	}
	if !strings.ContainsAny(c.Raw, ".eE") {
		return c.Int()
	}
	return int64(math.Round(c.Float()))
}

func validate(raw []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile timeline schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &MalformedSeriesError{Reason: err.Error()}
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field() < errs[j].Field() })
	first := errs[0]
	return &MalformedSeriesError{
		Series: seriesFromField(first.Field()),
		Reason: first.Description(),
	}
}

// seriesFromField maps a gojsonschema field path such as "alert.entries.0.time"
// back to the series key.
func seriesFromField(field string) string {
	if field == "" || field == "(root)" {
		return ""
	}
	name, _, _ := strings.Cut(field, ".")
	return name
}
