package analytics

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "go-hunt-dashboard/analytics"

// maxBodyBytes caps upstream answers; timeline answers for wide ranges are
// the largest payloads seen.
const maxBodyBytes = 32 << 20

// Query is the time range and filter shared by every dashboard request.
type Query struct {
	// FromDate is the range start in epoch milliseconds.
	FromDate int64
	// QFilter is a pre-built query filter string; empty means no filter.
	QFilter string
}

// AlertsCount is the current and previous period alert count.
type AlertsCount struct {
	DocCount     int64 `json:"doc_count"`
	PrevDocCount int64 `json:"prev_doc_count"`
}

// FieldBucket is one value of a field with its hit count.
type FieldBucket struct {
	Key      any   `json:"key"`
	DocCount int64 `json:"doc_count"`
}

// FilterFieldSet is the filtered list of filter definitions, each kept as the
// upstream sent it, with a checksum over those bytes.
type FilterFieldSet struct {
	Checksum string            `json:"checksum"`
	Fields   []json.RawMessage `json:"fields"`
}

// ServiceStats holds analytics API reachability data.
type ServiceStats struct {
	PingMS     int64  `json:"ping_ms"`
	StatusCode int    `json:"status_code"`
	Endpoint   string `json:"endpoint"`
}

// Client queries the analytics REST API behind the dashboard.
type Client struct {
	endpoint   string
	esPath     string
	filterPath string
	http       *http.Client
	tracer     trace.Tracer
}

func NewClient(endpoint, esPath, filterPath string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		esPath:     "/" + strings.TrimLeft(strings.TrimSpace(esPath), "/"),
		filterPath: "/" + strings.TrimLeft(strings.TrimSpace(filterPath), "/"),
		http:       &http.Client{Timeout: timeout},
		tracer:     otel.Tracer(tracerName),
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

// Timeline returns the raw timeline answer. The body is returned unparsed
// because series order is carried by the key order of the JSON object.
func (c *Client) Timeline(ctx context.Context, q Query) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "analytics.Timeline")
	defer span.End()

	params := q.values("filter")
	params.Set("hosts", "*")
	body, err := c.get(ctx, c.esURL("timeline", params))
	return body, endSpan(span, err)
}

// AlertsCount returns alert counts for the current and previous period.
func (c *Client) AlertsCount(ctx context.Context, q Query) (*AlertsCount, error) {
	ctx, span := c.tracer.Start(ctx, "analytics.AlertsCount")
	defer span.End()

	params := q.values("filter")
	params.Set("prev", "1")
	params.Set("hosts", "*")
	body, err := c.get(ctx, c.esURL("alerts_count", params))
	if err != nil {
		return nil, endSpan(span, err)
	}

	// The backend answers with a bare JSON string when it has nothing to count.
	out := &AlertsCount{}
	if isJSONString(body) {
		return out, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, endSpan(span, fmt.Errorf("decode alerts_count: %w", err))
	}
	return out, nil
}

// FieldStats returns the top values of field.
func (c *Client) FieldStats(ctx context.Context, field string, q Query, pageSize int) ([]FieldBucket, error) {
	ctx, span := c.tracer.Start(ctx, "analytics.FieldStats", trace.WithAttributes(
		attribute.String("field", field),
		attribute.Int("page_size", pageSize),
	))
	defer span.End()

	if pageSize <= 0 {
		pageSize = 5
	}
	params := q.values("qfilter")
	params.Set("field", field)
	params.Set("page_size", strconv.Itoa(pageSize))
	body, err := c.get(ctx, c.esURL("field_stats", params))
	if err != nil {
		return nil, endSpan(span, err)
	}

	var out []FieldBucket
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, endSpan(span, fmt.Errorf("decode field_stats for %s: %w", field, err))
	}
	if out == nil {
		out = []FieldBucket{}
	}
	return out, nil
}

// FilterFields returns the filter definitions usable on the dashboard: plain
// filters, excluding hunt-only ones.
func (c *Client) FilterFields(ctx context.Context) (*FilterFieldSet, error) {
	ctx, span := c.tracer.Start(ctx, "analytics.FilterFields")
	defer span.End()

	body, err := c.get(ctx, c.endpoint+c.filterPath)
	if err != nil {
		return nil, endSpan(span, err)
	}

	doc := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !doc.IsArray() {
		return nil, endSpan(span, fmt.Errorf("decode filter fields: expected a JSON array"))
	}

	fields := make([]json.RawMessage, 0)
	blob := []byte{'['}
	doc.ForEach(func(_, f gjson.Result) bool {
		if f.Get("queryType").String() != "filter" || f.Get("filterType").String() == "hunt" {
			return true
		}
		if len(fields) > 0 {
			blob = append(blob, ',')
		}
		blob = append(blob, f.Raw...)
		fields = append(fields, json.RawMessage(f.Raw))
		return true
	})
	blob = append(blob, ']')

	sum := md5.Sum(blob)
	return &FilterFieldSet{Checksum: hex.EncodeToString(sum[:]), Fields: fields}, nil
}

// Ping checks reachability of the analytics endpoint.
func (c *Client) Ping(ctx context.Context) (*ServiceStats, error) {
	if !c.Enabled() {
		return nil, nil
	}
	ctx, span := c.tracer.Start(ctx, "analytics.Ping")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+c.filterPath, nil)
	if err != nil {
		return nil, endSpan(span, err)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, endSpan(span, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return &ServiceStats{
		PingMS:     time.Since(start).Milliseconds(),
		StatusCode: resp.StatusCode,
		Endpoint:   c.endpoint,
	}, nil
}

// esURL builds "<endpoint><esPath><query>&k=v...". The ES path ends with the
// query selector (e.g. "?query="), so the query name is appended verbatim.
func (c *Client) esURL(query string, params url.Values) string {
	return c.endpoint + c.esPath + query + "&" + params.Encode()
}

func (q Query) values(filterParam string) url.Values {
	params := url.Values{}
	params.Set("from_date", strconv.FormatInt(q.FromDate, 10))
	if f := strings.TrimSpace(q.QFilter); f != "" {
		params.Set(filterParam, f)
	}
	return params
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		blob, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("analytics status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(blob)))
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func isJSONString(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, `"`)
}
