package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-hunt-dashboard/internal/connectors/analytics"
	"go-hunt-dashboard/internal/connectors/layouts"
)

const testSections = `
sizes:
  item_height: 34
  block_head_height: 50
  panel_head_height: 67
panels:
  - id: basic
    title: Basic information
    items:
      - {i: alert.signature, title: Signatures}
      - {i: host, title: Probes}
  - id: dns
    title: DNS information
    items:
      - {i: dns.query.rrname, title: Names}
`

type fakeStats struct {
	mu     sync.Mutex
	values map[string][]analytics.FieldBucket
	err    error
	calls  map[string]int
	sizes  map[string]int
}

func (f *fakeStats) FieldStats(_ context.Context, field string, _ analytics.Query, pageSize int) ([]analytics.FieldBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
		f.sizes = map[string]int{}
	}
	f.calls[field]++
	f.sizes[field] = pageSize
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.values[field]; ok {
		return v, nil
	}
	return []analytics.FieldBucket{}, nil
}

type fakeLayouts struct {
	macro []layouts.LayoutItem
	micro map[string]map[string][]layouts.LayoutItem
	err   error
}

func (f *fakeLayouts) Macro(context.Context) ([]layouts.LayoutItem, error) {
	return f.macro, f.err
}

func (f *fakeLayouts) MicroAll(context.Context) (map[string]map[string][]layouts.LayoutItem, error) {
	return f.micro, f.err
}

func buckets(n int) []analytics.FieldBucket {
	out := make([]analytics.FieldBucket, n)
	for i := range out {
		out[i] = analytics.FieldBucket{Key: i, DocCount: int64(100 - i)}
	}
	return out
}

func mustSections(t *testing.T) *Sections {
	t.Helper()
	s, err := ParseSections([]byte(testSections))
	require.NoError(t, err)
	return s
}

func TestLoadSections_EmbeddedDefault(t *testing.T) {
	s, err := LoadSections("")
	require.NoError(t, err)
	assert.Equal(t, []string{"metadata", "basic", "organizational", "ip", "http", "dns", "tls", "smtp", "smb", "ssh"}, s.PanelIDs())
	assert.True(t, s.HasField("src_ip"))
}

func TestParseSections_DefaultsBlockDimensions(t *testing.T) {
	s := mustSections(t)

	basic, ok := s.Panel("basic")
	require.True(t, ok)
	second := basic.Items[1]
	assert.Equal(t, layouts.LayoutItem{I: "host", X: 8, Y: 0, W: 8}, second.Dimensions["lg"])
	assert.Equal(t, layouts.LayoutItem{I: "host", X: 0, Y: 1, W: 8}, second.Dimensions["xs"])
	assert.Equal(t, "basic", basic.Dimensions.I)
}

func TestParseSections_Rejects(t *testing.T) {
	cases := map[string]string{
		"no panels":     "sizes: {item_height: 1, block_head_height: 1, panel_head_height: 1}\npanels: []\n",
		"bad sizes":     "panels:\n  - id: a\n",
		"duplicate":     "sizes: {item_height: 1, block_head_height: 1, panel_head_height: 1}\npanels:\n  - id: a\n  - id: a\n",
		"missing field": "sizes: {item_height: 1, block_head_height: 1, panel_head_height: 1}\npanels:\n  - id: a\n    items:\n      - {title: x}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSections([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestBooter_BootSizesBlocksAndPanels(t *testing.T) {
	stats := &fakeStats{values: map[string][]analytics.FieldBucket{
		"alert.signature": buckets(5),
		"host":            buckets(2),
	}}
	b := NewBooter(mustSections(t), stats, nil, 5, 30)

	panels, err := b.Boot(context.Background(), []string{"basic", "dns"}, analytics.Query{FromDate: 1})
	require.NoError(t, err)
	require.Len(t, panels, 2)

	basic := panels[0]
	assert.Equal(t, "basic", basic.ID)
	require.Len(t, basic.Items, 2)

	sig := basic.Items[0]
	// ceil((5*34 + 50) / 13) = ceil(220/13) = 17
	assert.Equal(t, 17, sig.Dimensions["lg"].H)
	assert.Equal(t, 17, sig.Dimensions["xs"].MinH)
	assert.Equal(t, 17, sig.Dimensions["md"].MaxH)
	assert.True(t, sig.HasMore)

	host := basic.Items[1]
	// ceil((2*34 + 50) / 13) = ceil(118/13) = 10
	assert.Equal(t, 10, host.Dimensions["sm"].H)
	assert.False(t, host.HasMore)

	// 10 + 5*34 + 50 + 67
	assert.Equal(t, 297, basic.Dimensions.H)
	assert.Equal(t, 297, basic.Dimensions.MinH)
	assert.Empty(t, basic.Hidden)

	dns := panels[1]
	assert.Empty(t, dns.Items)
	assert.Equal(t, []string{"dns.query.rrname"}, dns.Hidden)
	assert.Equal(t, 67, dns.Dimensions.H)

	assert.Equal(t, 5, stats.sizes["alert.signature"])
	assert.Equal(t, 1, stats.calls["dns.query.rrname"])
}

func TestBooter_BootAllPanelsWhenNoneRequested(t *testing.T) {
	b := NewBooter(mustSections(t), &fakeStats{}, nil, 5, 30)

	panels, err := b.Boot(context.Background(), nil, analytics.Query{})
	require.NoError(t, err)
	assert.Len(t, panels, 2)
}

func TestBooter_BootMergesStoredLayouts(t *testing.T) {
	stats := &fakeStats{values: map[string][]analytics.FieldBucket{"host": buckets(1)}}
	store := &fakeLayouts{
		macro: []layouts.LayoutItem{{I: "basic", X: 0, Y: 4, W: 1, H: 999}},
		micro: map[string]map[string][]layouts.LayoutItem{
			"basic": {"lg": {{I: "host", X: 24, Y: 2, W: 8, H: 1}}},
		},
	}
	b := NewBooter(mustSections(t), stats, store, 5, 30)

	panels, err := b.Boot(context.Background(), []string{"basic"}, analytics.Query{})
	require.NoError(t, err)

	basic := panels[0]
	assert.Equal(t, 4, basic.Dimensions.Y)
	assert.Equal(t, 10+34+50+67, basic.Dimensions.H)

	require.Len(t, basic.Items, 1)
	lg := basic.Items[0].Dimensions["lg"]
	assert.Equal(t, 24, lg.X)
	assert.Equal(t, 2, lg.Y)
	assert.Equal(t, 7, lg.H)
	assert.Equal(t, 8, basic.Items[0].Dimensions["md"].X)
}

func TestBooter_BootKeepsDefaultConstraintsUnderStoredLayout(t *testing.T) {
	sections := mustSections(t)
	basic := &sections.Panels[0]
	lg := basic.Items[1].Dimensions["lg"]
	lg.MinW = 4
	basic.Items[1].Dimensions["lg"] = lg
	basic.Dimensions.Static = true

	stats := &fakeStats{values: map[string][]analytics.FieldBucket{"host": buckets(1)}}
	store := &fakeLayouts{
		macro: []layouts.LayoutItem{{I: "basic", X: 0, Y: 3, W: 1}},
		micro: map[string]map[string][]layouts.LayoutItem{
			"basic": {"lg": {{I: "host", X: 0, Y: 1, W: 16}}},
		},
	}
	b := NewBooter(sections, stats, store, 5, 30)

	panels, err := b.Boot(context.Background(), []string{"basic"}, analytics.Query{})
	require.NoError(t, err)

	got := panels[0].Items[0].Dimensions["lg"]
	assert.Equal(t, 0, got.X)
	assert.Equal(t, 1, got.Y)
	assert.Equal(t, 16, got.W)
	assert.Equal(t, 4, got.MinW)
	assert.Equal(t, 3, panels[0].Dimensions.Y)
	assert.True(t, panels[0].Dimensions.Static)
}

func TestBooter_BootIgnoresLayoutStoreFailure(t *testing.T) {
	stats := &fakeStats{values: map[string][]analytics.FieldBucket{"host": buckets(1)}}
	b := NewBooter(mustSections(t), stats, &fakeLayouts{err: errors.New("disk full")}, 5, 30)

	panels, err := b.Boot(context.Background(), []string{"basic"}, analytics.Query{})
	require.NoError(t, err)
	assert.Len(t, panels[0].Items, 1)
}

func TestBooter_BootErrors(t *testing.T) {
	b := NewBooter(mustSections(t), &fakeStats{}, nil, 5, 30)
	_, err := b.Boot(context.Background(), []string{"nope"}, analytics.Query{})
	assert.ErrorIs(t, err, ErrUnknownPanel)

	upstream := errors.New("analytics down")
	b = NewBooter(mustSections(t), &fakeStats{err: upstream}, nil, 5, 30)
	_, err = b.Boot(context.Background(), []string{"basic"}, analytics.Query{})
	assert.ErrorIs(t, err, upstream)
}

func TestBooter_MoreResults(t *testing.T) {
	stats := &fakeStats{values: map[string][]analytics.FieldBucket{"host": buckets(12)}}
	b := NewBooter(mustSections(t), stats, nil, 5, 30)

	got, err := b.MoreResults(context.Background(), "host", analytics.Query{})
	require.NoError(t, err)
	assert.Len(t, got, 12)
	assert.Equal(t, 30, stats.sizes["host"])

	_, err = b.MoreResults(context.Background(), "not.a.block", analytics.Query{})
	assert.ErrorIs(t, err, ErrUnknownField)
}
