package dashboard

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go-hunt-dashboard/internal/connectors/analytics"
	"go-hunt-dashboard/internal/connectors/layouts"
)

// rowUnit is the grid row height in pixels blocks are measured in.
const rowUnit = 13

// panelPadding is added to a panel's content height.
const panelPadding = 10

// maxConcurrentFetches bounds field stats requests issued by one boot.
const maxConcurrentFetches = 8

var (
	ErrUnknownPanel = errors.New("unknown dashboard panel")
	ErrUnknownField = errors.New("unknown dashboard field")
)

// StatsSource returns the top values of a field.
type StatsSource interface {
	FieldStats(ctx context.Context, field string, q analytics.Query, pageSize int) ([]analytics.FieldBucket, error)
}

// LayoutSource returns stored layouts.
type LayoutSource interface {
	Macro(ctx context.Context) ([]layouts.LayoutItem, error)
	MicroAll(ctx context.Context) (map[string]map[string][]layouts.LayoutItem, error)
}

// Block is a booted block. Data is nil when the field had no value in range.
type Block struct {
	I          string                        `json:"i"`
	Title      string                        `json:"title"`
	Dimensions map[string]layouts.LayoutItem `json:"dimensions"`
	Data       []analytics.FieldBucket       `json:"data"`
	HasMore    bool                          `json:"has_more"`
}

// Panel is a booted panel. Items only holds blocks with data; Hidden lists
// the fields of the others.
type Panel struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Dimensions layouts.LayoutItem `json:"dimensions"`
	Items      []Block            `json:"items"`
	Hidden     []string           `json:"hidden"`
}

// Booter loads panel content.
type Booter struct {
	sections  *Sections
	stats     StatsSource
	layouts   LayoutSource
	blockSize int
	moreSize  int
}

// NewBooter creates a Booter. layoutSrc may be nil when layouts are not
// persisted.
func NewBooter(sections *Sections, stats StatsSource, layoutSrc LayoutSource, blockSize, moreSize int) *Booter {
	if blockSize <= 0 {
		blockSize = 5
	}
	if moreSize <= 0 {
		moreSize = 30
	}
	return &Booter{sections: sections, stats: stats, layouts: layoutSrc, blockSize: blockSize, moreSize: moreSize}
}

// Sections returns the dashboard definition.
func (b *Booter) Sections() *Sections {
	return b.sections
}

// Boot fetches every block of the requested panels concurrently and returns
// the sized panels in request order.
func (b *Booter) Boot(ctx context.Context, panelIDs []string, q analytics.Query) ([]Panel, error) {
	if len(panelIDs) == 0 {
		panelIDs = b.sections.PanelIDs()
	}

	defs := make([]PanelDef, 0, len(panelIDs))
	for _, id := range panelIDs {
		def, ok := b.sections.Panel(id)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPanel, id)
		}
		defs = append(defs, def)
	}

	macro, micro := b.storedLayouts(ctx)

	data := make([][][]analytics.FieldBucket, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for pi, def := range defs {
		data[pi] = make([][]analytics.FieldBucket, len(def.Items))
		for bi, block := range def.Items {
			g.Go(func() error {
				buckets, err := b.stats.FieldStats(gctx, block.I, q, b.blockSize)
				if err != nil {
					return fmt.Errorf("field stats %s: %w", block.I, err)
				}
				data[pi][bi] = buckets
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Panel, 0, len(defs))
	for pi, def := range defs {
		out = append(out, b.buildPanel(def, data[pi], macro, micro[def.ID]))
	}
	return out, nil
}

// MoreResults returns the extended value list of one block.
func (b *Booter) MoreResults(ctx context.Context, field string, q analytics.Query) ([]analytics.FieldBucket, error) {
	if !b.sections.HasField(field) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return b.stats.FieldStats(ctx, field, q, b.moreSize)
}

func (b *Booter) buildPanel(def PanelDef, data [][]analytics.FieldBucket, macro []layouts.LayoutItem, micro map[string][]layouts.LayoutItem) Panel {
	sizes := b.sections.Sizes
	panel := Panel{
		ID:     def.ID,
		Title:  def.Title,
		Items:  make([]Block, 0, len(def.Items)),
		Hidden: []string{},
	}

	panelHeight := 0
	for bi, blockDef := range def.Items {
		buckets := data[bi]
		n := len(buckets)

		contentHeight := n*sizes.ItemHeight + sizes.BlockHeadHeight
		height := ceilDiv(contentHeight, rowUnit)

		candidate := sizes.PanelHeadHeight
		if n > 0 {
			candidate = panelPadding + contentHeight + sizes.PanelHeadHeight
		}
		if candidate > panelHeight {
			panelHeight = candidate
		}

		if n == 0 {
			panel.Hidden = append(panel.Hidden, blockDef.I)
			continue
		}

		dims := make(map[string]layouts.LayoutItem, len(layouts.Breakpoints))
		for _, bp := range layouts.Breakpoints {
			d := blockDef.Dimensions[bp]
			if stored, ok := layouts.Find(micro[bp], blockDef.I); ok {
				d = overlay(d, stored)
			}
			d.I = blockDef.I
			d.H, d.MinH, d.MaxH = height, height, height
			dims[bp] = d
		}

		panel.Items = append(panel.Items, Block{
			I:          blockDef.I,
			Title:      blockDef.Title,
			Dimensions: dims,
			Data:       buckets,
			HasMore:    n == b.blockSize,
		})
	}

	dims := def.Dimensions
	if stored, ok := layouts.Find(macro, def.ID); ok {
		dims = overlay(dims, stored)
	}
	dims.I = def.ID
	dims.H, dims.MinH = panelHeight, panelHeight
	panel.Dimensions = dims
	return panel
}

// overlay applies a stored grid item over its configured default. The grid
// always saves a position, so x, y and w are taken as stored; constraints
// the grid left out keep their defaults.
func overlay(def, stored layouts.LayoutItem) layouts.LayoutItem {
	out := def
	out.X, out.Y, out.W = stored.X, stored.Y, stored.W
	if stored.H != 0 {
		out.H = stored.H
	}
	if stored.MinW != 0 {
		out.MinW = stored.MinW
	}
	if stored.MinH != 0 {
		out.MinH = stored.MinH
	}
	if stored.MaxH != 0 {
		out.MaxH = stored.MaxH
	}
	if stored.Static {
		out.Static = true
	}
	return out
}

// storedLayouts degrades to defaults when the layout store is unavailable.
func (b *Booter) storedLayouts(ctx context.Context) ([]layouts.LayoutItem, map[string]map[string][]layouts.LayoutItem) {
	if b.layouts == nil {
		return nil, map[string]map[string][]layouts.LayoutItem{}
	}
	macro, err := b.layouts.Macro(ctx)
	if err != nil {
		log.WithError(err).Warn("dashboard: loading macro layout failed, using defaults")
		macro = nil
	}
	micro, err := b.layouts.MicroAll(ctx)
	if err != nil {
		log.WithError(err).Warn("dashboard: loading micro layouts failed, using defaults")
		micro = map[string]map[string][]layouts.LayoutItem{}
	}
	return macro, micro
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
