// Package dashboard boots the statistics panels of the alert dashboard: it
// fetches the top values of every block, sizes blocks and panels from their
// content and merges stored layouts.
package dashboard

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"go-hunt-dashboard/internal/connectors/layouts"
)

//go:embed sections.yaml
var defaultSections []byte

// blockWidth is the default block width in grid columns.
const blockWidth = 8

// gridCols is the column count of the block grid per breakpoint.
var gridCols = map[string]int{"lg": 32, "md": 24, "sm": 16, "xs": 8}

// Sizes are the pixel heights used to size blocks and panels.
type Sizes struct {
	ItemHeight      int `yaml:"item_height" json:"item_height"`
	BlockHeadHeight int `yaml:"block_head_height" json:"block_head_height"`
	PanelHeadHeight int `yaml:"panel_head_height" json:"panel_head_height"`
}

// BlockDef is a configured block: one field and its title.
type BlockDef struct {
	I          string                        `yaml:"i"`
	Title      string                        `yaml:"title"`
	Dimensions map[string]layouts.LayoutItem `yaml:"dimensions"`
}

// PanelDef is a configured panel grouping blocks.
type PanelDef struct {
	ID         string             `yaml:"id"`
	Title      string             `yaml:"title"`
	Dimensions layouts.LayoutItem `yaml:"dimensions"`
	Items      []BlockDef         `yaml:"items"`
}

// Sections is the full dashboard definition.
type Sections struct {
	Sizes  Sizes      `yaml:"sizes"`
	Panels []PanelDef `yaml:"panels"`
}

// LoadSections reads the dashboard definition from path, or the embedded
// default when path is empty.
func LoadSections(path string) (*Sections, error) {
	blob := defaultSections
	if p := strings.TrimSpace(path); p != "" {
		var err error
		blob, err = os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read dashboard sections: %w", err)
		}
	}
	return ParseSections(blob)
}

// ParseSections decodes and validates a YAML dashboard definition.
func ParseSections(blob []byte) (*Sections, error) {
	var s Sections
	if err := yaml.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("decode dashboard sections: %w", err)
	}
	if len(s.Panels) == 0 {
		return nil, errors.New("dashboard sections: no panels defined")
	}
	if s.Sizes.ItemHeight <= 0 || s.Sizes.BlockHeadHeight <= 0 || s.Sizes.PanelHeadHeight <= 0 {
		return nil, errors.New("dashboard sections: sizes must be positive")
	}

	seen := make(map[string]struct{}, len(s.Panels))
	for pi := range s.Panels {
		p := &s.Panels[pi]
		if p.ID == "" {
			return nil, fmt.Errorf("dashboard sections: panel %d has no id", pi)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("dashboard sections: duplicate panel %q", p.ID)
		}
		seen[p.ID] = struct{}{}

		if p.Dimensions.I == "" {
			p.Dimensions = layouts.LayoutItem{I: p.ID, X: 0, Y: pi, W: 1}
		}
		for bi := range p.Items {
			b := &p.Items[bi]
			if b.I == "" {
				return nil, fmt.Errorf("dashboard sections: panel %q block %d has no field", p.ID, bi)
			}
			if b.Dimensions == nil {
				b.Dimensions = make(map[string]layouts.LayoutItem, len(layouts.Breakpoints))
			}
			for _, bp := range layouts.Breakpoints {
				d, ok := b.Dimensions[bp]
				if !ok {
					d = defaultBlockDimensions(bi, bp)
				}
				d.I = b.I
				b.Dimensions[bp] = d
			}
		}
	}
	return &s, nil
}

// Panel returns the definition of panel id.
func (s *Sections) Panel(id string) (PanelDef, bool) {
	for _, p := range s.Panels {
		if p.ID == id {
			return p, true
		}
	}
	return PanelDef{}, false
}

// HasField reports whether any panel shows field.
func (s *Sections) HasField(field string) bool {
	for _, p := range s.Panels {
		for _, b := range p.Items {
			if b.I == field {
				return true
			}
		}
	}
	return false
}

// PanelIDs returns all panel ids in definition order.
func (s *Sections) PanelIDs() []string {
	out := make([]string, 0, len(s.Panels))
	for _, p := range s.Panels {
		out = append(out, p.ID)
	}
	return out
}

func defaultBlockDimensions(index int, bp string) layouts.LayoutItem {
	perRow := gridCols[bp] / blockWidth
	if perRow <= 0 {
		perRow = 1
	}
	return layouts.LayoutItem{
		X: (index % perRow) * blockWidth,
		Y: index / perRow,
		W: blockWidth,
	}
}
