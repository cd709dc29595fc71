package layouts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	kindMacro = "macro"
	kindMicro = "micro"
)

// Breakpoints are the responsive widths a micro layout can be stored for.
var Breakpoints = []string{"lg", "md", "sm", "xs"}

// ErrInvalidBreakpoint is returned for breakpoints outside Breakpoints.
var ErrInvalidBreakpoint = errors.New("invalid breakpoint")

// LayoutItem is one grid cell position, keyed by I (panel id or block field).
type LayoutItem struct {
	I      string `json:"i"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	W      int    `json:"w"`
	H      int    `json:"h"`
	MinW   int    `json:"minW,omitempty"`
	MinH   int    `json:"minH,omitempty"`
	MaxH   int    `json:"maxH,omitempty"`
	Static bool   `json:"static,omitempty"`
}

// Store persists dashboard layouts in SQLite. The macro layout positions
// panels on the page, micro layouts position blocks inside one panel.
type Store struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS dashboard_layouts (
  kind TEXT NOT NULL,
  panel TEXT NOT NULL DEFAULT '',
  breakpoint TEXT NOT NULL DEFAULT '',
  layout_json TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (kind, panel, breakpoint)
);
`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Macro returns the stored panel layout, or an empty slice.
func (s *Store) Macro(ctx context.Context) ([]LayoutItem, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `
SELECT layout_json FROM dashboard_layouts
WHERE kind = ? AND panel = '' AND breakpoint = '';
`, kindMacro).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return []LayoutItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeItems(blob)
}

func (s *Store) SaveMacro(ctx context.Context, items []LayoutItem) error {
	return s.upsert(ctx, kindMacro, "", "", items)
}

// Micro returns the stored block layouts of panel keyed by breakpoint.
func (s *Store) Micro(ctx context.Context, panel string) (map[string][]LayoutItem, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT breakpoint, layout_json FROM dashboard_layouts
WHERE kind = ? AND panel = ?
ORDER BY breakpoint;
`, kindMicro, strings.TrimSpace(panel))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]LayoutItem)
	for rows.Next() {
		var bp, blob string
		if err := rows.Scan(&bp, &blob); err != nil {
			return nil, err
		}
		items, err := decodeItems(blob)
		if err != nil {
			return nil, fmt.Errorf("micro layout %s/%s: %w", panel, bp, err)
		}
		out[bp] = items
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MicroAll returns every stored micro layout keyed by panel then breakpoint.
func (s *Store) MicroAll(ctx context.Context) (map[string]map[string][]LayoutItem, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT panel, breakpoint, layout_json FROM dashboard_layouts
WHERE kind = ?
ORDER BY panel, breakpoint;
`, kindMicro)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string][]LayoutItem)
	for rows.Next() {
		var panel, bp, blob string
		if err := rows.Scan(&panel, &bp, &blob); err != nil {
			return nil, err
		}
		items, err := decodeItems(blob)
		if err != nil {
			return nil, fmt.Errorf("micro layout %s/%s: %w", panel, bp, err)
		}
		if out[panel] == nil {
			out[panel] = make(map[string][]LayoutItem)
		}
		out[panel][bp] = items
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveMicro(ctx context.Context, panel, breakpoint string, items []LayoutItem) error {
	panel = strings.TrimSpace(panel)
	if panel == "" {
		return errors.New("panel is required")
	}
	if !ValidBreakpoint(breakpoint) {
		return fmt.Errorf("%w: %q", ErrInvalidBreakpoint, breakpoint)
	}
	return s.upsert(ctx, kindMicro, panel, breakpoint, items)
}

// Reset deletes all stored layouts and returns the number of removed rows.
func (s *Store) Reset(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dashboard_layouts`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) upsert(ctx context.Context, kind, panel, breakpoint string, items []LayoutItem) error {
	if items == nil {
		items = []LayoutItem{}
	}
	blob, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO dashboard_layouts (kind, panel, breakpoint, layout_json, updated_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(kind, panel, breakpoint) DO UPDATE SET
  layout_json = excluded.layout_json,
  updated_at = CURRENT_TIMESTAMP;
`, kind, panel, breakpoint, string(blob))
	return err
}

// ValidBreakpoint reports whether bp is one of Breakpoints.
func ValidBreakpoint(bp string) bool {
	for _, b := range Breakpoints {
		if b == bp {
			return true
		}
	}
	return false
}

// Find returns the item with key i, if present.
func Find(items []LayoutItem, i string) (LayoutItem, bool) {
	for _, it := range items {
		if it.I == i {
			return it, true
		}
	}
	return LayoutItem{}, false
}

func decodeItems(blob string) ([]LayoutItem, error) {
	out := []LayoutItem{}
	if err := json.Unmarshal([]byte(blob), &out); err != nil {
		return nil, err
	}
	return out, nil
}
