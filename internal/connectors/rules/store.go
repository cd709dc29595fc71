package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"go-hunt-dashboard/internal/config"
)

// ErrRuleNotFound is returned when no rule carries the requested sid.
var ErrRuleNotFound = errors.New("rule not found")

// Rule is the detail shown when a rule row is expanded in the rule list.
type Rule struct {
	SID     int64  `json:"sid"`
	Msg     string `json:"msg"`
	Content string `json:"content"`
	Rev     int64  `json:"rev"`
}

// ServiceStats contains lightweight DB health and volume counters.
type ServiceStats struct {
	PingMS     int64 `json:"ping_ms"`
	RulesTotal int64 `json:"rules_total"`
}

// Store wraps read access to the rules database.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// NewStore creates a MySQL-backed store.
func NewStore(cfg config.Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DBConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewStoreFromDB(db, cfg.DBQueryTimeout), nil
}

// NewStoreFromDB wraps an already opened database handle.
func NewStoreFromDB(db *sql.DB, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &Store{db: db, queryTimeout: queryTimeout}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetRule returns the rule with the given signature id.
func (s *Store) GetRule(ctx context.Context, sid int64) (*Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var (
		item    Rule
		msg     sql.NullString
		content sql.NullString
		rev     sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT sid, msg, content, rev
FROM rules_rule
WHERE sid = ?;
`, sid).Scan(&item.SID, &msg, &content, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRuleNotFound, sid)
	}
	if err != nil {
		return nil, err
	}
	item.Msg = msg.String
	item.Content = content.String
	item.Rev = rev.Int64
	return &item, nil
}

// ServiceStats returns DB health and the number of known rules.
func (s *Store) ServiceStats(ctx context.Context) (*ServiceStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return nil, err
	}

	out := &ServiceStats{PingMS: time.Since(start).Milliseconds()}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rules_rule;`).Scan(&out.RulesTotal); err != nil {
		return nil, err
	}
	return out, nil
}
