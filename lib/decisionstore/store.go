// Package decisionstore keeps a history of every accept/reject decision for the
// dashboard. It is not on the decision path, the ledger is the only dedup gate.
package decisionstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

type Decision struct {
	CycleID             string    `json:"cycle_id"`
	ItemID              string    `json:"item_id"`
	Brand               string    `json:"brand"`
	Title               string    `json:"title"`
	Outcome             string    `json:"outcome"`
	PaintedCount        int       `json:"painted_count"`
	ReplacedCount       int       `json:"replaced_count"`
	LocallyPaintedCount int       `json:"locally_painted_count"`
	HoodDamageKind      string    `json:"hood_damage_kind"`
	DecidedAt           time.Time `json:"decided_at"`
}

// OpenDB opens the database at dsn and applies the schema. A dsn starting with
// `libsql://` or `https://` is opened through the libsql client, anything else is a
// local sqlite file (or `:memory:`).
func OpenDB(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("a database path was not specified")
	}

	var db *sql.DB
	var err error
	if strings.HasPrefix(dsn, "libsql://") || strings.HasPrefix(dsn, "https://") {
		db, err = sql.Open("libsql", dsn)
		if err != nil {
			return nil, err
		}
	} else {
		if dsn != ":memory:" {
			err = os.MkdirAll(filepath.Dir(dsn), 0o755)
			if err != nil {
				return nil, err
			}
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// sqlite only supports one writer at a time, a single connection also keeps
		// `:memory:` databases from being split across connections.
		db.SetMaxOpenConns(1)
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

func (s Store) Record(ctx context.Context, d Decision) error {
	_, err := s.db.ExecContext(
		ctx,
		`insert into decisions (
			cycle_id, item_id, brand, title, outcome,
			painted_count, replaced_count, locally_painted_count,
			hood_damage_kind, decided_at
		) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.CycleID, d.ItemID, d.Brand, d.Title, d.Outcome,
		d.PaintedCount, d.ReplacedCount, d.LocallyPaintedCount,
		d.HoodDamageKind, d.DecidedAt.UnixMilli(),
	)
	return err
}

// Recent returns up to `limit` decisions, newest first.
func (s Store) Recent(ctx context.Context, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`select
			cycle_id, item_id, brand, title, outcome,
			painted_count, replaced_count, locally_painted_count,
			hood_damage_kind, decided_at
		from decisions
		order by decided_at desc, id desc
		limit ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var decidedAt int64
		err = rows.Scan(
			&d.CycleID, &d.ItemID, &d.Brand, &d.Title, &d.Outcome,
			&d.PaintedCount, &d.ReplacedCount, &d.LocallyPaintedCount,
			&d.HoodDamageKind, &decidedAt,
		)
		if err != nil {
			return nil, err
		}
		d.DecidedAt = time.UnixMilli(decidedAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountByOutcome returns the number of decisions per outcome.
func (s Store) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `select outcome, count(*) from decisions group by outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var outcome string
		var count int64
		err = rows.Scan(&outcome, &count)
		if err != nil {
			return nil, err
		}
		out[outcome] = count
	}
	return out, rows.Err()
}
