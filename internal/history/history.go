// Package history keeps recent status records in a SQLite database for the
// web history view.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sweeney/dewpoint-fan/internal/civiltime"
	"github.com/sweeney/dewpoint-fan/internal/fan"
	"github.com/sweeney/dewpoint-fan/internal/fusion"
	"github.com/sweeney/dewpoint-fan/internal/policy"
	"github.com/sweeney/dewpoint-fan/internal/status"
)

// DefaultMaxRows bounds the table; older rows are pruned on insert.
// At one row per 6 minutes this is a little over a month.
const DefaultMaxRows = 8000

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	local_time   TEXT    NOT NULL,
	inner_temp   REAL,
	outer_temp   REAL,
	inner_hum    REAL,
	outer_hum    REAL,
	inner_dew    REAL,
	outer_dew    REAL,
	inner_valid  INTEGER NOT NULL,
	outer_valid  INTEGER NOT NULL,
	fan_on       INTEGER NOT NULL,
	setpoint     INTEGER NOT NULL,
	run_s        INTEGER NOT NULL,
	rest_s       INTEGER NOT NULL,
	verdict      INTEGER NOT NULL
)`

// Entry is one stored record.
type Entry struct {
	ID      int64
	Record  status.Record
	Verdict policy.Verdict
}

// Store is a SQLite-backed record history. Safe for concurrent use.
type Store struct {
	db      *sql.DB
	path    string
	maxRows int
}

// Open opens or creates the database at path. maxRows <= 0 selects
// DefaultMaxRows.
func Open(ctx context.Context, path string, maxRows int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between the run loop and HTTP readers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Store{db: db, path: path, maxRows: maxRows}, nil
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// Insert stores r with its verdict and prunes rows beyond the limit.
func (s *Store) Insert(ctx context.Context, r status.Record, v policy.Verdict) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO records (
			local_time, inner_temp, outer_temp, inner_hum, outer_hum, inner_dew, outer_dew,
			inner_valid, outer_valid, fan_on, setpoint, run_s, rest_s, verdict
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Local.String(),
		nullable(r.Inner.Temperature), nullable(r.Outer.Temperature),
		nullable(r.Inner.Humidity), nullable(r.Outer.Humidity),
		nullable(r.Inner.DewPoint), nullable(r.Outer.DewPoint),
		r.Inner.ValidCount, r.Outer.ValidCount,
		r.FanOn, int(r.Setpoint), int(r.RunSeconds), int(r.RestSeconds), int(v),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read insert id: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id <= ?`, id-int64(s.maxRows)); err != nil {
		return id, fmt.Errorf("failed to prune records: %w", err)
	}
	return id, nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, local_time, inner_temp, outer_temp, inner_hum, outer_hum, inner_dew, outer_dew,
		       inner_valid, outer_valid, fan_on, setpoint, run_s, rest_s, verdict
		FROM records
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                      Entry
			local                  string
			it, ot, ih, oh, id, od sql.NullFloat64
			innerValid, outerValid int
			fanOn                  bool
			setpoint, verdict      int
			runS, restS            int
		)
		err := rows.Scan(&e.ID, &local, &it, &ot, &ih, &oh, &id, &od,
			&innerValid, &outerValid, &fanOn, &setpoint, &runS, &restS, &verdict)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}

		e.Record.Local, err = parseLocal(local)
		if err != nil {
			return nil, err
		}
		e.Record.Inner = fusion.ProbeAverage{
			Temperature: fromNullable(it), Humidity: fromNullable(ih), DewPoint: fromNullable(id),
			ValidCount: innerValid,
		}
		e.Record.Outer = fusion.ProbeAverage{
			Temperature: fromNullable(ot), Humidity: fromNullable(oh), DewPoint: fromNullable(od),
			ValidCount: outerValid,
		}
		e.Record.FanOn = fanOn
		e.Record.Setpoint = fan.Setpoint(setpoint)
		e.Record.RunSeconds = uint16(runS)
		e.Record.RestSeconds = uint16(restS)
		e.Verdict = policy.Verdict(verdict)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const localLayout = "2006-01-02 15:04:05"

func parseLocal(s string) (civiltime.CivilTime, error) {
	t, err := time.Parse(localLayout, s)
	if err != nil {
		return civiltime.CivilTime{}, fmt.Errorf("bad local_time %q: %w", s, err)
	}
	return civiltime.FromTime(t), nil
}
