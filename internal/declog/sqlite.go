package declog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS decision_events (
	invocation_id TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	reference     TEXT,
	location      TEXT,
	reason        TEXT,
	winner        TEXT,
	loser         TEXT,
	partial       TEXT,
	version       TEXT,
	old_version   TEXT,
	subset        TEXT,
	code          TEXT,
	message       TEXT,
	name          TEXT,
	value         TEXT,
	PRIMARY KEY (invocation_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_decision_events_kind
	ON decision_events (invocation_id, kind);
`

// SqliteSink persists decision events so they can be queried after the
// build with "arr log".
type SqliteSink struct {
	db           *sql.DB
	invocationID string
	stmt         *sql.Stmt
}

// NewSqliteSink opens (creating if needed) the event database at path.
func NewSqliteSink(path, invocationID string) (*SqliteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open decision log db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create decision log schema: %w", err)
	}
	stmt, err := db.Prepare(`
		INSERT OR REPLACE INTO decision_events
		(invocation_id, seq, kind, reference, location, reason, winner, loser,
		 partial, version, old_version, subset, code, message, name, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare decision log insert: %w", err)
	}
	return &SqliteSink{db: db, invocationID: invocationID, stmt: stmt}, nil
}

func (s *SqliteSink) Write(ev Event) error {
	_, err := s.stmt.Exec(
		s.invocationID, ev.Seq, string(ev.Kind), ev.Reference, ev.Location,
		ev.Reason, ev.Winner, ev.Loser, ev.Partial, ev.Version, ev.OldVersion,
		ev.Subset, ev.Code, ev.Message, ev.Name, ev.Value,
	)
	if err != nil {
		return fmt.Errorf("insert decision event: %w", err)
	}
	return nil
}

func (s *SqliteSink) Close() error {
	if s.stmt != nil {
		s.stmt.Close()
	}
	return s.db.Close()
}

// QueryOptions filters a decision-log query.
type QueryOptions struct {
	InvocationID string // empty: latest invocation in the file
	Kind         string // empty: all kinds
	Reference    string // empty: all references
	Limit        int    // 0: unlimited
}

// Query reads events back from a decision-log database.
func Query(path string, opts QueryOptions) ([]Event, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open decision log db: %w", err)
	}
	defer db.Close()

	invocation := opts.InvocationID
	if invocation == "" {
		row := db.QueryRow(`
			SELECT invocation_id FROM decision_events
			ORDER BY rowid DESC LIMIT 1
		`)
		if err := row.Scan(&invocation); err == sql.ErrNoRows {
			return nil, nil
		} else if err != nil {
			return nil, fmt.Errorf("find latest invocation: %w", err)
		}
	}

	query := `
		SELECT seq, kind, reference, location, reason, winner, loser,
		       partial, version, old_version, subset, code, message, name, value
		FROM decision_events
		WHERE invocation_id = ?`
	args := []interface{}{invocation}
	if opts.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, opts.Kind)
	}
	if opts.Reference != "" {
		query += ` AND reference = ?`
		args = append(args, opts.Reference)
	}
	query += ` ORDER BY seq`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decision events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	var events []Event
	for rows.Next() {
		var ev Event
		var kind string
		if err := rows.Scan(&ev.Seq, &kind, &ev.Reference, &ev.Location, &ev.Reason,
			&ev.Winner, &ev.Loser, &ev.Partial, &ev.Version, &ev.OldVersion,
			&ev.Subset, &ev.Code, &ev.Message, &ev.Name, &ev.Value); err != nil {
			return nil, fmt.Errorf("scan decision event: %w", err)
		}
		ev.Kind = Kind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}
