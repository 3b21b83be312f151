package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteStore is the default Store backend: a local, plaintext
// database/sql database (pure-Go driver, no CGO), matching the teacher's
// own `cmd/bd/migrate.go` driver choice.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a history store at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite store: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS history (
	id         TEXT PRIMARY KEY,
	command    TEXT NOT NULL,
	cwd        TEXT NOT NULL,
	hostname   TEXT NOT NULL,
	session    TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	duration   INTEGER NOT NULL,
	exit_code  INTEGER NOT NULL,
	git_root   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp);
`

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (id, command, cwd, hostname, session, timestamp, duration, exit_code, git_root)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			command=excluded.command, cwd=excluded.cwd, hostname=excluded.hostname,
			session=excluded.session, timestamp=excluded.timestamp, duration=excluded.duration,
			exit_code=excluded.exit_code, git_root=excluded.git_root`,
		r.ID.String(), r.Command, r.CWD, r.Hostname, r.Session.String(),
		r.Timestamp, r.Duration, r.Exit, r.GitRoot,
	)
	if err != nil {
		return fmt.Errorf("history: save record %s: %w", r.ID, err)
	}
	return nil
}

// QueryByIDs implements Store.
func (s *SQLiteStore) QueryByIDs(ctx context.Context, ids []ID) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id.String())
	}

	query := fmt.Sprintf(`SELECT id, command, cwd, hostname, session, timestamp, duration, exit_code, git_root
		FROM history WHERE id IN (%s)`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query by ids: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// AllPaged implements Store.
func (s *SQLiteStore) AllPaged(ctx context.Context, pageSize int) Pager {
	return &sqlitePager{db: s.db, pageSize: pageSize}
}

type sqlitePager struct {
	db       *sql.DB
	pageSize int
	offset   int
	done     bool
}

func (p *sqlitePager) Next(ctx context.Context) ([]Record, error) {
	if p.done {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, command, cwd, hostname, session, timestamp, duration, exit_code, git_root
		FROM history ORDER BY timestamp ASC LIMIT ? OFFSET ?`, p.pageSize, p.offset)
	if err != nil {
		return nil, fmt.Errorf("history: page query: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	if len(records) < p.pageSize {
		p.done = true
	}
	p.offset += len(records)

	if len(records) == 0 {
		return nil, nil
	}
	return records, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			r                 Record
			idStr, sessionStr string
		)
		if err := rows.Scan(&idStr, &r.Command, &r.CWD, &r.Hostname, &sessionStr,
			&r.Timestamp, &r.Duration, &r.Exit, &r.GitRoot); err != nil {
			return nil, fmt.Errorf("history: scan row: %w", err)
		}
		id, err := ParseID(idStr)
		if err != nil {
			// A malformed row skips, per spec.md §7's "malformed history row
			// during indexing" handling; no counter records the skip.
			continue
		}
		r.ID = id
		if sid, err := ParseSessionID(sessionStr); err == nil {
			r.Session = sid
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
