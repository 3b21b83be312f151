package recordlog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/shellhist/histd/internal/history"
)

// SQLiteLog is the unreplicated Log backend: envelopes live in a local
// database, and Sync exchanges them with a NATS JetStream stream instead of
// with another database. This is the default backend when no remote store
// is configured.
type SQLiteLog struct {
	db    *sql.DB
	host  HostID
	store history.Store
	sync  Syncer
}

// Syncer abstracts the transport Sync uses to exchange envelopes with a
// remote peer. NATSSyncer is the only implementation; tests can substitute a
// fake.
type Syncer interface {
	Publish(ctx context.Context, env Envelope) error
	Pull(ctx context.Context, afterIndex uint64) ([]Envelope, error)
}

// OpenSQLiteLog opens (creating if necessary) a record log at path, fed by
// sync. host identifies this machine's envelopes; store is where
// IncrementalBuild writes derived history rows.
func OpenSQLiteLog(path string, host HostID, store history.Store, sync Syncer) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("recordlog: open sqlite log: %w", err)
	}
	if _, err := db.Exec(recordSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recordlog: create schema: %w", err)
	}
	return &SQLiteLog{db: db, host: host, store: store, sync: sync}, nil
}

const recordSchemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	id       TEXT PRIMARY KEY,
	host     TEXT NOT NULL,
	idx      INTEGER NOT NULL,
	content  BLOB NOT NULL,
	UNIQUE(host, idx)
);
CREATE TABLE IF NOT EXISTS sync_state (
	host            TEXT PRIMARY KEY,
	uploaded_upto   INTEGER NOT NULL DEFAULT -1
);
`

func (l *SQLiteLog) Close() error { return l.db.Close() }

// Append implements Log.
func (l *SQLiteLog) Append(ctx context.Context, env Envelope) (uint64, error) {
	var nextIdx uint64
	err := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(idx), -1) + 1 FROM records WHERE host = ?`, l.host.String()).Scan(&nextIdx)
	if err != nil {
		return 0, fmt.Errorf("recordlog: compute next index: %w", err)
	}

	if env.ID == (RecordID{}) {
		env.ID = NewRecordID()
	}
	env.Host = l.host
	env.Index = nextIdx

	_, err = l.db.ExecContext(ctx, `INSERT INTO records (id, host, idx, content) VALUES (?, ?, ?, ?)`,
		env.ID.String(), env.Host.String(), env.Index, env.Content)
	if err != nil {
		return 0, fmt.Errorf("recordlog: append: %w", err)
	}

	if l.sync != nil {
		// Best-effort: publishing failures surface on the next scheduled
		// Sync tick instead of blocking the append path.
		_ = l.sync.Publish(ctx, env)
	}

	return nextIdx, nil
}

// IncrementalBuild implements Log: it looks each id up locally and derives a
// history.Record from its content, saving it to store. The wire format of
// Content is the encoding the History Component uses when it appends — this
// package only moves bytes, never interprets them beyond that round trip.
func (l *SQLiteLog) IncrementalBuild(ctx context.Context, ids []RecordID) error {
	for _, id := range ids {
		var content []byte
		err := l.db.QueryRowContext(ctx, `SELECT content FROM records WHERE id = ?`, id.String()).Scan(&content)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("recordlog: incremental build lookup %s: %w", id, err)
		}

		rec, err := decodeHistoryRecord(content)
		if err != nil {
			return fmt.Errorf("recordlog: decode record %s: %w", id, err)
		}
		if err := l.store.Save(ctx, rec); err != nil {
			return fmt.Errorf("recordlog: incremental build save %s: %w", id, err)
		}
	}
	return nil
}

// Sync implements Log by pulling new envelopes from the configured Syncer
// and appending any not already present locally. With no Syncer configured
// this is a no-op, per the Log interface's contract.
func (l *SQLiteLog) Sync(ctx context.Context) (int, []RecordID, error) {
	if l.sync == nil {
		return 0, nil, nil
	}

	var highWater uint64
	if err := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(idx), 0) FROM records WHERE host != ?`, l.host.String()).Scan(&highWater); err != nil {
		return 0, nil, fmt.Errorf("recordlog: read high-water mark: %w", err)
	}

	pulled, err := l.sync.Pull(ctx, highWater)
	if err != nil {
		return 0, nil, fmt.Errorf("recordlog: pull: %w", err)
	}

	var downloaded []RecordID
	for _, env := range pulled {
		_, err := l.db.ExecContext(ctx, `
			INSERT INTO records (id, host, idx, content) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			env.ID.String(), env.Host.String(), env.Index, env.Content)
		if err != nil {
			return 0, nil, fmt.Errorf("recordlog: store pulled envelope %s: %w", env.ID, err)
		}
		downloaded = append(downloaded, env.ID)
	}

	var uploadedUpto int64 = -1
	err = l.db.QueryRowContext(ctx, `SELECT uploaded_upto FROM sync_state WHERE host = ?`, l.host.String()).Scan(&uploadedUpto)
	if err != nil && err != sql.ErrNoRows {
		return 0, downloaded, fmt.Errorf("recordlog: read upload watermark: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `SELECT id, idx, content FROM records WHERE host = ? AND idx > ? ORDER BY idx ASC`,
		l.host.String(), uploadedUpto)
	if err != nil {
		return 0, downloaded, fmt.Errorf("recordlog: list unsynced local envelopes: %w", err)
	}
	defer rows.Close()

	var uploaded int
	for rows.Next() {
		var env Envelope
		var idStr string
		if err := rows.Scan(&idStr, &env.Index, &env.Content); err != nil {
			return uploaded, downloaded, fmt.Errorf("recordlog: scan local envelope: %w", err)
		}
		env.ID, _ = ParseRecordID(idStr)
		env.Host = l.host
		if err := l.sync.Publish(ctx, env); err != nil {
			return uploaded, downloaded, fmt.Errorf("recordlog: publish local envelope %s: %w", env.ID, err)
		}
		uploaded++
		uploadedUpto = int64(env.Index)
	}
	if err := rows.Err(); err != nil {
		return uploaded, downloaded, err
	}

	if uploaded > 0 {
		_, err = l.db.ExecContext(ctx, `
			INSERT INTO sync_state (host, uploaded_upto) VALUES (?, ?)
			ON CONFLICT(host) DO UPDATE SET uploaded_upto = excluded.uploaded_upto`,
			l.host.String(), uploadedUpto)
		if err != nil {
			return uploaded, downloaded, fmt.Errorf("recordlog: save upload watermark: %w", err)
		}
	}

	return uploaded, downloaded, nil
}

var _ Log = (*SQLiteLog)(nil)
