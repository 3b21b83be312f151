//go:build cgo

package recordlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"

	"github.com/shellhist/histd/internal/history"
)

func init() {
	RegisterBackend(BackendDolt, func(ctx context.Context, path string, host HostID, store history.Store, remote string) (Log, error) {
		return OpenDoltLog(path, host, store, remote)
	})
}

// closer is the subset of embedded.Connector this package relies on to
// release the Dolt engine's filesystem locks on shutdown.
type closer interface {
	Close() error
}

// DoltLog is the replicated Log backend: every envelope lives in a Dolt
// database, and Sync is DOLT_PUSH followed by DOLT_PULL against a configured
// remote rather than a side-channel message bus. Choosing this backend buys
// replication and history-of-the-log for free, at the cost of requiring
// CGO, mirroring the tradeoff the teacher's own storage layer documents
// between its sqlite and dolt backends.
type DoltLog struct {
	db        *sql.DB
	connector closer
	host      HostID
	store     history.Store
	remote    string // configured remote name; "" disables Sync
}

// OpenDoltLog opens (creating if necessary) an embedded Dolt database at
// path as the record log. remote is the name of a Dolt remote already
// configured against the database (e.g. via `dolt remote add`); an empty
// remote disables replication and Sync becomes a no-op.
func OpenDoltLog(path string, host HostID, store history.Store, remote string) (*DoltLog, error) {
	dsn := fmt.Sprintf("file://%s?commitname=histd&commitemail=histd@localhost&database=records", path)

	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("recordlog: parse dolt dsn: %w", err)
	}
	cfg.BackOff = newOpenBackoff()

	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("recordlog: new dolt connector: %w", err)
	}
	db := sql.OpenDB(connector)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("recordlog: ping dolt: %w", err)
	}

	if _, err := db.Exec("CREATE DATABASE IF NOT EXISTS records"); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("recordlog: create database: %w", err)
	}
	if _, err := db.Exec(doltSchemaSQL); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("recordlog: create schema: %w", err)
	}

	return &DoltLog{db: db, connector: connector, host: host, store: store, remote: remote}, nil
}

func newOpenBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return bo
}

const doltSchemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	id      VARCHAR(36) PRIMARY KEY,
	host    VARCHAR(36) NOT NULL,
	idx     BIGINT NOT NULL,
	content LONGBLOB NOT NULL,
	UNIQUE KEY host_idx (host, idx)
);
`

func (l *DoltLog) Close() error {
	dbErr := l.db.Close()
	connErr := l.connector.Close()
	if dbErr != nil {
		return dbErr
	}
	return connErr
}

// Append implements Log.
func (l *DoltLog) Append(ctx context.Context, env Envelope) (uint64, error) {
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

	if _, err := l.db.ExecContext(ctx, "CALL DOLT_COMMIT('-Am', ?)", fmt.Sprintf("append record %s", env.ID)); err != nil {
		return 0, fmt.Errorf("recordlog: commit append: %w", err)
	}

	return nextIdx, nil
}

// IncrementalBuild implements Log, identically to SQLiteLog's version: the
// storage medium differs but the derive-then-save contract does not.
func (l *DoltLog) IncrementalBuild(ctx context.Context, ids []RecordID) error {
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

// Sync implements Log as a push followed by a pull against the configured
// Dolt remote. With no remote configured this is a no-op, per the Log
// interface's contract. The uploaded count it returns is always 0: pushed
// envelopes are not counted.
func (l *DoltLog) Sync(ctx context.Context) (int, []RecordID, error) {
	if l.remote == "" {
		return 0, nil, nil
	}

	var beforeHead string
	if err := l.db.QueryRowContext(ctx, "SELECT @@records_head").Scan(&beforeHead); err != nil {
		return 0, nil, fmt.Errorf("recordlog: read head before pull: %w", err)
	}

	if _, err := l.db.ExecContext(ctx, "CALL DOLT_PUSH(?, 'main')", l.remote); err != nil {
		return 0, nil, fmt.Errorf("recordlog: push: %w", err)
	}

	// A non-zero exit from dolt_pull indicates a conflict that needs manual
	// resolution; cross-host merge policy beyond fast-forward is out of
	// scope here.
	var pullStatus int
	row := l.db.QueryRowContext(ctx, "CALL DOLT_PULL(?)", l.remote)
	if err := row.Scan(&pullStatus); err != nil {
		return 0, nil, fmt.Errorf("recordlog: pull: %w", err)
	}

	var afterHead string
	if err := l.db.QueryRowContext(ctx, "SELECT @@records_head").Scan(&afterHead); err != nil {
		return 0, nil, fmt.Errorf("recordlog: read head after pull: %w", err)
	}

	if beforeHead == afterHead {
		return 0, nil, nil
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id FROM dolt_diff('records', ?, @@records_head)
		WHERE diff_type = 'added'`, beforeHead)
	if err != nil {
		return 0, nil, fmt.Errorf("recordlog: diff pulled range: %w", err)
	}
	defer rows.Close()

	var downloaded []RecordID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return 0, downloaded, fmt.Errorf("recordlog: scan diff row: %w", err)
		}
		if id, err := ParseRecordID(idStr); err == nil {
			downloaded = append(downloaded, id)
		}
	}

	return 0, downloaded, rows.Err()
}

var _ Log = (*DoltLog)(nil)
