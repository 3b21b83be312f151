package search

import (
	"testing"

	"github.com/shellhist/histd/internal/history"
	"github.com/shellhist/histd/internal/search/intern"
)

// recordAt builds a minimal history.Record for test fixtures: a fresh id
// and session, a fixed host, and the given command/cwd/timestamp.
func recordAt(t *testing.T, command, cwd string, timestampNS int64) history.Record {
	t.Helper()
	return history.Record{
		ID:        history.NewID(),
		Command:   command,
		CWD:       cwd,
		Hostname:  "host-a",
		Session:   history.NewSessionID(),
		Timestamp: timestampNS,
	}
}

func newDirTable() *intern.Table  { return intern.NewTable() }
func newHostTable() *intern.Table { return intern.NewTable() }
