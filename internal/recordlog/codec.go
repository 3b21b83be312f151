package recordlog

import (
	"encoding/json"
	"fmt"

	"github.com/shellhist/histd/internal/history"
)

// wireRecord is the JSON shape stored as an Envelope's Content. Encryption
// of this payload is out of scope (Non-goal); the wire format itself is
// private to this package and the components that append to it.
type wireRecord struct {
	ID        string `json:"id"`
	Command   string `json:"command"`
	CWD       string `json:"cwd"`
	Hostname  string `json:"hostname"`
	Session   string `json:"session"`
	Timestamp int64  `json:"timestamp"`
	Duration  int64  `json:"duration"`
	Exit      int32  `json:"exit"`
	GitRoot   string `json:"git_root"`
}

// EncodeHistoryRecord serializes r for storage as an Envelope's Content.
func EncodeHistoryRecord(r history.Record) ([]byte, error) {
	w := wireRecord{
		ID:        r.ID.String(),
		Command:   r.Command,
		CWD:       r.CWD,
		Hostname:  r.Hostname,
		Session:   r.Session.String(),
		Timestamp: r.Timestamp,
		Duration:  r.Duration,
		Exit:      r.Exit,
		GitRoot:   r.GitRoot,
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("recordlog: encode history record: %w", err)
	}
	return b, nil
}

func decodeHistoryRecord(content []byte) (history.Record, error) {
	var w wireRecord
	if err := json.Unmarshal(content, &w); err != nil {
		return history.Record{}, fmt.Errorf("unmarshal: %w", err)
	}

	id, err := history.ParseID(w.ID)
	if err != nil {
		return history.Record{}, fmt.Errorf("id: %w", err)
	}
	session, err := history.ParseSessionID(w.Session)
	if err != nil {
		return history.Record{}, fmt.Errorf("session id: %w", err)
	}

	return history.Record{
		ID:        id,
		Command:   w.Command,
		CWD:       w.CWD,
		Hostname:  w.Hostname,
		Session:   session,
		Timestamp: w.Timestamp,
		Duration:  w.Duration,
		Exit:      w.Exit,
		GitRoot:   w.GitRoot,
	}, nil
}
