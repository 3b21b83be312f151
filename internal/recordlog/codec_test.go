package recordlog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellhist/histd/internal/history"
)

func TestEncodeDecodeHistoryRecordRoundTrips(t *testing.T) {
	r := history.Record{
		ID:        history.NewID(),
		Command:   "git log --oneline",
		CWD:       "/repo",
		Hostname:  "host-a",
		Session:   history.NewSessionID(),
		Timestamp: 1_700_000_000_000_000_000,
		Duration:  42,
		Exit:      1,
		GitRoot:   "/repo",
	}

	content, err := EncodeHistoryRecord(r)
	require.NoError(t, err)

	got, err := decodeHistoryRecord(content)
	require.NoError(t, err)

	assert.Equal(t, r, got)
}

func TestDecodeHistoryRecordRejectsMalformedContent(t *testing.T) {
	_, err := decodeHistoryRecord([]byte("not json"))
	assert.Error(t, err)
}

func TestDecodeHistoryRecordRejectsBadID(t *testing.T) {
	content, err := EncodeHistoryRecord(history.Record{ID: history.NewID(), Session: history.NewSessionID()})
	require.NoError(t, err)

	// Corrupt the id field so the decode must fail distinctly, matching
	// spec.md §7's "malformed history row during indexing" handling.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(content, &raw))
	raw["id"] = "not-a-uuid"
	corrupted, err := json.Marshal(raw)
	require.NoError(t, err)

	_, err = decodeHistoryRecord(corrupted)
	assert.Error(t, err)
}
