package rpc_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	historycomp "github.com/shellhist/histd/internal/components/history"
	searchcomp "github.com/shellhist/histd/internal/components/search"
	"github.com/shellhist/histd/internal/control"
	"github.com/shellhist/histd/internal/daemon"
	"github.com/shellhist/histd/internal/eventbus"
	histcore "github.com/shellhist/histd/internal/history"
	"github.com/shellhist/histd/internal/recordlog"
	"github.com/shellhist/histd/internal/rpc"
	"github.com/shellhist/histd/internal/settings"
)

type noopLog struct{}

func (noopLog) Append(context.Context, recordlog.Envelope) (uint64, error)  { return 0, nil }
func (noopLog) IncrementalBuild(context.Context, []recordlog.RecordID) error { return nil }
func (noopLog) Sync(context.Context) (int, []recordlog.RecordID, error)     { return 0, nil, nil }

// newTestServer boots a real daemon (history store on disk, history/search
// components, control service) behind a real unix-socket RPC server, the
// way cmd/histd's serve() does, so these tests exercise the wire protocol
// end to end rather than calling component methods directly.
func newTestServer(t *testing.T) (socketPath string, stop func()) {
	t.Helper()
	stateDir := t.TempDir()
	socketPath = filepath.Join(stateDir, "histd.sock")

	store, err := histcore.OpenSQLiteStore(filepath.Join(stateDir, "history.db"))
	require.NoError(t, err)

	s := settings.Default(stateDir)

	historyC := historycomp.New("test")
	searchC := searchcomp.New()

	d, err := daemon.NewBuilder(s).
		HistoryStore(store).
		RecordLog(noopLog{}).
		Component(historyC).
		Component(searchC).
		Build(socketPath, "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.StartComponents(ctx))

	controlSvc := control.New(d.Handle())
	server := rpc.New(socketPath, "test", historyC, searchC, controlSvc)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx) }()
	go d.RunEventLoop()

	require.Eventually(t, func() bool {
		c, err := rpc.Dial(socketPath, 100*time.Millisecond)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond, "rpc server must start listening")

	return socketPath, func() {
		d.Handle().Emit(eventbus.NewShutdownRequested())
		<-d.Done()
		cancel()
		server.Stop()
		d.StopComponents(context.Background())
		store.Close()
	}
}

func TestStartEndStatusOverRPC(t *testing.T) {
	socketPath, stop := newTestServer(t)
	defer stop()

	client, err := rpc.Dial(socketPath, time.Second)
	require.NoError(t, err)
	defer client.Close()

	start, err := client.StartHistory(rpc.StartHistoryArgs{
		Command:     "echo hi",
		CWD:         "/tmp",
		Hostname:    "host-a",
		Session:     histcore.NewSessionID().String(),
		TimestampNS: 1_700_000_000_000_000_000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, start.ProtocolVersion)
	assert.NotEmpty(t, start.ID)

	end, err := client.EndHistory(rpc.EndHistoryArgs{ID: start.ID, DurationNS: 0, Exit: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, end.ProtocolVersion)

	status, err := client.Status()
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Equal(t, 1, status.ProtocolVersion)
}

// TestEndUnknownIDReturnsNotFound is scenario S2 driven over the wire.
func TestEndUnknownIDReturnsNotFound(t *testing.T) {
	socketPath, stop := newTestServer(t)
	defer stop()

	client, err := rpc.Dial(socketPath, time.Second)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.EndHistory(rpc.EndHistoryArgs{ID: histcore.NewID().String()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), rpc.ErrNotFound)
}

func TestEndHistoryInvalidArgument(t *testing.T) {
	socketPath, stop := newTestServer(t)
	defer stop()

	client, err := rpc.Dial(socketPath, time.Second)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.EndHistory(rpc.EndHistoryArgs{ID: "not-a-uuid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), rpc.ErrInvalidArgument)
}

func TestSearchStreamRoundTrip(t *testing.T) {
	socketPath, stop := newTestServer(t)
	defer stop()

	client, err := rpc.Dial(socketPath, time.Second)
	require.NoError(t, err)
	defer client.Close()

	start, err := client.StartHistory(rpc.StartHistoryArgs{
		Command:  "git status",
		CWD:      "/repo",
		Hostname: "host-a",
		Session:  histcore.NewSessionID().String(),
	})
	require.NoError(t, err)
	_, err = client.EndHistory(rpc.EndHistoryArgs{ID: start.ID})
	require.NoError(t, err)

	stream, err := rpc.NewSearchStream(socketPath, time.Second)
	require.NoError(t, err)
	defer stream.Close()

	var result rpc.SearchResult
	require.Eventually(t, func() bool {
		result, err = stream.Query(rpc.SearchRequest{Query: "", QueryID: "q1", FilterMode: "Global"})
		return err == nil && len(result.IDs) == 1
	}, 2*time.Second, 10*time.Millisecond, "search must return the record inserted via HistoryEnded")

	assert.Equal(t, "q1", result.QueryID)
	assert.Equal(t, start.ID, result.IDs[0])
}

func TestControlSendEventOverRPC(t *testing.T) {
	socketPath, stop := newTestServer(t)
	defer stop()

	client, err := rpc.Dial(socketPath, time.Second)
	require.NoError(t, err)
	defer client.Close()

	err = client.SendEvent(rpc.ControlSendEventArgs{Kind: "ForceSync"})
	assert.NoError(t, err)
}

func TestControlSendEventUnknownKind(t *testing.T) {
	socketPath, stop := newTestServer(t)
	defer stop()

	client, err := rpc.Dial(socketPath, time.Second)
	require.NoError(t, err)
	defer client.Close()

	err = client.SendEvent(rpc.ControlSendEventArgs{Kind: "NotReal"})
	assert.Error(t, err)
}
