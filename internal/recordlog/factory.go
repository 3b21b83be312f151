package recordlog

import (
	"context"
	"fmt"

	"github.com/shellhist/histd/internal/history"
)

// BackendKind names a Log backend. "sqlite" is always available; "dolt"
// requires a CGO build (dolthub/driver is CGO-only) and is registered by
// dolt_log.go's build-tagged init.
type BackendKind string

const (
	BackendSQLite BackendKind = "sqlite"
	BackendDolt   BackendKind = "dolt"
)

// BackendFactory opens a Log at path for the given host, store, and
// (backend-specific) remote descriptor.
type BackendFactory func(ctx context.Context, path string, host HostID, store history.Store, remote string) (Log, error)

var backendRegistry = map[BackendKind]BackendFactory{
	BackendSQLite: func(ctx context.Context, path string, host HostID, store history.Store, remote string) (Log, error) {
		var syncer Syncer
		if remote != "" {
			s, err := DialNATSSyncer(remote, "histd-"+host.String())
			if err != nil {
				return nil, err
			}
			syncer = s
		}
		return OpenSQLiteLog(path, host, store, syncer)
	},
}

// RegisterBackend adds (or replaces) a backend factory. dolt_log.go's
// cgo-gated init calls this for BackendDolt; non-cgo builds never see it
// registered, and New returns a clear error instead.
func RegisterBackend(kind BackendKind, factory BackendFactory) {
	backendRegistry[kind] = factory
}

// New opens the record log for the given backend kind. remote's meaning is
// backend-specific: a NATS URL for sqlite+NATS sync, a configured Dolt
// remote name for the dolt backend.
func New(ctx context.Context, kind BackendKind, path string, host HostID, store history.Store, remote string) (Log, error) {
	factory, ok := backendRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("recordlog: unknown or unavailable backend %q (built without CGO?)", kind)
	}
	return factory(ctx, path, host, store, remote)
}
