// Command histd is the shell-history daemon's entrypoint: a thin cobra CLI
// wiring the orchestrator in internal/daemon to a concrete history store,
// record log, component set, and RPC server (spec.md §6's "external
// collaborator" CLI, kept to the minimum the core needs — see
// SPEC_FULL.md's Non-goals for what's deliberately left out: flag/config
// parsing beyond locating the socket and state directory).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	historycomp "github.com/shellhist/histd/internal/components/history"
	searchcomp "github.com/shellhist/histd/internal/components/search"
	synccomp "github.com/shellhist/histd/internal/components/sync"
	"github.com/shellhist/histd/internal/control"
	"github.com/shellhist/histd/internal/daemon"
	"github.com/shellhist/histd/internal/eventbus"
	"github.com/shellhist/histd/internal/history"
	"github.com/shellhist/histd/internal/recordlog"
	"github.com/shellhist/histd/internal/rpc"
	"github.com/shellhist/histd/internal/settings"
)

// version is overridden at build time via -ldflags.
var version = "0.1.0-dev"

func main() {
	root := &cobra.Command{
		Use:   "histd",
		Short: "Shell-history daemon",
	}
	root.AddCommand(serveCmd(), statusCmd(), shutdownCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultStateDir() string {
	if dir := os.Getenv("HISTD_STATE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".histd"
	}
	return filepath.Join(home, ".local", "share", "histd")
}

func serveCmd() *cobra.Command {
	var stateDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), stateDir)
		},
	}
	cmd.Flags().StringVar(&stateDir, "state-dir", defaultStateDir(), "directory for the socket, lock file, and databases")
	return cmd
}

func statusCmd() *cobra.Command {
	var stateDir string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report daemon health",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load(filepath.Join(stateDir, "settings.yaml"), stateDir)
			if err != nil {
				return err
			}
			client, err := rpc.Dial(s.Daemon.SocketPath, 2*time.Second)
			if err != nil {
				return fmt.Errorf("connect to daemon: %w", err)
			}
			defer client.Close()

			result, err := client.Status()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&stateDir, "state-dir", defaultStateDir(), "directory for the socket, lock file, and databases")
	return cmd
}

func shutdownCmd() *cobra.Command {
	var stateDir string
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Ask a running daemon to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load(filepath.Join(stateDir, "settings.yaml"), stateDir)
			if err != nil {
				return err
			}
			client, err := rpc.Dial(s.Daemon.SocketPath, 2*time.Second)
			if err != nil {
				return fmt.Errorf("connect to daemon: %w", err)
			}
			defer client.Close()

			_, err = client.Shutdown()
			return err
		},
	}
	cmd.Flags().StringVar(&stateDir, "state-dir", defaultStateDir(), "directory for the socket, lock file, and databases")
	return cmd
}

// serve boots the full daemon: history store, record log, every
// component, the RPC server, and a signal handler that turns SIGINT/
// SIGTERM into a ShutdownRequested event (spec.md §6).
func serve(ctx context.Context, stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	settingsPath := filepath.Join(stateDir, "settings.yaml")
	s, err := settings.Load(settingsPath, stateDir)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := settings.Save(settingsPath, s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	historyStore, err := history.OpenSQLiteStore(filepath.Join(stateDir, "history.db"))
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}

	hostID, err := loadOrCreateHostID(stateDir)
	if err != nil {
		return fmt.Errorf("load host id: %w", err)
	}

	backend := recordlog.BackendKind(s.Sync.Backend)
	if backend == "" {
		backend = recordlog.BackendSQLite
	}
	recordLog, err := recordlog.New(ctx, backend, filepath.Join(stateDir, "records.db"), hostID, historyStore, s.Sync.RemoteURL)
	if err != nil {
		return fmt.Errorf("open record log: %w", err)
	}

	historyC := historycomp.New(version)
	searchC := searchcomp.New()
	syncC := synccomp.New()

	d, err := daemon.NewBuilder(s).
		HistoryStore(historyStore).
		RecordLog(recordLog).
		Component(historyC).
		Component(searchC).
		Component(syncC).
		Build(s.Daemon.SocketPath, version)
	if err != nil {
		return fmt.Errorf("build daemon: %w", err)
	}

	if err := d.StartComponents(ctx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}

	controlSvc := control.New(d.Handle())
	server := rpc.New(s.Daemon.SocketPath, version, historyC, searchC, controlSvc)

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Serve(serveCtx) }()

	go d.RunEventLoop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		fmt.Fprintf(os.Stderr, "histd: received %s, shutting down\n", sig)
		d.Handle().Emit(eventbus.NewShutdownRequested())
	case err := <-serverErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "histd: rpc server error: %v\n", err)
		}
		d.Handle().Emit(eventbus.NewShutdownRequested())
	case <-d.Done():
	}

	<-d.Done()
	cancelServe()
	server.Stop()
	d.StopComponents(ctx)

	return nil
}

func loadOrCreateHostID(stateDir string) (recordlog.HostID, error) {
	path := filepath.Join(stateDir, "host_id")
	data, err := os.ReadFile(path)
	if err == nil {
		return recordlog.ParseHostID(string(data))
	}
	if !os.IsNotExist(err) {
		return recordlog.HostID{}, err
	}

	id := recordlog.NewHostID()
	if err := os.WriteFile(path, []byte(id.String()), 0o600); err != nil {
		return recordlog.HostID{}, err
	}
	return id, nil
}
