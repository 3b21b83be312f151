// Package settings holds the daemon's own configuration: the handful of
// values the core needs directly (socket path, sync cadence, NATS URL).
// This is deliberately not a general configuration subsystem — CLI flag
// parsing, profile layering, and the rest of a full config story are named
// as an external collaborator's concern, not the core's.
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the minimal configuration the daemon core reads.
type Settings struct {
	Daemon DaemonSettings `yaml:"daemon"`
	Sync   SyncSettings   `yaml:"sync"`
}

type DaemonSettings struct {
	SocketPath    string `yaml:"socket_path"`
	TCPPort       int    `yaml:"tcp_port"`
	StateDir      string `yaml:"state_dir"`
	SyncFrequency int    `yaml:"sync_frequency"` // seconds
}

type SyncSettings struct {
	LoggedIn   bool   `yaml:"logged_in"`
	Backend    string `yaml:"backend"` // "sqlite" or "dolt"
	RemoteURL  string `yaml:"remote_url"`
	LastSyncAt int64  `yaml:"last_sync_at"`
}

// Default returns Settings with the same defaults the teacher's own daemon
// ships: a socket under the state directory, sync every 10 minutes.
func Default(stateDir string) Settings {
	return Settings{
		Daemon: DaemonSettings{
			SocketPath:    stateDir + "/histd.sock",
			TCPPort:       0,
			StateDir:      stateDir,
			SyncFrequency: 600,
		},
		Sync: SyncSettings{
			Backend: "sqlite",
		},
	}
}

// Load reads Settings from a YAML file, falling back to Default(stateDir)
// if the file does not exist.
func Load(path, stateDir string) (Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(stateDir), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %s: %w", path, err)
	}

	s := Default(stateDir)
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path as YAML.
func Save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("settings: write %s: %w", path, err)
	}
	return nil
}
