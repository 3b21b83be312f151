//go:build windows

package rpc

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// endpointInfo is what listenRPC writes to socketPath in place of a real
// unix socket: a small JSON pointer at the loopback TCP port this daemon
// actually bound, stamped with the wire protocol version it speaks so a
// client never dials a daemon it can't understand (spec.md §6: "clients
// must reject unknown versions; servers must not lower the value" — this
// enforces that rule at the transport handshake, before a single frame
// is exchanged).
type endpointInfo struct {
	Network  string `json:"network"`
	Address  string `json:"address"`
	Protocol int    `json:"protocol"`
}

func listenRPC(socketPath string) (net.Listener, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(endpointInfo{
		Network:  "tcp",
		Address:  listener.Addr().String(),
		Protocol: ProtocolVersion,
	})
	if err != nil {
		listener.Close()
		return nil, err
	}
	if err := os.WriteFile(socketPath, data, 0o600); err != nil {
		listener.Close()
		return nil, err
	}
	return listener, nil
}

func listenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

func validateEndpoint(info endpointInfo) error {
	if info.Network != "" && info.Network != "tcp" {
		return fmt.Errorf("invalid rpc endpoint: network must be tcp, got %q", info.Network)
	}
	if info.Address == "" {
		return fmt.Errorf("invalid rpc endpoint: missing address")
	}
	if !strings.HasPrefix(info.Address, "127.0.0.1:") && !strings.HasPrefix(info.Address, "localhost:") {
		return fmt.Errorf("invalid rpc endpoint: address must bind to localhost, got %q", info.Address)
	}
	if info.Protocol != 0 && info.Protocol != ProtocolVersion {
		return fmt.Errorf("invalid rpc endpoint: protocol version %d unsupported, want %d", info.Protocol, ProtocolVersion)
	}
	return nil
}

func dialRPC(socketPath string, timeout time.Duration) (net.Conn, error) {
	data, err := os.ReadFile(socketPath)
	if err != nil {
		return nil, err
	}
	var info endpointInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	if err := validateEndpoint(info); err != nil {
		return nil, err
	}
	return net.DialTimeout("tcp", info.Address, timeout)
}

func dialTCP(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

func endpointExists(socketPath string) bool {
	_, err := os.Stat(socketPath)
	return err == nil
}
