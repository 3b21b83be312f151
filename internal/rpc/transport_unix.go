//go:build !windows

package rpc

import (
	"errors"
	"net"
	"os"
	"syscall"
	"time"
)

// listenRPC binds the daemon's unix socket at socketPath. If a stale
// socket file is left over from an unclean previous shutdown (spec.md
// §6: "on clean shutdown the socket file is removed"), nothing is
// listening on it anymore, so the bind fails with EADDRINUSE even though
// the path is dead. Probe that case once — dial it with a short timeout —
// and reclaim the path only when nothing answers, rather than unlinking
// blindly and risking a second daemon's live socket.
func listenRPC(socketPath string) (net.Listener, error) {
	listener, err := net.Listen("unix", socketPath)
	if err == nil {
		return listener, nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return nil, err
	}

	if conn, dialErr := net.DialTimeout("unix", socketPath, 200*time.Millisecond); dialErr == nil {
		conn.Close()
		return nil, err // a daemon is actually listening; surface the original error.
	}

	if rmErr := os.Remove(socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, err
	}
	return net.Listen("unix", socketPath)
}

// listenTCP creates a TCP listener, the fallback transport on platforms
// without filesystem sockets (spec.md §6's "or a loopback TCP port").
func listenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

func dialRPC(socketPath string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", socketPath, timeout)
}

func dialTCP(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

func endpointExists(socketPath string) bool {
	_, err := os.Stat(socketPath)
	return err == nil
}
