package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	historycomp "github.com/shellhist/histd/internal/components/history"
	searchcomp "github.com/shellhist/histd/internal/components/search"
	"github.com/shellhist/histd/internal/control"
	"github.com/shellhist/histd/internal/history"
)

// requestTimeout bounds how long a connection may sit idle between
// frames, the same per-request deadline discipline the teacher's own RPC
// server applies.
const requestTimeout = 30 * time.Second

// Server is the daemon's single RPC listener: every operation (History,
// Search, Control) is dispatched from one accept loop over one framing
// protocol, rather than one listener per service.
type Server struct {
	socketPath string
	version    string

	history *historycomp.Component
	search  *searchcomp.Component
	control *control.Service

	mu       sync.Mutex
	listener net.Listener
	shutdown bool

	shutdownSignal chan struct{}
}

// New creates a Server bound to socketPath (or a loopback TCP port on
// platforms without filesystem sockets; see transport_unix.go/
// transport_windows.go).
func New(socketPath, version string, h *historycomp.Component, s *searchcomp.Component, c *control.Service) *Server {
	return &Server{
		socketPath:     socketPath,
		version:        version,
		history:        h,
		search:         s,
		control:        c,
		shutdownSignal: make(chan struct{}),
	}
}

// Serve listens and accepts connections until Stop is called or ctx is
// cancelled. It blocks.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := listenRPC(s.socketPath)
	if err != nil {
		return fmt.Errorf("rpc: listen: %w", err)
	}
	log.Printf("rpc: listening on %s (version %s)", s.socketPath, s.version)

	if runtime.GOOS != "windows" {
		if err := os.Chmod(s.socketPath, 0o600); err != nil {
			listener.Close()
			return fmt.Errorf("rpc: chmod socket: %w", err)
		}
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shuttingDown := s.shutdown
			s.mu.Unlock()
			if shuttingDown {
				return nil
			}
			return fmt.Errorf("rpc: accept: %w", err)
		}
		go s.handleConnection(conn)
	}
}

// Stop closes the listener. Connections already accepted are not closed:
// they keep being served until the client hangs up or, outside a search
// stream, the connection sits idle past requestTimeout.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return
	}
	s.shutdown = true
	if s.listener != nil {
		s.listener.Close()
	}
	close(s.shutdownSignal)
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(requestTimeout)); err != nil {
			return
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(writer, Response{Success: false, Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		if err := conn.SetWriteDeadline(time.Now().Add(requestTimeout)); err != nil {
			return
		}

		if req.Operation == OpSearch {
			s.handleSearchStream(reader, writer, conn)
			return
		}

		s.writeResponse(writer, s.handleRequest(context.Background(), &req))
	}
}

func (s *Server) writeResponse(w *bufio.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("rpc: marshal response: %v", err)
		return
	}
	if _, err := w.Write(data); err != nil {
		return
	}
	if err := w.WriteByte('\n'); err != nil {
		return
	}
	_ = w.Flush()
}

// handleRequest dispatches every non-Search operation: each is a single
// request/response frame on the connection.
func (s *Server) handleRequest(ctx context.Context, req *Request) Response {
	switch req.Operation {
	case OpStartHistory:
		return s.handleStartHistory(req)
	case OpEndHistory:
		return s.handleEndHistory(ctx, req)
	case OpStatus:
		return s.handleStatus()
	case OpShutdown:
		return s.handleShutdown()
	case OpControlSendEvent:
		return s.handleControlSendEvent(req)
	default:
		return Response{Success: false, Error: ErrInvalidArgument}
	}
}

func (s *Server) handleStartHistory(req *Request) Response {
	var args StartHistoryArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return Response{Success: false, Error: ErrInvalidArgument}
	}

	session, err := history.ParseSessionID(args.Session)
	if err != nil {
		return Response{Success: false, Error: ErrInvalidArgument}
	}

	result := s.history.StartHistory(historycomp.StartArgs{
		Command:     args.Command,
		CWD:         args.CWD,
		Hostname:    args.Hostname,
		Session:     session,
		TimestampNS: args.TimestampNS,
	})

	return jsonResponse(StartHistoryResult{ID: result.ID.String(), ProtocolVersion: result.ProtocolVersion})
}

func (s *Server) handleEndHistory(ctx context.Context, req *Request) Response {
	var args EndHistoryArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return Response{Success: false, Error: ErrInvalidArgument}
	}

	id, err := history.ParseID(args.ID)
	if err != nil {
		return Response{Success: false, Error: ErrInvalidArgument}
	}

	result, err := s.history.EndHistory(ctx, historycomp.EndArgs{ID: id, DurationNS: args.DurationNS, Exit: args.Exit})
	if err != nil {
		if err == historycomp.ErrNotRunning {
			return Response{Success: false, Error: ErrNotFound}
		}
		return Response{Success: false, Error: ErrInternal}
	}

	return jsonResponse(EndHistoryResult{
		RecordID:        result.RecordID.String(),
		Index:           result.Index,
		ProtocolVersion: result.ProtocolVersion,
	})
}

func (s *Server) handleStatus() Response {
	healthy, version, pid, protocol := s.history.Status()
	return jsonResponse(StatusResult{Healthy: healthy, Version: version, PID: pid, ProtocolVersion: protocol})
}

func (s *Server) handleShutdown() Response {
	if err := s.control.SendEvent("Shutdown", nil); err != nil {
		return Response{Success: false, Error: ErrInternal}
	}
	return jsonResponse(ShutdownResult{Accepted: true})
}

func (s *Server) handleControlSendEvent(req *Request) Response {
	var args ControlSendEventArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return Response{Success: false, Error: ErrInvalidArgument}
	}
	if err := s.control.SendEvent(args.Kind, args.DeletedIDs); err != nil {
		return Response{Success: false, Error: ErrInvalidArgument}
	}
	return Response{Success: true}
}

// handleSearchStream implements the one streaming operation: once a
// connection commits to OpSearch, it switches to a frame-per-query loop
// instead of one request/response pair (spec.md §4.4/§6), the direct Go
// stand-in for the original's bidirectional gRPC stream.
func (s *Server) handleSearchStream(reader *bufio.Reader, writer *bufio.Writer, conn net.Conn) {
	ctx := context.Background()
	for {
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			return
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var sreq SearchRequest
		if err := json.Unmarshal(line, &sreq); err != nil {
			s.writeResponse(writer, Response{Success: false, Error: ErrInvalidArgument})
			continue
		}

		mode := filterModeFromWire(sreq.FilterMode, sreq.Context)
		qctx := queryContextFromWire(sreq.Context)

		ids := s.search.Search(ctx, sreq.Query, mode, qctx, 0)
		stringIDs := make([]string, len(ids))
		for i, id := range ids {
			stringIDs[i] = id.String()
		}

		s.writeResponse(writer, jsonResponse(SearchResult{QueryID: sreq.QueryID, IDs: stringIDs}))
	}
}

func jsonResponse(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Response{Success: false, Error: ErrInternal}
	}
	return Response{Success: true, Data: data}
}
