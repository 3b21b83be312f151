// Package rpc implements the daemon's local transport: newline-delimited
// JSON request/response frames over a unix socket, or a loopback TCP port
// on platforms without one (spec.md §6). Service boundaries (History,
// Search, Control) are operation names within one connection protocol
// rather than separate listeners, following the teacher's own
// single-socket, many-operations RPC server shape.
package rpc

import "encoding/json"

// ProtocolVersion is returned in every response envelope that carries one,
// per spec.md §6's per-operation "protocol_version=1" fields.
const ProtocolVersion = 1

// Operation names. History/Search/Control group by RPC surface (spec.md
// §4.3/§4.4/§4.7).
const (
	OpStartHistory = "start_history"
	OpEndHistory   = "end_history"
	OpStatus       = "status"
	OpShutdown     = "shutdown"

	OpSearch = "search" // the one streaming operation

	OpControlSendEvent = "control_send_event"
)

// Request is one frame sent client-to-daemon.
type Request struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Response is one frame sent daemon-to-client. Search sends one Response
// per query on the same connection rather than opening a new one.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Error codes surfaced in Response.Error, named the way spec.md §4.3
// names them (INVALID_ARGUMENT, NOT_FOUND, INTERNAL) rather than as Go
// sentinel errors, since they cross the wire as strings.
const (
	ErrInvalidArgument = "INVALID_ARGUMENT"
	ErrNotFound        = "NOT_FOUND"
	ErrInternal        = "INTERNAL"
)

// StartHistoryArgs is OpStartHistory's request payload.
type StartHistoryArgs struct {
	Command     string `json:"command"`
	CWD         string `json:"cwd"`
	Hostname    string `json:"hostname"`
	Session     string `json:"session"`
	TimestampNS int64  `json:"timestamp_ns"`
}

// StartHistoryResult is OpStartHistory's response payload.
type StartHistoryResult struct {
	ID              string `json:"id"`
	ProtocolVersion int    `json:"protocol_version"`
}

// EndHistoryArgs is OpEndHistory's request payload.
type EndHistoryArgs struct {
	ID         string `json:"id"`
	DurationNS int64  `json:"duration_ns"`
	Exit       int32  `json:"exit"`
}

// EndHistoryResult is OpEndHistory's response payload.
type EndHistoryResult struct {
	RecordID        string `json:"record_id"`
	Index           uint64 `json:"idx"`
	ProtocolVersion int    `json:"protocol_version"`
}

// StatusResult is OpStatus's response payload.
type StatusResult struct {
	Healthy         bool   `json:"healthy"`
	Version         string `json:"version"`
	PID             int    `json:"pid"`
	ProtocolVersion int    `json:"protocol_version"`
}

// ShutdownResult is OpShutdown's response payload.
type ShutdownResult struct {
	Accepted bool `json:"accepted"`
}

// SearchRequest is one frame sent on an OpSearch connection, per query.
type SearchRequest struct {
	Query      string         `json:"query"`
	QueryID    string         `json:"query_id"`
	FilterMode string         `json:"filter_mode"`   // Global|Directory|Workspace|Host|Session|SessionPreload
	Arg        string         `json:"arg,omitempty"` // not read by the server; filter values come from Context
	Context    *SearchContext `json:"context,omitempty"`
}

// SearchContext is spec.md §4.4's `context` object.
type SearchContext struct {
	SessionID string `json:"session_id,omitempty"`
	CWD       string `json:"cwd,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	HostID    string `json:"host_id,omitempty"`
	GitRoot   string `json:"git_root,omitempty"`
}

// SearchResult is one response frame on an OpSearch connection.
type SearchResult struct {
	QueryID string   `json:"query_id"`
	IDs     []string `json:"ids"`
}

// ControlSendEventArgs is OpControlSendEvent's request payload: one of the
// externally-injectable event kinds spec.md §4.7 names.
type ControlSendEventArgs struct {
	Kind       string   `json:"kind"`
	DeletedIDs []string `json:"deleted_ids,omitempty"` // HistoryDeleted
}
