package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client is a connection to the daemon's RPC socket. One Client is good
// for one Execute at a time; Search opens its own long-lived connection
// via NewSearchStream instead.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	timeout time.Duration
}

// Dial connects to the daemon at socketPath within timeout.
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	conn, err := dialRPC(socketPath, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn), writer: bufio.NewWriter(conn), timeout: timeout}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Execute sends one request/response frame. Not valid for OpSearch; use
// NewSearchStream for that.
func (c *Client) Execute(operation string, args any) (*Response, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal args: %w", err)
	}

	req := Request{Operation: operation, Args: argsJSON}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal request: %w", err)
	}

	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}

	if _, err := c.writer.Write(reqJSON); err != nil {
		return nil, fmt.Errorf("rpc: write request: %w", err)
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return nil, fmt.Errorf("rpc: write request: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return nil, fmt.Errorf("rpc: flush request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("rpc: read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("rpc: unmarshal response: %w", err)
	}
	if !resp.Success {
		return &resp, fmt.Errorf("rpc: %s", resp.Error)
	}
	return &resp, nil
}

// StartHistory calls OpStartHistory.
func (c *Client) StartHistory(args StartHistoryArgs) (StartHistoryResult, error) {
	var out StartHistoryResult
	resp, err := c.Execute(OpStartHistory, args)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(resp.Data, &out)
	return out, err
}

// EndHistory calls OpEndHistory.
func (c *Client) EndHistory(args EndHistoryArgs) (EndHistoryResult, error) {
	var out EndHistoryResult
	resp, err := c.Execute(OpEndHistory, args)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(resp.Data, &out)
	return out, err
}

// Status calls OpStatus.
func (c *Client) Status() (StatusResult, error) {
	var out StatusResult
	resp, err := c.Execute(OpStatus, struct{}{})
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(resp.Data, &out)
	return out, err
}

// Shutdown calls OpShutdown.
func (c *Client) Shutdown() (ShutdownResult, error) {
	var out ShutdownResult
	resp, err := c.Execute(OpShutdown, struct{}{})
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(resp.Data, &out)
	return out, err
}

// SendEvent calls OpControlSendEvent.
func (c *Client) SendEvent(args ControlSendEventArgs) error {
	_, err := c.Execute(OpControlSendEvent, args)
	return err
}

// SearchStream is a dedicated connection for OpSearch's frame-per-query
// protocol: once opened, every call to Query sends one SearchRequest frame
// and reads back exactly one SearchResult frame.
type SearchStream struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

// NewSearchStream opens a dedicated connection and commits it to OpSearch
// with one declaration frame; every subsequent frame on this connection is
// a bare SearchRequest rather than a wrapped Request (spec.md §6's
// frame-per-query loop).
func NewSearchStream(socketPath string, timeout time.Duration) (*SearchStream, error) {
	conn, err := dialRPC(socketPath, timeout)
	if err != nil {
		return nil, err
	}
	s := &SearchStream{conn: conn, reader: bufio.NewReader(conn), writer: bufio.NewWriter(conn)}

	decl, err := json.Marshal(Request{Operation: OpSearch})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rpc: marshal search declaration: %w", err)
	}
	if _, err := s.writer.Write(decl); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rpc: write search declaration: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rpc: write search declaration: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rpc: flush search declaration: %w", err)
	}
	return s, nil
}

func (s *SearchStream) Close() error { return s.conn.Close() }

// Query sends one SearchRequest and reads back the matching SearchResult.
func (s *SearchStream) Query(req SearchRequest) (SearchResult, error) {
	var out SearchResult

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("rpc: marshal search request: %w", err)
	}
	if _, err := s.writer.Write(reqJSON); err != nil {
		return out, fmt.Errorf("rpc: write search request: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return out, fmt.Errorf("rpc: write search request: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return out, fmt.Errorf("rpc: flush search request: %w", err)
	}

	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		return out, fmt.Errorf("rpc: read search response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return out, fmt.Errorf("rpc: unmarshal search response: %w", err)
	}
	if !resp.Success {
		return out, fmt.Errorf("rpc: %s", resp.Error)
	}
	err = json.Unmarshal(resp.Data, &out)
	return out, err
}
