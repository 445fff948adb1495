package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client talks to a daemon over its control socket
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the control socket at path
func Dial(path string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial control socket: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an established connection
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

// Do sends req and returns the session state after it ran
func (c *Client) Do(ctx context.Context, req Request) (*StateView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.Nonce = uuid.NewString()
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := writeFrame(c.conn, opRequest, payload); err != nil {
		return nil, fmt.Errorf("request write: %w", err)
	}

	opcode, data, err := readFrame(c.conn)
	if err != nil {
		return nil, fmt.Errorf("response read: %w", err)
	}
	if opcode != opResponse {
		return nil, fmt.Errorf("unexpected opcode %d", opcode)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Nonce != req.Nonce {
		return nil, fmt.Errorf("response nonce mismatch")
	}
	if resp.Evt == evtError {
		if resp.Error == nil {
			return nil, &RemoteError{Code: CodeInternal, Message: "unknown error"}
		}
		return nil, &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	return resp.State, nil
}

// State fetches the current session state
func (c *Client) State(ctx context.Context) (*StateView, error) {
	return c.Do(ctx, Request{Cmd: CmdState})
}

// Close tells the server we are done and closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	writeFrame(c.conn, opClose, []byte("{}"))
	return c.conn.Close()
}
