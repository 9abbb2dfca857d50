package agent

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client talks to one engine process instance over its framed protocol,
// redialling on a broken connection the way wasm.Client does for its own
// TCP transport.
type Client struct {
	addr Addr

	mu   sync.Mutex
	conn net.Conn
	init *InitPayload
}

func NewClient(addr Addr) *Client {
	return &Client{addr: addr}
}

// Init starts a worker instance inside the engine process. Must be called
// before Invoke; redials replay it automatically.
func (c *Client) Init(p InitPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init = &p
	if err := c.redialLocked(5 * time.Second); err != nil {
		return err
	}
	return c.closeLocked()
}

// Invoke calls function inside the engine process and returns its encoded
// result, retrying once on a broken connection (the engine may have been
// restarted between calls).
func (c *Client) Invoke(p InvokePayload, timeout time.Duration) (*ResponsePayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("agent: encode invoke payload: %w", err)
	}
	msg := &Message{Type: MsgInvoke, Payload: payload}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := c.redialLocked(5 * time.Second); err != nil {
			lastErr = err
			continue
		}

		_ = c.conn.SetDeadline(time.Now().Add(timeout))
		if err := writeFrame(c.conn, msg); err != nil {
			lastErr = err
			_ = c.closeLocked()
			if isBrokenConn(err) {
				continue
			}
			return nil, err
		}

		resp, err := readFrame(c.conn)
		_ = c.conn.SetDeadline(time.Time{})
		if err != nil {
			lastErr = err
			_ = c.closeLocked()
			if isBrokenConn(err) {
				continue
			}
			return nil, err
		}
		_ = c.closeLocked()

		if resp.Type != MsgResponse {
			return nil, fmt.Errorf("agent: unexpected response frame type %d", resp.Type)
		}
		var out ResponsePayload
		if err := json.Unmarshal(resp.Payload, &out); err != nil {
			return nil, fmt.Errorf("agent: decode response payload: %w", err)
		}
		return &out, nil
	}

	return nil, fmt.Errorf("agent: invoke failed after retry: %w", lastErr)
}

// Ping checks that the engine process is reachable.
func (c *Client) Ping(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.redialLocked(timeout); err != nil {
		return err
	}
	defer c.closeLocked()

	_ = c.conn.SetDeadline(time.Now().Add(timeout))
	if err := writeFrame(c.conn, &Message{Type: MsgPing}); err != nil {
		return err
	}
	_, err := readFrame(c.conn)
	_ = c.conn.SetDeadline(time.Time{})
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) redialLocked(timeout time.Duration) error {
	if c.conn != nil {
		return nil
	}
	conn, err := Dial(c.addr, timeout)
	if err != nil {
		return err
	}
	c.conn = conn

	if c.init != nil {
		payload, err := json.Marshal(c.init)
		if err != nil {
			_ = c.closeLocked()
			return fmt.Errorf("agent: encode init payload: %w", err)
		}
		if err := writeFrame(c.conn, &Message{Type: MsgInit, Payload: payload}); err != nil {
			_ = c.closeLocked()
			return err
		}
		resp, err := readFrame(c.conn)
		if err != nil {
			_ = c.closeLocked()
			return err
		}
		if resp.Type != MsgResponse {
			_ = c.closeLocked()
			return fmt.Errorf("agent: unexpected init response frame type %d", resp.Type)
		}
	}
	return nil
}
