// Package client is a thin wire client over the request protocol,
// used by tooling and end-to-end tests.
package client

import (
	"bufio"
	"fmt"
	"net"

	"marketchat/protocol"
)

type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection; useful with net.Pipe in tests.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, r: bufio.NewReader(conn)}
}

// Do sends one request and reads the single response value. Operations
// that the server answers silently must use Send instead.
func (c *Client) Do(op protocol.Opcode, args ...protocol.Value) (protocol.Value, error) {
	if err := protocol.WriteRequest(c.conn, op, args...); err != nil {
		return protocol.Value{}, fmt.Errorf("sending %s: %w", op, err)
	}
	v, err := protocol.ReadValue(c.r)
	if err != nil {
		return protocol.Value{}, fmt.Errorf("reading %s response: %w", op, err)
	}
	return v, nil
}

// Send writes a request without waiting for a response.
func (c *Client) Send(op protocol.Opcode, args ...protocol.Value) error {
	return protocol.WriteRequest(c.conn, op, args...)
}

// Disconnect tells the server this session is done, then closes the socket.
func (c *Client) Disconnect() error {
	if err := protocol.WriteRequest(c.conn, protocol.OpDisconnect); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

// Exit asks the server to flush state and stop accepting connections.
func (c *Client) Exit() error {
	if err := protocol.WriteRequest(c.conn, protocol.OpExit); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

func (c *Client) Close() error { return c.conn.Close() }
