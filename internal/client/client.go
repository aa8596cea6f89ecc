// Package client is a minimal client for the stub RPC server. It keeps one
// request in flight per connection, mirroring the server's frame-at-a-time
// handling.
package client

import (
	"bufio"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/Jingle-Wang/RAMCloud/internal/rcrpc"
)

// ErrNotFound is returned by Read when the server has no object with the
// requested ID.
var ErrNotFound = errors.New("object not found")

// A Client is a connection to one server. Methods must not be called
// concurrently.
type Client struct {
	conn net.Conn
	br   *bufio.Reader
}

// Dial connects to addr, retrying with exponential backoff for at most
// maxWait. Servers are often started moments before their clients, so a
// refused connection is retried rather than reported.
func Dial(addr string, maxWait time.Duration) (*Client, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxWait

	var conn net.Conn
	err := backoff.Retry(func() error {
		c, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, bo)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	return &Client{conn: conn, br: bufio.NewReader(conn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(op rcrpc.Op, payload []byte, want rcrpc.Op) ([]byte, error) {
	if err := rcrpc.WriteFrame(c.conn, op, payload); err != nil {
		return nil, err
	}
	respOp, resp, err := rcrpc.ReadFrame(c.br)
	if err != nil {
		return nil, err
	}
	if respOp == rcrpc.OpErrorResponse {
		return nil, errors.Errorf("server error: %s", resp)
	}
	if respOp != want {
		return nil, errors.Errorf("unexpected response type %#x", uint32(respOp))
	}
	return resp, nil
}

// Ping checks that the server answers.
func (c *Client) Ping() error {
	_, err := c.call(rcrpc.OpPingRequest, nil, rcrpc.OpPingResponse)
	return err
}

// Read returns the latest value stored under key.
func (c *Client) Read(key uint64) ([]byte, error) {
	resp, err := c.call(rcrpc.OpReadRequest, rcrpc.MarshalKey(key), rcrpc.OpReadResponse)
	if err != nil {
		return nil, err
	}
	found, value, err := rcrpc.UnmarshalReadResponse(resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return value, nil
}

// Write stores value as the latest version of key.
func (c *Client) Write(key uint64, value []byte) error {
	_, err := c.call(rcrpc.OpWriteRequest, rcrpc.MarshalWriteRequest(key, value), rcrpc.OpWriteResponse)
	return err
}

// Remove deletes key and reports whether it was present.
func (c *Client) Remove(key uint64) (bool, error) {
	resp, err := c.call(rcrpc.OpRemoveRequest, rcrpc.MarshalKey(key), rcrpc.OpRemoveResponse)
	if err != nil {
		return false, err
	}
	return rcrpc.UnmarshalFound(resp)
}
