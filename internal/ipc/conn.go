package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// Dialer opens the byte stream to an endpoint. The default dials a Unix
// socket, or a named pipe on Windows.
type Dialer func(ctx context.Context, endpoint string) (net.Conn, error)

type connState int

const (
	stateClosed connState = iota
	stateOpen
	stateUnusable
)

// aLongTimeAgo is a deadline in the past; setting it unblocks pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// connection owns one socket handle to one endpoint. It is not safe for
// concurrent use; the Provider serializes access.
type connection struct {
	endpoint string
	dial     Dialer
	ids      idCounter
	sock     net.Conn
	framer   framer
	state    connState
	reason   error
}

func newConnection(endpoint string, dial Dialer) *connection {
	return &connection{endpoint: endpoint, dial: dial}
}

// open dials the endpoint unless a socket is already held. A failed dial
// leaves the connection closed so a later call may try again.
func (c *connection) open(ctx context.Context) error {
	switch c.state {
	case stateOpen:
		return nil
	case stateUnusable:
		return newError(KindConnection, "connect", c.endpoint,
			fmt.Errorf("connection is unusable after an earlier failure (%v); create a new provider", c.reason))
	}
	sock, err := c.dial(ctx, c.endpoint)
	if err != nil {
		var ipcErr *Error
		if errors.As(err, &ipcErr) {
			return err
		}
		return newError(KindConnection, "connect", c.endpoint, err)
	}
	c.sock = sock
	c.state = stateOpen
	return nil
}

func (c *connection) isOpen() bool {
	return c.state == stateOpen
}

// roundTrip writes payload as one frame and blocks until one complete value
// has been read back or the deadline passes.
func (c *connection) roundTrip(ctx context.Context, payload any, deadline time.Time) (json.RawMessage, error) {
	frame, err := encodeFrame(payload)
	if err != nil {
		return nil, newError(KindProtocol, "encode", c.endpoint, err)
	}
	if err := c.open(ctx); err != nil {
		return nil, err
	}

	sock := c.sock
	if err := sock.SetDeadline(deadline); err != nil {
		return nil, c.fail(ctx, "write", err)
	}
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = sock.SetDeadline(aLongTimeAgo)
		close(interrupted)
	})
	defer func() {
		// A callback that already started finishes before the deadline is cleared.
		if !stop() {
			<-interrupted
		}
		if c.state == stateOpen {
			_ = sock.SetDeadline(time.Time{})
		}
	}()

	if _, err := sock.Write(frame); err != nil {
		return nil, c.fail(ctx, "write", err)
	}
	raw, err := c.framer.readValue(sock)
	if err != nil {
		return nil, c.fail(ctx, "read", err)
	}
	return raw, nil
}

// fail classifies an I/O failure and moves the connection out of the open
// state. Timeouts and protocol errors leave the socket open but unusable,
// since the framing position is unknown. Other failures close the socket and
// the next call dials again.
func (c *connection) fail(ctx context.Context, op string, err error) error {
	var ipcErr *Error
	switch {
	case errors.As(err, &ipcErr):
		ipcErr.Endpoint = c.endpoint
		if ipcErr.Kind == KindConnection {
			c.shut(err)
		} else {
			c.markUnusable(err)
		}
		return ipcErr
	case ctx.Err() != nil:
		c.markUnusable(ctx.Err())
		return newError(KindTimeout, op, c.endpoint, ctx.Err())
	case isTimeout(err):
		c.markUnusable(err)
		return newError(KindTimeout, op, c.endpoint, errors.New("no complete response before the deadline"))
	default:
		c.shut(err)
		return newError(KindConnection, op, c.endpoint, err)
	}
}

func (c *connection) markUnusable(reason error) {
	c.state = stateUnusable
	c.reason = reason
}

func (c *connection) shut(reason error) {
	if c.sock != nil {
		_ = c.sock.Close()
		c.sock = nil
	}
	c.framer = framer{}
	c.state = stateClosed
	c.reason = reason
}

func (c *connection) close() error {
	if c.sock == nil {
		c.state = stateClosed
		return nil
	}
	err := c.sock.Close()
	c.sock = nil
	c.state = stateClosed
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
