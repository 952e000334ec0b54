package testsupport

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// NodeRequest is one decoded request envelope as seen by the fake node.
type NodeRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// NodeError is the error object the fake node sends in place of a result.
type NodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NodeHandler receives every complete frame read from a client connection.
// It owns what is written back, including partial writes, delays and
// closing the connection.
type NodeHandler func(conn net.Conn, frame json.RawMessage)

// Responder computes the reply for one request.
type Responder func(req NodeRequest) (result any, rpcErr *NodeError)

// NodeServer is a scripted peer listening on a Unix socket.
type NodeServer struct {
	Path string

	listener net.Listener
	handler  NodeHandler

	mu       sync.Mutex
	frames   []json.RawMessage
	accepted int
	closed   bool
	conns    []net.Conn
	wg       sync.WaitGroup
}

// NewNodeServer starts a peer on a fresh socket path and stops it when the
// test ends.
func NewNodeServer(t testing.TB, handler NodeHandler) *NodeServer {
	t.Helper()
	return NewNodeServerAt(t, filepath.Join(SocketDir(t), "geth.ipc"), handler)
}

// NewNodeServerAt starts a peer listening on path.
func NewNodeServerAt(t testing.TB, path string, handler NodeHandler) *NodeServer {
	t.Helper()

	listener, err := net.Listen("unix", path)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping node server test: %v", err)
		}
		t.Fatalf("listen %s: %v", path, err)
	}
	srv := &NodeServer{Path: path, listener: listener, handler: handler}
	srv.wg.Add(1)
	go srv.serve()
	t.Cleanup(srv.Close)
	return srv
}

func (s *NodeServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.accepted++
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *NodeServer) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	dec := json.NewDecoder(conn)
	for {
		var frame json.RawMessage
		if err := dec.Decode(&frame); err != nil {
			return
		}
		s.mu.Lock()
		s.frames = append(s.frames, frame)
		s.mu.Unlock()
		if s.handler != nil {
			s.handler(conn, frame)
		}
	}
}

// Frames returns every frame received so far, across all connections.
func (s *NodeServer) Frames() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.frames...)
}

// Accepted reports how many connections the peer has accepted.
func (s *NodeServer) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Close stops the listener and drops open connections.
func (s *NodeServer) Close() {
	_ = s.listener.Close()
	s.mu.Lock()
	s.closed = true
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	s.wg.Wait()
}

// Respond builds a handler that answers single requests and batches with
// fn. Batch replies are written in reverse order so clients must match them
// by id.
func Respond(fn Responder) NodeHandler {
	return func(conn net.Conn, frame json.RawMessage) {
		trimmed := bytes.TrimSpace(frame)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var reqs []NodeRequest
			if err := json.Unmarshal(trimmed, &reqs); err != nil {
				return
			}
			replies := make([]map[string]any, 0, len(reqs))
			for i := len(reqs) - 1; i >= 0; i-- {
				replies = append(replies, reply(reqs[i], fn))
			}
			writeJSON(conn, replies)
			return
		}
		var req NodeRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return
		}
		writeJSON(conn, reply(req, fn))
	}
}

// ClientVersion answers web3_clientVersion and echoes the params of any
// other method as its result.
func ClientVersion(version string) NodeHandler {
	return Respond(func(req NodeRequest) (any, *NodeError) {
		if req.Method == "web3_clientVersion" {
			return version, nil
		}
		return req.Params, nil
	})
}

func reply(req NodeRequest, fn Responder) map[string]any {
	out := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	result, rpcErr := fn(req)
	if rpcErr != nil {
		out["error"] = rpcErr
	} else {
		out["result"] = result
	}
	return out
}

func writeJSON(conn net.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = conn.Write(append(data, '\n'))
}

// SocketDir returns a short temporary directory suitable for Unix socket
// paths, which are limited to roughly a hundred bytes.
func SocketDir(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "nodeipc")
	if err != nil {
		t.Fatalf("create socket dir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.Logf("remove socket dir: %v", err)
		}
	})
	return dir
}
