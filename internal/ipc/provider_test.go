package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nodeipc/internal/endpoint"
	"nodeipc/internal/testsupport"
)

// recordingConn counts writes on the client side of a net.Pipe.
type recordingConn struct {
	net.Conn
	mu     sync.Mutex
	writes [][]byte
}

func (c *recordingConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.writes = append(c.writes, append([]byte(nil), p...))
	c.mu.Unlock()
	return c.Conn.Write(p)
}

func pipeDialer(t *testing.T, reply string) (Dialer, *recordingConn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	rec := &recordingConn{Conn: client}
	go func() {
		reader := bufio.NewReader(server)
		for {
			if _, err := reader.ReadBytes('\n'); err != nil {
				return
			}
			if _, err := server.Write([]byte(reply)); err != nil {
				return
			}
		}
	}()
	dial := func(context.Context, string) (net.Conn, error) {
		return rec, nil
	}
	return dial, rec
}

func newTestProvider(t *testing.T, path string, opts ...Option) *Provider {
	t.Helper()
	p, err := NewProvider(path, opts...)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	t.Cleanup(func() {
		_ = p.Close()
	})
	return p
}

func TestMakeRequestWritesOneFrame(t *testing.T) {
	dial, rec := pipeDialer(t, `{"jsonrpc": "2.0", "id": 0, "result": "ok"}`+"\n")
	p := newTestProvider(t, "/fake/geth.ipc", WithDialer(dial))

	resp, err := p.MakeRequest(context.Background(), "method", nil)
	if err != nil {
		t.Fatalf("MakeRequest: %v", err)
	}
	if string(resp.Result) != `"ok"` {
		t.Fatalf("unexpected result: %s", resp.Result)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.writes) != 1 {
		t.Fatalf("expected exactly one write, got %d", len(rec.writes))
	}
	want := `{"jsonrpc": "2.0", "method": "method", "params": [], "id": 0}` + "\n"
	if string(rec.writes[0]) != want {
		t.Fatalf("frame mismatch\n got: %q\nwant: %q", rec.writes[0], want)
	}
}

func TestMakeRequestRoundTripsStructuredParams(t *testing.T) {
	srv := testsupport.NewNodeServer(t, testsupport.ClientVersion("Geth/v1.13.0"))
	p := newTestProvider(t, srv.Path)

	params := []any{map[string]any{"to": "0xabc", "data": "0x"}, "latest", 7.0, true}
	var echoed []any
	if err := p.Call(context.Background(), &echoed, "eth_call", params...); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if fmt.Sprint(echoed) != fmt.Sprint(params) {
		t.Fatalf("params did not round trip: got %v want %v", echoed, params)
	}

	frames := srv.Frames()
	if len(frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(frames))
	}
	var req testsupport.NodeRequest
	if err := json.Unmarshal(frames[0], &req); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if req.JSONRPC != "2.0" || req.Method != "eth_call" || string(req.ID) != "0" {
		t.Fatalf("unexpected envelope: %+v", req)
	}
}

func TestMakeRequestReassemblesDelayedReply(t *testing.T) {
	srv := testsupport.NewNodeServer(t, func(conn net.Conn, _ json.RawMessage) {
		_, _ = conn.Write([]byte(`{"id":1, "result": {}`))
		time.Sleep(100 * time.Millisecond)
		_, _ = conn.Write([]byte(`}`))
	})
	p := newTestProvider(t, srv.Path, WithTimeout(3*time.Second))

	started := time.Now()
	resp, err := p.MakeRequest(context.Background(), "method", nil)
	if err != nil {
		t.Fatalf("MakeRequest: %v", err)
	}
	if elapsed := time.Since(started); elapsed < 100*time.Millisecond {
		t.Fatalf("returned before the second fragment arrived (%s)", elapsed)
	}
	if string(resp.ID) != "1" {
		t.Fatalf("unexpected id: %s", resp.ID)
	}
	if string(resp.Result) != "{}" {
		t.Fatalf("unexpected result: %s", resp.Result)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error object: %v", resp.Error)
	}
}

func TestStrictIDsRejectsMismatchedReply(t *testing.T) {
	srv := testsupport.NewNodeServer(t, func(conn net.Conn, _ json.RawMessage) {
		_, _ = conn.Write([]byte(`{"jsonrpc": "2.0", "id": 7, "result": null}` + "\n"))
	})
	p := newTestProvider(t, srv.Path, WithStrictIDs(true))

	_, err := p.MakeRequest(context.Background(), "eth_chainId", nil)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if !strings.Contains(err.Error(), "does not match request id 0") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestCallSurfacesNodeError(t *testing.T) {
	srv := testsupport.NewNodeServer(t, testsupport.Respond(func(req testsupport.NodeRequest) (any, *testsupport.NodeError) {
		return nil, &testsupport.NodeError{Code: -32601, Message: "the method " + req.Method + " does not exist"}
	}))
	p := newTestProvider(t, srv.Path)

	err := p.Call(context.Background(), nil, "eth_nope")
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %v", err)
	}
	if rpcErr.Code != -32601 || !strings.Contains(rpcErr.Message, "eth_nope") {
		t.Fatalf("unexpected rpc error: %+v", rpcErr)
	}
	if KindOf(err) != 0 {
		t.Fatalf("node errors carry no transport kind, got %s", KindOf(err))
	}
}

func TestMakeBatchRequestMatchesRepliesById(t *testing.T) {
	srv := testsupport.NewNodeServer(t, testsupport.ClientVersion("Geth"))
	p := newTestProvider(t, srv.Path)

	calls := []Call{
		{Method: "echo", Params: []any{"first"}},
		{Method: "echo", Params: []any{"second"}},
		{Method: "echo", Params: []any{"third"}},
	}
	resps, err := p.MakeBatchRequest(context.Background(), calls)
	if err != nil {
		t.Fatalf("MakeBatchRequest: %v", err)
	}
	if len(resps) != len(calls) {
		t.Fatalf("expected %d replies, got %d", len(calls), len(resps))
	}
	for i, resp := range resps {
		var got []string
		if err := resp.Decode(&got); err != nil {
			t.Fatalf("decode reply %d: %v", i, err)
		}
		if got[0] != calls[i].Params[0] {
			t.Fatalf("reply %d out of order: %v", i, got)
		}
		if id, _ := resp.IDValue(); id != uint64(i) {
			t.Fatalf("reply %d has id %d", i, id)
		}
	}

	frames := srv.Frames()
	if len(frames) != 1 || !strings.HasPrefix(string(frames[0]), "[") {
		t.Fatalf("expected one array frame, got %q", frames)
	}
}

func TestEmptyBatchPerformsNoIO(t *testing.T) {
	p := newTestProvider(t, "/fake/geth.ipc")
	p.dispatch = func(context.Context, *connection, any) (json.RawMessage, error) {
		t.Fatal("dispatch called for an empty batch")
		return nil, nil
	}
	resps, err := p.MakeBatchRequest(context.Background(), nil)
	if err != nil {
		t.Fatalf("MakeBatchRequest: %v", err)
	}
	if resps == nil || len(resps) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", resps)
	}
}

func TestBatchingFlagScopedToBatchDispatch(t *testing.T) {
	tests := []struct {
		name    string
		failing bool
	}{
		{name: "success"},
		{name: "failure", failing: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, "/fake/geth.ipc")
			var seen []bool
			p.dispatch = func(ctx context.Context, _ *connection, payload any) (json.RawMessage, error) {
				seen = append(seen, IsBatching(ctx))
				if tt.failing {
					return nil, newError(KindConnection, "write", "/fake/geth.ipc", errors.New("broken pipe"))
				}
				if _, ok := payload.([]*Request); ok {
					return json.RawMessage(`[{"jsonrpc": "2.0", "id": 1, "result": 1}]`), nil
				}
				return json.RawMessage(`{"jsonrpc": "2.0", "id": 0, "result": 0}`), nil
			}

			ctx := context.Background()
			if IsBatching(ctx) {
				t.Fatal("caller context must not be batching before the call")
			}
			_, singleErr := p.MakeRequest(ctx, "single", nil)
			_, batchErr := p.MakeBatchRequest(ctx, []Call{{Method: "batched"}})
			if tt.failing != (batchErr != nil) || tt.failing != (singleErr != nil) {
				t.Fatalf("unexpected errors: single=%v batch=%v", singleErr, batchErr)
			}
			if IsBatching(ctx) {
				t.Fatal("caller context must not be batching after the call")
			}
			if len(seen) != 2 || seen[0] || !seen[1] {
				t.Fatalf("expected dispatch flags [false true], got %v", seen)
			}
		})
	}
}

func TestTimeoutLeavesConnectionUnusable(t *testing.T) {
	srv := testsupport.NewNodeServer(t, func(net.Conn, json.RawMessage) {})
	p := newTestProvider(t, srv.Path, WithTimeout(100*time.Millisecond))

	started := time.Now()
	_, err := p.MakeRequest(context.Background(), "eth_syncing", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}

	_, err = p.MakeRequest(context.Background(), "eth_syncing", nil)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected connection error after timeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "unusable") {
		t.Fatalf("unexpected message: %v", err)
	}
	if srv.Accepted() != 1 {
		t.Fatalf("expected no reconnect, server saw %d connections", srv.Accepted())
	}
}

func TestContextCancellationInterruptsRead(t *testing.T) {
	srv := testsupport.NewNodeServer(t, func(net.Conn, json.RawMessage) {})
	p := newTestProvider(t, srv.Path, WithTimeout(10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	started := time.Now()
	_, err := p.MakeRequest(ctx, "eth_syncing", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation cause, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("cancellation took too long: %s", elapsed)
	}
}

func TestPeerClosingMidMessage(t *testing.T) {
	var frames atomic.Int32
	answer := testsupport.ClientVersion("Geth/v1.13.0")
	srv := testsupport.NewNodeServer(t, func(conn net.Conn, frame json.RawMessage) {
		if frames.Add(1) == 1 {
			_, _ = conn.Write([]byte(`{"jsonrpc": "2.0", "id": 0,`))
			_ = conn.Close()
			return
		}
		answer(conn, frame)
	})
	p := newTestProvider(t, srv.Path)

	_, err := p.MakeRequest(context.Background(), "eth_blockNumber", nil)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if !errors.Is(err, errPeerClosedEarly) {
		t.Fatalf("expected early close cause, got %v", err)
	}
	if !strings.Contains(err.Error(), srv.Path) {
		t.Fatalf("expected endpoint in message: %v", err)
	}

	var version string
	if err := p.Call(context.Background(), &version, "web3_clientVersion"); err != nil {
		t.Fatalf("call after peer close: %v", err)
	}
	if version != "Geth/v1.13.0" {
		t.Fatalf("unexpected version: %q", version)
	}
	if srv.Accepted() != 2 {
		t.Fatalf("expected a fresh connection, server saw %d", srv.Accepted())
	}
}

func TestMalformedReplyIsProtocolError(t *testing.T) {
	srv := testsupport.NewNodeServer(t, func(conn net.Conn, _ json.RawMessage) {
		_, _ = conn.Write([]byte("garbage\n"))
	})
	p := newTestProvider(t, srv.Path)

	_, err := p.MakeRequest(context.Background(), "eth_blockNumber", nil)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if _, err := p.MakeRequest(context.Background(), "eth_blockNumber", nil); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected unusable connection, got %v", err)
	}
}

func TestConcurrentCallsAreSerialized(t *testing.T) {
	srv := testsupport.NewNodeServer(t, testsupport.ClientVersion("Geth"))
	p := newTestProvider(t, srv.Path)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			var got []float64
			if err := p.Call(context.Background(), &got, "echo", n); err != nil {
				errs <- err
				return
			}
			if len(got) != 1 || int(got[0]) != n {
				errs <- fmt.Errorf("call %d received %v", n, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if srv.Accepted() != 1 {
		t.Fatalf("expected a single shared connection, got %d", srv.Accepted())
	}
}

func TestPingWithoutResolvableEndpoint(t *testing.T) {
	p := newTestProvider(t, "", WithEnvironment(endpoint.Environment{Platform: "plan9", HomeDir: "/home/u"}))

	if p.IsConnected(context.Background()) {
		t.Fatal("expected IsConnected to be false")
	}
	err := p.Ping(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration cause, got %v", err)
	}
	var unsupported *endpoint.UnsupportedPlatformError
	if !errors.As(err, &unsupported) || unsupported.Platform != "plan9" {
		t.Fatalf("expected unsupported platform cause, got %v", err)
	}
}

func TestFailedDialAllowsLaterRetry(t *testing.T) {
	path := filepath.Join(testsupport.SocketDir(t), "geth.ipc")
	p := newTestProvider(t, path)

	err := p.Ping(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("unexpected message: %v", err)
	}

	testsupport.NewNodeServerAt(t, path, testsupport.ClientVersion("Geth/v1.13.0"))
	if !p.IsConnected(context.Background()) {
		t.Fatal("expected provider to connect once the node is up")
	}
	var version string
	if err := p.Call(context.Background(), &version, "web3_clientVersion"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if version != "Geth/v1.13.0" {
		t.Fatalf("unexpected version: %q", version)
	}
}

func TestClosedProviderRejectsCalls(t *testing.T) {
	srv := testsupport.NewNodeServer(t, testsupport.ClientVersion("Geth"))
	p := newTestProvider(t, srv.Path)
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := p.MakeRequest(context.Background(), "eth_chainId", nil); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected connection error after close, got %v", err)
	}
}

func TestErrorsNameResolvedDefaultEndpoint(t *testing.T) {
	env := endpoint.Environment{Platform: endpoint.PlatformLinux, HomeDir: "/home/u"}
	const want = "/home/u/.ethereum/geth.ipc"

	dial, _ := pipeDialer(t, `{"jsonrpc": "2.0", "id": 0, "result": "not a number"}`+"\n")
	p := newTestProvider(t, "", WithEnvironment(env), WithDialer(dial))
	var n int
	err := p.Call(context.Background(), &n, "eth_blockNumber")
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("decode error should name %s: %v", want, err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err = p.MakeRequest(context.Background(), "eth_chainId", nil)
	if !errors.Is(err, ErrConnection) || !strings.Contains(err.Error(), want) {
		t.Fatalf("closed provider error should name %s: %v", want, err)
	}
}

func TestDefaultEndpointWithoutHomeIsConfigurationError(t *testing.T) {
	p := newTestProvider(t, "", WithEnvironment(endpoint.Environment{Platform: endpoint.PlatformDarwin}))
	if _, err := p.Endpoint(); !errors.Is(err, ErrConfiguration) || !errors.Is(err, endpoint.ErrHomeUnknown) {
		t.Fatalf("expected configuration error for a missing home, got %v", err)
	}
	_, err := p.MakeRequest(context.Background(), "eth_chainId", nil)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error before any dial, got %v", err)
	}
}

func TestNewProviderExpandsHome(t *testing.T) {
	env := endpoint.Environment{Platform: endpoint.PlatformLinux, HomeDir: "/home/u"}
	p := newTestProvider(t, "~/node/geth.ipc", WithEnvironment(env))
	got, err := p.Endpoint()
	if err != nil {
		t.Fatalf("Endpoint: %v", err)
	}
	if got != "/home/u/node/geth.ipc" {
		t.Fatalf("unexpected endpoint: %q", got)
	}

	def := newTestProvider(t, "", WithEnvironment(env))
	got, err = def.Endpoint()
	if err != nil {
		t.Fatalf("Endpoint: %v", err)
	}
	if got != "/home/u/.ethereum/geth.ipc" {
		t.Fatalf("unexpected default endpoint: %q", got)
	}

	if _, err := NewProvider("~/x.ipc", WithEnvironment(endpoint.Environment{Platform: endpoint.PlatformLinux})); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error without a home directory, got %v", err)
	}
}
