package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// Version is the protocol version tag carried by every envelope.
const Version = "2.0"

// Request is one outbound JSON-RPC envelope. Field order is the wire order.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

// Response is one inbound JSON-RPC envelope. Exactly one of Result or Error
// is set by a well-behaved node.
type Response struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Call is one method invocation inside a batch.
type Call struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// IDValue returns the response id as an integer. ok is false for null,
// missing or non-integer ids.
func (r *Response) IDValue() (uint64, bool) {
	raw := bytes.TrimSpace(r.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Err returns the node's error object, or nil when the response carries a
// result.
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// Decode unmarshals the result payload into v.
func (r *Response) Decode(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Result) == 0 {
		return errors.New("response has no result")
	}
	return json.Unmarshal(r.Result, v)
}

func normalizeParams(params []any) []any {
	if params == nil {
		return []any{}
	}
	return params
}
