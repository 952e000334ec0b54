package ipc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// idCounter hands out request ids for one connection: 0, 1, 2, ...
type idCounter struct {
	next atomic.Uint64
}

func (c *idCounter) take() uint64 {
	return c.next.Add(1) - 1
}

func (c *idCounter) newRequest(method string, params []any) *Request {
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  normalizeParams(params),
		ID:      c.take(),
	}
}

func (c *idCounter) newBatch(calls []Call) []*Request {
	reqs := make([]*Request, 0, len(calls))
	for _, call := range calls {
		reqs = append(reqs, c.newRequest(call.Method, call.Params))
	}
	return reqs
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// decodeSingle unwraps a reply to a single request.
func decodeSingle(raw json.RawMessage) (*Response, error) {
	if firstByte(raw) != '{' {
		return nil, fmt.Errorf("expected a JSON object reply, got %s", preview(raw))
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// correlateBatch matches batch replies to reqs by id and returns them in
// request order. The node may answer a batch in any order.
func correlateBatch(raw json.RawMessage, reqs []*Request) ([]*Response, error) {
	switch firstByte(raw) {
	case '[':
	case '{':
		// A lone object answers the whole batch, typically with an error.
		resp, err := decodeSingle(raw)
		if err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("batch rejected: %w", resp.Error)
		}
		return nil, fmt.Errorf("expected a JSON array reply to a batch, got %s", preview(raw))
	default:
		return nil, fmt.Errorf("expected a JSON array reply to a batch, got %s", preview(raw))
	}

	var replies []*Response
	if err := json.Unmarshal(raw, &replies); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}

	index := make(map[uint64]int, len(reqs))
	for i, req := range reqs {
		index[req.ID] = i
	}
	ordered := make([]*Response, len(reqs))
	for _, reply := range replies {
		if reply == nil {
			return nil, fmt.Errorf("batch reply contains a null element")
		}
		id, ok := reply.IDValue()
		if !ok {
			if reply.Error != nil {
				return nil, fmt.Errorf("batch element without id: %w", reply.Error)
			}
			return nil, fmt.Errorf("batch element has no usable id: %s", preview(reply.ID))
		}
		pos, known := index[id]
		if !known {
			return nil, fmt.Errorf("batch reply carries unknown id %d", id)
		}
		if ordered[pos] != nil {
			return nil, fmt.Errorf("batch reply repeats id %d", id)
		}
		ordered[pos] = reply
	}
	for i, resp := range ordered {
		if resp == nil {
			return nil, fmt.Errorf("batch reply is missing id %d", reqs[i].ID)
		}
	}
	return ordered, nil
}

func preview(raw []byte) string {
	const limit = 64
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "empty payload"
	}
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
