package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"nodeipc/internal/ipc"
)

// parseParams turns positional arguments into call params. Each argument is
// read as JSON when it parses, and as a plain string otherwise, so both
// `0x1` and `'"0x1"'` send the string "0x1".
func parseParams(args []string) []any {
	params := make([]any, 0, len(args))
	for _, arg := range args {
		params = append(params, parseParam(arg))
	}
	return params
}

func parseParam(arg string) any {
	trimmed := strings.TrimSpace(arg)
	if trimmed == "" {
		return arg
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil || dec.More() {
		return arg
	}
	return value
}

// readCalls decodes a JSON array of {"method", "params"} objects.
func readCalls(r io.Reader) ([]ipc.Call, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("batch input is empty; expected a JSON array of calls")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var calls []ipc.Call
	if err := dec.Decode(&calls); err != nil {
		return nil, fmt.Errorf("parse batch: expected a JSON array of {\"method\", \"params\"} objects: %w", err)
	}
	for i, call := range calls {
		if strings.TrimSpace(call.Method) == "" {
			return nil, fmt.Errorf("parse batch: call %d has no method", i)
		}
	}
	return calls, nil
}
