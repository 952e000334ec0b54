package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	frameDelimiter = '\n'
	readChunkSize  = 32 << 10
	maxFrameSize   = 128 << 20
)

var (
	errPeerClosed      = errors.New("peer closed the connection")
	errPeerClosedEarly = errors.New("peer closed the stream before a complete message arrived")
)

// encodeFrame renders v the way the node's own tooling does (", " and ": "
// separators) and appends the line delimiter the peer reads by.
func encodeFrame(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	compact := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	frame := spaceSeparators(compact)
	return append(frame, frameDelimiter), nil
}

// spaceSeparators inserts a space after every ':' and ',' that is not part
// of a string literal.
func spaceSeparators(compact []byte) []byte {
	out := make([]byte, 0, len(compact)+len(compact)/4+1)
	inString := false
	escaped := false
	for _, c := range compact {
		out = append(out, c)
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ':', ',':
			out = append(out, ' ')
		}
	}
	return out
}

// framer reassembles complete JSON values from a byte stream that carries no
// length prefix. Bytes past a decoded value stay buffered for the next call.
type framer struct {
	buf   []byte
	chunk []byte
}

// readValue returns the next complete JSON value. It decodes whatever is
// already buffered first and only then blocks on r.
func (f *framer) readValue(r io.Reader) (json.RawMessage, error) {
	if f.chunk == nil {
		f.chunk = make([]byte, readChunkSize)
	}
	for {
		if len(f.buf) > 0 {
			value, ok, err := f.decode()
			if err != nil {
				return nil, newError(KindProtocol, "decode", "", err)
			}
			if ok {
				return value, nil
			}
		}

		n, err := r.Read(f.chunk)
		if n > 0 {
			if len(f.buf)+n > maxFrameSize {
				f.buf = nil
				return nil, newError(KindProtocol, "read", "", fmt.Errorf("message exceeds %d bytes", maxFrameSize))
			}
			f.buf = append(f.buf, f.chunk[:n]...)
			continue
		}
		if err == nil {
			// A zero-byte read without error: treat like a closed stream.
			err = io.EOF
		}
		if errors.Is(err, io.EOF) {
			if len(bytes.TrimSpace(f.buf)) > 0 {
				return nil, newError(KindConnection, "read", "", errPeerClosedEarly)
			}
			return nil, newError(KindConnection, "read", "", errPeerClosed)
		}
		return nil, err
	}
}

// decode attempts to take exactly one value off the front of the buffer.
// ok is false when the buffered bytes are an incomplete value.
func (f *framer) decode() (json.RawMessage, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(f.buf))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, false, nil
		}
		f.buf = nil
		return nil, false, err
	}

	consumed := int(dec.InputOffset())
	value := make(json.RawMessage, len(raw))
	copy(value, raw)

	rest := bytes.TrimLeft(f.buf[consumed:], " \t\r\n")
	if len(rest) == 0 {
		f.buf = f.buf[:0]
	} else {
		f.buf = append(f.buf[:0], rest...)
	}
	return value, true, nil
}

// buffered reports how many undecoded bytes are held.
func (f *framer) buffered() int {
	return len(f.buf)
}
