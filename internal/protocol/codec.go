package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/jakewatkins/mcphost/internal/hosterrors"
)

// NewID generates an opaque correlation id with negligible collision
// probability over a server's lifetime.
func NewID() string {
	return uuid.NewString()
}

// Encode serializes msg as a single newline-terminated JSON line, per
// spec.md §4.1/§6 ("one message per line").
func Encode(msg *Message) ([]byte, error) {
	msg.JSONRPC = "2.0"
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, &hosterrors.ProtocolError{Message: fmt.Sprintf("failed to encode message: %v", err)}
	}
	return append(data, '\n'), nil
}

// Decode parses one line of input into a Message and validates its shape.
// It never panics on malformed input; callers should log and continue
// reading rather than abort the stream.
func Decode(line []byte) (*Message, error) {
	if len(line) == 0 {
		return nil, &hosterrors.ProtocolError{Message: "empty message received"}
	}

	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, &hosterrors.ProtocolError{Message: fmt.Sprintf("failed to decode JSON: %v", err)}
	}

	if err := Validate(&msg, line); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Validate enforces the JSON-RPC 2.0 shape rules from spec.md §4.1: a
// message with a method is a request-or-notification and must not carry
// result/error; a message without a method must have an id and exactly
// one of result/error.
func Validate(msg *Message, raw json.RawMessage) error {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return &hosterrors.ProtocolError{Message: fmt.Sprintf("message is not a JSON object: %v", err)}
	}

	if v, ok := generic["jsonrpc"]; !ok || string(v) != `"2.0"` {
		return &hosterrors.ProtocolError{Message: `message must have jsonrpc: "2.0"`}
	}

	_, hasMethod := generic["method"]
	_, hasResult := generic["result"]
	_, hasError := generic["error"]
	_, hasID := generic["id"]

	switch {
	case hasMethod:
		if hasResult || hasError {
			return &hosterrors.ProtocolError{Message: "request/notification cannot have result or error"}
		}
	case hasResult || hasError:
		if !hasID {
			return &hosterrors.ProtocolError{Message: "response must have an id"}
		}
		if hasResult && hasError {
			return &hosterrors.ProtocolError{Message: "response cannot have both result and error"}
		}
	default:
		return &hosterrors.ProtocolError{Message: "message must be a request, response, or notification"}
	}

	return nil
}

// LineReader reads newline-delimited JSON-RPC frames from r, one at a
// time, exposing raw lines so the caller can decode and react to
// individual protocol errors without tearing down the whole stream.
type LineReader struct {
	scanner *bufio.Scanner
}

// NewLineReader wraps r with a generously-buffered line scanner; MCP
// payloads (tool results, resource blobs) can be much larger than
// bufio.Scanner's 64KiB default token size.
func NewLineReader(r io.Reader) *LineReader {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)
	return &LineReader{scanner: scanner}
}

// ReadLine returns the next line (without its trailing newline), or io.EOF
// once the underlying stream is exhausted.
func (lr *LineReader) ReadLine() ([]byte, error) {
	if lr.scanner.Scan() {
		return lr.scanner.Bytes(), nil
	}
	if err := lr.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
