// Command fakeserver is a scripted MCP server used by process/router/host
// tests: it speaks the same newline-delimited JSON-RPC framing as a real
// server but its behavior is driven entirely by environment variables, so
// tests can exercise timeouts, init failures, and tool/prompt/resource
// listings without a real external dependency.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jakewatkins/mcphost/internal/protocol"
)

func writeMsg(w *bufio.Writer, msg *protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return
	}
	w.Write(data)
	w.Flush()
}

func result(id string, v interface{}) *protocol.Message {
	data, _ := json.Marshal(v)
	return &protocol.Message{JSONRPC: "2.0", ID: id, Result: data}
}

func errResult(id string, code int, message string) *protocol.Message {
	return &protocol.Message{JSONRPC: "2.0", ID: id, Error: &protocol.RPCError{Code: code, Message: message}}
}

var callCounts = map[string]int{}

func main() {
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	out := bufio.NewWriter(os.Stdout)

	for in.Scan() {
		line := in.Bytes()
		if len(line) == 0 {
			continue
		}

		var req struct {
			Method string          `json:"method"`
			ID     string          `json:"id"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		switch req.Method {
		case "initialize":
			if os.Getenv("FAKESERVER_INIT_FAIL") != "" {
				writeMsg(out, errResult(req.ID, -32000, "simulated initialize failure"))
				continue
			}
			writeMsg(out, result(req.ID, map[string]interface{}{
				"protocolVersion": protocol.Version,
				"capabilities": map[string]interface{}{
					"tools":     map[string]interface{}{},
					"prompts":   map[string]interface{}{},
					"resources": map[string]interface{}{},
				},
				"serverInfo": map[string]string{"name": "fakeserver", "version": "0.0.1"},
			}))

		case "notifications/initialized":
			// no response expected

		case "tools/list":
			writeMsg(out, result(req.ID, map[string]interface{}{
				"tools": []map[string]interface{}{
					{
						"name":        "echo",
						"description": "echoes its text argument back",
						"inputSchema": map[string]interface{}{
							"type":     "object",
							"required": []string{"text"},
							"properties": map[string]interface{}{
								"text": map[string]string{"type": "string"},
							},
						},
					},
					{"name": "slow", "description": "sleeps before responding"},
				},
			}))

		case "tools/call":
			var call struct {
				Name      string                 `json:"name"`
				Arguments map[string]interface{} `json:"arguments"`
			}
			json.Unmarshal(req.Params, &call)

			if call.Name == "slow" {
				if ms, err := strconv.Atoi(os.Getenv("FAKESERVER_SLOW_MS")); err == nil {
					time.Sleep(time.Duration(ms) * time.Millisecond)
				}
			}
			if call.Name == "failing" {
				writeMsg(out, errResult(req.ID, -32001, "tool reported failure"))
				continue
			}
			writeMsg(out, result(req.ID, map[string]interface{}{"echoed": call.Arguments}))

		case "prompts/list":
			writeMsg(out, result(req.ID, map[string]interface{}{
				"prompts": []map[string]interface{}{
					{"name": "greeting", "description": "says hello"},
				},
			}))

		case "prompts/get":
			callCounts["prompts/get"]++
			writeMsg(out, result(req.ID, map[string]interface{}{
				"description": "says hello",
				"messages": []map[string]interface{}{
					{"role": "assistant", "content": "hello"},
				},
			}))

		case "resources/list":
			writeMsg(out, result(req.ID, map[string]interface{}{
				"resources": []map[string]interface{}{
					{"uri": "res://hello", "name": "hello"},
				},
			}))

		case "resources/read":
			callCounts["resources/read"]++
			writeMsg(out, result(req.ID, map[string]interface{}{
				"contents": []map[string]interface{}{
					{"uri": "res://hello", "text": "hello world"},
				},
			}))

		case "debug/call_count":
			var q struct {
				Method string `json:"method"`
			}
			json.Unmarshal(req.Params, &q)
			writeMsg(out, result(req.ID, map[string]interface{}{"count": callCounts[q.Method]}))

		default:
			if req.ID != "" {
				writeMsg(out, errResult(req.ID, -32601, fmt.Sprintf("method not found: %s", req.Method)))
			}
		}
	}
}
