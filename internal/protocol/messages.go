// Package protocol implements the JSON-RPC 2.0 wire format spoken between
// the Host and each capability server, plus the MCP-specific request
// builders layered on top of it.
package protocol

import "encoding/json"

// Version is the MCP protocol version the Host advertises during the
// initialize handshake.
const Version = "2024-11-05"

// ClientName and ClientVersion identify this Host to every server it
// supervises.
const (
	ClientName    = "mcphost"
	ClientVersion = "0.1.0"
)

// Message is the wire shape of a single JSON-RPC 2.0 frame. A message is a
// request or notification when Method is set, and a response when ID is
// set without Method. Exactly one of Result/Error is populated on a
// response.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`

	// Results is not part of JSON-RPC 2.0. Some MCP servers nest
	// prompts/list and resources/list payloads here instead of under
	// "result" (see spec.md's Open Question on this ambiguity); it is
	// decoded defensively alongside Result.
	Results json.RawMessage `json:"results,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IsRequest reports whether m carries a method and an id, i.e. expects a
// response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.ID != ""
}

// IsNotification reports whether m carries a method but no id.
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.ID == ""
}

// IsResponse reports whether m carries an id but no method, i.e. it is a
// response to one of our own requests.
func (m *Message) IsResponse() bool {
	return m.Method == "" && m.ID != ""
}

// Tool describes one callable capability advertised by a server.
type Tool struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
	Annotations  json.RawMessage `json:"annotations,omitempty"`
}

// Prompt describes one named prompt template advertised by a server.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes one named input a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Resource describes one URI-addressable blob advertised by a server.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// InitializeResult is the payload of a successful `initialize` response.
type InitializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      ServerInfo             `json:"serverInfo"`
}

// ServerInfo identifies the server on the other end of the handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// toolsListResult models `tools/list`'s `result.tools` shape.
type toolsListResult struct {
	Tools []Tool `json:"tools"`
}

// pluralListResult models the `prompts/list`/`resources/list` ambiguity
// called out in spec.md's Open Question: some servers nest the payload
// under `result`, others under `results`. Both are decoded defensively.
type pluralListResult struct {
	Prompts   []Prompt   `json:"prompts"`
	Resources []Resource `json:"resources"`
}
