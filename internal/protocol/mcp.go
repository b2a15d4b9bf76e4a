package protocol

import "encoding/json"

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// All inputs here are our own structs/maps of JSON-safe values.
		panic(err)
	}
	return data
}

// NewInitializeRequest builds the `initialize` handshake request the Host
// sends as the first message to every server.
func NewInitializeRequest() *Message {
	params := map[string]interface{}{
		"protocolVersion": Version,
		"clientInfo": map[string]string{
			"name":    ClientName,
			"version": ClientVersion,
		},
		"capabilities": map[string]interface{}{},
	}
	return &Message{
		JSONRPC: "2.0",
		Method:  "initialize",
		Params:  mustMarshal(params),
		ID:      NewID(),
	}
}

// NewInitializedNotification builds the `notifications/initialized`
// signal sent once the initialize response has been accepted. It carries
// no id: no response is expected.
func NewInitializedNotification() *Message {
	return &Message{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	}
}

// NewToolsListRequest builds a `tools/list` request.
func NewToolsListRequest() *Message {
	return &Message{JSONRPC: "2.0", Method: "tools/list", Params: mustMarshal(map[string]interface{}{}), ID: NewID()}
}

// NewPromptsListRequest builds a `prompts/list` request.
func NewPromptsListRequest() *Message {
	return &Message{JSONRPC: "2.0", Method: "prompts/list", Params: mustMarshal(map[string]interface{}{}), ID: NewID()}
}

// NewResourcesListRequest builds a `resources/list` request.
func NewResourcesListRequest() *Message {
	return &Message{JSONRPC: "2.0", Method: "resources/list", Params: mustMarshal(map[string]interface{}{}), ID: NewID()}
}

// NewToolCallRequest builds a `tools/call` request for the bare (no
// server prefix) tool name with the given arguments.
func NewToolCallRequest(name string, arguments map[string]interface{}) *Message {
	params := map[string]interface{}{
		"name":      name,
		"arguments": arguments,
	}
	return &Message{JSONRPC: "2.0", Method: "tools/call", Params: mustMarshal(params), ID: NewID()}
}

// NewPromptGetRequest builds a `prompts/get` request.
func NewPromptGetRequest(name string, arguments map[string]interface{}) *Message {
	params := map[string]interface{}{"name": name}
	if len(arguments) > 0 {
		params["arguments"] = arguments
	}
	return &Message{JSONRPC: "2.0", Method: "prompts/get", Params: mustMarshal(params), ID: NewID()}
}

// NewResourceReadRequest builds a `resources/read` request.
func NewResourceReadRequest(uri string) *Message {
	params := map[string]interface{}{"uri": uri}
	return &Message{JSONRPC: "2.0", Method: "resources/read", Params: mustMarshal(params), ID: NewID()}
}

// ParseToolsList decodes a `tools/list` response's result payload.
func ParseToolsList(result json.RawMessage) ([]Tool, error) {
	if len(result) == 0 {
		return nil, nil
	}
	var parsed toolsListResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	return parsed.Tools, nil
}

// ParsePromptsList decodes a `prompts/list` response. Per spec.md's Open
// Question, servers are observed nesting this payload under either
// `result.prompts` (object form, same shape as tools/list) or
// `results.prompts` (a sibling top-level key instead of `result`); both
// are accepted defensively. raw is the full decoded message, not just its
// result field, since the "results" variant lives outside "result"
// entirely.
func ParsePromptsList(raw *Message) ([]Prompt, error) {
	if len(raw.Result) > 0 {
		var viaResult pluralListResult
		if err := json.Unmarshal(raw.Result, &viaResult); err == nil && viaResult.Prompts != nil {
			return viaResult.Prompts, nil
		}
	}
	if len(raw.Results) > 0 {
		var viaResults pluralListResult
		if err := json.Unmarshal(raw.Results, &viaResults); err != nil {
			return nil, err
		}
		return viaResults.Prompts, nil
	}
	return nil, nil
}

// ParseResourcesList decodes a `resources/list` response with the same
// result/results defensive handling as ParsePromptsList.
func ParseResourcesList(raw *Message) ([]Resource, error) {
	if len(raw.Result) > 0 {
		var viaResult pluralListResult
		if err := json.Unmarshal(raw.Result, &viaResult); err == nil && viaResult.Resources != nil {
			return viaResult.Resources, nil
		}
	}
	if len(raw.Results) > 0 {
		var viaResults pluralListResult
		if err := json.Unmarshal(raw.Results, &viaResults); err != nil {
			return nil, err
		}
		return viaResults.Resources, nil
	}
	return nil, nil
}
