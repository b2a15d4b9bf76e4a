// Package registry tracks the tools, prompts, and resources advertised by
// each running server and resolves capability names (bare or
// server-qualified) to the server that owns them.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jakewatkins/mcphost/internal/hosterrors"
	"github.com/jakewatkins/mcphost/internal/protocol"
)

// Capabilities is the set of tools, prompts, and resources one server
// advertised in response to its tools/list, prompts/list, and
// resources/list calls.
type Capabilities struct {
	Tools     []protocol.Tool
	Prompts   []protocol.Prompt
	Resources []protocol.Resource
}

func (c Capabilities) tool(name string) (protocol.Tool, bool) {
	for _, t := range c.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return protocol.Tool{}, false
}

func (c Capabilities) prompt(name string) (protocol.Prompt, bool) {
	for _, p := range c.Prompts {
		if p.Name == name {
			return p, true
		}
	}
	return protocol.Prompt{}, false
}

func (c Capabilities) resource(uri string) (protocol.Resource, bool) {
	for _, r := range c.Resources {
		if r.URI == uri {
			return r, true
		}
	}
	return protocol.Resource{}, false
}

// Registry is the Host's view of every capability every server has
// advertised. Grounded on original_source's CapabilityRegistry
// (mcp_host/registry.py), adapted from its asyncio.Lock to sync.RWMutex.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]Capabilities

	searchMu sync.RWMutex
	search   *searchIndex
}

// New constructs an empty Registry. The bleve full-text index backing
// SearchTools is created on the first RegisterServer call, and every
// registration indexes its tools whether or not SearchTools is ever called.
func New() *Registry {
	return &Registry{byName: make(map[string]Capabilities)}
}

// RegisterServer (re)registers a server's full capability set, replacing
// any previous registration for that name.
func (r *Registry) RegisterServer(name string, caps Capabilities) error {
	r.mu.Lock()
	r.byName[name] = caps
	r.mu.Unlock()

	return r.reindexServer(name, caps)
}

// UnregisterServer removes a server's capabilities entirely, e.g. when it
// crashes or is shut down.
func (r *Registry) UnregisterServer(name string) {
	r.mu.Lock()
	delete(r.byName, name)
	r.mu.Unlock()

	r.searchMu.Lock()
	if r.search != nil {
		r.search.deleteServer(name)
	}
	r.searchMu.Unlock()
}

// Snapshot returns a deep-enough copy of every registered server's
// capabilities, keyed by server name, for callers that want a merged view
// (e.g. GetTools/GetPrompts/GetResources over the whole Host).
func (r *Registry) Snapshot() map[string]Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Capabilities, len(r.byName))
	for name, caps := range r.byName {
		out[name] = caps
	}
	return out
}

// ServerCapabilities returns one server's capabilities, or false if the
// server is not currently registered.
func (r *Registry) ServerCapabilities(name string) (Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.byName[name]
	return caps, ok
}

// FindTool resolves a tool name to the server that owns it. A name of the
// form "server.tool" is resolved against that server only; a bare name is
// searched across every registered server, and ambiguity (more than one
// match) is reported via RoutingError.Candidates.
func (r *Registry) FindTool(name string) (string, protocol.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if server, bare, ok := splitQualified(name); ok {
		caps, exists := r.byName[server]
		if exists {
			if tool, found := caps.tool(bare); found {
				return server, tool, nil
			}
		}
		return "", protocol.Tool{}, &hosterrors.RoutingError{
			Message: fmt.Sprintf("tool %q not found in server %q", bare, server),
			Target:  name,
			Reason:  "tool_not_found",
		}
	}

	var matchServers []string
	var matchTools []protocol.Tool
	for server, caps := range r.byName {
		if tool, found := caps.tool(name); found {
			matchServers = append(matchServers, server)
			matchTools = append(matchTools, tool)
		}
	}

	switch len(matchServers) {
	case 0:
		return "", protocol.Tool{}, &hosterrors.RoutingError{
			Message: fmt.Sprintf("tool %q not found in any server", name),
			Target:  name,
			Reason:  "tool_not_found",
		}
	case 1:
		return matchServers[0], matchTools[0], nil
	default:
		sort.Strings(matchServers)
		return "", protocol.Tool{}, &hosterrors.RoutingError{
			Message:    fmt.Sprintf("tool %q is ambiguous: found in servers %v, use server.tool to disambiguate", name, matchServers),
			Target:     name,
			Reason:     "ambiguous_tool",
			Candidates: matchServers,
		}
	}
}

// FindPrompt resolves a prompt name the same way FindTool resolves tools.
func (r *Registry) FindPrompt(name string) (string, protocol.Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if server, bare, ok := splitQualified(name); ok {
		caps, exists := r.byName[server]
		if exists {
			if prompt, found := caps.prompt(bare); found {
				return server, prompt, nil
			}
		}
		return "", protocol.Prompt{}, &hosterrors.RoutingError{
			Message: fmt.Sprintf("prompt %q not found in server %q", bare, server),
			Target:  name,
			Reason:  "prompt_not_found",
		}
	}

	var matchServers []string
	var matchPrompts []protocol.Prompt
	for server, caps := range r.byName {
		if prompt, found := caps.prompt(name); found {
			matchServers = append(matchServers, server)
			matchPrompts = append(matchPrompts, prompt)
		}
	}

	switch len(matchServers) {
	case 0:
		return "", protocol.Prompt{}, &hosterrors.RoutingError{
			Message: fmt.Sprintf("prompt %q not found in any server", name),
			Target:  name,
			Reason:  "prompt_not_found",
		}
	case 1:
		return matchServers[0], matchPrompts[0], nil
	default:
		sort.Strings(matchServers)
		return "", protocol.Prompt{}, &hosterrors.RoutingError{
			Message:    fmt.Sprintf("prompt %q is ambiguous: found in servers %v, use server.prompt to disambiguate", name, matchServers),
			Target:     name,
			Reason:     "ambiguous_prompt",
			Candidates: matchServers,
		}
	}
}

// FindResource resolves a resource by its URI, which is expected to be
// globally unique across servers (no server-prefix syntax applies).
func (r *Registry) FindResource(uri string) (string, protocol.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for server, caps := range r.byName {
		if res, found := caps.resource(uri); found {
			return server, res, nil
		}
	}
	return "", protocol.Resource{}, &hosterrors.RoutingError{
		Message: fmt.Sprintf("resource %q not found in any server", uri),
		Target:  uri,
		Reason:  "resource_not_found",
	}
}

func splitQualified(name string) (server, bare string, ok bool) {
	idx := strings.Index(name, ".")
	if idx < 0 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}
