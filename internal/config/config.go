// Package config loads and validates the Host's mcp.json configuration
// document: server descriptors, environment expansion, and dependency
// ordering.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Transport is a server's declared communication channel. Only Stdio is
// implemented; the others are recognized so configs can declare them, but
// are rejected at load time (spec.md §4.2, §9).
type Transport string

const (
	TransportStdio     Transport = "stdio"
	TransportSSE       Transport = "sse"
	TransportWebSocket Transport = "websocket"
)

// Duration wraps time.Duration so server timeouts can be authored as a
// plain number of seconds in JSON, matching spec.md §6's `"timeout": <seconds>?`.
type Duration time.Duration

// UnmarshalJSON accepts a JSON number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// MarshalJSON renders the duration back to a number of seconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Seconds())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ServerConfig is one entry of the `servers` map in the configuration
// document (spec.md §3, §6).
type ServerConfig struct {
	Name         string            `json:"-"`
	Type         Transport         `json:"type"`
	Command      string            `json:"command"`
	Args         []string          `json:"args,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	WorkingDir   string            `json:"working_dir,omitempty"`
	Timeout      Duration          `json:"timeout,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
}

// EffectiveTimeout returns the server's declared timeout, or fallback if
// none was set.
func (s *ServerConfig) EffectiveTimeout(fallback time.Duration) time.Duration {
	if s.Timeout.Duration() <= 0 {
		return fallback
	}
	return s.Timeout.Duration()
}

// Config is the root of the mcp.json document (spec.md §6).
type Config struct {
	Servers map[string]*ServerConfig `json:"servers"`
}

// rawServerConfig mirrors ServerConfig's JSON shape so wrong-typed fields
// can be reported with the offending server and field named, as spec.md
// §4.2 requires, instead of a generic unmarshal error. Fields it does not
// declare are ignored.
type rawServerConfig struct {
	Type         json.RawMessage `json:"type"`
	Command      json.RawMessage `json:"command"`
	Args         json.RawMessage `json:"args"`
	Env          json.RawMessage `json:"env"`
	WorkingDir   json.RawMessage `json:"working_dir"`
	Timeout      json.RawMessage `json:"timeout"`
	Dependencies json.RawMessage `json:"dependencies"`
}

// Parse decodes and validates a configuration document's raw bytes. It
// does not expand environment references or resolve dependencies; see
// Loader.Load for the full pipeline.
func Parse(data []byte) (*Config, error) {
	var doc struct {
		Servers map[string]json.RawMessage `json:"servers"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, newConfigError(fmt.Sprintf("invalid JSON in configuration: %v", err), "", "")
	}
	if doc.Servers == nil {
		return nil, newConfigError("configuration must have a 'servers' key", "", "servers")
	}

	cfg := &Config{Servers: make(map[string]*ServerConfig, len(doc.Servers))}
	seenLower := make(map[string]string, len(doc.Servers))

	for name, rawEntry := range doc.Servers {
		lower := strings.ToLower(name)
		if existing, dup := seenLower[lower]; dup {
			return nil, newConfigError(
				fmt.Sprintf("duplicate server name %q (case-insensitive, clashes with %q)", name, existing),
				"", fmt.Sprintf("servers.%s", name))
		}
		seenLower[lower] = name

		sc, err := parseServerConfig(name, rawEntry)
		if err != nil {
			return nil, err
		}
		sc.Name = name
		cfg.Servers[name] = sc
	}

	return cfg, nil
}

func parseServerConfig(name string, raw json.RawMessage) (*ServerConfig, error) {
	var rsc rawServerConfig
	if err := json.Unmarshal(raw, &rsc); err != nil {
		return nil, newConfigError(fmt.Sprintf("server %q configuration must be an object: %v", name, err), "", fmt.Sprintf("servers.%s", name))
	}

	if len(rsc.Type) == 0 {
		return nil, newConfigError(fmt.Sprintf("server %q missing required field 'type'", name), "", fmt.Sprintf("servers.%s.type", name))
	}
	var transport string
	if err := json.Unmarshal(rsc.Type, &transport); err != nil {
		return nil, newConfigError(fmt.Sprintf("server %q field 'type' must be a string", name), "", fmt.Sprintf("servers.%s.type", name))
	}
	switch Transport(transport) {
	case TransportStdio, TransportSSE, TransportWebSocket:
	default:
		return nil, newConfigError(fmt.Sprintf("server %q has invalid transport type %q", name, transport), "", fmt.Sprintf("servers.%s.type", name))
	}

	if len(rsc.Command) == 0 {
		return nil, newConfigError(fmt.Sprintf("server %q missing required field 'command'", name), "", fmt.Sprintf("servers.%s.command", name))
	}
	var command string
	if err := json.Unmarshal(rsc.Command, &command); err != nil {
		return nil, newConfigError(fmt.Sprintf("server %q field 'command' must be a string", name), "", fmt.Sprintf("servers.%s.command", name))
	}

	sc := &ServerConfig{Type: Transport(transport), Command: command}

	if len(rsc.Args) > 0 {
		if err := json.Unmarshal(rsc.Args, &sc.Args); err != nil {
			return nil, newConfigError(fmt.Sprintf("server %q field 'args' must be an array of strings", name), "", fmt.Sprintf("servers.%s.args", name))
		}
	}
	if len(rsc.Env) > 0 {
		if err := json.Unmarshal(rsc.Env, &sc.Env); err != nil {
			return nil, newConfigError(fmt.Sprintf("server %q field 'env' must be an object", name), "", fmt.Sprintf("servers.%s.env", name))
		}
	}
	if len(rsc.WorkingDir) > 0 {
		if err := json.Unmarshal(rsc.WorkingDir, &sc.WorkingDir); err != nil {
			return nil, newConfigError(fmt.Sprintf("server %q field 'working_dir' must be a string", name), "", fmt.Sprintf("servers.%s.working_dir", name))
		}
	}
	if len(rsc.Timeout) > 0 {
		if err := json.Unmarshal(rsc.Timeout, &sc.Timeout); err != nil {
			return nil, newConfigError(fmt.Sprintf("server %q field 'timeout' must be a number", name), "", fmt.Sprintf("servers.%s.timeout", name))
		}
	}
	if len(rsc.Dependencies) > 0 {
		if err := json.Unmarshal(rsc.Dependencies, &sc.Dependencies); err != nil {
			return nil, newConfigError(fmt.Sprintf("server %q field 'dependencies' must be an array of strings", name), "", fmt.Sprintf("servers.%s.dependencies", name))
		}
	}

	return sc, nil
}

// ParseFile reads and parses a configuration document from disk, without
// environment expansion or dependency resolution.
func ParseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newConfigError(fmt.Sprintf("configuration file not found: %s", path), path, "")
		}
		return nil, newConfigError(fmt.Sprintf("failed to read configuration file: %v", err), path, "")
	}
	return Parse(data)
}
