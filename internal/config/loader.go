package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv substitutes every `${NAME}` token in a server's Command, Args,
// and Env values with the value of the named process environment
// variable, per spec.md §4.2/§6. Unset variables expand to the empty
// string.
func ExpandEnv(cfg *Config) {
	for _, sc := range cfg.Servers {
		sc.Command = expandString(sc.Command)
		for i, a := range sc.Args {
			sc.Args[i] = expandString(a)
		}
		for k, v := range sc.Env {
			sc.Env[k] = expandString(v)
		}
		sc.WorkingDir = expandString(sc.WorkingDir)
	}
}

func expandString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(token string) string {
		name := token[2 : len(token)-1]
		return os.Getenv(name)
	})
}

// ValidateTransports rejects any server whose declared transport is not
// stdio. Parse accepts sse/websocket so their presence can be reported
// with a named server/field (§4.2), but only stdio servers may actually
// be started (§4.2, §9): this is the load-time rejection point.
func ValidateTransports(cfg *Config) error {
	for name, sc := range cfg.Servers {
		if sc.Type != TransportStdio {
			return newConfigError(
				fmt.Sprintf("server %q uses unsupported transport %q: only %q is implemented", name, sc.Type, TransportStdio),
				"", fmt.Sprintf("servers.%s.type", name))
		}
	}
	return nil
}

// ValidateDependencies checks that every server's `dependencies` entries
// name a declared server and that the dependency graph is acyclic,
// per spec.md §3, §4.2, §8 (testable properties 1-2).
func ValidateDependencies(cfg *Config) error {
	for name, sc := range cfg.Servers {
		for _, dep := range sc.Dependencies {
			if _, ok := cfg.Servers[dep]; !ok {
				return newConfigError(
					fmt.Sprintf("server %q depends on non-existent server %q", name, dep),
					"", fmt.Sprintf("servers.%s.dependencies", name))
			}
		}
	}
	return detectCycle(cfg)
}

func detectCycle(cfg *Config) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(cfg.Servers))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return newConfigError(fmt.Sprintf("circular dependency detected involving server %q", name), "", "")
		}
		state[name] = visiting
		for _, dep := range cfg.Servers[name].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for name := range cfg.Servers {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// StartupOrder returns server names in dependency order: every server
// appears after every server in its transitive Dependencies. Callers must
// run ValidateDependencies first; StartupOrder assumes an acyclic graph.
func StartupOrder(cfg *Config) []string {
	visited := make(map[string]bool, len(cfg.Servers))
	order := make([]string, 0, len(cfg.Servers))

	// Sort names first so iteration order (and therefore tie-breaking
	// among independent servers) is deterministic across runs.
	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sortStrings(names)

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		deps := append([]string(nil), cfg.Servers[name].Dependencies...)
		sortStrings(deps)
		for _, dep := range deps {
			visit(dep)
		}
		order = append(order, name)
	}

	for _, name := range names {
		visit(name)
	}
	return order
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Load runs the full configuration pipeline described in spec.md §4.2 and
// §6: parse, validate, load the sibling .env file (system environment
// wins on conflict), expand ${REF} tokens, and validate dependencies.
func Load(configPath string) (*Config, error) {
	cfg, err := ParseFile(configPath)
	if err != nil {
		return nil, err
	}

	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	dotEnv, err := LoadDotEnv(envPath)
	if err != nil {
		return nil, newConfigError(fmt.Sprintf("failed to load .env file: %v", err), envPath, "")
	}
	ApplyDotEnv(dotEnv)

	ExpandEnv(cfg)

	if err := ValidateTransports(cfg); err != nil {
		return nil, err
	}

	if err := ValidateDependencies(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Loader wraps Load with optional live reload, mirroring the teacher's
// internal/config.Loader pattern built on fsnotify. A Host never reloads
// on its own; an embedder that wants hot reload constructs a Loader,
// calls StartWatching, and feeds the resulting Config through its own
// reconciliation logic.
type Loader struct {
	mu         sync.Mutex
	configPath string
	watcher    *fsnotify.Watcher
	logger     *zap.Logger
	onChange   func(*Config)
	stopCh     chan struct{}
}

// NewLoader creates a Loader for configPath. Nothing is watched until
// StartWatching adds the configuration file itself to the watcher.
func NewLoader(configPath string, logger *zap.Logger) (*Loader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		configPath: configPath,
		watcher:    watcher,
		logger:     logger.Named("config-loader"),
		stopCh:     make(chan struct{}),
	}, nil
}

// Load parses and validates the configuration document once.
func (l *Loader) Load() (*Config, error) {
	return Load(l.configPath)
}

// StartWatching begins watching the configuration file for writes,
// invoking onChange with a freshly loaded Config on every change. Load
// errors during a reload are logged, not propagated: the last-known-good
// Config remains whatever onChange last received.
func (l *Loader) StartWatching(onChange func(*Config)) error {
	l.mu.Lock()
	l.onChange = onChange
	l.mu.Unlock()

	if err := l.watcher.Add(l.configPath); err != nil {
		return fmt.Errorf("failed to watch configuration file: %w", err)
	}

	go l.watchLoop()
	l.logger.Info("watching configuration file for changes", zap.String("path", l.configPath))
	return nil
}

func (l *Loader) watchLoop() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				l.reload()
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("config watcher error", zap.Error(err))
		case <-l.stopCh:
			return
		}
	}
}

func (l *Loader) reload() {
	cfg, err := Load(l.configPath)
	if err != nil {
		l.logger.Error("failed to reload configuration", zap.Error(err))
		return
	}
	l.mu.Lock()
	onChange := l.onChange
	l.mu.Unlock()
	if onChange != nil {
		onChange(cfg)
	}
}

// Close stops watching and releases the underlying file watcher.
func (l *Loader) Close() error {
	close(l.stopCh)
	return l.watcher.Close()
}
