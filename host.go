// Package mcphost supervises a set of external MCP capability servers:
// starting them in dependency order, routing tool/prompt/resource calls
// to the server that owns them, and tearing them down cleanly.
package mcphost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jakewatkins/mcphost/internal/cache"
	"github.com/jakewatkins/mcphost/internal/config"
	"github.com/jakewatkins/mcphost/internal/hosterrors"
	"github.com/jakewatkins/mcphost/internal/logging"
	"github.com/jakewatkins/mcphost/internal/metrics"
	"github.com/jakewatkins/mcphost/internal/notify"
	"github.com/jakewatkins/mcphost/internal/process"
	"github.com/jakewatkins/mcphost/internal/protocol"
	"github.com/jakewatkins/mcphost/internal/registry"
	"github.com/jakewatkins/mcphost/internal/router"
)

// ServerInfo reports one supervised server's current status, mirroring
// the original Host's get_servers (mcp_host/host.py).
type ServerInfo struct {
	Name  string
	State process.State
	PID   int
}

// ToolInfo, PromptInfo, and ResourceInfo attach the owning server name to
// a capability, matching get_tools/get_prompts/get_resources's flattened
// list shape.
type ToolInfo struct {
	Server string
	Tool   protocol.Tool
}

type PromptInfo struct {
	Server string
	Prompt protocol.Prompt
}

type ResourceInfo struct {
	Server   string
	Resource protocol.Resource
}

// options bundles the Host's optional, embedder-tunable settings.
type options struct {
	cacheEnabled   bool
	cacheMaxSize   int
	cacheTTLSecs   int
	metricsEnabled bool
	logConfig      logging.Config
	retryConfig    router.RetryConfig
	logger         *zap.Logger
}

func defaultOptions() options {
	return options{
		cacheEnabled:   true,
		cacheMaxSize:   cache.DefaultMaxSize,
		metricsEnabled: true,
		logConfig:      logging.DefaultConfig(),
		retryConfig:    router.DefaultRetryConfig(),
	}
}

// Option configures a Host at construction time.
type Option func(*options)

// WithCache enables or disables the prompt/resource response cache.
func WithCache(enabled bool, maxSize int) Option {
	return func(o *options) {
		o.cacheEnabled = enabled
		o.cacheMaxSize = maxSize
	}
}

// WithMetrics enables or disables per-server request metrics.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithLogConfig overrides the Host's logging sinks.
func WithLogConfig(cfg logging.Config) Option {
	return func(o *options) {
		o.logConfig = cfg
	}
}

// WithLogger injects a pre-built logger, bypassing WithLogConfig.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRetryConfig overrides the router's timeout/backoff policy.
func WithRetryConfig(cfg router.RetryConfig) Option {
	return func(o *options) {
		o.retryConfig = cfg
	}
}

// Host is the in-process supervisor for every configured MCP server.
// Grounded on original_source's MCPHost (mcp_host/host.py).
type Host struct {
	configPath string
	opts       options
	logger     *zap.Logger

	registry  *registry.Registry
	cache     *cache.Cache
	metrics   *metrics.Collector
	router    *router.Router
	notifyBus *notify.Bus

	mu          sync.RWMutex
	processes   map[string]*process.Process
	initialized bool
	shutdown    bool
}

// New constructs a Host bound to a configuration file path. The servers
// it describes are not started until Initialize is called.
func New(configPath string, opts ...Option) *Host {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		built, err := logging.New(o.logConfig)
		if err != nil {
			built = zap.NewNop()
		}
		logger = built
	}

	reg := registry.New()

	var c *cache.Cache
	if o.cacheEnabled {
		c = cache.New(o.cacheMaxSize, 0)
	}

	var m *metrics.Collector
	if o.metricsEnabled {
		m = metrics.New()
	}

	return &Host{
		configPath: configPath,
		opts:       o,
		logger:     logger,
		registry:   reg,
		cache:      c,
		metrics:    m,
		router:     router.New(reg, c, m, o.retryConfig, logger),
		notifyBus:  notify.New(logger),
		processes:  make(map[string]*process.Process),
	}
}

// Initialize loads the configuration, computes startup order, and starts
// every server in dependency order. If any server fails to start, every
// server already started is shut down and the error is returned.
// Idempotent: a second call on an already-initialized Host is a no-op.
func (h *Host) Initialize(ctx context.Context) error {
	h.mu.Lock()
	if h.initialized {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	h.logger.Info("initializing host", zap.String("config", h.configPath))

	cfg, err := config.Load(h.configPath)
	if err != nil {
		return err
	}

	order := config.StartupOrder(cfg)
	h.logger.Info("server startup order", zap.Strings("order", order))

	if h.cache != nil {
		h.cache.StartSweeper()
	}

	for _, name := range order {
		if err := h.startServer(ctx, name, cfg.Servers[name]); err != nil {
			h.logger.Error("failed to initialize host, rolling back", zap.Error(err))
			h.mu.Lock()
			h.shutdownLocked(ctx)
			h.mu.Unlock()
			return err
		}
	}

	h.mu.Lock()
	h.initialized = true
	h.mu.Unlock()

	h.logger.Info("host initialization complete")
	return nil
}

func (h *Host) startServer(ctx context.Context, name string, sc *config.ServerConfig) error {
	h.logger.Info("starting server", zap.String("server", name))

	p := process.New(name, sc, h.logger)
	p.SetNotificationHandler(h.notifyBus.Dispatch)

	if err := p.Start(); err != nil {
		return err
	}

	timeout := sc.EffectiveTimeout(h.opts.retryConfig.DefaultTimeout)

	initResp, err := p.SendRequest(ctx, protocol.NewInitializeRequest(), timeout)
	if err != nil {
		p.Shutdown()
		return &hosterrors.StartupError{ServerName: name, Message: fmt.Sprintf("initialize failed: %v", err)}
	}
	if initResp.Error != nil {
		p.Shutdown()
		return &hosterrors.StartupError{ServerName: name, Message: fmt.Sprintf("initialize returned error: %s", initResp.Error.Message)}
	}

	var initResult protocol.InitializeResult
	_ = json.Unmarshal(initResp.Result, &initResult)

	if err := p.Send(protocol.NewInitializedNotification()); err != nil {
		p.Shutdown()
		return &hosterrors.StartupError{ServerName: name, Message: fmt.Sprintf("failed to send initialized notification: %v", err)}
	}

	caps, err := h.fetchCapabilities(ctx, p, name, timeout, initResult.Capabilities)
	if err != nil {
		p.Shutdown()
		return err
	}

	p.MarkReady()

	h.mu.Lock()
	h.processes[name] = p
	h.mu.Unlock()
	h.router.SetServer(name, p)

	if err := h.registry.RegisterServer(name, caps); err != nil {
		return err
	}

	h.logger.Info("server started",
		zap.String("server", name),
		zap.Int("tools", len(caps.Tools)),
		zap.Int("prompts", len(caps.Prompts)),
		zap.Int("resources", len(caps.Resources)))
	return nil
}

// fetchCapabilities requests tools/list, prompts/list, and resources/list
// for whichever capabilities the server advertised in its initialize
// response, mirroring the original Host's conditional fetch
// (mcp_host/host.py's _start_server).
func (h *Host) fetchCapabilities(ctx context.Context, p *process.Process, name string, timeout time.Duration, advertised map[string]interface{}) (registry.Capabilities, error) {
	var caps registry.Capabilities

	if _, ok := advertised["tools"]; ok {
		resp, err := p.SendRequest(ctx, protocol.NewToolsListRequest(), timeout)
		if err != nil {
			return caps, &hosterrors.StartupError{ServerName: name, Message: fmt.Sprintf("tools/list failed: %v", err)}
		}
		if resp.Error != nil {
			return caps, &hosterrors.StartupError{ServerName: name, Message: fmt.Sprintf("tools/list returned error: %s", resp.Error.Message)}
		}
		tools, err := protocol.ParseToolsList(resp.Result)
		if err != nil {
			return caps, &hosterrors.StartupError{ServerName: name, Message: fmt.Sprintf("failed to parse tools/list: %v", err)}
		}
		caps.Tools = tools
	}

	if _, ok := advertised["prompts"]; ok {
		resp, err := p.SendRequest(ctx, protocol.NewPromptsListRequest(), timeout)
		if err != nil {
			return caps, &hosterrors.StartupError{ServerName: name, Message: fmt.Sprintf("prompts/list failed: %v", err)}
		}
		if resp.Error != nil {
			return caps, &hosterrors.StartupError{ServerName: name, Message: fmt.Sprintf("prompts/list returned error: %s", resp.Error.Message)}
		}
		prompts, err := protocol.ParsePromptsList(resp)
		if err != nil {
			return caps, &hosterrors.StartupError{ServerName: name, Message: fmt.Sprintf("failed to parse prompts/list: %v", err)}
		}
		caps.Prompts = prompts
	}

	if _, ok := advertised["resources"]; ok {
		resp, err := p.SendRequest(ctx, protocol.NewResourcesListRequest(), timeout)
		if err != nil {
			return caps, &hosterrors.StartupError{ServerName: name, Message: fmt.Sprintf("resources/list failed: %v", err)}
		}
		if resp.Error != nil {
			return caps, &hosterrors.StartupError{ServerName: name, Message: fmt.Sprintf("resources/list returned error: %s", resp.Error.Message)}
		}
		resources, err := protocol.ParseResourcesList(resp)
		if err != nil {
			return caps, &hosterrors.StartupError{ServerName: name, Message: fmt.Sprintf("failed to parse resources/list: %v", err)}
		}
		caps.Resources = resources
	}

	return caps, nil
}

// Shutdown stops every supervised server and releases background
// resources (the cache sweeper). Idempotent.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shutdownLocked(ctx)
}

func (h *Host) shutdownLocked(ctx context.Context) error {
	if h.shutdown {
		return nil
	}
	h.logger.Info("shutting down host")

	if h.cache != nil {
		h.cache.Stop()
	}

	var wg sync.WaitGroup
	for name, p := range h.processes {
		wg.Add(1)
		go func(name string, p *process.Process) {
			defer wg.Done()
			if err := p.Shutdown(); err != nil {
				h.logger.Error("error shutting down server", zap.String("server", name), zap.Error(err))
			}
		}(name, p)
	}
	wg.Wait()

	h.processes = make(map[string]*process.Process)
	h.shutdown = true
	h.initialized = false

	h.logger.Info("host shutdown complete")
	return nil
}

// Close satisfies io.Closer by shutting the Host down with a background
// context.
func (h *Host) Close() error {
	return h.Shutdown(context.Background())
}

func (h *Host) checkReady() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.initialized {
		return fmt.Errorf("mcphost: host not initialized, call Initialize first")
	}
	if h.shutdown {
		return fmt.Errorf("mcphost: host has been shut down")
	}
	return nil
}

// CallTool calls a tool by name ("tool" or "server.tool"). timeout bounds
// this individual call; 0 falls back to the router's configured
// DefaultTimeout.
func (h *Host) CallTool(ctx context.Context, name string, arguments map[string]interface{}, timeout time.Duration) (json.RawMessage, error) {
	if err := h.checkReady(); err != nil {
		return nil, err
	}
	if arguments == nil {
		arguments = map[string]interface{}{}
	}
	return h.router.CallTool(ctx, name, arguments, timeout)
}

// GetPrompt retrieves a prompt by name ("prompt" or "server.prompt").
// timeout bounds this individual call; 0 falls back to the router's
// configured DefaultTimeout.
func (h *Host) GetPrompt(ctx context.Context, name string, arguments map[string]interface{}, timeout time.Duration) (json.RawMessage, error) {
	if err := h.checkReady(); err != nil {
		return nil, err
	}
	if arguments == nil {
		arguments = map[string]interface{}{}
	}
	return h.router.GetPrompt(ctx, name, arguments, timeout)
}

// ReadResource reads a resource by URI. timeout bounds this individual
// call; 0 falls back to the router's configured DefaultTimeout.
func (h *Host) ReadResource(ctx context.Context, uri string, timeout time.Duration) (json.RawMessage, error) {
	if err := h.checkReady(); err != nil {
		return nil, err
	}
	return h.router.ReadResource(ctx, uri, timeout)
}

// GetTools returns every registered tool, optionally filtered to one
// server.
func (h *Host) GetTools(server string) ([]ToolInfo, error) {
	if err := h.checkReady(); err != nil {
		return nil, err
	}
	var out []ToolInfo
	for name, caps := range h.registry.Snapshot() {
		if server != "" && name != server {
			continue
		}
		for _, t := range caps.Tools {
			out = append(out, ToolInfo{Server: name, Tool: t})
		}
	}
	return out, nil
}

// GetPrompts returns every registered prompt, optionally filtered to one
// server.
func (h *Host) GetPrompts(server string) ([]PromptInfo, error) {
	if err := h.checkReady(); err != nil {
		return nil, err
	}
	var out []PromptInfo
	for name, caps := range h.registry.Snapshot() {
		if server != "" && name != server {
			continue
		}
		for _, p := range caps.Prompts {
			out = append(out, PromptInfo{Server: name, Prompt: p})
		}
	}
	return out, nil
}

// GetResources returns every registered resource, optionally filtered to
// one server.
func (h *Host) GetResources(server string) ([]ResourceInfo, error) {
	if err := h.checkReady(); err != nil {
		return nil, err
	}
	var out []ResourceInfo
	for name, caps := range h.registry.Snapshot() {
		if server != "" && name != server {
			continue
		}
		for _, r := range caps.Resources {
			out = append(out, ResourceInfo{Server: name, Resource: r})
		}
	}
	return out, nil
}

// SearchTools ranks registered tools against a free-text query.
func (h *Host) SearchTools(query string, topK int) ([]registry.SearchResult, error) {
	if err := h.checkReady(); err != nil {
		return nil, err
	}
	return h.registry.SearchTools(query, topK)
}

// GetServers reports the name, state, and PID of every supervised server.
func (h *Host) GetServers() ([]ServerInfo, error) {
	if err := h.checkReady(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ServerInfo, 0, len(h.processes))
	for name, p := range h.processes {
		out = append(out, ServerInfo{Name: name, State: p.State(), PID: p.PID()})
	}
	return out, nil
}

// GetMetrics returns performance metrics for one server, or every server
// if server is "". Returns an error if metrics were disabled via
// WithMetrics(false).
func (h *Host) GetMetrics(server string) (map[string]metrics.Data, error) {
	if err := h.checkReady(); err != nil {
		return nil, err
	}
	if h.metrics == nil {
		return nil, fmt.Errorf("mcphost: metrics are not enabled")
	}
	if server != "" {
		return map[string]metrics.Data{server: h.metrics.ServerMetrics(server)}, nil
	}
	return h.metrics.AllMetrics(), nil
}

// ResetMetrics clears metrics for one server, or every server if server is
// "".
func (h *Host) ResetMetrics(server string) {
	if h.metrics != nil {
		h.metrics.Reset(server)
	}
}

// RegisterNotificationHandler registers a callback for every notification
// of the given MCP method (e.g. "notifications/tools/list_changed")
// received from any server.
func (h *Host) RegisterNotificationHandler(notificationType string, handler notify.Handler) {
	h.notifyBus.Register(notificationType, handler)
}

// WithHost is a convenience wrapper matching the original Host's async
// context manager (__aenter__/__aexit__): it initializes the Host, runs
// fn, and always shuts the Host down afterward.
func WithHost(ctx context.Context, configPath string, fn func(*Host) error, opts ...Option) error {
	h := New(configPath, opts...)
	if err := h.Initialize(ctx); err != nil {
		return err
	}
	defer h.Shutdown(ctx)
	return fn(h)
}
