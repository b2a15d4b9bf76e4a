// Package router dispatches tool/prompt/resource requests to the owning
// server process, applying cache lookups, timeouts, and retry with
// exponential backoff.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jakewatkins/mcphost/internal/cache"
	"github.com/jakewatkins/mcphost/internal/hosterrors"
	"github.com/jakewatkins/mcphost/internal/metrics"
	"github.com/jakewatkins/mcphost/internal/process"
	"github.com/jakewatkins/mcphost/internal/protocol"
	"github.com/jakewatkins/mcphost/internal/registry"
)

// RetryConfig controls execute_with_retry's exponential backoff,
// defaulting to the values the original Host hardcodes (mcp_host/router.py).
type RetryConfig struct {
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	MaxRetries       int
	ExponentialBase  float64
	DefaultTimeout   time.Duration
	PromptResourceTTL time.Duration
}

// DefaultRetryConfig matches the original Host's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		MaxRetries:        3,
		ExponentialBase:   2.0,
		DefaultTimeout:    30 * time.Second,
		PromptResourceTTL: 5 * time.Minute,
	}
}

// Router routes capability calls to the server process that owns them.
// Grounded on original_source's RequestRouter (mcp_host/router.py).
type Router struct {
	registry *registry.Registry
	cache    *cache.Cache
	metrics  *metrics.Collector
	retry    RetryConfig
	logger   *zap.Logger

	mu       sync.RWMutex
	servers  map[string]*process.Process
}

// New constructs a Router. cache and collector may be nil to disable
// caching/metrics respectively.
func New(reg *registry.Registry, c *cache.Cache, m *metrics.Collector, retry RetryConfig, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: reg,
		cache:    c,
		metrics:  m,
		retry:    retry,
		logger:   logger.Named("router"),
		servers:  make(map[string]*process.Process),
	}
}

// SetServer registers the process backing a server name; routing targets
// resolve against this table.
func (r *Router) SetServer(name string, p *process.Process) {
	r.mu.Lock()
	r.servers[name] = p
	r.mu.Unlock()
}

// RemoveServer removes a server's process from the routing table.
func (r *Router) RemoveServer(name string) {
	r.mu.Lock()
	delete(r.servers, name)
	r.mu.Unlock()
}

func (r *Router) serverProcess(name string) (*process.Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.servers[name]
	return p, ok
}

func bareName(qualified string) string {
	if idx := strings.LastIndex(qualified, "."); idx >= 0 {
		return qualified[idx+1:]
	}
	return qualified
}

// CallTool routes a tools/call request, validating arguments against the
// tool's input schema before dispatch. Tool calls are never cached: they
// may have side effects. A timeout of 0 uses the router's DefaultTimeout.
func (r *Router) CallTool(ctx context.Context, toolName string, arguments map[string]interface{}, timeout time.Duration) (json.RawMessage, error) {
	server, tool, err := r.registry.FindTool(toolName)
	if err != nil {
		return nil, err
	}

	if err := registry.ValidateToolParams(toolName, tool.InputSchema, arguments); err != nil {
		return nil, err
	}

	request := protocol.NewToolCallRequest(bareName(toolName), arguments)
	return r.executeWithRetry(ctx, server, request, timeout)
}

// GetPrompt routes a prompts/get request, serving from cache when present.
// A timeout of 0 uses the router's DefaultTimeout.
func (r *Router) GetPrompt(ctx context.Context, promptName string, arguments map[string]interface{}, timeout time.Duration) (json.RawMessage, error) {
	server, _, err := r.registry.FindPrompt(promptName)
	if err != nil {
		return nil, err
	}
	cacheKey := fmt.Sprintf("prompt:%s.%s:%v", server, bareName(promptName), arguments)

	if r.cache != nil {
		if cached, ok := r.cache.Get(cacheKey); ok {
			return cached.(json.RawMessage), nil
		}
	}

	request := protocol.NewPromptGetRequest(bareName(promptName), arguments)
	result, err := r.executeWithRetry(ctx, server, request, timeout)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(cacheKey, result, r.retry.PromptResourceTTL)
	}
	return result, nil
}

// ReadResource routes a resources/read request, serving from cache when
// present. A timeout of 0 uses the router's DefaultTimeout.
func (r *Router) ReadResource(ctx context.Context, uri string, timeout time.Duration) (json.RawMessage, error) {
	server, _, err := r.registry.FindResource(uri)
	if err != nil {
		return nil, err
	}
	cacheKey := "resource:" + server + ":" + uri

	if r.cache != nil {
		if cached, ok := r.cache.Get(cacheKey); ok {
			return cached.(json.RawMessage), nil
		}
	}

	request := protocol.NewResourceReadRequest(uri)
	result, err := r.executeWithRetry(ctx, server, request, timeout)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(cacheKey, result, r.retry.PromptResourceTTL)
	}
	return result, nil
}

// executeWithRetry sends request to server, with up to MaxRetries further
// attempts after a timeout or transport failure, spaced by exponential
// backoff. The first such failure already demotes the server (failServer),
// so each later attempt returns an UnavailableError without sending.
// A timeout of 0 uses the router's DefaultTimeout.
func (r *Router) executeWithRetry(ctx context.Context, server string, request *protocol.Message, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = r.retry.DefaultTimeout
	}
	delay := r.retry.InitialDelay

	var lastErr error
	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		p, ok := r.serverProcess(server)
		if !ok {
			return nil, &hosterrors.UnavailableError{ServerName: server, Message: fmt.Sprintf("server %q not found", server)}
		}
		if p.State() != process.StateReady {
			return nil, &hosterrors.UnavailableError{ServerName: server, Message: fmt.Sprintf("server %q is not ready (state: %s)", server, p.State())}
		}

		result, err := r.executeWithTimeout(ctx, server, p, request, timeout)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !r.isRetryable(err) {
			return nil, err
		}

		r.failServer(server, p)

		if attempt < r.retry.MaxRetries {
			r.logger.Warn("request failed, retrying",
				zap.String("server", server), zap.Int("attempt", attempt+1), zap.Error(err))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay = time.Duration(float64(delay) * r.retry.ExponentialBase)
			if delay > r.retry.MaxDelay {
				delay = r.retry.MaxDelay
			}
		}
	}

	return nil, &hosterrors.UnavailableError{
		ServerName: server,
		Message:    fmt.Sprintf("server %q is unavailable after %d retries: %v", server, r.retry.MaxRetries, lastErr),
	}
}

// isRetryable reports whether err warrants another attempt: timeouts and
// transport-level unavailability are retried, server-reported application
// errors are not.
func (r *Router) isRetryable(err error) bool {
	switch err.(type) {
	case *hosterrors.TimeoutError, *hosterrors.UnavailableError:
		return true
	default:
		return false
	}
}

// failServer demotes a server to Unavailable, drops its capabilities
// from the registry, and invalidates its cached prompt/resource results,
// matching the original Host's timeout/crash handling.
func (r *Router) failServer(server string, p *process.Process) {
	p.MarkUnavailable()
	r.registry.UnregisterServer(server)
	r.RemoveServer(server)
	if r.cache != nil {
		r.cache.InvalidateServer(server)
	}
}

func (r *Router) executeWithTimeout(ctx context.Context, server string, p *process.Process, request *protocol.Message, timeout time.Duration) (json.RawMessage, error) {
	start := time.Now()

	resp, err := p.SendRequest(ctx, request, timeout)
	latency := time.Since(start)

	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordRequest(server, latency, false)
		}
		return nil, err
	}

	if resp.Error != nil {
		if r.metrics != nil {
			r.metrics.RecordRequest(server, latency, false)
		}
		r.logger.Error("server returned error", zap.String("server", server), zap.Int("code", resp.Error.Code), zap.String("message", resp.Error.Message))
		return nil, &hosterrors.ServerError{ServerName: server, Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
	}

	if r.metrics != nil {
		r.metrics.RecordRequest(server, latency, true)
	}
	return resp.Result, nil
}
