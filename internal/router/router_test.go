package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakewatkins/mcphost/internal/cache"
	"github.com/jakewatkins/mcphost/internal/config"
	"github.com/jakewatkins/mcphost/internal/hosterrors"
	"github.com/jakewatkins/mcphost/internal/metrics"
	"github.com/jakewatkins/mcphost/internal/process"
	"github.com/jakewatkins/mcphost/internal/protocol"
	"github.com/jakewatkins/mcphost/internal/registry"
	"github.com/jakewatkins/mcphost/internal/testhelper"
)

func newReadyProcess(t *testing.T, env map[string]string) *process.Process {
	t.Helper()
	bin := testhelper.FakeServerBinary(t)
	cfg := &config.ServerConfig{Command: bin, Env: env}
	p := process.New("fs", cfg, nil)
	require.NoError(t, p.Start())
	t.Cleanup(func() { p.Shutdown() })

	ctx := context.Background()
	_, err := p.SendRequest(ctx, protocol.NewInitializeRequest(), 2*time.Second)
	require.NoError(t, err)
	p.MarkReady()
	return p
}

func newTestRouter(t *testing.T, retry RetryConfig) (*Router, *registry.Registry, *process.Process) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterServer("fs", registry.Capabilities{
		Tools: []protocol.Tool{
			{Name: "echo", InputSchema: json.RawMessage(`{"type":"object","required":["text"],"properties":{"text":{"type":"string"}}}`)},
			{Name: "slow"},
			{Name: "failing"},
		},
		Prompts:   []protocol.Prompt{{Name: "greeting"}},
		Resources: []protocol.Resource{{URI: "res://hello"}},
	}))

	c := cache.New(10, time.Minute)
	m := metrics.New()
	r := New(reg, c, m, retry, nil)

	p := newReadyProcess(t, map[string]string{"FAKESERVER_SLOW_MS": "300"})
	r.SetServer("fs", p)

	return r, reg, p
}

func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 5 * time.Millisecond
	cfg.MaxDelay = 20 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.DefaultTimeout = 100 * time.Millisecond
	return cfg
}

// debugCallCount queries the fake server's own request counter for
// method, so cache-hit tests can assert the server was actually spared
// a second request rather than just comparing returned payloads (a
// static fake would return the same bytes either way).
func debugCallCount(t *testing.T, p *process.Process, method string) int {
	t.Helper()
	params, err := json.Marshal(map[string]string{"method": method})
	require.NoError(t, err)
	req := &protocol.Message{JSONRPC: "2.0", Method: "debug/call_count", Params: params, ID: protocol.NewID()}
	resp, err := p.SendRequest(context.Background(), req, 2*time.Second)
	require.NoError(t, err)
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	return out.Count
}

func TestCallToolSuccess(t *testing.T) {
	r, _, _ := newTestRouter(t, fastRetryConfig())

	result, err := r.CallTool(context.Background(), "echo", map[string]interface{}{"text": "hi"}, 0)
	require.NoError(t, err)
	assert.Contains(t, string(result), "echoed")
}

func TestCallToolValidationFailsBeforeDispatch(t *testing.T) {
	r, _, _ := newTestRouter(t, fastRetryConfig())

	_, err := r.CallTool(context.Background(), "echo", map[string]interface{}{}, 0)
	require.Error(t, err)

	var validationErr *hosterrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestCallToolServerErrorIsNotRetried(t *testing.T) {
	r, _, _ := newTestRouter(t, fastRetryConfig())

	_, err := r.CallTool(context.Background(), "failing", map[string]interface{}{}, 0)
	require.Error(t, err)

	var serverErr *hosterrors.ServerError
	require.ErrorAs(t, err, &serverErr)
}

func TestCallToolTimeoutMarksServerUnavailableAndUnregisters(t *testing.T) {
	r, reg, p := newTestRouter(t, fastRetryConfig())

	_, err := r.CallTool(context.Background(), "slow", map[string]interface{}{}, 0)
	require.Error(t, err)

	assert.Equal(t, process.StateUnavailable, p.State())
	_, ok := reg.ServerCapabilities("fs")
	assert.False(t, ok)
}

func TestGetPromptCachesResult(t *testing.T) {
	r, _, p := newTestRouter(t, fastRetryConfig())

	first, err := r.GetPrompt(context.Background(), "greeting", nil, 0)
	require.NoError(t, err)

	second, err := r.GetPrompt(context.Background(), "greeting", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 1, debugCallCount(t, p, "prompts/get"))
}

func TestReadResourceCachesResult(t *testing.T) {
	r, _, p := newTestRouter(t, fastRetryConfig())

	first, err := r.ReadResource(context.Background(), "res://hello", 0)
	require.NoError(t, err)
	assert.Contains(t, string(first), "hello world")

	second, err := r.ReadResource(context.Background(), "res://hello", 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 1, debugCallCount(t, p, "resources/read"))
}

func TestCallToolUnknownServerIsUnavailable(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.RegisterServer("fs", registry.Capabilities{Tools: []protocol.Tool{{Name: "read"}}}))

	r := New(reg, nil, nil, fastRetryConfig(), nil)
	_, err := r.CallTool(context.Background(), "read", map[string]interface{}{}, 0)
	require.Error(t, err)

	var unavailableErr *hosterrors.UnavailableError
	require.ErrorAs(t, err, &unavailableErr)
}

func TestCallToolCustomTimeoutIsHonored(t *testing.T) {
	retry := fastRetryConfig()
	retry.DefaultTimeout = 5 * time.Second
	r, _, _ := newTestRouter(t, retry)

	// the fake server sleeps 300ms on "slow"; a 10ms per-call timeout
	// must still trip even though DefaultTimeout is generous, proving the
	// timeout argument overrides the router's configured default.
	_, err := r.CallTool(context.Background(), "slow", map[string]interface{}{}, 10*time.Millisecond)
	require.Error(t, err)

	var unavailableErr *hosterrors.UnavailableError
	require.ErrorAs(t, err, &unavailableErr)
}
