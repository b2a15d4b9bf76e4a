package mcphost

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakewatkins/mcphost/internal/process"
	"github.com/jakewatkins/mcphost/internal/router"
	"github.com/jakewatkins/mcphost/internal/testhelper"
)

func writeTestConfig(t *testing.T, bin string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")
	doc := `{"servers": {"fs": {"type": "stdio", "command": "` + bin + `"}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func fastTestRetry() router.RetryConfig {
	cfg := router.DefaultRetryConfig()
	cfg.InitialDelay = 5 * time.Millisecond
	cfg.MaxDelay = 20 * time.Millisecond
	cfg.MaxRetries = 1
	cfg.DefaultTimeout = 2 * time.Second
	return cfg
}

func TestHostInitializeAndCallTool(t *testing.T) {
	bin := testhelper.FakeServerBinary(t)
	configPath := writeTestConfig(t, bin)

	host := New(configPath, WithRetryConfig(fastTestRetry()))
	ctx := context.Background()

	require.NoError(t, host.Initialize(ctx))
	defer host.Shutdown(ctx)

	result, err := host.CallTool(ctx, "echo", map[string]interface{}{"text": "hi"}, 0)
	require.NoError(t, err)
	assert.Contains(t, string(result), "echoed")
}

func TestHostInitializeIsIdempotent(t *testing.T) {
	bin := testhelper.FakeServerBinary(t)
	configPath := writeTestConfig(t, bin)

	host := New(configPath, WithRetryConfig(fastTestRetry()))
	ctx := context.Background()

	require.NoError(t, host.Initialize(ctx))
	defer host.Shutdown(ctx)
	require.NoError(t, host.Initialize(ctx))
}

func TestHostCallBeforeInitializeFails(t *testing.T) {
	host := New("mcp.json")
	_, err := host.CallTool(context.Background(), "echo", nil, 0)
	require.Error(t, err)
}

func TestHostCallAfterShutdownFails(t *testing.T) {
	bin := testhelper.FakeServerBinary(t)
	configPath := writeTestConfig(t, bin)

	host := New(configPath, WithRetryConfig(fastTestRetry()))
	ctx := context.Background()
	require.NoError(t, host.Initialize(ctx))
	require.NoError(t, host.Shutdown(ctx))

	_, err := host.CallTool(ctx, "echo", nil, 0)
	require.Error(t, err)
}

func TestHostGetToolsPromptsResources(t *testing.T) {
	bin := testhelper.FakeServerBinary(t)
	configPath := writeTestConfig(t, bin)

	host := New(configPath, WithRetryConfig(fastTestRetry()))
	ctx := context.Background()
	require.NoError(t, host.Initialize(ctx))
	defer host.Shutdown(ctx)

	tools, err := host.GetTools("")
	require.NoError(t, err)
	assert.NotEmpty(t, tools)

	prompts, err := host.GetPrompts("")
	require.NoError(t, err)
	assert.NotEmpty(t, prompts)

	resources, err := host.GetResources("")
	require.NoError(t, err)
	assert.NotEmpty(t, resources)
}

func TestHostGetServersReportsState(t *testing.T) {
	bin := testhelper.FakeServerBinary(t)
	configPath := writeTestConfig(t, bin)

	host := New(configPath, WithRetryConfig(fastTestRetry()))
	ctx := context.Background()
	require.NoError(t, host.Initialize(ctx))
	defer host.Shutdown(ctx)

	servers, err := host.GetServers()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "fs", servers[0].Name)
	assert.Equal(t, process.StateReady, servers[0].State)
	assert.NotZero(t, servers[0].PID)
}

func TestHostMetricsDisabledReturnsError(t *testing.T) {
	bin := testhelper.FakeServerBinary(t)
	configPath := writeTestConfig(t, bin)

	host := New(configPath, WithRetryConfig(fastTestRetry()), WithMetrics(false))
	ctx := context.Background()
	require.NoError(t, host.Initialize(ctx))
	defer host.Shutdown(ctx)

	_, err := host.GetMetrics("")
	require.Error(t, err)
}

func TestHostMetricsRecordedAfterCall(t *testing.T) {
	bin := testhelper.FakeServerBinary(t)
	configPath := writeTestConfig(t, bin)

	host := New(configPath, WithRetryConfig(fastTestRetry()))
	ctx := context.Background()
	require.NoError(t, host.Initialize(ctx))
	defer host.Shutdown(ctx)

	_, err := host.CallTool(ctx, "echo", map[string]interface{}{"text": "hi"}, 0)
	require.NoError(t, err)

	data, err := host.GetMetrics("fs")
	require.NoError(t, err)
	assert.Equal(t, 1, data["fs"].RequestCount)
}

func TestHostCallToolRespectsPerCallTimeout(t *testing.T) {
	dir := t.TempDir()
	bin := testhelper.FakeServerBinary(t)
	path := filepath.Join(dir, "mcp.json")
	doc := `{"servers": {"fs": {"type": "stdio", "command": "` + bin + `", "env": {"FAKESERVER_SLOW_MS": "300"}}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	retry := fastTestRetry()
	retry.MaxRetries = 0
	host := New(path, WithRetryConfig(retry))
	ctx := context.Background()
	require.NoError(t, host.Initialize(ctx))
	defer host.Shutdown(ctx)

	_, err := host.CallTool(ctx, "slow", map[string]interface{}{}, 50*time.Millisecond)
	require.Error(t, err)
}

func TestHostInitializeFailureRollsBack(t *testing.T) {
	bin := testhelper.FakeServerBinary(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")
	doc := `{"servers": {
		"fs": {"type": "stdio", "command": "` + bin + `"},
		"broken": {"type": "stdio", "command": "` + bin + `", "env": {"FAKESERVER_INIT_FAIL": "1"}, "dependencies": ["fs"]}
	}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	host := New(path, WithRetryConfig(fastTestRetry()))
	err := host.Initialize(context.Background())
	require.Error(t, err)

	servers, serr := host.GetServers()
	require.Error(t, serr)
	assert.Nil(t, servers)
}

func TestWithHostConvenienceWrapper(t *testing.T) {
	bin := testhelper.FakeServerBinary(t)
	configPath := writeTestConfig(t, bin)

	called := false
	err := WithHost(context.Background(), configPath, func(h *Host) error {
		called = true
		_, err := h.CallTool(context.Background(), "echo", map[string]interface{}{"text": "hi"}, 0)
		return err
	}, WithRetryConfig(fastTestRetry()))

	require.NoError(t, err)
	assert.True(t, called)
}
