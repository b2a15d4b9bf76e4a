// Package testhelper builds the scripted fake MCP server under
// testdata/fakeserver once per test binary run, so process/router/host
// tests can spawn a real child process without depending on an external
// MCP implementation.
package testhelper

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

var (
	buildOnce sync.Once
	binPath   string
	buildErr  error
)

// FakeServerBinary compiles testdata/fakeserver into a temporary binary
// and returns its path, building it only once per test process.
func FakeServerBinary(t *testing.T) string {
	t.Helper()

	buildOnce.Do(func() {
		_, thisFile, _, _ := runtime.Caller(0)
		moduleRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
		srcDir := filepath.Join(moduleRoot, "testdata", "fakeserver")

		tmpDir, err := os.MkdirTemp("", "mcphost-fakeserver")
		if err != nil {
			buildErr = &buildError{output: "", err: err}
			return
		}
		out := filepath.Join(tmpDir, "fakeserver")
		cmd := exec.Command("go", "build", "-o", out, srcDir)
		cmd.Dir = moduleRoot
		if output, err := cmd.CombinedOutput(); err != nil {
			buildErr = &buildError{output: string(output), err: err}
			return
		}
		binPath = out
	})

	if buildErr != nil {
		t.Fatalf("failed to build fakeserver: %v", buildErr)
	}
	return binPath
}

type buildError struct {
	output string
	err    error
}

func (e *buildError) Error() string {
	return e.err.Error() + ": " + e.output
}
