package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakewatkins/mcphost/internal/protocol"
)

func TestSearchToolsFindsByNameAndDescription(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterServer("fs", Capabilities{Tools: []protocol.Tool{
		{Name: "read_file", Description: "reads a file from disk"},
		{Name: "write_file", Description: "writes a file to disk"},
	}}))

	results, err := r.SearchTools("read", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "read_file", results[0].Tool.Name)
}

func TestSearchToolsEmptyBeforeAnyRegistration(t *testing.T) {
	r := New()
	results, err := r.SearchTools("anything", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchToolsExcludesUnregisteredServer(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterServer("fs", Capabilities{Tools: []protocol.Tool{
		{Name: "read_file", Description: "reads a file from disk"},
	}}))
	r.UnregisterServer("fs")

	results, err := r.SearchTools("read_file", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchToolsRespectsTopK(t *testing.T) {
	r := New()
	names := []string{"file_read", "file_write", "file_copy", "file_move", "file_delete"}
	tools := make([]protocol.Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, protocol.Tool{Name: name, Description: "operates on files"})
	}
	require.NoError(t, r.RegisterServer("fs", Capabilities{Tools: tools}))

	results, err := r.SearchTools("file", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}
