package toolexec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitToolNameWithNamespace(t *testing.T) {
	server, tool := splitToolName("filesystem:read_file", "default")
	assert.Equal(t, "filesystem", server)
	assert.Equal(t, "read_file", tool)
}

func TestSplitToolNameFallsBackToDefaultServer(t *testing.T) {
	server, tool := splitToolName("read_file", "default")
	assert.Equal(t, "default", server)
	assert.Equal(t, "read_file", tool)
}

func TestDecodeArgumentsParsesObject(t *testing.T) {
	args := decodeArguments(json.RawMessage(`{"path":"/tmp/x"}`))
	assert.Equal(t, "/tmp/x", args["path"])
}

func TestDecodeArgumentsHandlesEmpty(t *testing.T) {
	assert.Nil(t, decodeArguments(nil))
}

func TestRetryableDetectsTransportFailures(t *testing.T) {
	assert.True(t, retryable("MCP tool execution error: connection reset"))
	assert.True(t, retryable("execution timed out after 30s"))
	assert.False(t, retryable("file not found"))
}

func TestDefaultConfigMatchesTeacherDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.MaxConcurrency)
	assert.Equal(t, 2, cfg.MaxRetries)
}
