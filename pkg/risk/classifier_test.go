package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyReadOnlyToolsAreLow(t *testing.T) {
	assert.Equal(t, Low, Classify("read_file", map[string]any{"path": "/tmp/x"}))
	assert.Equal(t, Low, Classify("list_directory", map[string]any{"path": "/tmp"}))
}

func TestClassifyWriteFileByExtension(t *testing.T) {
	tests := []struct {
		name string
		path string
		want Level
	}{
		{"known safe extension", "report.md", Medium},
		{"known code extension", "main.go", Medium},
		{"unknown extension defaults medium", "data.weird", Medium},
		{"no extension defaults medium", "Makefile", Medium},
		{"dangerous extension", "payload.exe", High},
		{"shared library extension", "lib.so", High},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("write_file", map[string]any{"path": tt.path})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    Level
	}{
		{"plain low risk", "grep -r foo .", Low},
		{"path-qualified low risk", "/usr/bin/cat file.txt", Low},
		{"versioned interpreter is medium", "python3.11 script.py", Medium},
		{"package manager is medium", "npm install", Medium},
		{"compiler is high", "gcc main.c", High},
		{"archiver is high", "tar -xzf a.tgz", High},
		{"unknown command defaults high", "curl http://example.com", High},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("execute_command", map[string]any{"command": tt.command})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyUnknownToolIsHigh(t *testing.T) {
	assert.Equal(t, High, Classify("delete_everything", nil))
}

func TestTimeoutForAndRequiresApproval(t *testing.T) {
	assert.Equal(t, time.Duration(0), TimeoutFor(Low))
	assert.False(t, RequiresApproval(Low))

	assert.Equal(t, 5*time.Minute, TimeoutFor(Medium))
	assert.True(t, RequiresApproval(Medium))

	assert.Equal(t, 10*time.Minute, TimeoutFor(High))
	assert.True(t, RequiresApproval(High))
}

func TestAssess(t *testing.T) {
	a := Assess("execute_command", map[string]any{"command": "gcc main.c"})
	assert.Equal(t, High, a.RiskLevel)
	assert.True(t, a.RequiresApproval)
	assert.Equal(t, 600, a.ApprovalTimeoutSeconds)
}

func TestNormalizeCommandStripsPathAndVersion(t *testing.T) {
	assert.Equal(t, "python", normalizeCommand("/usr/bin/python3.11"))
	assert.Equal(t, "node", normalizeCommand("node-18 index.js"))
	assert.Equal(t, "", normalizeCommand("  "))
}
