// Package risk implements the pure, side-effect-free classification of a
// tool invocation into a risk level, and the approval timeout and
// auto-approval policy that follow from it.
package risk

import (
	"path/filepath"
	"strings"
	"time"
)

// Level is a closed set of risk tiers.
type Level string

const (
	Low    Level = "LOW"
	Medium Level = "MEDIUM"
	High   Level = "HIGH"
)

var lowRiskCommands = map[string]struct{}{
	"grep": {}, "find": {}, "locate": {},
	"ls": {}, "cat": {}, "head": {}, "tail": {}, "wc": {}, "file": {},
	"echo": {}, "date": {}, "pwd": {}, "whoami": {}, "uname": {},
	"sed": {}, "awk": {}, "sort": {}, "uniq": {}, "cut": {},
	"diff": {}, "patch": {}, "test": {},
}

var mediumRiskCommands = map[string]struct{}{
	"git": {},
	"npm": {}, "pip": {}, "yarn": {}, "pnpm": {},
	"node": {}, "python": {}, "ruby": {}, "php": {},
}

var highRiskCommands = map[string]struct{}{
	"gcc": {}, "g++": {}, "cc": {}, "make": {}, "clang": {},
	"zip": {}, "unzip": {}, "tar": {}, "gzip": {}, "gunzip": {},
}

var writeFileHighRiskExt = map[string]struct{}{
	".exe": {}, ".bin": {}, ".so": {}, ".dll": {}, ".dylib": {},
	".sys": {}, ".drv": {}, ".conf": {}, ".config": {},
	".app": {}, ".deb": {}, ".rpm": {}, ".msi": {},
}

// Classify determines the risk level of a tool invocation. params is the
// tool's argument map; only the keys each tool defines are read.
func Classify(toolName string, params map[string]any) Level {
	switch toolName {
	case "read_file", "list_directory":
		return Low
	case "write_file":
		return classifyWriteFile(params)
	case "execute_command":
		return classifyCommand(params)
	default:
		return High
	}
}

func classifyWriteFile(params map[string]any) Level {
	path, _ := params["path"].(string)
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := writeFileHighRiskExt[ext]; ok {
		return High
	}
	// Known-safe extensions and unrecognized extensions both land at
	// MEDIUM; only the explicit high-risk set escalates further.
	return Medium
}

func classifyCommand(params map[string]any) Level {
	raw, _ := params["command"].(string)
	base := normalizeCommand(raw)

	if _, ok := lowRiskCommands[base]; ok {
		return Low
	}
	if _, ok := mediumRiskCommands[base]; ok {
		return Medium
	}
	if _, ok := highRiskCommands[base]; ok {
		return High
	}
	return High
}

// TimeoutFor returns the approval decision window for a risk level.
// LOW never requires approval, so its timeout is zero.
func TimeoutFor(level Level) time.Duration {
	switch level {
	case Low:
		return 0
	case Medium:
		return 5 * time.Minute
	case High:
		return 10 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// RequiresApproval reports whether a risk level gates execution behind
// the approval workflow.
func RequiresApproval(level Level) bool {
	return level != Low
}

// Description returns a short human-readable explanation of a risk level,
// used by the explain endpoint and approval payloads.
func Description(level Level) string {
	switch level {
	case Low:
		return "no approval needed - safe operation"
	case Medium:
		return "requires approval - moderate risk (5 min timeout)"
	case High:
		return "requires approval - high risk (10 min timeout)"
	default:
		return "unknown risk level"
	}
}

// Assessment is the full explain-endpoint payload for a tool invocation.
type Assessment struct {
	ToolName               string `json:"tool_name"`
	RiskLevel              Level  `json:"risk_level"`
	RequiresApproval       bool   `json:"requires_approval"`
	ApprovalTimeoutSeconds int    `json:"approval_timeout_seconds"`
	Description            string `json:"description"`
}

// Assess builds the full explain-endpoint payload for a tool invocation.
func Assess(toolName string, params map[string]any) Assessment {
	level := Classify(toolName, params)
	return Assessment{
		ToolName:               toolName,
		RiskLevel:              level,
		RequiresApproval:       RequiresApproval(level),
		ApprovalTimeoutSeconds: int(TimeoutFor(level).Seconds()),
		Description:            Description(level),
	}
}
