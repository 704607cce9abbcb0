package risk

import "strings"

// normalizeCommand extracts the base command name from a raw shell
// invocation: strips a leading path, keeps only the first whitespace-
// separated token, and strips a trailing version suffix such as
// "python3" -> "python" or "node-18" -> "node".
func normalizeCommand(raw string) string {
	cmd := strings.ToLower(strings.TrimSpace(raw))
	if cmd == "" {
		return ""
	}
	if fields := strings.Fields(cmd); len(fields) > 0 {
		cmd = fields[0]
	}
	if idx := strings.LastIndex(cmd, "/"); idx >= 0 {
		cmd = cmd[idx+1:]
	}
	return stripVersionSuffix(cmd)
}

// stripVersionSuffix removes a trailing run of digits and separating
// dots/dashes, e.g. "python3.11" -> "python", "node-18" -> "node".
func stripVersionSuffix(cmd string) string {
	end := len(cmd)
	for end > 0 {
		c := cmd[end-1]
		if c >= '0' && c <= '9' || c == '.' || c == '-' {
			end--
			continue
		}
		break
	}
	if end == 0 {
		return cmd
	}
	return cmd[:end]
}
