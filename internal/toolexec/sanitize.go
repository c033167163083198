package toolexec

import "strings"

const (
	emptyResultPlaceholder   = "<empty tool result>"
	nonTextResultPlaceholder = "<non-text tool result omitted for safety>"
)

// sanitizeTextOutput strips ASCII control characters (other than newline
// and tab) from tool output before it re-enters conversation history,
// so a misbehaving tool can't smuggle terminal escape sequences or other
// control bytes into the transcript.
func sanitizeTextOutput(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// renderTextContents joins the text blocks of an MCP tool result, falling
// back to placeholders when there is no usable text content.
func renderTextContents(texts []string, hadAnyContent bool) string {
	joined := strings.Join(texts, "\n")
	if joined != "" {
		return sanitizeTextOutput(joined)
	}
	if !hadAnyContent {
		return emptyResultPlaceholder
	}
	return nonTextResultPlaceholder
}
