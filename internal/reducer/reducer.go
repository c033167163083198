// Package reducer implements the pure, idempotent transformation that
// normalizes a session's message history before it is handed to a model:
// deduplicate tool results, merge consecutive same-role turns, truncate
// old history, and repair tool-call/tool-result pairing so nothing
// dangling or orphaned reaches the provider.
package reducer

import (
	"github.com/forgewright/agentcore/pkg/models"
)

const truncatedAssistantPlaceholder = "[assistant message truncated]"

// Config bounds how much tool-result and assistant history survives
// reduction.
type Config struct {
	// MaxToolResults is the number of most-recent ToolResult parts kept
	// across the whole history.
	MaxToolResults int
	// MaxFullAssistantMessages is the number of most-recent assistant
	// messages kept with their full text; earlier ones are truncated.
	MaxFullAssistantMessages int
}

// DefaultConfig mirrors common provider context-window budgets.
func DefaultConfig() Config {
	return Config{MaxToolResults: 40, MaxFullAssistantMessages: 20}
}

// Reduce applies the six-step normalization pipeline to messages, in
// order, and returns a new slice; the input is never mutated. Reduce is
// idempotent: Reduce(Reduce(xs)) == Reduce(xs).
func Reduce(messages []models.Message, cfg Config) []models.Message {
	out := cloneMessages(messages)
	out = dedupeToolResultsByID(out)
	out = mergeConsecutiveSameRole(out)
	out = truncateOldToolResults(out, cfg.MaxToolResults)
	out = truncateOldAssistantMessages(out, cfg.MaxFullAssistantMessages)
	out = stripDanglingToolCalls(out)
	out = dropOrphanedToolResults(out)
	return dropEmptyMessages(out)
}

func cloneMessages(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	for i, m := range messages {
		out[i] = m
		out[i].Parts = append([]models.Part(nil), m.Parts...)
	}
	return out
}

// dedupeToolResultsByID keeps only the last occurrence of each
// tool_call_id's ToolResult part, scanning the whole history.
func dedupeToolResultsByID(messages []models.Message) []models.Message {
	lastIndex := map[string][2]int{} // tool_call_id -> (message index, part index)
	for mi, m := range messages {
		for pi, p := range m.Parts {
			if p.Type == models.PartToolResult {
				lastIndex[p.ToolResultForID] = [2]int{mi, pi}
			}
		}
	}

	out := make([]models.Message, len(messages))
	for mi, m := range messages {
		out[mi] = m
		kept := make([]models.Part, 0, len(m.Parts))
		for pi, p := range m.Parts {
			if p.Type == models.PartToolResult {
				last := lastIndex[p.ToolResultForID]
				if last != [2]int{mi, pi} {
					continue
				}
			}
			kept = append(kept, p)
		}
		out[mi].Parts = kept
	}
	return out
}

// mergeConsecutiveSameRole concatenates adjacent messages sharing a role:
// text parts are joined with a newline, all part lists appended in order.
func mergeConsecutiveSameRole(messages []models.Message) []models.Message {
	if len(messages) == 0 {
		return messages
	}

	out := make([]models.Message, 0, len(messages))
	current := messages[0]
	current.Parts = append([]models.Part(nil), messages[0].Parts...)

	for _, next := range messages[1:] {
		if next.Role == current.Role {
			current.Parts = mergeParts(current.Parts, next.Parts)
			continue
		}
		out = append(out, current)
		current = next
		current.Parts = append([]models.Part(nil), next.Parts...)
	}
	out = append(out, current)
	return out
}

func mergeParts(a, b []models.Part) []models.Part {
	if len(a) > 0 && len(b) > 0 && a[len(a)-1].Type == models.PartText && b[0].Type == models.PartText {
		merged := make([]models.Part, 0, len(a)+len(b)-1)
		merged = append(merged, a[:len(a)-1]...)
		joined := a[len(a)-1]
		joined.Text = joined.Text + "\n" + b[0].Text
		merged = append(merged, joined)
		merged = append(merged, b[1:]...)
		return merged
	}
	merged := make([]models.Part, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return merged
}

// truncateOldToolResults keeps at most the last maxResults ToolResult
// parts across the whole history; older ones are dropped.
func truncateOldToolResults(messages []models.Message, maxResults int) []models.Message {
	if maxResults <= 0 {
		return messages
	}

	total := 0
	for _, m := range messages {
		for _, p := range m.Parts {
			if p.Type == models.PartToolResult {
				total++
			}
		}
	}
	if total <= maxResults {
		return messages
	}
	toDrop := total - maxResults

	out := make([]models.Message, len(messages))
	seen := 0
	for mi, m := range messages {
		out[mi] = m
		kept := make([]models.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			if p.Type == models.PartToolResult {
				if seen < toDrop {
					seen++
					continue
				}
			}
			kept = append(kept, p)
		}
		out[mi].Parts = kept
	}
	return out
}

// truncateOldAssistantMessages keeps the last maxFull assistant messages
// intact; earlier assistant messages have their text replaced with a
// placeholder but keep any ToolCall parts so following ToolResults don't
// orphan.
func truncateOldAssistantMessages(messages []models.Message, maxFull int) []models.Message {
	if maxFull <= 0 {
		return messages
	}

	assistantIndices := make([]int, 0)
	for i, m := range messages {
		if m.Role == models.RoleAssistant {
			assistantIndices = append(assistantIndices, i)
		}
	}
	if len(assistantIndices) <= maxFull {
		return messages
	}
	cutoff := len(assistantIndices) - maxFull
	truncate := make(map[int]bool, cutoff)
	for _, i := range assistantIndices[:cutoff] {
		truncate[i] = true
	}

	out := make([]models.Message, len(messages))
	for i, m := range messages {
		out[i] = m
		if !truncate[i] {
			continue
		}
		kept := make([]models.Part, 0, len(m.Parts))
		replaced := false
		for _, p := range m.Parts {
			switch p.Type {
			case models.PartToolCall:
				kept = append(kept, p)
			case models.PartText:
				if !replaced {
					kept = append(kept, models.TextPart(truncatedAssistantPlaceholder))
					replaced = true
				}
			default:
				kept = append(kept, p)
			}
		}
		if !replaced && len(kept) > 0 {
			kept = append([]models.Part{models.TextPart(truncatedAssistantPlaceholder)}, kept...)
		} else if !replaced && len(kept) == 0 {
			kept = append(kept, models.TextPart(truncatedAssistantPlaceholder))
		}
		out[i].Parts = kept
	}
	return out
}

// stripDanglingToolCalls drops an assistant message's ToolCall parts
// unless the immediately following message carries a ToolResult for
// every one of its call ids.
func stripDanglingToolCalls(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	copy(out, messages)

	for i, m := range messages {
		if m.Role != models.RoleAssistant {
			continue
		}
		var callIDs []string
		for _, p := range m.Parts {
			if p.Type == models.PartToolCall {
				callIDs = append(callIDs, p.ToolCallID)
			}
		}
		if len(callIDs) == 0 {
			continue
		}

		satisfied := map[string]bool{}
		if i+1 < len(messages) {
			for _, p := range messages[i+1].Parts {
				if p.Type == models.PartToolResult {
					satisfied[p.ToolResultForID] = true
				}
			}
		}

		allSatisfied := true
		for _, id := range callIDs {
			if !satisfied[id] {
				allSatisfied = false
				break
			}
		}
		if allSatisfied {
			continue
		}

		kept := make([]models.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			if p.Type == models.PartToolCall {
				continue
			}
			kept = append(kept, p)
		}
		out[i].Parts = kept
	}
	return out
}

// dropOrphanedToolResults removes a ToolResult whose tool_call_id has no
// matching ToolCall earlier in the history.
func dropOrphanedToolResults(messages []models.Message) []models.Message {
	seenCallIDs := map[string]bool{}
	out := make([]models.Message, len(messages))

	for i, m := range messages {
		out[i] = m
		kept := make([]models.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case models.PartToolCall:
				seenCallIDs[p.ToolCallID] = true
				kept = append(kept, p)
			case models.PartToolResult:
				if !seenCallIDs[p.ToolResultForID] {
					continue
				}
				kept = append(kept, p)
			default:
				kept = append(kept, p)
			}
		}
		out[i].Parts = kept
	}
	return out
}

func dropEmptyMessages(messages []models.Message) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if m.IsEmpty() {
			continue
		}
		out = append(out, m)
	}
	return out
}
