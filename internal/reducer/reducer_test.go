package reducer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forgewright/agentcore/pkg/models"
)

func userMsg(text string) models.Message {
	return models.Message{Role: models.RoleUser, Parts: []models.Part{models.TextPart(text)}}
}

func assistantText(text string) models.Message {
	return models.Message{Role: models.RoleAssistant, Parts: []models.Part{models.TextPart(text)}}
}

func assistantToolCall(id, name string) models.Message {
	return models.Message{Role: models.RoleAssistant, Parts: []models.Part{models.ToolCallPart(id, name, nil, nil)}}
}

func toolResult(id string) models.Message {
	return models.Message{Role: models.RoleTool, Parts: []models.Part{models.ToolResultPart(id, nil, false)}}
}

func TestDedupeToolResultsKeepsLastOccurrence(t *testing.T) {
	messages := []models.Message{
		assistantToolCall("t1", "search"),
		toolResult("t1"),
		toolResult("t1"),
	}
	out := Reduce(messages, Config{})

	count := 0
	for _, m := range out {
		for _, p := range m.Parts {
			if p.Type == models.PartToolResult && p.ToolResultForID == "t1" {
				count++
			}
		}
	}
	assert.Equal(t, 1, count)
}

func TestMergeConsecutiveSameRoleJoinsText(t *testing.T) {
	messages := []models.Message{
		userMsg("hello"),
		userMsg("world"),
	}
	out := Reduce(messages, Config{})
	assert.Len(t, out, 1)
	assert.Equal(t, "hello\nworld", out[0].Parts[0].Text)
}

func TestTruncateOldToolResultsKeepsMostRecentN(t *testing.T) {
	var messages []models.Message
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		messages = append(messages, assistantToolCall(id, "tool"), toolResult(id))
	}
	out := Reduce(messages, Config{MaxToolResults: 2})

	count := 0
	for _, m := range out {
		for _, p := range m.Parts {
			if p.Type == models.PartToolResult {
				count++
			}
		}
	}
	assert.Equal(t, 2, count)
}

func TestTruncateOldAssistantMessagesReplacesTextButKeepsToolCalls(t *testing.T) {
	messages := []models.Message{
		assistantText("first"),
		userMsg("ok"),
		assistantToolCall("t1", "search"),
		toolResult("t1"),
	}
	out := Reduce(messages, Config{MaxFullAssistantMessages: 1})

	assert.Equal(t, truncatedAssistantPlaceholder, out[0].Parts[0].Text)
}

func TestStripDanglingToolCallsWhenNoMatchingResultFollows(t *testing.T) {
	messages := []models.Message{
		assistantToolCall("t1", "search"),
		userMsg("never responded"),
	}
	out := Reduce(messages, Config{})

	for _, m := range out {
		for _, p := range m.Parts {
			assert.NotEqual(t, models.PartToolCall, p.Type)
		}
	}
}

func TestDropOrphanedToolResults(t *testing.T) {
	messages := []models.Message{
		toolResult("never-called"),
	}
	out := Reduce(messages, Config{})
	assert.Empty(t, out)
}

func TestEmptyMessagesAreDroppedAfterEachStep(t *testing.T) {
	messages := []models.Message{
		toolResult("orphan"),
		userMsg("hi"),
	}
	out := Reduce(messages, Config{})
	assert.Len(t, out, 1)
	assert.Equal(t, models.RoleUser, out[0].Role)
}

func TestReduceIsIdempotent(t *testing.T) {
	messages := []models.Message{
		userMsg("hello"),
		userMsg("world"),
		assistantToolCall("t1", "search"),
		toolResult("t1"),
		toolResult("t1"),
		assistantText("done"),
	}
	cfg := Config{MaxToolResults: 10, MaxFullAssistantMessages: 5}

	once := Reduce(messages, cfg)
	twice := Reduce(once, cfg)

	assert.Equal(t, once, twice)
}

func TestReducePreservesToolCallResultPairing(t *testing.T) {
	messages := []models.Message{
		assistantToolCall("t1", "search"),
		toolResult("t1"),
		assistantToolCall("t2", "search"),
		userMsg("interrupted before result"),
	}
	out := Reduce(messages, DefaultConfig())

	callIDs := map[string]bool{}
	resultIDs := map[string]bool{}
	for _, m := range out {
		for _, p := range m.Parts {
			switch p.Type {
			case models.PartToolCall:
				callIDs[p.ToolCallID] = true
			case models.PartToolResult:
				resultIDs[p.ToolResultForID] = true
			}
		}
	}

	for id := range resultIDs {
		assert.True(t, callIDs[id], "result %s must have a preceding call", id)
	}
	assert.False(t, callIDs["t2"], "dangling call t2 must be stripped")

	for _, m := range out {
		assert.False(t, m.IsEmpty())
	}
}
