package agentloop

import (
	"context"
	"encoding/json"
	"time"

	"github.com/forgewright/agentcore/internal/eventbus"
	"github.com/forgewright/agentcore/internal/pendingtools"
	"github.com/forgewright/agentcore/internal/toolexec"
	"github.com/forgewright/agentcore/pkg/models"
)

const (
	toolCallCancelledBody = "TOOL_CALL_CANCELLED"
	toolCallRejectedBody  = "Tool call rejected by user"
)

// awaitToolDecisions registers every proposed call as pending, applies any
// auto-approval policy, and then blocks on commands until every id has a
// decision or the context is cancelled. Calls left unresolved by either
// path are returned with a nil decision, meaning "cancelled" to the
// caller.
func (l *Loop) awaitToolDecisions(ctx context.Context, run RunContext, calls []ProposedToolCall, commands <-chan Command, steering *SteeringQueue) (map[string]ToolDecision, bool) {
	decisions := make(map[string]ToolDecision, len(calls))

	for _, c := range calls {
		reason := "awaiting decision"
		if l.Config.AutoApproval != nil {
			decision, why := l.Config.AutoApproval.Policy.Evaluate(c.Name)
			reason = why
			switch decision {
			case pendingtools.Allow:
				decisions[c.ID] = ToolDecision{Action: ActionAccept}
			case pendingtools.Deny:
				decisions[c.ID] = ToolDecision{Action: ActionReject}
			}
		}
		if _, resolved := decisions[c.ID]; !resolved && l.Pending != nil {
			l.Pending.Propose(pendingtools.Proposed{
				SessionID:  run.SessionID,
				RunID:      run.RunID,
				ToolCallID: c.ID,
				ToolName:   c.Name,
				Args:       json.RawMessage(c.Arguments),
				Reason:     reason,
				CreatedAt:  time.Now(),
			})
		}
	}

	l.publish(run, eventbus.KindToolCallProposed, map[string]any{"tool_calls": calls})
	if allResolved(calls, decisions) {
		return decisions, false
	}
	l.publish(run, eventbus.KindToolApprovalAsked, map[string]any{"tool_calls": pendingIDs(calls, decisions)})

	for {
		if allResolved(calls, decisions) {
			return decisions, false
		}
		select {
		case <-ctx.Done():
			return decisions, true
		case cmd, ok := <-commands:
			if !ok {
				commands = nil // channel closed: stop selecting it, avoid a busy spin
				continue
			}
			switch c := cmd.(type) {
			case CancelCommand:
				return decisions, true
			case ResolveToolsCommand:
				if c.RunID != run.RunID {
					continue
				}
				for id, decision := range c.Decisions {
					if l.Pending == nil {
						decisions[id] = decision
						continue
					}
					if _, err := l.Pending.Resolve(run.RunID, id); err == nil {
						decisions[id] = decision
					}
				}
			case InjectSteeringMessageCommand:
				steering.Steer(c.Message)
			}
		}
	}
}

func allResolved(calls []ProposedToolCall, decisions map[string]ToolDecision) bool {
	for _, c := range calls {
		if _, ok := decisions[c.ID]; !ok {
			return false
		}
	}
	return true
}

func pendingIDs(calls []ProposedToolCall, decisions map[string]ToolDecision) []string {
	var ids []string
	for _, c := range calls {
		if _, ok := decisions[c.ID]; !ok {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// executeTools runs Accept-decided calls through the executor, synthesizes
// results for Reject/CustomResult, and appends one tool-result message per
// call to history in proposal order.
func (l *Loop) executeTools(ctx context.Context, run RunContext, history []models.Message, calls []ProposedToolCall, decisions map[string]ToolDecision) []models.Message {
	for _, call := range calls {
		decision := decisions[call.ID]

		var body string
		var isError bool

		switch decision.Action {
		case ActionAccept:
			l.publish(run, eventbus.KindToolStarted, map[string]any{"tool_call_id": call.ID})
			result := l.Executor.Execute(ctx, toolexec.RunContext{SessionID: run.SessionID, RunID: run.RunID}, toolexec.ProposedToolCall{ID: call.ID, Name: call.Name, Arguments: json.RawMessage(call.Arguments)})
			if result.Outcome == toolexec.Cancelled {
				body = toolCallCancelledBody
				l.publish(run, eventbus.KindToolCancelled, map[string]any{"tool_call_id": call.ID})
			} else {
				body = result.Output
				isError = result.IsError
				l.publish(run, eventbus.KindToolFinished, map[string]any{"tool_call_id": call.ID, "is_error": isError})
			}
			if l.Hooks.AfterToolExecution != nil {
				l.Hooks.AfterToolExecution(ctx, call, result)
			}
		case ActionReject:
			body = toolCallRejectedBody
		case ActionCustomResult:
			body = decision.Result
		default:
			body = toolCallCancelledBody
		}

		history = append(history, models.Message{
			SessionID: run.SessionID.String(),
			Role:      models.RoleTool,
			Parts:     []models.Part{models.ToolResultPart(call.ID, json.RawMessage(jsonString(body)), isError)},
			CreatedAt: time.Now(),
		})
	}
	return history
}

// recordCancelledTools marks every call with no recorded decision (or an
// Accept decision whose execution never ran) as cancelled, for the case
// where the run is cancelled while still awaiting tool decisions.
func (l *Loop) recordCancelledTools(history []models.Message, sessionID string, calls []ProposedToolCall, decisions map[string]ToolDecision) []models.Message {
	for _, call := range calls {
		if _, ok := decisions[call.ID]; ok {
			continue
		}
		history = append(history, models.Message{
			SessionID: sessionID,
			Role:      models.RoleTool,
			Parts:     []models.Part{models.ToolResultPart(call.ID, json.RawMessage(jsonString(toolCallCancelledBody)), false)},
			CreatedAt: time.Now(),
		})
	}
	return history
}

func jsonString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}
