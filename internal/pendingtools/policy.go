// Package pendingtools tracks tool calls a run has proposed but not yet
// executed: the approval decision for each (allow, deny, or ask a human),
// and a per-run registry of calls awaiting an external decision.
package pendingtools

import "strings"

// Decision is the outcome of evaluating a tool call against a Policy.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
	Ask   Decision = "ask"
)

// Policy decides whether a proposed tool call may run unattended. Rules
// are checked in order: denylist, then allowlist, then require-approval,
// then the default decision.
type Policy struct {
	Allowlist       []string
	Denylist        []string
	RequireApproval []string
	Default         Decision
}

// Evaluate returns the decision for toolName and a short human-readable
// reason, for logging and for surfacing to a human reviewer.
func (p Policy) Evaluate(toolName string) (Decision, string) {
	if matchesAny(p.Denylist, toolName) {
		return Deny, "tool in denylist"
	}
	if matchesAny(p.Allowlist, toolName) {
		return Allow, "tool in allowlist"
	}
	if matchesAny(p.RequireApproval, toolName) {
		return Ask, "tool requires approval"
	}
	if p.Default == "" {
		return Ask, "no matching rule"
	}
	return p.Default, "default decision"
}

// matchesAny reports whether toolName matches any pattern: exact match,
// "*" (match all), "prefix*", or "*suffix".
func matchesAny(patterns []string, toolName string) bool {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if pattern == "*" || pattern == toolName {
			return true
		}
		if strings.HasSuffix(pattern, "*") && strings.HasPrefix(toolName, strings.TrimSuffix(pattern, "*")) {
			return true
		}
		if strings.HasPrefix(pattern, "*") && strings.HasSuffix(toolName, strings.TrimPrefix(pattern, "*")) {
			return true
		}
	}
	return false
}
