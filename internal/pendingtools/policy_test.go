package pendingtools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateDenylistWins(t *testing.T) {
	p := Policy{Allowlist: []string{"*"}, Denylist: []string{"exec_shell"}}
	decision, _ := p.Evaluate("exec_shell")
	assert.Equal(t, Deny, decision)
}

func TestEvaluateAllowlistMatch(t *testing.T) {
	p := Policy{Allowlist: []string{"read_*"}, Default: Ask}
	decision, _ := p.Evaluate("read_file")
	assert.Equal(t, Allow, decision)
}

func TestEvaluateRequireApproval(t *testing.T) {
	p := Policy{RequireApproval: []string{"delete_*"}, Default: Allow}
	decision, _ := p.Evaluate("delete_file")
	assert.Equal(t, Ask, decision)
}

func TestEvaluateFallsBackToDefault(t *testing.T) {
	p := Policy{Default: Deny}
	decision, _ := p.Evaluate("anything")
	assert.Equal(t, Deny, decision)
}

func TestEvaluateDefaultsToAskWhenUnset(t *testing.T) {
	p := Policy{}
	decision, _ := p.Evaluate("anything")
	assert.Equal(t, Ask, decision)
}
