package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.Issue("session-runtime", "sessions:write", "runs:cancel")
	require.NoError(t, err)

	principal, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "session-runtime", principal.Subject)
	assert.True(t, principal.HasScope("sessions:write"))
	assert.False(t, principal.HasScope("admin"))
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.Issue("subject")
	require.NoError(t, err)

	_, err = svc.Validate(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDisabledServiceReturnsErrAuthDisabled(t *testing.T) {
	svc := NewService("", 0)
	assert.False(t, svc.Enabled())

	_, err := svc.Issue("subject")
	assert.ErrorIs(t, err, ErrAuthDisabled)

	_, err = svc.Validate("anything")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	_, err := svc.Issue("")
	assert.Error(t, err)
}
