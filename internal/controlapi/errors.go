package controlapi

import (
	"errors"
	"net/http"

	"github.com/forgewright/agentcore/internal/pendingtools"
	"github.com/forgewright/agentcore/internal/runmanager"
	"github.com/forgewright/agentcore/internal/sessionstore/sqlite"
)

// apiError is a Control API error with a stable machine-readable code, the
// way spec.md §4.9/§6 requires (e.g. "session_already_running" on a 409).
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string { return e.message }

func newAPIError(status int, code, message string) *apiError {
	return &apiError{status: status, code: code, message: message}
}

// statusFor maps a domain error from runmanager/pendingtools/sessionstore
// to the HTTP status and machine code the Control API returns, the way
// teacher's HTTP handlers map storage/domain errors to status codes.
func statusFor(err error) (int, string) {
	var api *apiError
	if errors.As(err, &api) {
		return api.status, api.code
	}

	switch {
	case errors.Is(err, sqlite.ErrNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, runmanager.ErrSessionAlreadyRunning):
		return http.StatusConflict, "session_already_running"
	case errors.Is(err, runmanager.ErrSessionStarting):
		return http.StatusConflict, "session_starting"
	case errors.Is(err, runmanager.ErrSessionNotRunning):
		return http.StatusConflict, "session_not_running"
	case errors.Is(err, pendingtools.ErrNotFound):
		return http.StatusNotFound, "tool_call_not_found"
	default:
		var mismatch *runmanager.RunMismatchError
		if errors.As(err, &mismatch) {
			return http.StatusConflict, "run_mismatch"
		}
		var startup *runmanager.ActorStartupFailedError
		if errors.As(err, &startup) {
			return http.StatusInternalServerError, "actor_startup_failed"
		}
		return http.StatusInternalServerError, "internal_error"
	}
}
