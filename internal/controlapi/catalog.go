package controlapi

import (
	"net/http"
	"time"
)

const apiVersion = "v1"

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// handleHealth handles GET /v1/health and /v1/healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: apiVersion,
		Uptime:  time.Since(s.startTime).String(),
	})
}

type modelResponse struct {
	Provider       string `json:"provider"`
	ID             string `json:"id"`
	Name           string `json:"name"`
	ContextSize    int    `json:"context_size"`
	SupportsVision bool   `json:"supports_vision"`
}

// handleModels handles GET /v1/models, aggregating every configured
// provider's catalog.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	out := make([]modelResponse, 0)
	for name, provider := range s.cfg.Providers {
		for _, m := range provider.Models() {
			out = append(out, modelResponse{
				Provider:       name,
				ID:             m.ID,
				Name:           m.Name,
				ContextSize:    m.ContextSize,
				SupportsVision: m.SupportsVision,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

type configResponse struct {
	DefaultModel    string   `json:"default_model"`
	ApprovalDefault string   `json:"approval_default"`
	Allowlist       []string `json:"allowlist,omitempty"`
	Denylist        []string `json:"denylist,omitempty"`
	RequireApproval []string `json:"require_approval,omitempty"`
}

// handleConfig handles GET /v1/config: the server-wide defaults a client
// needs to render its session-creation UI (default model, tool approval
// policy) without hardcoding them.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		DefaultModel:    s.cfg.DefaultModel,
		ApprovalDefault: string(s.cfg.Approval.Default),
		Allowlist:       s.cfg.Approval.Allowlist,
		Denylist:        s.cfg.Approval.Denylist,
		RequireApproval: s.cfg.Approval.RequireApproval,
	})
}

// handleOpenAPI handles GET /v1/openapi.json with a minimal description of
// the routes in Handler, enough for agentctl and third-party gateways to
// discover the surface without a separate docs site.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc := map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "agentcore control api",
			"version": apiVersion,
		},
		"paths": map[string]any{
			"/v1/sessions":                          map[string]any{"get": "list sessions", "post": "create session"},
			"/v1/sessions/{id}":                      map[string]any{"get": "get session", "patch": "update session", "delete": "soft-delete session"},
			"/v1/sessions/{id}/messages":             map[string]any{"get": "list messages", "post": "send message"},
			"/v1/sessions/{id}/events":               map[string]any{"get": "subscribe to session events (SSE)"},
			"/v1/sessions/{id}/events/ws":            map[string]any{"get": "subscribe to session events (WebSocket)"},
			"/v1/sessions/{id}/tools/pending":        map[string]any{"get": "list pending tool calls"},
			"/v1/sessions/{id}/tools/decisions":      map[string]any{"post": "resolve pending tool calls"},
			"/v1/sessions/{id}/tools/metrics":        map[string]any{"get": "tool executor metrics"},
			"/v1/sessions/{id}/cancel":               map[string]any{"post": "cancel the active run"},
			"/v1/sessions/{id}/model":                map[string]any{"post": "switch the active run's model"},
			"/v1/models":                             map[string]any{"get": "list available models"},
			"/v1/config":                             map[string]any{"get": "server defaults"},
			"/v1/health":                              map[string]any{"get": "liveness probe"},
		},
	}
	writeJSON(w, http.StatusOK, doc)
}
