package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/forgewright/agentcore/internal/gateway"
)

// runDaemon loads the trigger config and runs the scheduling loop until
// ctx is cancelled.
func runDaemon(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "agentcron")
	client := gateway.NewClient(cfg.Server, cfg.AuthToken)

	sched := newScheduler(cfg, client, logger)
	sched.run(ctx)
	return nil
}

type scheduler struct {
	cfg     daemonConfig
	client  *gateway.Client
	logger  *slog.Logger
	nextAt  map[string]time.Time
	session map[string]string // trigger name -> session id, created lazily
}

func newScheduler(cfg daemonConfig, client *gateway.Client, logger *slog.Logger) *scheduler {
	return &scheduler{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		nextAt:  make(map[string]time.Time, len(cfg.Triggers)),
		session: make(map[string]string, len(cfg.Triggers)),
	}
}

func (s *scheduler) run(ctx context.Context) {
	now := time.Now()
	for _, trig := range s.cfg.Triggers {
		if at, err := nextRun(trig, now); err == nil {
			s.nextAt[trig.Name] = at
		}
	}

	ticker := time.NewTicker(s.cfg.PollPeriod)
	defer ticker.Stop()

	s.logger.Info("agentcron started", "triggers", len(s.cfg.Triggers), "poll_period", s.cfg.PollPeriod)
	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("agentcron stopping")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *scheduler) poll(ctx context.Context) {
	now := time.Now()
	for _, trig := range s.cfg.Triggers {
		due, ok := s.nextAt[trig.Name]
		if !ok || now.Before(due) {
			continue
		}
		s.fire(ctx, trig)

		if at, err := nextRun(trig, now); err == nil {
			s.nextAt[trig.Name] = at
		} else {
			s.logger.Error("failed to compute next run, disabling trigger", "trigger", trig.Name, "error", err)
			delete(s.nextAt, trig.Name)
		}
	}
}

func (s *scheduler) fire(ctx context.Context, trig triggerConfig) {
	sessionID, err := s.sessionFor(ctx, trig)
	if err != nil {
		s.logger.Error("failed to resolve session for trigger", "trigger", trig.Name, "error", err)
		return
	}

	runID, err := s.client.SendMessage(ctx, sessionID, trig.Message)
	if err != nil {
		s.logger.Error("failed to send triggered message", "trigger", trig.Name, "session_id", sessionID, "error", err)
		return
	}
	s.logger.Info("fired trigger", "trigger", trig.Name, "session_id", sessionID, "run_id", runID)
}

func (s *scheduler) sessionFor(ctx context.Context, trig triggerConfig) (string, error) {
	if id, ok := s.session[trig.Name]; ok {
		return id, nil
	}
	id, err := s.client.CreateSession(ctx, trig.SessionTitle)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	s.session[trig.Name] = id
	return id, nil
}
