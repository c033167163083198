package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// SlackConfig configures a SlackBridge. AppToken is the Socket Mode
// app-level token ("xapp-..."); BotToken is the bot OAuth token ("xoxb-...").
type SlackConfig struct {
	BotToken string
	AppToken string
}

// SlackBridge relays Slack channel messages to the Control API over
// Socket Mode and posts the run's reply back into the same channel, one
// agentcore session per Slack channel.
type SlackBridge struct {
	cfg    SlackConfig
	client *Client
	logger *slog.Logger

	api    *slack.Client
	socket *socketmode.Client

	mu       sync.Mutex
	sessions map[string]string // slack channel id -> agentcore session id
}

// NewSlackBridge builds a bridge that drives control against client.
func NewSlackBridge(cfg SlackConfig, client *Client, logger *slog.Logger) *SlackBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackBridge{cfg: cfg, client: client, logger: logger, sessions: make(map[string]string)}
}

// Run connects to Slack over Socket Mode and blocks until ctx is cancelled.
func (b *SlackBridge) Run(ctx context.Context) error {
	b.api = slack.New(b.cfg.BotToken, slack.OptionAppLevelToken(b.cfg.AppToken))
	b.socket = socketmode.New(b.api)

	errCh := make(chan error, 1)
	go func() { errCh <- b.socket.Run() }()
	go b.handleEvents(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("gateway: slack socket mode: %w", err)
		}
		return nil
	}
}

func (b *SlackBridge) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.socket.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			if evt.Request != nil {
				b.socket.Ack(*evt.Request)
			}
			b.handleEventsAPI(ctx, eventsAPI)
		}
	}
}

func (b *SlackBridge) handleEventsAPI(ctx context.Context, eventsAPI slackevents.EventsAPIEvent) {
	inner, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	if inner.BotID != "" || inner.Text == "" {
		return
	}

	sessionID, err := b.sessionFor(ctx, inner.Channel)
	if err != nil {
		b.logger.Error("slack bridge: resolve session failed", "error", err, "channel", inner.Channel)
		return
	}

	runID, err := b.client.SendMessage(ctx, sessionID, inner.Text)
	if err != nil {
		b.logger.Error("slack bridge: send message failed", "error", err, "channel", inner.Channel)
		return
	}

	reply, err := b.client.AwaitReply(ctx, sessionID, runID)
	if err != nil {
		b.logger.Error("slack bridge: await reply failed", "error", err, "channel", inner.Channel)
		return
	}
	if reply == "" {
		return
	}
	if _, _, err := b.api.PostMessageContext(ctx, inner.Channel, slack.MsgOptionText(reply, false)); err != nil {
		b.logger.Error("slack bridge: send reply failed", "error", err, "channel", inner.Channel)
	}
}

func (b *SlackBridge) sessionFor(ctx context.Context, channelID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.sessions[channelID]; ok {
		return id, nil
	}
	id, err := b.client.CreateSession(ctx, "slack:"+channelID)
	if err != nil {
		return "", err
	}
	b.sessions[channelID] = id
	return id, nil
}
