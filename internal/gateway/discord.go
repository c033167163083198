package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// DiscordConfig configures a DiscordBridge.
type DiscordConfig struct {
	Token string
}

// DiscordBridge relays Discord channel messages to the Control API and
// posts the resulting run's reply back into the same channel. One
// agentcore session is created per Discord channel, the first time a
// message arrives on it.
type DiscordBridge struct {
	cfg    DiscordConfig
	client *Client
	logger *slog.Logger

	session *discordgo.Session

	mu       sync.Mutex
	sessions map[string]string // discord channel id -> agentcore session id
}

// NewDiscordBridge builds a bridge that drives control against client.
func NewDiscordBridge(cfg DiscordConfig, client *Client, logger *slog.Logger) *DiscordBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordBridge{cfg: cfg, client: client, logger: logger, sessions: make(map[string]string)}
}

// Run connects to Discord and blocks until ctx is cancelled.
func (b *DiscordBridge) Run(ctx context.Context) error {
	session, err := discordgo.New("Bot " + b.cfg.Token)
	if err != nil {
		return fmt.Errorf("gateway: discord session: %w", err)
	}
	b.session = session

	session.AddHandler(b.handleMessageCreate)
	if err := session.Open(); err != nil {
		return fmt.Errorf("gateway: discord open: %w", err)
	}
	defer session.Close()

	<-ctx.Done()
	return nil
}

func (b *DiscordBridge) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.Content == "" {
		return
	}

	ctx := context.Background()
	sessionID, err := b.sessionFor(ctx, m.ChannelID)
	if err != nil {
		b.logger.Error("discord bridge: resolve session failed", "error", err, "channel", m.ChannelID)
		return
	}

	runID, err := b.client.SendMessage(ctx, sessionID, m.Content)
	if err != nil {
		b.logger.Error("discord bridge: send message failed", "error", err, "channel", m.ChannelID)
		return
	}

	reply, err := b.client.AwaitReply(ctx, sessionID, runID)
	if err != nil {
		b.logger.Error("discord bridge: await reply failed", "error", err, "channel", m.ChannelID)
		return
	}
	if reply == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		b.logger.Error("discord bridge: send reply failed", "error", err, "channel", m.ChannelID)
	}
}

func (b *DiscordBridge) sessionFor(ctx context.Context, channelID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.sessions[channelID]; ok {
		return id, nil
	}
	id, err := b.client.CreateSession(ctx, "discord:"+channelID)
	if err != nil {
		return "", err
	}
	b.sessions[channelID] = id
	return id, nil
}
