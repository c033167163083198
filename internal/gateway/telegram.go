package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// TelegramConfig configures a TelegramBridge.
type TelegramConfig struct {
	Token string
}

// TelegramBridge relays Telegram chat messages to the Control API and
// posts the run's reply back into the same chat, one agentcore session
// per Telegram chat.
type TelegramBridge struct {
	cfg    TelegramConfig
	client *Client
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]string // telegram chat id -> agentcore session id
}

// NewTelegramBridge builds a bridge that drives control against client.
func NewTelegramBridge(cfg TelegramConfig, client *Client, logger *slog.Logger) *TelegramBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramBridge{cfg: cfg, client: client, logger: logger, sessions: make(map[string]string)}
}

// Run connects to Telegram via long polling and blocks until ctx is
// cancelled.
func (b *TelegramBridge) Run(ctx context.Context) error {
	tb, err := bot.New(b.cfg.Token, bot.WithDefaultHandler(b.handleUpdate))
	if err != nil {
		return fmt.Errorf("gateway: telegram bot: %w", err)
	}
	tb.Start(ctx)
	return nil
}

func (b *TelegramBridge) handleUpdate(ctx context.Context, tb *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" || update.Message.From == nil || update.Message.From.IsBot {
		return
	}

	chatID := update.Message.Chat.ID
	chatKey := strconv.FormatInt(chatID, 10)

	sessionID, err := b.sessionFor(ctx, chatKey)
	if err != nil {
		b.logger.Error("telegram bridge: resolve session failed", "error", err, "chat", chatKey)
		return
	}

	runID, err := b.client.SendMessage(ctx, sessionID, update.Message.Text)
	if err != nil {
		b.logger.Error("telegram bridge: send message failed", "error", err, "chat", chatKey)
		return
	}

	reply, err := b.client.AwaitReply(ctx, sessionID, runID)
	if err != nil {
		b.logger.Error("telegram bridge: await reply failed", "error", err, "chat", chatKey)
		return
	}
	if reply == "" {
		return
	}
	if _, err := tb.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: reply}); err != nil {
		b.logger.Error("telegram bridge: send reply failed", "error", err, "chat", chatKey)
	}
}

func (b *TelegramBridge) sessionFor(ctx context.Context, chatKey string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.sessions[chatKey]; ok {
		return id, nil
	}
	id, err := b.client.CreateSession(ctx, "telegram:"+chatKey)
	if err != nil {
		return "", err
	}
	b.sessions[chatKey] = id
	return id, nil
}
