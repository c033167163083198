package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/forgewright/agentcore/internal/config"
	"github.com/forgewright/agentcore/internal/gateway"
	"github.com/forgewright/agentcore/internal/observability"
)

// startChannelBridges starts a chat-gateway bridge for every channel whose
// token is configured, each in its own goroutine against runCtx. It
// returns a stop function that blocks until every started bridge's Run
// call has returned.
func startChannelBridges(runCtx context.Context, cfg config.ChannelsConfig, client *gateway.Client, logger *observability.Logger) func() {
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "gateway")
	done := make(chan struct{})
	var running int

	runBridge := func(name string, run func(context.Context) error) {
		running++
		go func() {
			if err := run(runCtx); err != nil && runCtx.Err() == nil {
				logger.Error(runCtx, "channel bridge exited with error", "channel", name, "error", err)
			}
			done <- struct{}{}
		}()
	}

	if cfg.Discord.Token != "" {
		bridge := gateway.NewDiscordBridge(gateway.DiscordConfig{Token: cfg.Discord.Token}, client, slogger)
		runBridge("discord", bridge.Run)
	}
	if cfg.Slack.BotToken != "" && cfg.Slack.AppToken != "" {
		bridge := gateway.NewSlackBridge(gateway.SlackConfig{BotToken: cfg.Slack.BotToken, AppToken: cfg.Slack.AppToken}, client, slogger)
		runBridge("slack", bridge.Run)
	}
	if cfg.Telegram.Token != "" {
		bridge := gateway.NewTelegramBridge(gateway.TelegramConfig{Token: cfg.Telegram.Token}, client, slogger)
		runBridge("telegram", bridge.Run)
	}

	return func() {
		for i := 0; i < running; i++ {
			<-done
		}
	}
}
