// Package config loads and validates agentcored's YAML configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level configuration for the session-runtime server.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	MCP        MCPConfig        `yaml:"mcp"`
	Tools      ToolsConfig      `yaml:"tools"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Channels   ChannelsConfig   `yaml:"channels"`
}

// ChannelsConfig configures the optional chat-gateway bridges. A bridge
// only starts if its token fields are non-empty.
type ChannelsConfig struct {
	Discord  DiscordChannelConfig  `yaml:"discord"`
	Slack    SlackChannelConfig    `yaml:"slack"`
	Telegram TelegramChannelConfig `yaml:"telegram"`
}

// DiscordChannelConfig configures the Discord chat bridge.
type DiscordChannelConfig struct {
	Token string `yaml:"token"`
}

// SlackChannelConfig configures the Slack chat bridge (Socket Mode).
type SlackChannelConfig struct {
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

// TelegramChannelConfig configures the Telegram chat bridge.
type TelegramChannelConfig struct {
	Token string `yaml:"token"`
}

// ServerConfig configures the Control API's listen address.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// CheckpointConfig configures the file-based checkpoint store.
type CheckpointConfig struct {
	RootDir       string        `yaml:"root_dir"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// MCPServerConfig describes one MCP server the tool executor can dial.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // stdio | http
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
}

// MCPConfig lists the MCP servers available to the tool executor.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// ToolsConfig configures tool dispatch concurrency and the approval policy.
type ToolsConfig struct {
	MaxConcurrency int             `yaml:"max_concurrency"`
	DefaultTimeout time.Duration   `yaml:"default_timeout"`
	MaxRetries     int             `yaml:"max_retries"`
	Approval       ApprovalYAML    `yaml:"approval"`
}

// ApprovalYAML is the on-disk shape of an approval policy.
type ApprovalYAML struct {
	Allowlist       []string `yaml:"allowlist,omitempty"`
	Denylist        []string `yaml:"denylist,omitempty"`
	RequireApproval []string `yaml:"require_approval,omitempty"`
	DefaultDecision string   `yaml:"default_decision,omitempty"` // allow | deny | ask
}

// ProviderConfig is one LLM provider's credentials and default model.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
}

// ProvidersConfig configures the LLM providers the agent loop can stream from.
type ProvidersConfig struct {
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
}

// AuthConfig configures Control API bearer-token authentication.
type AuthConfig struct {
	Secret       string        `yaml:"secret"`
	TokenExpiry  time.Duration `yaml:"token_expiry"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// Default returns a configuration usable for local development.
func Default() Config {
	return Config{
		Server:     ServerConfig{Addr: ":8080"},
		Checkpoint: CheckpointConfig{RootDir: "./data/checkpoints", FlushInterval: 5 * time.Second},
		Tools: ToolsConfig{
			MaxConcurrency: 5,
			DefaultTimeout: 30 * time.Second,
			MaxRetries:     2,
			Approval:       ApprovalYAML{DefaultDecision: "ask"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	if c.Checkpoint.RootDir == "" {
		return fmt.Errorf("config: checkpoint.root_dir is required")
	}
	switch c.Tools.Approval.DefaultDecision {
	case "", "allow", "deny", "ask":
	default:
		return fmt.Errorf("config: tools.approval.default_decision must be allow, deny, or ask, got %q", c.Tools.Approval.DefaultDecision)
	}
	return nil
}
