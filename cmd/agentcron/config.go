package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// cronParser supports both standard (5-field) and seconds-extended cron
// expressions, matching the teacher's scheduler.
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// triggerConfig is one scheduled prompt: on Cron's schedule, create (or
// reuse) a session named SessionTitle and send it Message.
type triggerConfig struct {
	Name         string `yaml:"name"`
	Cron         string `yaml:"cron"`
	Timezone     string `yaml:"timezone,omitempty"`
	SessionTitle string `yaml:"session_title"`
	Message      string `yaml:"message"`
}

// daemonConfig is agentcron's on-disk trigger file.
type daemonConfig struct {
	Server     string          `yaml:"server"`
	AuthToken  string          `yaml:"auth_token"`
	PollPeriod time.Duration   `yaml:"poll_period"`
	Triggers   []triggerConfig `yaml:"triggers"`
}

func loadConfig(path string) (daemonConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("agentcron: read config: %w", err)
	}
	raw = []byte(os.ExpandEnv(string(raw)))

	cfg := daemonConfig{
		Server:     "http://localhost:8080",
		PollPeriod: 30 * time.Second,
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return daemonConfig{}, fmt.Errorf("agentcron: parse config: %w", err)
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = 30 * time.Second
	}

	for i, trig := range cfg.Triggers {
		if strings.TrimSpace(trig.Name) == "" {
			return daemonConfig{}, fmt.Errorf("agentcron: trigger %d: name is required", i)
		}
		if strings.TrimSpace(trig.Cron) == "" {
			return daemonConfig{}, fmt.Errorf("agentcron: trigger %q: cron is required", trig.Name)
		}
		if _, err := cronParser.Parse(trig.Cron); err != nil {
			return daemonConfig{}, fmt.Errorf("agentcron: trigger %q: invalid cron expression: %w", trig.Name, err)
		}
		if strings.TrimSpace(trig.Message) == "" {
			return daemonConfig{}, fmt.Errorf("agentcron: trigger %q: message is required", trig.Name)
		}
		if strings.TrimSpace(trig.SessionTitle) == "" {
			cfg.Triggers[i].SessionTitle = trig.Name
		}
	}
	return cfg, nil
}

// nextRun returns the next time trig fires after now, honoring its
// timezone if set.
func nextRun(trig triggerConfig, now time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(trig.Cron)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
	}
	loc := now.Location()
	if trig.Timezone != "" {
		if tz, err := time.LoadLocation(trig.Timezone); err == nil {
			loc = tz
		}
	}
	return schedule.Next(now.In(loc)), nil
}
