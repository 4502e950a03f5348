// Package config loads the bot's YAML configuration file. Secrets
// (Discord token, API key) come from the environment, not the file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon's tunables.
type Config struct {
	// DataDir is where per-guild databases and archives live.
	DataDir string `yaml:"data_dir"`

	LLM struct {
		Endpoint string `yaml:"endpoint"` // empty = api.openai.com
		Model    string `yaml:"model"`
	} `yaml:"llm"`

	Consolidation struct {
		// Schedule is a cron expression for automatic consolidation runs.
		// Empty disables scheduling.
		Schedule string `yaml:"schedule"`
		// MinMessages gates sentiment analysis per user per run.
		MinMessages int `yaml:"min_messages"`
	} `yaml:"consolidation"`

	Discord struct {
		// ChannelID restricts message logging to one channel when set.
		ChannelID string `yaml:"channel_id"`
	} `yaml:"discord"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.DataDir = "data"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.Consolidation.Schedule = "0 4 * * *" // daily, 4am
	cfg.Consolidation.MinMessages = 3
	return cfg
}

// Load reads the config file at path, falling back to defaults for a
// missing file. Unset fields keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Consolidation.MinMessages < 1 {
		cfg.Consolidation.MinMessages = Default().Consolidation.MinMessages
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = Default().LLM.Model
	}
	if cfg.DataDir == "" {
		cfg.DataDir = Default().DataDir
	}
	return cfg, nil
}
