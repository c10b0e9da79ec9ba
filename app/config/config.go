package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log          Log          `yaml:"log"`
	Server       Server       `yaml:"server"`
	Memory       Memory       `yaml:"memory"`
	Conversation Conversation `yaml:"conversation"`
	OpenAI       OpenAI       `yaml:"openai"`
}

type OpenAI struct {
	Reply ModelConfig `yaml:"reply" validate:"required"`
}

type ModelConfig struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://openrouter.ai/api/v1" validate:"required"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// OpenAI model
	Model string `yaml:"model" example:"deepseek/deepseek-chat-v3-0324:free" validate:"required"`
}

type Server struct {
	// Listen address of the ingress API
	Listen string `yaml:"listen" example:":8080"`
}

type Memory struct {
	// Base URL of the semantic memory service
	BaseURL string `yaml:"base_url" example:"http://localhost:7700" validate:"required"`
	// Bearer token for the memory service
	Token string `yaml:"token"`
	// Per-call timeout in seconds
	CallTimeoutSeconds int `yaml:"call_timeout_seconds" example:"2"`
	// Consecutive failures before the circuit opens
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" example:"5"`
	// Seconds the circuit stays open before probing recovery
	CircuitCooldownSeconds int `yaml:"circuit_cooldown_seconds" example:"30"`
	// Fragments fetched per semantic query
	QueryLimit int `yaml:"query_limit" example:"5"`
}

type Conversation struct {
	// Summarization fires every this many turns
	SummarizeIntervalTurns int `yaml:"summarize_interval_turns" example:"10"`
	// Hard cap on a single rolling summary
	MaxSummaryChars int `yaml:"max_summary_chars" example:"800"`
	// Sentences kept per rolling summary
	MaxSummarySentences int `yaml:"max_summary_sentences" example:"5"`
	// Turns kept in the buffer after a summarization trigger
	KeepRecentTurns int `yaml:"keep_recent_turns" example:"2"`
	// Overall character budget for a fused context
	FusionBudgetChars int `yaml:"fusion_budget_chars" example:"4000"`
	// Seconds of inactivity before a thread is eligible for eviction
	InactivityTimeoutSeconds int `yaml:"inactivity_timeout_seconds" example:"1800"`
	// Cron spec of the rotation scan
	RotationScanSpec string `yaml:"rotation_scan_spec" example:"@every 2m"`
}

func (m Memory) CallTimeout() time.Duration {
	return time.Duration(m.CallTimeoutSeconds) * time.Second
}

func (m Memory) CircuitCooldown() time.Duration {
	return time.Duration(m.CircuitCooldownSeconds) * time.Second
}

func (c Conversation) InactivityTimeout() time.Duration {
	return time.Duration(c.InactivityTimeoutSeconds) * time.Second
}

type Log struct {
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	ApplyDefaults(&result)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

// ApplyDefaults fills every unset knob with its documented default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Memory.CallTimeoutSeconds == 0 {
		cfg.Memory.CallTimeoutSeconds = 2
	}
	if cfg.Memory.CircuitFailureThreshold == 0 {
		cfg.Memory.CircuitFailureThreshold = 5
	}
	if cfg.Memory.CircuitCooldownSeconds == 0 {
		cfg.Memory.CircuitCooldownSeconds = 30
	}
	if cfg.Memory.QueryLimit == 0 {
		cfg.Memory.QueryLimit = 5
	}
	if cfg.Conversation.SummarizeIntervalTurns == 0 {
		cfg.Conversation.SummarizeIntervalTurns = 10
	}
	if cfg.Conversation.MaxSummaryChars == 0 {
		cfg.Conversation.MaxSummaryChars = 800
	}
	if cfg.Conversation.MaxSummarySentences == 0 {
		cfg.Conversation.MaxSummarySentences = 5
	}
	if cfg.Conversation.KeepRecentTurns == 0 {
		cfg.Conversation.KeepRecentTurns = 2
	}
	if cfg.Conversation.FusionBudgetChars == 0 {
		cfg.Conversation.FusionBudgetChars = 4000
	}
	if cfg.Conversation.InactivityTimeoutSeconds == 0 {
		cfg.Conversation.InactivityTimeoutSeconds = 1800
	}
	if cfg.Conversation.RotationScanSpec == "" {
		cfg.Conversation.RotationScanSpec = "@every 2m"
	}
}
