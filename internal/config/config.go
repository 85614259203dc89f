package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// DefaultTask is what the CLI runs when no --task is given.
const DefaultTask = "Find a one-way flight from Beijing to Tokyo on 2 April 2025 on Google Flights. Return me the cheapest option."

type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Run     RunConfig     `mapstructure:"run" yaml:"run"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

type LLMConfig struct {
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	Model        string        `mapstructure:"model" yaml:"model"`
	PlannerModel string        `mapstructure:"planner_model" yaml:"planner_model"`
	Temperature  float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// MaxRetryElapsed bounds how long rate-limited requests are retried.
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed" yaml:"max_retry_elapsed"`
}

type BrowserConfig struct {
	Driver            string        `mapstructure:"driver" yaml:"driver"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ChromePath        string        `mapstructure:"chrome_path" yaml:"chrome_path"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	PostActionWait    time.Duration `mapstructure:"post_action_wait" yaml:"post_action_wait"`
}

type AgentConfig struct {
	MaxSteps          int      `mapstructure:"max_steps" yaml:"max_steps"`
	MaxActionsPerStep int      `mapstructure:"max_actions_per_step" yaml:"max_actions_per_step"`
	MaxFailures       int      `mapstructure:"max_failures" yaml:"max_failures"`
	MaxErrorLength    int      `mapstructure:"max_error_length" yaml:"max_error_length"`
	UseVision         bool     `mapstructure:"use_vision" yaml:"use_vision"`
	IncludeAttributes []string `mapstructure:"include_attributes" yaml:"include_attributes"`
	MaxInputTokens    int      `mapstructure:"max_input_tokens" yaml:"max_input_tokens"`
	LoopThreshold     int      `mapstructure:"loop_threshold" yaml:"loop_threshold"`
	MemoryLines       int      `mapstructure:"memory_lines" yaml:"memory_lines"`
	PlanFirst         bool     `mapstructure:"plan_first" yaml:"plan_first"`
	Summarize         bool     `mapstructure:"summarize" yaml:"summarize"`
}

type RunConfig struct {
	Task        string `mapstructure:"task" yaml:"task"`
	StartURL    string `mapstructure:"start_url" yaml:"start_url"`
	SaveHistory string `mapstructure:"save_history" yaml:"save_history"`
}

// NewDefaultConfig returns a Config populated only from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "agent-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.planner_model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.max_retry_elapsed", "2m")

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 1100)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.post_action_wait", "1s")

	// -- Agent --
	v.SetDefault("agent.max_steps", 100)
	v.SetDefault("agent.max_actions_per_step", 1)
	v.SetDefault("agent.max_failures", 3)
	v.SetDefault("agent.max_error_length", 400)
	v.SetDefault("agent.use_vision", true)
	v.SetDefault("agent.include_attributes", []string{})
	v.SetDefault("agent.max_input_tokens", 0)
	v.SetDefault("agent.loop_threshold", 3)
	v.SetDefault("agent.memory_lines", 10)
	v.SetDefault("agent.plan_first", true)
	v.SetDefault("agent.summarize", false)

	// -- Run --
	v.SetDefault("run.task", DefaultTask)
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	_ = v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.base_url", "OPENAI_BASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Browser.Driver = strings.ToLower(strings.TrimSpace(cfg.Browser.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields and sane values. The API key is checked
// later by the LLM client so that config-only commands work without it.
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	switch c.Browser.Driver {
	case DriverChromedp, DriverPlaywright:
	default:
		return fmt.Errorf("browser.driver must be %q or %q, got %q", DriverChromedp, DriverPlaywright, c.Browser.Driver)
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.MaxActionsPerStep <= 0 {
		return fmt.Errorf("agent.max_actions_per_step must be a positive integer")
	}
	if c.Agent.MaxErrorLength <= 0 {
		return fmt.Errorf("agent.max_error_length must be a positive integer")
	}
	if c.Agent.MaxFailures <= 0 {
		return fmt.Errorf("agent.max_failures must be a positive integer")
	}
	if c.Agent.MaxInputTokens < 0 {
		return fmt.Errorf("agent.max_input_tokens must not be negative")
	}
	return nil
}
