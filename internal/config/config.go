package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/garyjia/onboarding-workflow/pkg/utils"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Events   EventsConfig   `mapstructure:"events"`
	Mail     MailConfig     `mapstructure:"mail"`
	Lark     LarkConfig     `mapstructure:"lark"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// WorkflowConfig configures the onboarding runner
type WorkflowConfig struct {
	TaskQueue       string        `mapstructure:"task_queue"`
	ActivityTimeout time.Duration `mapstructure:"activity_timeout"`
	Retry           RetryConfig   `mapstructure:"retry"`
}

// RetryConfig is the activity retry policy
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// EventsConfig configures lifecycle event handlers
type EventsConfig struct {
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
}

// MailConfig selects the mail provider and message templates
type MailConfig struct {
	Provider      string `mapstructure:"provider"` // log or lark
	HREmail       string `mapstructure:"hr_email"`
	TemplatesPath string `mapstructure:"templates_path"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
	// FormApprovalCode enables the form listener: an approved instance of this
	// approval signals the submitter's onboarding
	FormApprovalCode string `mapstructure:"form_approval_code"`
	FormDoneStatus   string `mapstructure:"form_done_status"`
}

// OpenAIConfig holds OpenAI API configuration. An empty key disables it.
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

const (
	MailProviderLog  = "log"
	MailProviderLark = "lark"
)

// Load reads configuration from configPath, the environment and defaults.
// An empty configPath skips the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ONBOARDING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", "data/onboarding.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	v.SetDefault("workflow.task_queue", "sample-workflow")
	v.SetDefault("workflow.activity_timeout", time.Minute)
	v.SetDefault("workflow.retry.max_attempts", 5)
	v.SetDefault("workflow.retry.initial_interval", time.Second)
	v.SetDefault("workflow.retry.max_interval", 30*time.Second)

	v.SetDefault("events.retry_attempts", 3)
	v.SetDefault("events.retry_interval", 500*time.Millisecond)
	v.SetDefault("events.handler_timeout", 30*time.Second)

	v.SetDefault("mail.provider", MailProviderLog)
	v.SetDefault("lark.form_done_status", "APPROVED")

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.temperature", 0.4)
	v.SetDefault("openai.max_tokens", 600)
	v.SetDefault("openai.timeout", 30*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the credential variables used in .env files
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("mail.hr_email", "HR_EMAIL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Workflow.TaskQueue == "" {
		return fmt.Errorf("workflow.task_queue is required")
	}
	if c.Workflow.Retry.MaxAttempts < 1 {
		return fmt.Errorf("workflow.retry.max_attempts must be at least 1")
	}

	switch c.Mail.Provider {
	case MailProviderLog:
	case MailProviderLark:
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_id and lark.app_secret are required for the lark mail provider")
		}
	default:
		return fmt.Errorf("unknown mail.provider %q", c.Mail.Provider)
	}

	if c.Mail.HREmail != "" {
		if err := utils.ValidateEmail(c.Mail.HREmail); err != nil {
			return fmt.Errorf("mail.hr_email: %w", err)
		}
	}

	if c.Lark.FormApprovalCode != "" && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret are required for lark.form_approval_code")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logger.format %q", c.Logger.Format)
	}

	return nil
}

// Address returns host:port for the HTTP server
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
