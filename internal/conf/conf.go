package conf

import (
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/trihan96/FunPayServer/internal/biz/usecase"
)

// Config represents application configuration, populated from environment
// variables (see .env handling in main).
type Config struct {
	// FunPay account
	GoldenKey string `envconfig:"GOLDEN_KEY"`
	UserAgent string `envconfig:"USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64)"`
	BotName   string `envconfig:"BOT_NAME"`
	OwnerName string `envconfig:"OWNER_NAME"`

	// Watermarks prepended to outgoing messages
	Watermark       string `envconfig:"WATERMARK" default:"[ 🤖 Автоответ ]"`
	ManualWatermark string `envconfig:"MANUAL_WATERMARK"`

	// Auto-response behaviour
	AutoResponse         bool    `envconfig:"AUTO_RESPONSE" default:"true"`
	FuzzyThreshold       float64 `envconfig:"FUZZY_THRESHOLD" default:"85"`
	MessageBufferDelayMS int     `envconfig:"MESSAGE_BUFFER_DELAY" default:"3000"`
	MaxBufferTimeMS      int     `envconfig:"MAX_BUFFER_TIME" default:"10000"`
	PollIntervalMS       int     `envconfig:"POLL_INTERVAL" default:"5000"`
	RuleReloadMinutes    int     `envconfig:"RULE_RELOAD_MINUTES" default:"5"`
	DefaultPauseMinutes  int     `envconfig:"DEFAULT_PAUSE_MINUTES" default:"10"`
	ChunkDelayMS         int     `envconfig:"CHUNK_DELAY" default:"1000"`

	// Knowledge oracle (OpenAI-compatible endpoint)
	OracleEnabled bool   `envconfig:"ORACLE_ENABLED" default:"false"`
	OracleAPIKey  string `envconfig:"ORACLE_API_KEY"`
	OracleBaseURL string `envconfig:"ORACLE_BASE_URL"`
	OracleModel   string `envconfig:"ORACLE_MODEL"`

	// Feature flags for diagnostic commands
	AutoIssueTestCommand    bool `envconfig:"AUTO_ISSUE_TEST_COMMAND" default:"false"`
	AutoDeliveryTestCommand bool `envconfig:"AUTO_DELIVERY_TEST_COMMAND" default:"false"`

	// First-contact greeting
	GreetingMessage     bool   `envconfig:"GREETING_MESSAGE" default:"false"`
	GreetingMessageText string `envconfig:"GREETING_MESSAGE_TEXT"`
	FollowUpText        string `envconfig:"FOLLOW_UP_TEXT"`

	// Storage
	DBPath string `envconfig:"DB_PATH"`

	// Debug mode
	Debug bool `envconfig:"DEBUG" default:"false"`
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.DBPath = filepath.Join(homeDir, ".funpay-server", "funpay.db")
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.GoldenKey == "" {
		return &ConfigError{Field: "GOLDEN_KEY", Message: "required"}
	}
	if c.OracleEnabled && c.OracleAPIKey == "" {
		return &ConfigError{Field: "ORACLE_API_KEY", Message: "required when ORACLE_ENABLED=true"}
	}
	return nil
}

// ToDispatchConfig converts to the engine configuration
func (c *Config) ToDispatchConfig() usecase.DispatchConfig {
	return usecase.DispatchConfig{
		BotName:                 c.BotName,
		OwnerName:               c.OwnerName,
		Watermark:               c.Watermark,
		ManualWatermark:         c.ManualWatermark,
		AutoResponseEnabled:     c.AutoResponse,
		OracleEnabled:           c.OracleEnabled,
		AutoIssueTestCommand:    c.AutoIssueTestCommand,
		AutoDeliveryTestCommand: c.AutoDeliveryTestCommand,
		GreetingEnabled:         c.GreetingMessage,
		GreetingText:            c.GreetingMessageText,
		FollowUpText:            c.FollowUpText,
		ChunkDelay:              time.Duration(c.ChunkDelayMS) * time.Millisecond,
		DefaultPauseMinutes:     c.DefaultPauseMinutes,
	}
}

// BufferDelay returns the debounce delay as a duration
func (c *Config) BufferDelay() time.Duration {
	return time.Duration(c.MessageBufferDelayMS) * time.Millisecond
}

// MaxBufferTime returns the buffering hard cap as a duration
func (c *Config) MaxBufferTime() time.Duration {
	return time.Duration(c.MaxBufferTimeMS) * time.Millisecond
}

// PollInterval returns the chat list poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
