package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Slack      SlackConfig      `mapstructure:"slack"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Timezone   string           `mapstructure:"timezone"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// SlackConfig holds Slack Web API configuration
type SlackConfig struct {
	BotToken     string          `mapstructure:"bot_token"`
	BaseURL      string          `mapstructure:"base_url"`
	Timeout      time.Duration   `mapstructure:"timeout"`
	HistoryLimit int             `mapstructure:"history_limit"`
	Channels     string          `mapstructure:"channels"` // comma-separated IDs or names
	Discovery    DiscoveryConfig `mapstructure:"discovery"`
}

// DiscoveryConfig controls channel discovery when no explicit list is set
type DiscoveryConfig struct {
	NameContains    string        `mapstructure:"name_contains"`
	MaxChannels     int           `mapstructure:"max_channels"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// PollerConfig holds poll scheduler configuration
type PollerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// DispatcherConfig holds outbound dispatch configuration
type DispatcherConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	BreakerThreshold  int           `mapstructure:"breaker_threshold"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"`
	MessagesPerMinute int           `mapstructure:"messages_per_minute"`
	Burst             int           `mapstructure:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	// A local .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("slack.base_url", "https://slack.com/api")
	viper.SetDefault("slack.timeout", "30s")
	viper.SetDefault("slack.history_limit", 10)
	viper.SetDefault("slack.channels", "")
	viper.SetDefault("slack.discovery.name_contains", "general")
	viper.SetDefault("slack.discovery.max_channels", 3)
	viper.SetDefault("slack.discovery.refresh_interval", "5m")

	viper.SetDefault("poller.interval", "5s")

	viper.SetDefault("dispatcher.max_attempts", 3)
	viper.SetDefault("dispatcher.base_delay", "1s")
	viper.SetDefault("dispatcher.max_delay", "30s")
	viper.SetDefault("dispatcher.breaker_threshold", 5)
	viper.SetDefault("dispatcher.breaker_cooldown", "30s")
	viper.SetDefault("dispatcher.messages_per_minute", 20)
	viper.SetDefault("dispatcher.burst", 5)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("timezone", "America/Chicago")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Slack
	viper.BindEnv("slack.bot_token", "SLACK_BOT_TOKEN")
	viper.BindEnv("slack.base_url", "SLACK_BASE_URL")
	viper.BindEnv("slack.timeout", "SLACK_TIMEOUT")
	viper.BindEnv("slack.history_limit", "SLACK_HISTORY_LIMIT")
	viper.BindEnv("slack.channels", "SLACK_AGENT_CHANNELS")
	viper.BindEnv("slack.discovery.name_contains", "SLACK_DISCOVERY_FILTER")
	viper.BindEnv("slack.discovery.max_channels", "SLACK_DISCOVERY_MAX_CHANNELS")
	viper.BindEnv("slack.discovery.refresh_interval", "SLACK_DISCOVERY_REFRESH_INTERVAL")

	// Poller
	viper.BindEnv("poller.interval", "SLACK_AGENT_POLL_INTERVAL")

	// Dispatcher
	viper.BindEnv("dispatcher.max_attempts", "DISPATCHER_MAX_ATTEMPTS")
	viper.BindEnv("dispatcher.base_delay", "DISPATCHER_BASE_DELAY")
	viper.BindEnv("dispatcher.max_delay", "DISPATCHER_MAX_DELAY")
	viper.BindEnv("dispatcher.breaker_threshold", "DISPATCHER_BREAKER_THRESHOLD")
	viper.BindEnv("dispatcher.breaker_cooldown", "DISPATCHER_BREAKER_COOLDOWN")
	viper.BindEnv("dispatcher.messages_per_minute", "DISPATCHER_MESSAGES_PER_MINUTE")
	viper.BindEnv("dispatcher.burst", "DISPATCHER_BURST")

	// Logging
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.format", "LOG_FORMAT")

	viper.BindEnv("timezone", "TIMEZONE")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// ChannelList returns the explicit channel list, split and cleaned.
// Entries may be channel IDs or names; a leading '#' is stripped.
func (c *SlackConfig) ChannelList() []string {
	if strings.TrimSpace(c.Channels) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(c.Channels, ",") {
		part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "#"))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if c.Slack.BotToken == "" {
		return fmt.Errorf("slack bot token is required")
	}
	if !strings.HasPrefix(c.Slack.BotToken, "xoxb-") {
		return fmt.Errorf("slack bot token must start with xoxb-")
	}
	if c.Slack.Timeout < time.Second || c.Slack.Timeout > 300*time.Second {
		return fmt.Errorf("slack timeout must be between 1s and 300s")
	}
	if c.Slack.HistoryLimit < 1 || c.Slack.HistoryLimit > 1000 {
		return fmt.Errorf("slack history limit must be between 1 and 1000")
	}
	if c.Slack.Discovery.MaxChannels < 1 {
		return fmt.Errorf("discovery max channels must be at least 1")
	}
	if c.Slack.Discovery.RefreshInterval <= 0 {
		return fmt.Errorf("discovery refresh interval must be greater than 0")
	}

	if c.Poller.Interval < time.Second {
		return fmt.Errorf("poll interval must be at least 1s")
	}

	if c.Dispatcher.MaxAttempts < 1 || c.Dispatcher.MaxAttempts > 10 {
		return fmt.Errorf("dispatcher max attempts must be between 1 and 10")
	}
	if c.Dispatcher.BaseDelay <= 0 {
		return fmt.Errorf("dispatcher base delay must be greater than 0")
	}
	if c.Dispatcher.MaxDelay < c.Dispatcher.BaseDelay {
		return fmt.Errorf("dispatcher max delay must not be smaller than base delay")
	}
	if c.Dispatcher.BreakerThreshold < 1 {
		return fmt.Errorf("dispatcher breaker threshold must be at least 1")
	}
	if c.Dispatcher.BreakerCooldown <= 0 {
		return fmt.Errorf("dispatcher breaker cooldown must be greater than 0")
	}
	if c.Dispatcher.MessagesPerMinute < 1 {
		return fmt.Errorf("dispatcher messages per minute must be at least 1")
	}

	if c.Timezone == "" {
		return fmt.Errorf("timezone is required")
	}

	return nil
}
