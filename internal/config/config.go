package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for search4all
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Database DatabaseConfig `mapstructure:"database"`
	Search   SearchConfig   `mapstructure:"search"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Features FeatureConfig  `mapstructure:"features"`
	History  HistoryConfig  `mapstructure:"history"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	UIDir        string   `mapstructure:"ui_dir"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// AdminConfig holds admin authentication configuration
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig holds the session store configuration
type DatabaseConfig struct {
	Path      string `mapstructure:"path"`
	CacheSize int    `mapstructure:"cache_size"`
}

// SearchConfig selects the web search backend
type SearchConfig struct {
	Backend  string        `mapstructure:"backend"`
	APIKey   string        `mapstructure:"api_key"`
	CX       string        `mapstructure:"cx"`
	Endpoint string        `mapstructure:"endpoint"`
	Count    int           `mapstructure:"count"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Attempts uint          `mapstructure:"attempts"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// FeatureConfig toggles optional pipeline stages
type FeatureConfig struct {
	RelatedQuestions bool `mapstructure:"related_questions"`
	ChatHistory      bool `mapstructure:"chat_history"`
}

// HistoryConfig holds conversation history configuration
type HistoryConfig struct {
	MaxTurns int `mapstructure:"max_turns"`
}

// WorkersConfig sizes the pool for blocking work
type WorkersConfig struct {
	Size int `mapstructure:"size"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// Environment variable names accepted alongside the SEARCH4ALL_ prefixed ones
var legacyEnv = map[string][]string{
	"server.port":                {"PORT"},
	"database.path":              {"KV_NAME"},
	"search.backend":             {"BACKEND"},
	"search.api_key":             {"BING_SEARCH_V7_SUBSCRIPTION_KEY", "GOOGLE_SEARCH_API_KEY", "SERPER_SEARCH_API_KEY", "SEARCHAPI_API_KEY", "SEARCH1API_KEY", "TAVILY_API_KEY", "BRAVE_API_KEY"},
	"search.cx":                  {"GOOGLE_SEARCH_CX"},
	"search.endpoint":            {"SEARXNG_BASE_URL"},
	"llm.model":                  {"LLM_MODEL"},
	"llm.api_key":                {"OPENAI_API_KEY", "GROQ_API_KEY", "ANTHROPIC_API_KEY"},
	"llm.base_url":               {"OPENAI_BASE_URL"},
	"features.related_questions": {"RELATED_QUESTIONS"},
	"features.chat_history":      {"CHAT_HISTORY"},
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("SEARCH4ALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	// Read config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindLegacyEnv lets each key also be read from its unprefixed variable
// names. The prefixed name keeps precedence.
func bindLegacyEnv(v *viper.Viper) error {
	for key, names := range legacyEnv {
		prefixed := "SEARCH4ALL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8800)
	v.SetDefault("server.ui_dir", "")
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("admin.api_key", "")

	v.SetDefault("database.path", "./data/search.db")
	v.SetDefault("database.cache_size", 1024)

	v.SetDefault("search.backend", "bing")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.cx", "")
	v.SetDefault("search.endpoint", "")
	v.SetDefault("search.count", 8)
	v.SetDefault("search.timeout", 5*time.Second)
	v.SetDefault("search.attempts", 1)

	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("features.related_questions", true)
	v.SetDefault("features.chat_history", false)

	v.SetDefault("history.max_turns", 10)

	v.SetDefault("workers.size", 32)

	v.SetDefault("log.development", false)
}

// Validate checks values that would otherwise fail deep inside a request
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Search.Backend == "" {
		return errors.New("search.backend is required")
	}
	if c.Search.Timeout <= 0 {
		return fmt.Errorf("invalid search.timeout %s", c.Search.Timeout)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if c.History.MaxTurns <= 0 {
		return fmt.Errorf("invalid history.max_turns %d", c.History.MaxTurns)
	}
	if c.Workers.Size <= 0 {
		return fmt.Errorf("invalid workers.size %d", c.Workers.Size)
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
