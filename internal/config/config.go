package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Tracker   TrackerConfig             `yaml:"tracker"`
	Platforms map[string]PlatformConfig `yaml:"platforms"`
	RapidAPI  RapidAPIConfig            `yaml:"rapidapi"`
	GraphAPI  GraphAPIConfig            `yaml:"graphapi"`
	Browser   BrowserConfig             `yaml:"browser"`
	Proxy     ProxyConfig               `yaml:"proxy"`
	Database  DatabaseConfig            `yaml:"database"`
	Logging   LoggingConfig             `yaml:"logging"`
}

type TrackerConfig struct {
	Concurrency    int `yaml:"concurrency"`
	RetryAttempts  int `yaml:"retry_attempts"`
	RequestTimeout int `yaml:"request_timeout_seconds"`
	FetchCount     int `yaml:"fetch_count"`
	RecencyWindow  int `yaml:"recency_window"`
	EnrichmentCap  int `yaml:"enrichment_cap"`
	DelayMinMs     int `yaml:"delay_min_ms"`
	DelayMaxMs     int `yaml:"delay_max_ms"`
}

// PlatformConfig selects the fetch method for one platform.
type PlatformConfig struct {
	Method string `yaml:"method"`
}

type RapidAPIConfig struct {
	Key               string            `yaml:"key"`
	Hosts             map[string]string `yaml:"hosts"`
	RequestsPerMinute int               `yaml:"requests_per_minute"`
}

type GraphAPIConfig struct {
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
	// AccountIDs maps tracked usernames to graph API user IDs; the graph
	// API addresses media by numeric ID, never by username.
	AccountIDs        map[string]string `yaml:"account_ids"`
	Metric            string            `yaml:"metric"`
	RequestsPerMinute int               `yaml:"requests_per_minute"`
}

type BrowserConfig struct {
	Headless          bool   `yaml:"headless"`
	UserAgent         string `yaml:"user_agent"`
	ViewportWidth     int    `yaml:"viewport_width"`
	ViewportHeight    int    `yaml:"viewport_height"`
	SettleDelayMs     int    `yaml:"settle_delay_ms"`
	MaxScrollAttempts int    `yaml:"max_scroll_attempts"`
	NavigateTimeout   int    `yaml:"navigate_timeout_seconds"`
}

type ProxyConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Enabled reports whether an upstream proxy is configured.
func (p ProxyConfig) Enabled() bool {
	return p.Host != "" && p.Port > 0
}

// URL renders the proxy address for http.Transport and browser flags.
func (p ProxyConfig) URL() string {
	if !p.Enabled() {
		return ""
	}
	if p.Username != "" {
		return fmt.Sprintf("http://%s:%s@%s:%d", p.Username, p.Password, p.Host, p.Port)
	}
	return fmt.Sprintf("http://%s:%d", p.Host, p.Port)
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	MetricsFile string `yaml:"metrics_file"`
}

// RequestTimeoutDuration is the fixed per-call timeout applied to outbound
// network calls and browser waits.
func (t TrackerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(t.RequestTimeout) * time.Second
}

func Load(configFile string) (*Config, error) {
	// .env file is optional.
	_ = godotenv.Load()

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configFile)
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	config.applyEnvOverrides()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Tracker.Concurrency <= 0 {
		c.Tracker.Concurrency = 3
	}
	if c.Tracker.RetryAttempts <= 0 {
		c.Tracker.RetryAttempts = 3
	}
	if c.Tracker.RequestTimeout <= 0 {
		c.Tracker.RequestTimeout = 30
	}
	if c.Tracker.FetchCount <= 0 {
		c.Tracker.FetchCount = 12
	}
	if c.Tracker.RecencyWindow <= 0 {
		c.Tracker.RecencyWindow = 10
	}
	if c.Tracker.EnrichmentCap < 0 {
		c.Tracker.EnrichmentCap = 0
	}
	if c.Tracker.DelayMinMs <= 0 {
		c.Tracker.DelayMinMs = 800
	}
	if c.Tracker.DelayMaxMs < c.Tracker.DelayMinMs {
		c.Tracker.DelayMaxMs = c.Tracker.DelayMinMs + 1200
	}
	if c.GraphAPI.BaseURL == "" {
		c.GraphAPI.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if c.GraphAPI.Metric == "" {
		c.GraphAPI.Metric = "plays"
	}
	if c.GraphAPI.RequestsPerMinute <= 0 {
		c.GraphAPI.RequestsPerMinute = 60
	}
	if c.RapidAPI.RequestsPerMinute <= 0 {
		c.RapidAPI.RequestsPerMinute = 30
	}
	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	}
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 1366
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 900
	}
	if c.Browser.SettleDelayMs <= 0 {
		c.Browser.SettleDelayMs = 2500
	}
	if c.Browser.MaxScrollAttempts <= 0 {
		c.Browser.MaxScrollAttempts = 8
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 45
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MetricsFile == "" {
		c.Logging.MetricsFile = "logs/metrics.json"
	}
}

// Secrets and deploy-specific settings come from the environment when set.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("RAPIDAPI_KEY"); key != "" {
		c.RapidAPI.Key = key
	}
	if token := os.Getenv("GRAPH_API_TOKEN"); token != "" {
		c.GraphAPI.AccessToken = token
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		c.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Database.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		c.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		c.Database.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		c.Database.Name = name
	}
	if pass := os.Getenv("PROXY_PASSWORD"); pass != "" {
		c.Proxy.Password = pass
	}
}
