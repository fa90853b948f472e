package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"catalogcrawler/internal/proxy"
)

// ErrNoSeeds is returned when no start URL is configured.
var ErrNoSeeds = errors.New("at least one start url is required")

type Config struct {
	StartURLs      []string
	AllowedDomains []string
	UserAgent      string

	Concurrency          int
	ConcurrencyPerDomain int
	RequestTimeout       time.Duration
	RetryTimes           int
	RetryDelay           time.Duration

	ProxyEnabled bool
	Proxy        proxy.Config

	OutputPath  string
	DatabaseURL string
	RedisURL    string
	VisitedTTL  time.Duration
	MetricsPort string
	SinkWorkers int
	LogLevel    string
}

var envBindings = map[string]string{
	"start_urls":                     "START_URLS",
	"allowed_domains":                "ALLOWED_DOMAINS",
	"user_agent":                     "USER_AGENT",
	"concurrent_requests":            "CONCURRENT_REQUESTS",
	"concurrent_requests_per_domain": "CONCURRENT_REQUESTS_PER_DOMAIN",
	"request_timeout":                "REQUEST_TIMEOUT",
	"retry_times":                    "RETRY_TIMES",
	"retry_delay":                    "RETRY_DELAY",
	"proxy.enabled":                  "PROXY_ENABLED",
	"proxy.login":                    "PROXY_LOGIN",
	"proxy.password":                 "PROXY_PASSWORD",
	"proxy.host":                     "PROXY_IP",
	"proxy.port":                     "PROXY_PORT",
	"output":                         "OUTPUT_PATH",
	"database_url":                   "DATABASE_URL",
	"redis_url":                      "REDIS_URL",
	"visited_ttl":                    "VISITED_TTL",
	"metrics_port":                   "METRICS_PORT",
	"sink_workers":                   "SINK_WORKERS",
	"log_level":                      "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("start_urls", []string{
		"https://fix-price.com/catalog/kosmetika-i-gigiena/ukhod-za-polostyu-rta?sort=sold&page=1",
		"https://fix-price.com/catalog/igrushki/igrovye-nabory-nastolnye-igry?sort=sold&page=1",
		"https://fix-price.com/catalog/krasota-i-zdorove/dlya-tela?sort=sold&page=1",
	})
	v.SetDefault("allowed_domains", []string{"fix-price.com"})
	v.SetDefault("user_agent", "Mozilla/5.0")
	v.SetDefault("concurrent_requests", 16)
	v.SetDefault("concurrent_requests_per_domain", 8)
	v.SetDefault("request_timeout", 60*time.Second)
	v.SetDefault("retry_times", 2)
	v.SetDefault("retry_delay", time.Second)
	v.SetDefault("proxy.enabled", true)
	v.SetDefault("output", "fix_price.json")
	v.SetDefault("visited_ttl", 24*time.Hour)
	v.SetDefault("metrics_port", "9090")
	v.SetDefault("sink_workers", 4)
	v.SetDefault("log_level", "debug")
}

// Load reads .env, the optional YAML file at path (crawler.yaml in the
// working directory when path is empty) and the environment, in increasing
// precedence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("crawler")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		StartURLs:            splitList(v.GetStringSlice("start_urls")),
		AllowedDomains:       splitList(v.GetStringSlice("allowed_domains")),
		UserAgent:            v.GetString("user_agent"),
		Concurrency:          v.GetInt("concurrent_requests"),
		ConcurrencyPerDomain: v.GetInt("concurrent_requests_per_domain"),
		RequestTimeout:       v.GetDuration("request_timeout"),
		RetryTimes:           v.GetInt("retry_times"),
		RetryDelay:           v.GetDuration("retry_delay"),
		ProxyEnabled:         v.GetBool("proxy.enabled"),
		Proxy: proxy.Config{
			Login:    v.GetString("proxy.login"),
			Password: v.GetString("proxy.password"),
			Host:     v.GetString("proxy.host"),
			Port:     v.GetString("proxy.port"),
		},
		OutputPath:  v.GetString("output"),
		DatabaseURL: v.GetString("database_url"),
		RedisURL:    v.GetString("redis_url"),
		VisitedTTL:  v.GetDuration("visited_ttl"),
		MetricsPort: v.GetString("metrics_port"),
		SinkWorkers: v.GetInt("sink_workers"),
		LogLevel:    v.GetString("log_level"),
	}
	return cfg, nil
}

// Validate checks the values a crawl cannot start without.
func (c *Config) Validate() error {
	if len(c.StartURLs) == 0 {
		return ErrNoSeeds
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrent_requests must be positive, got %d", c.Concurrency)
	}
	if c.ConcurrencyPerDomain <= 0 {
		return fmt.Errorf("concurrent_requests_per_domain must be positive, got %d", c.ConcurrencyPerDomain)
	}
	return nil
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
