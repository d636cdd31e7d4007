// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Portal   PortalConfig   `mapstructure:"portal"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Download DownloadConfig `mapstructure:"download"`
	DB       DBConfig       `mapstructure:"db"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PortalConfig describes the search portal and the selectors that locate
// its moving parts. Selectors drift with the portal's markup, so they are
// configuration rather than constants.
type PortalConfig struct {
	URL            string `mapstructure:"url"`
	SearchInput    string `mapstructure:"search_input"`
	SearchButton   string `mapstructure:"search_button"`
	ResultList     string `mapstructure:"result_list"`
	ResultRow      string `mapstructure:"result_row"`
	TitleLink      string `mapstructure:"title_link"`
	AuthorLink     string `mapstructure:"author_link"`
	DateCell       string `mapstructure:"date_cell"`
	NextPage       string `mapstructure:"next_page"`
	UserAgent      string `mapstructure:"user_agent"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSec int    `mapstructure:"wait_timeout_seconds"`
	LoadRetries    int    `mapstructure:"load_retries"`
	LoadBackoffMs  int    `mapstructure:"load_backoff_ms"`
}

// CrawlerConfig carries the run parameters.
type CrawlerConfig struct {
	Query       string `mapstructure:"query"`
	TargetCount int    `mapstructure:"target_count"`
	MaxPages    int    `mapstructure:"max_pages"`
	Download    bool   `mapstructure:"download"`
	Headless    bool   `mapstructure:"headless"`
	OutputDir   string `mapstructure:"output_dir"`
}

// DownloadConfig governs document transfer behavior.
type DownloadConfig struct {
	Attempts     int    `mapstructure:"attempts"`
	RetryDelayMs int    `mapstructure:"retry_delay_ms"`
	TimeoutSec   int    `mapstructure:"timeout_seconds"`
	LinkPattern  string `mapstructure:"link_pattern"`
}

// DBConfig controls access to the relational store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	Upsert   bool   `mapstructure:"upsert"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// MetricsConfig controls the optional metrics listener. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAPERDREDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("portal.url", "https://www.cnki.net")
	v.SetDefault("portal.search_input", "#txt_SearchText")
	v.SetDefault("portal.search_button", ".search-btn")
	v.SetDefault("portal.result_list", "table.result-table-list")
	v.SetDefault("portal.result_row", "table.result-table-list tbody tr")
	v.SetDefault("portal.title_link", "a.fz14")
	v.SetDefault("portal.author_link", "a.KnowledgeNetLink")
	v.SetDefault("portal.date_cell", "td.date")
	v.SetDefault("portal.next_page", "#PageNext")
	v.SetDefault("portal.user_agent", "paperdredge/0.1")
	v.SetDefault("portal.nav_timeout_seconds", 30)
	v.SetDefault("portal.wait_timeout_seconds", 10)
	v.SetDefault("portal.load_retries", 3)
	v.SetDefault("portal.load_backoff_ms", 2000)
	v.SetDefault("crawler.query", "")
	v.SetDefault("crawler.target_count", 100)
	v.SetDefault("crawler.max_pages", 20)
	v.SetDefault("crawler.download", true)
	v.SetDefault("crawler.headless", false)
	v.SetDefault("crawler.output_dir", "papers")
	v.SetDefault("download.attempts", 3)
	v.SetDefault("download.retry_delay_ms", 1000)
	v.SetDefault("download.timeout_seconds", 60)
	v.SetDefault("download.link_pattern", `(?i)(\.pdf|\.caj|/download)`)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "papers")
	v.SetDefault("db.upsert", false)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Portal.URL == "" {
		return fmt.Errorf("portal.url must be set")
	}
	if c.Crawler.TargetCount <= 0 {
		return fmt.Errorf("crawler.target_count must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.OutputDir == "" {
		return fmt.Errorf("crawler.output_dir must be set")
	}
	if c.Portal.WaitTimeoutSec <= 0 {
		return fmt.Errorf("portal.wait_timeout_seconds must be > 0")
	}
	if c.Portal.LoadRetries <= 0 {
		return fmt.Errorf("portal.load_retries must be > 0")
	}
	if c.Download.Attempts <= 0 {
		return fmt.Errorf("download.attempts must be > 0")
	}
	return nil
}

// WaitTimeout returns the page-load wait budget as a duration.
func (c PortalConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSec) * time.Second
}

// NavTimeout returns the navigation budget as a duration.
func (c PortalConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// LoadBackoff returns the base page-load retry backoff as a duration.
func (c PortalConfig) LoadBackoff() time.Duration {
	return time.Duration(c.LoadBackoffMs) * time.Millisecond
}

// RetryDelay returns the inter-attempt transfer delay as a duration.
func (c DownloadConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// Timeout returns the transfer timeout as a duration.
func (c DownloadConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}
