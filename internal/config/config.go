// Package config loads and validates listing-crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	News     NewsConfig     `mapstructure:"news"`
	Headless HeadlessConfig `mapstructure:"headless"`
	DB       DBConfig       `mapstructure:"db"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// RequestTimeoutSeconds bounds every request, including triggered crawls.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// CrawlerConfig governs the static page fetcher.
type CrawlerConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// RequestsPerSecond spaces fetches per site; zero disables the limiter.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	// RespectRobots refuses pages disallowed by the site's robots.txt.
	RespectRobots bool `mapstructure:"respect_robots"`
}

// JobsConfig describes the paginated job listing.
type JobsConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Origin    string `mapstructure:"origin"`
	PageParam string `mapstructure:"page_param"`
	// MaxPages caps a full crawl when the request does not; zero means unbounded.
	MaxPages int `mapstructure:"max_pages"`
}

// NewsConfig describes the rendered news front page.
type NewsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Origin  string `mapstructure:"origin"`
	Marker  string `mapstructure:"marker"`
}

// HeadlessConfig configures the chromedp rendering fetcher.
type HeadlessConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	WaitTimeoutSeconds int  `mapstructure:"wait_timeout_seconds"`
	SettleMillis       int  `mapstructure:"settle_millis"`
	NavTimeoutSeconds  int  `mapstructure:"nav_timeout_seconds"`
}

// DBConfig controls the record store. An empty DSN selects the in-memory store.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// ArchiveConfig selects where raw fetched pages are kept.
type ArchiveConfig struct {
	// Backend is one of none, memory, local or gcs.
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for record-inserted notifications.
type PubSubConfig struct {
	// Backend is one of none, memory or gcp.
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig controls the OpenTelemetry tracer provider. Spans carry the crawl
// run into Pub/Sub message attributes.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LISTING")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 600)
	v.SetDefault("crawler.user_agent", "listing-crawler/0.1")
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("jobs.base_url", "https://www.keejob.com/offres-emploi/")
	v.SetDefault("jobs.origin", "https://www.keejob.com")
	v.SetDefault("jobs.page_param", "page")
	v.SetDefault("jobs.max_pages", 0)
	v.SetDefault("news.enabled", true)
	v.SetDefault("news.url", "https://www.mosaiquefm.net/ar/actualites/1")
	v.SetDefault("news.origin", "https://www.mosaiquefm.net")
	v.SetDefault("news.marker", ".mainItem")
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.wait_timeout_seconds", 10)
	v.SetDefault("headless.settle_millis", 2000)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "records")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.base_dir", "pages")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("pubsub.backend", "none")
	v.SetDefault("pubsub.topic_name", "records-inserted")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "listing-crawler")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.RequestsPerSecond < 0 || c.Crawler.Burst < 0 {
		return fmt.Errorf("crawler.requests_per_second and crawler.burst must be >= 0")
	}
	if err := absoluteURL("jobs.base_url", c.Jobs.BaseURL); err != nil {
		return err
	}
	if err := absoluteURL("jobs.origin", c.Jobs.Origin); err != nil {
		return err
	}
	if c.Jobs.MaxPages < 0 {
		return fmt.Errorf("jobs.max_pages must be >= 0")
	}
	if c.News.Enabled {
		if err := absoluteURL("news.url", c.News.URL); err != nil {
			return err
		}
		if err := absoluteURL("news.origin", c.News.Origin); err != nil {
			return err
		}
	}
	if c.Headless.Enabled {
		if c.Headless.WaitTimeoutSeconds <= 0 {
			return fmt.Errorf("headless.wait_timeout_seconds must be > 0 when headless is enabled")
		}
		if c.Headless.SettleMillis < 0 || c.Headless.NavTimeoutSeconds < 0 {
			return fmt.Errorf("headless.settle_millis and headless.nav_timeout_seconds must be >= 0")
		}
	}
	if c.DB.MaxConns < 0 {
		return fmt.Errorf("db.max_conns must be >= 0")
	}
	switch c.Archive.Backend {
	case "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local archive")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of none, memory, local, gcs", c.Archive.Backend)
	}
	switch c.PubSub.Backend {
	case "none":
	case "memory", "gcp":
		if c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.topic_name must be set when publishing is enabled")
		}
		if c.PubSub.Backend == "gcp" && c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set for the gcp backend")
		}
	default:
		return fmt.Errorf("pubsub.backend %q is not one of none, memory, gcp", c.PubSub.Backend)
	}
	if c.Tracing.Enabled && strings.TrimSpace(c.Tracing.ServiceName) == "" {
		return fmt.Errorf("tracing.service_name must be set when tracing is enabled")
	}
	return nil
}

// JobsSource describes the job listing as a crawl source.
func (c Config) JobsSource() crawler.Source {
	return crawler.Source{
		Tag:       crawler.SourceKeejob,
		Kind:      crawler.KindJob,
		BaseURL:   c.Jobs.BaseURL,
		Origin:    c.Jobs.Origin,
		PageParam: c.Jobs.PageParam,
	}
}

// NewsSource describes the news front page as a crawl source.
func (c Config) NewsSource() crawler.Source {
	return crawler.Source{
		Tag:     crawler.SourceMosaiqueFM,
		Kind:    crawler.KindNews,
		BaseURL: c.News.URL,
		Origin:  c.News.Origin,
		Marker:  c.News.Marker,
	}
}

// FetchTimeout is the static fetcher's per-request timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds one HTTP request to the API.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

func absoluteURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
	}
	return nil
}
