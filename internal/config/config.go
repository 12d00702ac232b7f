// Package config loads and validates downloader configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Source modes.
const (
	ModeStatic   = "static"
	ModeRendered = "rendered"
	// ModeAuto fetches statically and renders only when the page is a script shell.
	ModeAuto = "auto"
)

// Config captures all downloader configuration knobs loaded via Viper.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Output   OutputConfig   `mapstructure:"output"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// SourceConfig lists where the report page lives.
type SourceConfig struct {
	// Endpoints are tried in order; the first 2xx wins.
	Endpoints []string `mapstructure:"endpoints"`
	// SiteBase resolves root-relative download links.
	SiteBase string `mapstructure:"site_base"`
	// ReportDir prefixes bare download filenames.
	ReportDir string `mapstructure:"report_dir"`
	// CanonicalURL is rendered in rendered mode.
	CanonicalURL string `mapstructure:"canonical_url"`
	Mode         string `mapstructure:"mode"`
}

// HTTPConfig is the outbound header profile and timeouts.
type HTTPConfig struct {
	UserAgent       string        `mapstructure:"user_agent"`
	Accept          string        `mapstructure:"accept"`
	AcceptLanguage  string        `mapstructure:"accept_language"`
	Connection      string        `mapstructure:"connection"`
	PageTimeout     time.Duration `mapstructure:"page_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

// HeadlessConfig configures the chromedp renderer.
type HeadlessConfig struct {
	WaitSelector      string        `mapstructure:"wait_selector"`
	WaitTimeout       time.Duration `mapstructure:"wait_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ExecPath          string        `mapstructure:"exec_path"`
	// PromotionThreshold is the body size under which script-heavy static
	// pages are rendered in auto mode.
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// OutputConfig controls local persistence.
type OutputConfig struct {
	Dir             string `mapstructure:"dir"`
	DebugFile       string `mapstructure:"debug_file"`
	MinPayloadBytes int    `mapstructure:"min_payload_bytes"`
	// Disambiguator is "time" or "counter".
	Disambiguator string `mapstructure:"disambiguator"`
	// Timezone is the IANA zone used for fallback dates and time suffixes.
	Timezone string `mapstructure:"timezone"`
}

// MirrorConfig configures the optional object store mirrors.
type MirrorConfig struct {
	GCS GCSConfig `mapstructure:"gcs"`
	S3  S3Config  `mapstructure:"s3"`
}

// GCSConfig enables the GCS mirror when Bucket is set.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// S3Config enables the S3 mirror when Endpoint and Bucket are set.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	CreateBucket    bool   `mapstructure:"create_bucket"`
}

// PublishConfig configures the post-save notifiers.
type PublishConfig struct {
	Git    GitConfig    `mapstructure:"git"`
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

// GitConfig commits (and optionally pushes) the saved report. Push implies
// Enabled.
type GitConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	RepoDir string `mapstructure:"repo_dir"`
	Remote  string `mapstructure:"remote"`
	Branch  string `mapstructure:"branch"`
	Push    bool   `mapstructure:"push"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LedgerConfig enables the Postgres run/artifact ledger when DSN is set.
type LedgerConfig struct {
	DSN            string `mapstructure:"dsn"`
	RunsTable      string `mapstructure:"runs_table"`
	ArtifactsTable string `mapstructure:"artifacts_table"`
	EnsureSchema   bool   `mapstructure:"ensure_schema"`
}

// MetricsConfig enables the pushgateway push when PushURL is set.
type MetricsConfig struct {
	PushURL  string        `mapstructure:"push_url"`
	Job      string        `mapstructure:"job"`
	Instance string        `mapstructure:"instance"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls the run span. Without an OTLP endpoint spans stay
// in process but their context still travels with Pub/Sub messages.
type TelemetryConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	ServiceName  string            `mapstructure:"service_name"`
	OTLPEndpoint string            `mapstructure:"otlp_endpoint"`
	Headers      map[string]string `mapstructure:"headers"`
}

// Load builds a Config from defaults, an optional file, the environment
// (CSE_ prefix) and any changed flags, in increasing precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Publish.Git.Push {
		cfg.Publish.Git.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"output-dir":    "output.dir",
	"mode":          "source.mode",
	"disambiguator": "output.disambiguator",
	"timezone":      "output.timezone",
	"git-push":      "publish.git.push",
	"dev":           "logging.development",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.endpoints", []string{
		"https://www.cse.lk/pages/cse-daily/cse-daily.component.html",
		"https://cse.lk/pages/cse-daily/cse-daily.component.html",
		"https://www.cse.lk/pages/cse-daily/",
	})
	v.SetDefault("source.site_base", "https://www.cse.lk")
	v.SetDefault("source.report_dir", "https://www.cse.lk/pages/cse-daily/")
	v.SetDefault("source.canonical_url", "https://www.cse.lk/pages/cse-daily/cse-daily.component.html")
	v.SetDefault("source.mode", ModeStatic)
	v.SetDefault("http.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("http.accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	v.SetDefault("http.accept_language", "en-US,en;q=0.9")
	v.SetDefault("http.connection", "keep-alive")
	v.SetDefault("http.page_timeout", 30*time.Second)
	v.SetDefault("http.download_timeout", 60*time.Second)
	v.SetDefault("headless.wait_selector", "div.rules-block")
	v.SetDefault("headless.wait_timeout", 20*time.Second)
	v.SetDefault("headless.navigation_timeout", 45*time.Second)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("output.dir", "downloads")
	v.SetDefault("output.debug_file", "debug_page.html")
	v.SetDefault("output.min_payload_bytes", 1000)
	v.SetDefault("output.disambiguator", "time")
	v.SetDefault("output.timezone", "UTC")
	v.SetDefault("publish.git.remote", "origin")
	v.SetDefault("publish.git.repo_dir", ".")
	v.SetDefault("ledger.ensure_schema", true)
	v.SetDefault("metrics.job", "cse_daily_fetcher")
	v.SetDefault("metrics.timeout", 10*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "cse-daily-fetcher")

	// Optional collaborators are off until configured; registering the keys
	// lets AutomaticEnv populate them.
	for _, key := range []string{
		"headless.exec_path",
		"mirror.gcs.bucket", "mirror.gcs.prefix",
		"mirror.s3.endpoint", "mirror.s3.access_key_id", "mirror.s3.secret_access_key",
		"mirror.s3.bucket", "mirror.s3.prefix", "mirror.s3.region",
		"publish.pubsub.project_id", "publish.pubsub.topic_name", "publish.git.branch",
		"ledger.dsn", "ledger.runs_table", "ledger.artifacts_table",
		"metrics.push_url", "metrics.instance", "logging.level",
		"telemetry.otlp_endpoint",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("mirror.s3.use_ssl", true)
	v.SetDefault("mirror.s3.create_bucket", false)
	v.SetDefault("publish.git.enabled", false)
	v.SetDefault("publish.git.push", false)
}

// Validate enforces constraints that components assume at construction.
func (c Config) Validate() error {
	var errs []error
	if len(c.Source.Endpoints) == 0 {
		errs = append(errs, errors.New("source.endpoints must not be empty"))
	}
	for _, ep := range c.Source.Endpoints {
		if !absoluteURL(ep) {
			errs = append(errs, fmt.Errorf("source.endpoints: %q is not an absolute URL", ep))
		}
	}
	if !absoluteURL(c.Source.SiteBase) {
		errs = append(errs, fmt.Errorf("source.site_base %q is not an absolute URL", c.Source.SiteBase))
	}
	if !absoluteURL(c.Source.ReportDir) {
		errs = append(errs, fmt.Errorf("source.report_dir %q is not an absolute URL", c.Source.ReportDir))
	}
	switch c.Source.Mode {
	case ModeStatic:
	case ModeRendered, ModeAuto:
		if !absoluteURL(c.Source.CanonicalURL) {
			errs = append(errs, fmt.Errorf("source.canonical_url %q is not an absolute URL", c.Source.CanonicalURL))
		}
	default:
		errs = append(errs, fmt.Errorf("source.mode must be %q, %q or %q, got %q",
			ModeStatic, ModeRendered, ModeAuto, c.Source.Mode))
	}
	if c.HTTP.PageTimeout <= 0 {
		errs = append(errs, errors.New("http.page_timeout must be positive"))
	}
	if c.HTTP.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("http.download_timeout must be positive"))
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, errors.New("output.dir is required"))
	}
	if c.Output.MinPayloadBytes < 0 {
		errs = append(errs, errors.New("output.min_payload_bytes must not be negative"))
	}
	if d := c.Output.Disambiguator; d != "time" && d != "counter" {
		errs = append(errs, fmt.Errorf("output.disambiguator must be time or counter, got %q", d))
	}
	if c.Output.Timezone != "" {
		if _, err := time.LoadLocation(c.Output.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("output.timezone: %w", err))
		}
	}
	s3 := c.Mirror.S3
	if (s3.Endpoint == "") != (s3.Bucket == "") {
		errs = append(errs, errors.New("mirror.s3.endpoint and mirror.s3.bucket must be set together"))
	}
	ps := c.Publish.PubSub
	if (ps.ProjectID == "") != (ps.TopicName == "") {
		errs = append(errs, errors.New("publish.pubsub.project_id and publish.pubsub.topic_name must be set together"))
	}
	if c.Publish.Git.Enabled && strings.TrimSpace(c.Publish.Git.RepoDir) == "" {
		errs = append(errs, errors.New("publish.git.repo_dir is required when git publishing is enabled"))
	}
	if c.Metrics.PushURL != "" && !absoluteURL(c.Metrics.PushURL) {
		errs = append(errs, fmt.Errorf("metrics.push_url %q is not an absolute URL", c.Metrics.PushURL))
	}
	if c.Telemetry.OTLPEndpoint != "" && !absoluteURL(c.Telemetry.OTLPEndpoint) {
		errs = append(errs, fmt.Errorf("telemetry.otlp_endpoint %q is not an absolute URL", c.Telemetry.OTLPEndpoint))
	}
	return errors.Join(errs...)
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && u.Scheme != "" && u.Host != ""
}
