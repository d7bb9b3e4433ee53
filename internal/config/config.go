// Package config loads and validates the run configuration. Sources are
// layered: built-in defaults, an optional YAML config file, a .env file, and
// LURK_-prefixed environment variables, highest last.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lurkhq/lurk/engine/domain"
)

// Error-handling policies for the pipeline executor.
const (
	PolicyHalt     = "halt"
	PolicyContinue = "continue"
	PolicySkip     = "skip"
)

// NSFW filter modes.
const (
	NSFWInclude = "include"
	NSFWExclude = "exclude"
	NSFWOnly    = "only"
)

// Config is the full configuration surface. Field names map 1:1 to the YAML
// keys and to LURK_* environment variables.
type Config struct {
	// Acquisition input set.
	Targets     []string `mapstructure:"targets"`
	TargetsFile string   `mapstructure:"targets_file"`
	TargetUser  string   `mapstructure:"target_user"`

	ConcurrentTargets int           `mapstructure:"concurrent_targets"`
	ListingType       string        `mapstructure:"listing_type"`
	TimePeriod        string        `mapstructure:"time_period"`
	PostLimit         int           `mapstructure:"post_limit"`
	SleepInterval     time.Duration `mapstructure:"sleep_interval"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Retries           int           `mapstructure:"retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	FailFast          bool          `mapstructure:"fail_fast"`

	// Authentication (script-app OAuth).
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	UserAgent    string `mapstructure:"user_agent"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`

	// Filter chain.
	MinScore              *int     `mapstructure:"min_score"`
	MaxScore              *int     `mapstructure:"max_score"`
	DateFrom              string   `mapstructure:"date_from"`
	DateTo                string   `mapstructure:"date_to"`
	KeywordsInclude       []string `mapstructure:"keywords_include"`
	KeywordsExclude       []string `mapstructure:"keywords_exclude"`
	KeywordCaseSensitive  bool     `mapstructure:"keyword_case_sensitive"`
	KeywordRegex          bool     `mapstructure:"keyword_regex"`
	KeywordWholeWords     bool     `mapstructure:"keyword_whole_words"`
	DomainsAllow          []string `mapstructure:"domains_allow"`
	DomainsBlock          []string `mapstructure:"domains_block"`
	MediaTypes            []string `mapstructure:"media_types"`
	ExcludeMediaTypes     []string `mapstructure:"exclude_media_types"`
	FileExtensions        []string `mapstructure:"file_extensions"`
	ExcludeFileExtensions []string `mapstructure:"exclude_file_extensions"`
	NSFWMode              string   `mapstructure:"nsfw_mode"`
	FilterComposition     string   `mapstructure:"filter_composition"`

	// Processing.
	OutputDir        string                    `mapstructure:"output_dir"`
	FilenameTemplate string                    `mapstructure:"filename_template"`
	EmbedMetadata    bool                      `mapstructure:"embed_metadata"`
	CreateSidecars   bool                      `mapstructure:"create_sidecars"`
	EnablePlugins    bool                      `mapstructure:"enable_plugins"`
	PluginDir        string                    `mapstructure:"plugin_dir"`
	HandlerConfig    map[string]map[string]any `mapstructure:"handler_config"`
	Organize         bool                      `mapstructure:"organize"`

	// Export.
	ExportFormats []string                  `mapstructure:"export_formats"`
	ExportDir     string                    `mapstructure:"export_dir"`
	ExportPrefix  string                    `mapstructure:"export_prefix"`
	ExportConfig  map[string]map[string]any `mapstructure:"export_config"`

	// Executor.
	ErrorHandling string `mapstructure:"error_handling"`
	DryRun        bool   `mapstructure:"dry_run"`

	// Sessions.
	SessionDB     string `mapstructure:"session_db"`
	ResumeMaxDays int    `mapstructure:"resume_max_days"`

	// Observability.
	Verbose      bool   `mapstructure:"verbose"`
	LogFile      string `mapstructure:"log_file"`
	AuditLog     string `mapstructure:"audit_log"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
	NATSURL      string `mapstructure:"nats_url"`
	EventLogFile string `mapstructure:"event_log_file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrent_targets", 3)
	v.SetDefault("listing_type", domain.ListingHot)
	v.SetDefault("time_period", "all")
	v.SetDefault("post_limit", 25)
	v.SetDefault("sleep_interval", "2s")
	v.SetDefault("timeout", "300s")
	v.SetDefault("retries", 2)
	v.SetDefault("retry_delay", "5s")
	v.SetDefault("user_agent", "lurk/1.0 (personal media archiver)")
	v.SetDefault("nsfw_mode", NSFWExclude)
	v.SetDefault("filter_composition", "and")
	v.SetDefault("output_dir", "downloads")
	v.SetDefault("filename_template", "{id}_{title}")
	v.SetDefault("create_sidecars", true)
	v.SetDefault("export_formats", []string{"json"})
	v.SetDefault("export_dir", "exports")
	v.SetDefault("export_prefix", "lurk")
	v.SetDefault("error_handling", PolicyContinue)
	v.SetDefault("dry_run", false)
	v.SetDefault("fail_fast", false)
	v.SetDefault("verbose", false)
	v.SetDefault("embed_metadata", false)
	v.SetDefault("enable_plugins", false)
	v.SetDefault("organize", false)
	v.SetDefault("session_db", "lurk.db")
	v.SetDefault("resume_max_days", 7)
	v.SetDefault("audit_log", "lurk-audit.log")
}

// Load reads configuration from path (optional), .env, and the environment.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LURK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, domain.Wrap(domain.KindConfiguration, "read config", err)
		}
	} else {
		v.SetConfigName("lurk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/lurk")
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, domain.Wrap(domain.KindConfiguration, "read config", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, domain.Wrap(domain.KindConfiguration, "decode config", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, domain.NewRecord(domain.KindConfiguration,
			fmt.Sprintf(format, args...)))
	}

	if c.ConcurrentTargets < 1 || c.ConcurrentTargets > 20 {
		fail("concurrent_targets must be in [1,20], got %d", c.ConcurrentTargets)
	}
	if c.PostLimit < 0 {
		fail("post_limit must be >= 0, got %d", c.PostLimit)
	}
	if !domain.ValidListing(c.ListingType) {
		fail("listing_type %q is not one of hot/new/top/controversial/rising", c.ListingType)
	}
	if c.TimePeriod != "" && !domain.ValidPeriod(c.TimePeriod) {
		fail("time_period %q is not one of hour/day/week/month/year/all", c.TimePeriod)
	}
	switch c.NSFWMode {
	case NSFWInclude, NSFWExclude, NSFWOnly:
	default:
		fail("nsfw_mode %q is not one of include/exclude/only", c.NSFWMode)
	}
	switch strings.ToLower(c.FilterComposition) {
	case "and", "or":
	default:
		fail("filter_composition %q is not one of and/or", c.FilterComposition)
	}
	switch c.ErrorHandling {
	case PolicyHalt, PolicyContinue, PolicySkip:
	default:
		fail("error_handling %q is not one of halt/continue/skip", c.ErrorHandling)
	}
	if c.MinScore != nil && c.MaxScore != nil && *c.MinScore > *c.MaxScore {
		fail("min_score %d exceeds max_score %d", *c.MinScore, *c.MaxScore)
	}
	if c.Timeout <= 0 {
		fail("timeout must be positive, got %s", c.Timeout)
	}
	if c.Retries < 0 {
		fail("retries must be >= 0, got %d", c.Retries)
	}
	if len(c.ExportFormats) == 0 {
		fail("export_formats must name at least one format")
	}
	if c.OutputDir == "" {
		fail("output_dir must not be empty")
	}
	return errs
}

// HasCredentials reports whether the full OAuth credential set is present.
func (c *Config) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.Username != "" && c.Password != ""
}

// AllTargets merges the inline list, the targets file, and the legacy single
// user value, preserving order and dropping duplicates.
func (c *Config) AllTargets() ([]string, error) {
	out := make([]string, 0, len(c.Targets))
	seen := make(map[string]struct{})
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	for _, t := range c.Targets {
		add(t)
	}
	if c.TargetsFile != "" {
		raw, err := os.ReadFile(c.TargetsFile)
		if err != nil {
			return nil, domain.Wrap(domain.KindConfiguration, "read targets file", err)
		}
		for _, line := range strings.Split(string(raw), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			add(line)
		}
	}
	if c.TargetUser != "" {
		add("u/" + strings.TrimPrefix(strings.TrimPrefix(c.TargetUser, "u/"), "/u/"))
	}
	return out, nil
}
