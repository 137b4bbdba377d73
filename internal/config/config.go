package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"itincal/internal/planner"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// SourceID returns ID, falling back to Name and then URL.
func (c ICSConfig) SourceID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// CandidatesConfig points at the suppliers of candidate activities.
type CandidatesConfig struct {
	// File is a YAML or JSON dataset of activities.
	File string `yaml:"file" json:"file"`
	// WebhookURL is a recommendation service returning a JSON activity list.
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
	// WebhookTimeoutSeconds bounds each webhook call.
	WebhookTimeoutSeconds int `yaml:"webhook_timeout_seconds" json:"webhook_timeout_seconds"`
}

// PlannerConfig mirrors planner.Options in YAML form.
type PlannerConfig struct {
	DayStartHour         int    `yaml:"day_start_hour" json:"day_start_hour"`
	DayEndHour           int    `yaml:"day_end_hour" json:"day_end_hour"`
	MinGapMinutes        int    `yaml:"min_gap_minutes" json:"min_gap_minutes"`
	GapBufferMinutes     int    `yaml:"gap_buffer_minutes" json:"gap_buffer_minutes"`
	FilterBufferMinutes  int    `yaml:"filter_buffer_minutes" json:"filter_buffer_minutes"`
	ScoringBufferMinutes int    `yaml:"scoring_buffer_minutes" json:"scoring_buffer_minutes"`
	MaxSuggestions       int    `yaml:"max_suggestions" json:"max_suggestions"`
	RankingPolicy        string `yaml:"ranking_policy" json:"ranking_policy"`
	GeoCacheSize         int    `yaml:"geo_cache_size" json:"geo_cache_size"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to cut days (e.g. "America/New_York").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic calendar import.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Database is the SQLite file holding timelines and the activity pool.
	Database string `yaml:"database" json:"database"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`

	// ICS is the list of subscribed calendar sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	Candidates CandidatesConfig `yaml:"candidates" json:"candidates"`

	Planner PlannerConfig `yaml:"planner" json:"planner"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultPlannerConfig returns the planner defaults.
func DefaultPlannerConfig() PlannerConfig {
	o := planner.DefaultOptions()
	return PlannerConfig{
		DayStartHour:         o.DayStartHour,
		DayEndHour:           o.DayEndHour,
		MinGapMinutes:        o.MinGapMinutes,
		GapBufferMinutes:     o.GapBufferMinutes,
		FilterBufferMinutes:  o.FilterBufferMinutes,
		ScoringBufferMinutes: o.ScoringBufferMinutes,
		MaxSuggestions:       o.MaxSuggestions,
		RankingPolicy:        o.Policy.String(),
		GeoCacheSize:         1000,
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "UTC",
		RefreshCron: "*/15 * * * *",
		Database:    "./var/itincal.db",
		CacheDir:    "./var/ics-cache",
		LogLevel:    "info",
		ICS:         []ICSConfig{},
		Candidates: CandidatesConfig{
			WebhookTimeoutSeconds: 15,
		},
		Planner:   DefaultPlannerConfig(),
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.Candidates.WebhookTimeoutSeconds <= 0 {
		c.Candidates.WebhookTimeoutSeconds = d.Candidates.WebhookTimeoutSeconds
	}

	p := &c.Planner
	dp := d.Planner
	// Zero hours are legitimate (midnight start), so only the pair 0/0 is
	// treated as unset.
	if p.DayStartHour == 0 && p.DayEndHour == 0 {
		p.DayStartHour, p.DayEndHour = dp.DayStartHour, dp.DayEndHour
	}
	if p.MinGapMinutes <= 0 {
		p.MinGapMinutes = dp.MinGapMinutes
	}
	if p.GapBufferMinutes <= 0 {
		p.GapBufferMinutes = dp.GapBufferMinutes
	}
	if p.FilterBufferMinutes <= 0 {
		p.FilterBufferMinutes = dp.FilterBufferMinutes
	}
	if p.ScoringBufferMinutes <= 0 {
		p.ScoringBufferMinutes = dp.ScoringBufferMinutes
	}
	if p.MaxSuggestions <= 0 {
		p.MaxSuggestions = dp.MaxSuggestions
	}
	if p.RankingPolicy == "" {
		p.RankingPolicy = dp.RankingPolicy
	}
	if p.GeoCacheSize <= 0 {
		p.GeoCacheSize = dp.GeoCacheSize
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	p := c.Planner
	if p.DayStartHour < 0 || p.DayStartHour > 23 {
		errs = append(errs, fmt.Errorf("planner.day_start_hour %d out of range 0-23", p.DayStartHour))
	}
	if p.DayEndHour < 1 || p.DayEndHour > 24 {
		errs = append(errs, fmt.Errorf("planner.day_end_hour %d out of range 1-24", p.DayEndHour))
	}
	if p.DayEndHour <= p.DayStartHour {
		errs = append(errs, fmt.Errorf("planner.day_end_hour %d must be after day_start_hour %d", p.DayEndHour, p.DayStartHour))
	}
	if _, err := planner.ParsePolicy(p.RankingPolicy); err != nil {
		errs = append(errs, fmt.Errorf("planner.ranking_policy: %w", err))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	return errors.Join(errs...)
}

// PlannerOptions converts the planner section into planner.Options. An
// unknown policy falls back to duration-first; Validate reports it.
func (c *Config) PlannerOptions() planner.Options {
	policy, _ := planner.ParsePolicy(c.Planner.RankingPolicy)
	return planner.Options{
		DayStartHour:         c.Planner.DayStartHour,
		DayEndHour:           c.Planner.DayEndHour,
		MinGapMinutes:        c.Planner.MinGapMinutes,
		GapBufferMinutes:     c.Planner.GapBufferMinutes,
		FilterBufferMinutes:  c.Planner.FilterBufferMinutes,
		ScoringBufferMinutes: c.Planner.ScoringBufferMinutes,
		MaxSuggestions:       c.Planner.MaxSuggestions,
		Policy:               policy,
	}
}

// Environment overrides applied by ApplyEnv.
const (
	EnvListen     = "ITINCAL_LISTEN"
	EnvDatabase   = "ITINCAL_DB"
	EnvTimezone   = "ITINCAL_TIMEZONE"
	EnvWebhookURL = "ITINCAL_WEBHOOK_URL"
	EnvLogLevel   = "ITINCAL_LOG_LEVEL"
	EnvMaxSuggest = "ITINCAL_MAX_SUGGESTIONS"
)

// ApplyEnv loads the given .env files (missing files are ignored) and then
// applies ITINCAL_* variables on top of c.
func (c *Config) ApplyEnv(envFiles ...string) error {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Database = v
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv(EnvWebhookURL); v != "" {
		c.Candidates.WebhookURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvMaxSuggest); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxSuggest, err)
		}
		c.Planner.MaxSuggestions = n
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, write a default config with 0600 perms
//     and return it.
//   - If the file exists, read YAML, unmarshal into Config and normalize.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".itincal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
