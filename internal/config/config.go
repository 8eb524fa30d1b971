package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "THREATWATCH_CONFIG"
	databaseDSNEnv  = "DATABASE_DSN"
	artifactPathEnv = "THREATWATCH_ARTIFACTS"
	intervalEnv     = "THREATWATCH_INTERVAL"
	logLevelEnv     = "THREATWATCH_LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Drift     DriftConfig     `yaml:"drift"`
	Training  TrainingConfig  `yaml:"training"`
	Retention RetentionConfig `yaml:"retention"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Sources   []SourceConfig  `yaml:"sources"`
}

// LoggingConfig selects the slog level and output encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN
// selects the in-memory store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines the pipeline poll cadence as a cron spec and
// how long shutdown waits for an in-flight cycle.
type SchedulerConfig struct {
	Spec     string        `yaml:"spec"`
	Shutdown time.Duration `yaml:"shutdown"`
}

// IngestConfig bounds feed fetching and store write pressure.
type IngestConfig struct {
	SourceTimeout  time.Duration `yaml:"sourceTimeout"`
	MaxParallel    int           `yaml:"maxParallel"`
	PerSourceLimit int           `yaml:"perSourceLimit"`
	Throttle       time.Duration `yaml:"throttle"`
}

// DriftConfig tunes the drift monitor.
type DriftConfig struct {
	MinSamples int     `yaml:"minSamples"`
	Threshold  float64 `yaml:"threshold"`
}

// TrainingConfig tunes the retraining policy.
type TrainingConfig struct {
	MinCorpus int           `yaml:"minCorpus"`
	Staleness time.Duration `yaml:"staleness"`
}

// RetentionConfig holds the two purge tiers.
type RetentionConfig struct {
	ShortWindow time.Duration `yaml:"shortWindow"`
	LongWindow  time.Duration `yaml:"longWindow"`
}

// ArtifactsConfig locates the model artifact database and drift state
// record.
type ArtifactsConfig struct {
	Path      string `yaml:"path"`
	StatePath string `yaml:"statePath"`
}

// SourceConfig describes a single feed endpoint with its fetch strategy.
type SourceConfig struct {
	Name     string            `yaml:"name"`
	URL      string            `yaml:"url"`
	Category string            `yaml:"category"`
	Fetcher  string            `yaml:"fetcher"`
	Options  map[string]string `yaml:"options"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(artifactPathEnv); v != "" {
		c.Artifacts.Path = v
	}
	if v := os.Getenv(intervalEnv); v != "" {
		c.Scheduler.Spec = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}
	if override.Database.DSN != "" {
		base.Database = override.Database
	}
	if override.Scheduler.Spec != "" {
		base.Scheduler.Spec = override.Scheduler.Spec
	}
	if override.Scheduler.Shutdown > 0 {
		base.Scheduler.Shutdown = override.Scheduler.Shutdown
	}

	if override.Ingest.SourceTimeout > 0 {
		base.Ingest.SourceTimeout = override.Ingest.SourceTimeout
	}
	if override.Ingest.MaxParallel > 0 {
		base.Ingest.MaxParallel = override.Ingest.MaxParallel
	}
	if override.Ingest.PerSourceLimit > 0 {
		base.Ingest.PerSourceLimit = override.Ingest.PerSourceLimit
	}
	if override.Ingest.Throttle > 0 {
		base.Ingest.Throttle = override.Ingest.Throttle
	}

	if override.Drift.MinSamples > 0 {
		base.Drift.MinSamples = override.Drift.MinSamples
	}
	if override.Drift.Threshold > 0 {
		base.Drift.Threshold = override.Drift.Threshold
	}

	if override.Training.MinCorpus > 0 {
		base.Training.MinCorpus = override.Training.MinCorpus
	}
	if override.Training.Staleness > 0 {
		base.Training.Staleness = override.Training.Staleness
	}

	if override.Retention.ShortWindow > 0 {
		base.Retention.ShortWindow = override.Retention.ShortWindow
	}
	if override.Retention.LongWindow > 0 {
		base.Retention.LongWindow = override.Retention.LongWindow
	}

	if override.Artifacts.Path != "" {
		base.Artifacts.Path = override.Artifacts.Path
	}
	if override.Artifacts.StatePath != "" {
		base.Artifacts.StatePath = override.Artifacts.StatePath
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Database:  DatabaseConfig{DSN: ""},
		Scheduler: SchedulerConfig{Spec: "@every 150s", Shutdown: 2 * time.Minute},
		Ingest: IngestConfig{
			SourceTimeout:  20 * time.Second,
			MaxParallel:    4,
			PerSourceLimit: 25,
			Throttle:       50 * time.Millisecond,
		},
		Drift: DriftConfig{
			MinSamples: 20,
			Threshold:  0.35,
		},
		Training: TrainingConfig{
			MinCorpus: 5,
			Staleness: 7 * 24 * time.Hour,
		},
		Retention: RetentionConfig{
			ShortWindow: 60 * 24 * time.Hour,
			LongWindow:  120 * 24 * time.Hour,
		},
		Artifacts: ArtifactsConfig{
			Path:      "threatwatch-models.db",
			StatePath: "drift_state.json",
		},
		Sources: []SourceConfig{
			{Name: "CISA Advisories", URL: "https://www.cisa.gov/cybersecurity-advisories/all.xml", Category: "Government Advisory", Fetcher: "rss"},
			{Name: "NCSC UK", URL: "https://www.ncsc.gov.uk/api/1/services/v1/all-rss-feed.xml", Category: "Government Advisory", Fetcher: "rss"},
			{Name: "The Hacker News", URL: "https://feeds.feedburner.com/TheHackersNews", Category: "Cyber News", Fetcher: "rss"},
			{Name: "BleepingComputer", URL: "https://www.bleepingcomputer.com/feed/", Category: "Cyber News", Fetcher: "rss"},
			{Name: "Dark Reading", URL: "https://www.darkreading.com/rss.xml", Category: "Cyber News", Fetcher: "rss"},
			{Name: "SecurityWeek", URL: "https://feeds.feedburner.com/securityweek", Category: "Security Research", Fetcher: "rss"},
			{Name: "Krebs on Security", URL: "https://krebsonsecurity.com/feed/", Category: "Security Research", Fetcher: "rss"},
			{Name: "NVD Vulnerabilities", URL: "https://nvd.nist.gov/feeds/xml/cve/misc/nvd-rss.xml", Category: "Vulnerability", Fetcher: "rss"},
			{Name: "Microsoft Security Blog", URL: "https://www.microsoft.com/security/blog/feed/", Category: "Cloud Security", Fetcher: "rss"},
			{Name: "Google Security Blog", URL: "https://security.googleblog.com/feeds/posts/default", Category: "Cloud Security", Fetcher: "rss"},
		},
	}
}
