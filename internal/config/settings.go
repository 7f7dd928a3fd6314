package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Environment variable names understood by the agent. A YAML settings file
// provides the base values; environment variables override it.
const (
	EnvDatabasePath       = "SYNCAGENT_DB_PATH"
	EnvAPIBaseURL         = "SECURITY_API_URL"
	EnvAPIToken           = "SECURITY_API_TOKEN"
	EnvAPIRetryMax        = "SECURITY_API_RETRY_MAX"
	EnvAPITimeout         = "SECURITY_API_TIMEOUT"
	EnvRateLimitPerMinute = "SYNC_RATE_LIMIT_PER_MINUTE"
	EnvRateLimitBurst     = "SYNC_RATE_LIMIT_BURST"
	EnvWorkers            = "SYNC_WORKERS"
	EnvLightSyncInterval  = "SYNC_LIGHT_INTERVAL"
	EnvRetryScanInterval  = "SYNC_RETRY_SCAN_INTERVAL"
	EnvRetryBackoff       = "SYNC_RETRY_BACKOFF"
	EnvRetryMultiplier    = "SYNC_RETRY_MULTIPLIER"
	EnvRetryMaxBackoff    = "SYNC_RETRY_MAX_BACKOFF"
	EnvRetryMaxAttempts   = "SYNC_RETRY_MAX_ATTEMPTS"
	EnvScoreCriticalW     = "SCORE_CRITICAL_WEIGHT"
	EnvScoreHighW         = "SCORE_HIGH_WEIGHT"
)

// Settings is the resolved agent configuration.
type Settings struct {
	DatabasePath string

	APIBaseURL string
	APIToken   string
	APIRetry   int
	APITimeout time.Duration

	RateLimitPerMinute int
	RateLimitBurst     int

	Workers           int
	LightSyncInterval time.Duration
	RetryScanInterval time.Duration

	RetryBackoff     time.Duration
	RetryMultiplier  float64
	RetryMaxBackoff  time.Duration
	RetryMaxAttempts int

	ScoreCriticalWeight int
	ScoreHighWeight     int
}

// fileSettings is the YAML shape. Durations are strings ("30m", "1h") and
// every field is optional; unset keys keep their defaults.
type fileSettings struct {
	DatabasePath        *string  `yaml:"database_path"`
	APIBaseURL          *string  `yaml:"api_base_url"`
	APIToken            *string  `yaml:"api_token"`
	APIRetry            *int     `yaml:"api_retry_max"`
	APITimeout          *string  `yaml:"api_timeout"`
	RateLimitPerMinute  *int     `yaml:"rate_limit_per_minute"`
	RateLimitBurst      *int     `yaml:"rate_limit_burst"`
	Workers             *int     `yaml:"workers"`
	LightSyncInterval   *string  `yaml:"light_sync_interval"`
	RetryScanInterval   *string  `yaml:"retry_scan_interval"`
	RetryBackoff        *string  `yaml:"retry_backoff"`
	RetryMultiplier     *float64 `yaml:"retry_multiplier"`
	RetryMaxBackoff     *string  `yaml:"retry_max_backoff"`
	RetryMaxAttempts    *int     `yaml:"retry_max_attempts"`
	ScoreCriticalWeight *int     `yaml:"score_critical_weight"`
	ScoreHighWeight     *int     `yaml:"score_high_weight"`
}

func defaults() Settings {
	return Settings{
		DatabasePath:        "syncagent.sqlite",
		APIRetry:            3,
		APITimeout:          30 * time.Second,
		RateLimitPerMinute:  60,
		RateLimitBurst:      60,
		Workers:             4,
		LightSyncInterval:   time.Hour,
		RetryScanInterval:   time.Minute,
		RetryBackoff:        time.Hour,
		RetryMultiplier:     1,
		ScoreCriticalWeight: 25,
		ScoreHighWeight:     10,
	}
}

// Load resolves settings from defaults, an optional YAML file, then the
// environment, in that order of precedence (later wins).
func Load(path string) (*Settings, error) {
	s := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "config: read settings file %s failed", path)
		}
		var file fileSettings
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, errors.Wrapf(err, "config: parse settings file %s failed", path)
		}
		if err := file.apply(&s); err != nil {
			return nil, errors.Wrapf(err, "config: invalid settings file %s", path)
		}
	}

	s.DatabasePath = String(EnvDatabasePath, s.DatabasePath)
	s.APIBaseURL = String(EnvAPIBaseURL, s.APIBaseURL)
	s.APIToken = String(EnvAPIToken, s.APIToken)
	s.APIRetry = Int(EnvAPIRetryMax, s.APIRetry)
	s.APITimeout = Duration(EnvAPITimeout, s.APITimeout)
	s.RateLimitPerMinute = Int(EnvRateLimitPerMinute, s.RateLimitPerMinute)
	s.RateLimitBurst = Int(EnvRateLimitBurst, s.RateLimitBurst)
	s.Workers = Int(EnvWorkers, s.Workers)
	s.LightSyncInterval = Duration(EnvLightSyncInterval, s.LightSyncInterval)
	s.RetryScanInterval = Duration(EnvRetryScanInterval, s.RetryScanInterval)
	s.RetryBackoff = Duration(EnvRetryBackoff, s.RetryBackoff)
	s.RetryMultiplier = Float(EnvRetryMultiplier, s.RetryMultiplier)
	s.RetryMaxBackoff = Duration(EnvRetryMaxBackoff, s.RetryMaxBackoff)
	s.RetryMaxAttempts = Int(EnvRetryMaxAttempts, s.RetryMaxAttempts)
	s.ScoreCriticalWeight = Int(EnvScoreCriticalW, s.ScoreCriticalWeight)
	s.ScoreHighWeight = Int(EnvScoreHighW, s.ScoreHighWeight)
	return &s, nil
}

func (f *fileSettings) apply(s *Settings) error {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setDuration := func(dst *time.Duration, src *string) error {
		if src == nil {
			return nil
		}
		parsed, err := time.ParseDuration(*src)
		if err != nil {
			return err
		}
		*dst = parsed
		return nil
	}

	setString(&s.DatabasePath, f.DatabasePath)
	setString(&s.APIBaseURL, f.APIBaseURL)
	setString(&s.APIToken, f.APIToken)
	setInt(&s.APIRetry, f.APIRetry)
	setInt(&s.RateLimitPerMinute, f.RateLimitPerMinute)
	setInt(&s.RateLimitBurst, f.RateLimitBurst)
	setInt(&s.Workers, f.Workers)
	setInt(&s.RetryMaxAttempts, f.RetryMaxAttempts)
	setInt(&s.ScoreCriticalWeight, f.ScoreCriticalWeight)
	setInt(&s.ScoreHighWeight, f.ScoreHighWeight)
	if f.RetryMultiplier != nil {
		s.RetryMultiplier = *f.RetryMultiplier
	}
	for _, pair := range []struct {
		dst *time.Duration
		src *string
	}{
		{&s.APITimeout, f.APITimeout},
		{&s.LightSyncInterval, f.LightSyncInterval},
		{&s.RetryScanInterval, f.RetryScanInterval},
		{&s.RetryBackoff, f.RetryBackoff},
		{&s.RetryMaxBackoff, f.RetryMaxBackoff},
	} {
		if err := setDuration(pair.dst, pair.src); err != nil {
			return err
		}
	}
	return nil
}
