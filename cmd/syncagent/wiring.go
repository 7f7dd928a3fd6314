package main

import (
	"github.com/pkg/errors"

	"github.com/assetwatch/syncagent"
	"github.com/assetwatch/syncagent/internal/config"
	"github.com/assetwatch/syncagent/internal/securityapi"
	"github.com/assetwatch/syncagent/pkg/storage"
)

func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(rootConfigPath)
	if err != nil {
		return nil, err
	}
	if rootDBPath != "" {
		settings.DatabasePath = rootDBPath
	}
	return settings, nil
}

func openStore(settings *config.Settings) (*storage.SQLiteStore, error) {
	return storage.Open(settings.DatabasePath)
}

// buildEngine wires store, client, rate limiter and engine from settings.
// The caller owns closing the returned store.
func buildEngine(settings *config.Settings) (*syncagent.Engine, *storage.SQLiteStore, error) {
	store, err := openStore(settings)
	if err != nil {
		return nil, nil, err
	}
	source, err := securityapi.NewClient(settings.APIBaseURL, settings.APIToken, securityapi.Options{
		RetryMax: settings.APIRetry,
		Timeout:  settings.APITimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, errors.Wrap(err, "build security source failed")
	}
	limiter := syncagent.NewTokenBucket(settings.RateLimitBurst, settings.RateLimitPerMinute)
	engine, err := syncagent.NewEngine(store, source, limiter, syncagent.EngineConfig{
		Workers:           settings.Workers,
		LightSyncInterval: settings.LightSyncInterval,
		RetryScanInterval: settings.RetryScanInterval,
		Score: syncagent.ScoreConfig{
			CriticalWeight: settings.ScoreCriticalWeight,
			HighWeight:     settings.ScoreHighWeight,
			SCAShare:       0.5,
			VulnShare:      0.3,
			ControlShare:   0.2,
		},
		Retry: syncagent.RetryPolicy{
			Backoff:     settings.RetryBackoff,
			Multiplier:  settings.RetryMultiplier,
			MaxBackoff:  settings.RetryMaxBackoff,
			MaxAttempts: settings.RetryMaxAttempts,
		},
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return engine, store, nil
}
