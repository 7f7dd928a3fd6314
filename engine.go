package syncagent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// EngineConfig controls the sync engine's scheduling and policies.
type EngineConfig struct {
	// Workers bounds how many devices sync concurrently.
	Workers int
	// LightSyncInterval is the cadence of the periodic light pass.
	LightSyncInterval time.Duration
	// RetryScanInterval is how often due retries are picked up.
	RetryScanInterval time.Duration
	// ScanBatch caps how many hostnames one scheduler tick submits.
	ScanBatch int
	Score     ScoreConfig
	Retry     RetryPolicy
	// Alerts receives observable side effects; defaults to the structured log.
	Alerts AlertSink
}

// Engine reconciles inventory records against the external endpoint-security
// authority. All outbound queries go through the shared rate limiter, and
// per-hostname serialization guarantees a device never has two sync attempts
// in flight.
type Engine struct {
	cfg     EngineConfig
	store   Store
	source  SecuritySource
	limiter *TokenBucket
	locks   *hostLocks
	alerts  AlertSink
	clock   func() time.Time
}

type syncRequest struct {
	hostname string
	mode     SyncMode
}

// SyncResult summarizes one completed sync attempt.
type SyncResult struct {
	Hostname string
	Status   SyncStatus
	Score    *int
	Outcome  SyncLogStatus
	Message  string
	RateWait time.Duration
}

// NewEngine wires the engine with its collaborators. limiter may be nil when
// no external ceiling applies.
func NewEngine(store Store, source SecuritySource, limiter *TokenBucket, cfg EngineConfig) (*Engine, error) {
	if store == nil {
		return nil, errors.New("engine: store cannot be nil")
	}
	if source == nil {
		return nil, errors.New("engine: security source cannot be nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.LightSyncInterval <= 0 {
		cfg.LightSyncInterval = time.Hour
	}
	if cfg.RetryScanInterval <= 0 {
		cfg.RetryScanInterval = time.Minute
	}
	if cfg.ScanBatch <= 0 {
		cfg.ScanBatch = 100
	}
	if cfg.Score == (ScoreConfig{}) {
		cfg.Score = DefaultScoreConfig()
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	alerts := cfg.Alerts
	if alerts == nil {
		alerts = logAlertSink{}
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		source:  source,
		limiter: limiter,
		locks:   newHostLocks(),
		alerts:  alerts,
		clock:   time.Now,
	}, nil
}

// Sync reconciles one device against the external authority. It blocks until
// any in-flight attempt for the same hostname finishes, then holds the
// per-hostname lock for the duration of the attempt.
func (e *Engine) Sync(ctx context.Context, hostname string, mode SyncMode) (*SyncResult, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return nil, errors.Wrap(ErrUnknownDevice, "engine: blank hostname")
	}
	release := e.locks.lock(hostname)
	defer release()
	return e.syncLocked(ctx, hostname, mode)
}

// trySync is the scheduler entry point: when the hostname is already in
// flight the submission is dropped, the device stays due and is picked up by
// a later tick.
func (e *Engine) trySync(ctx context.Context, hostname string, mode SyncMode) {
	release, ok := e.locks.tryLock(hostname)
	if !ok {
		log.Debug().Str("hostname", hostname).Msg("engine: sync already in flight, skipping")
		return
	}
	defer release()
	if _, err := e.syncLocked(ctx, hostname, mode); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("hostname", hostname).Str("mode", string(mode)).Msg("engine: scheduled sync failed")
	}
}

func (e *Engine) syncLocked(ctx context.Context, hostname string, mode SyncMode) (*SyncResult, error) {
	dev, err := e.store.Device(ctx, hostname)
	if err != nil {
		return nil, err
	}

	wait, err := e.limiter.Acquire(ctx)
	if err != nil {
		// Cancelled while waiting for a token: abandon without writes.
		return nil, errors.Wrap(err, "engine: rate limit wait aborted")
	}
	if wait > 0 {
		log.Debug().Str("hostname", hostname).Dur("rate_wait", wait).Msg("engine: rate limit wait")
	}

	record, lookupErr := e.source.LookupAgent(ctx, hostname)
	if lookupErr != nil && ctx.Err() != nil {
		// Process shutdown mid-attempt: no partial writes, re-evaluated on restart.
		return nil, errors.Wrap(ctx.Err(), "engine: sync abandoned")
	}

	now := e.clock()
	entry := &SyncLogEntry{
		ID:        uuid.NewString(),
		Hostname:  hostname,
		Timestamp: now,
		SyncType:  mode,
		RateWait:  wait,
	}

	var alert *Alert
	switch {
	case errors.Is(lookupErr, ErrAgentNotFound):
		// Permanent: terminal for this import, no retry.
		dev.SyncStatus = SyncStatusNotAvailable
		dev.SyncError = "Agent not found"
		dev.NextRetryAt = nil
		dev.RetryAttempts = 0
		entry.Status = SyncLogFailed
		entry.Message = "Agent not found"

	case lookupErr != nil:
		// Transient transport failure: keep retrying on the backoff policy.
		dev.SyncStatus = SyncStatusFailed
		dev.SyncError = lookupErr.Error()
		entry.Status = SyncLogFailed
		entry.Message = lookupErr.Error()
		if !e.scheduleRetry(dev, now) {
			dev.SyncStatus = SyncStatusNotAvailable
			dev.SyncError = "retry attempts exhausted: " + lookupErr.Error()
			entry.Message = dev.SyncError
		}

	case record.Status == AgentDisconnected:
		dev.SyncStatus = SyncStatusPartial
		dev.Monitoring = MonitoringNo
		dev.SyncError = "agent disconnected"
		entry.Status = SyncLogPartial
		// An agent that never connected has no keep-alive; keep whatever
		// last_seen we already hold rather than writing the zero time.
		keepAliveNote := "unknown"
		if keepAlive := record.LastKeepAlive; !keepAlive.IsZero() {
			dev.LastSeen = &keepAlive
			keepAliveNote = keepAlive.Format(time.RFC3339)
		}
		entry.Message = fmt.Sprintf("agent disconnected, last keep-alive %s", keepAliveNote)
		if !e.scheduleRetry(dev, now) {
			dev.SyncStatus = SyncStatusNotAvailable
			dev.SyncError = "agent disconnected, retry attempts exhausted"
			entry.Status = SyncLogFailed
			entry.Message = dev.SyncError
		}

	default:
		previousCritical := dev.Security.Critical
		hadScore := dev.ComplianceScore != nil

		dev.SyncStatus = SyncStatusSynced
		dev.LastSeen = &now
		dev.Monitoring = MonitoringYes
		dev.Security = record.Vulnerabilities
		score := e.cfg.Score.Score(ScoreInput{
			SCAScore:      record.SCAScore,
			CriticalCount: record.Vulnerabilities.Critical,
			HighCount:     record.Vulnerabilities.High,
			Controls:      record.Controls,
		})
		dev.ComplianceScore = &score
		sca := record.SCAScore
		dev.SCAScore = &sca
		dev.SyncError = ""
		dev.NextRetryAt = nil
		dev.RetryAttempts = 0
		if mode == SyncModeFull {
			osInfo := record.OS
			hw := record.Hardware
			dev.OS = &osInfo
			dev.Hardware = &hw
		}
		entry.Status = SyncLogSuccess
		entry.Message = fmt.Sprintf("compliance score %d", score)

		if mode == SyncModeLight && hadScore && record.Vulnerabilities.Critical > previousCritical {
			alert = &Alert{
				Type:     AlertCriticalVulnerabilities,
				Hostname: hostname,
				Previous: previousCritical,
				Current:  record.Vulnerabilities.Critical,
				At:       now,
			}
		}
	}

	dev.UpdatedAt = now
	if err := e.store.ApplySync(ctx, dev, entry); err != nil {
		// Fatal for this device only; callers surface it for alerting.
		return nil, errors.Wrapf(err, "engine: commit sync for %s failed", hostname)
	}

	if alert != nil {
		e.alerts.Raise(ctx, *alert)
	}

	log.Info().
		Str("hostname", hostname).
		Str("mode", string(mode)).
		Str("status", string(dev.SyncStatus)).
		Str("outcome", string(entry.Status)).
		Dur("rate_wait", wait).
		Msg("engine: device synced")

	return &SyncResult{
		Hostname: hostname,
		Status:   dev.SyncStatus,
		Score:    dev.ComplianceScore,
		Outcome:  entry.Status,
		Message:  entry.Message,
		RateWait: wait,
	}, nil
}

// scheduleRetry books the next attempt under the backoff policy. It returns
// false once the policy is exhausted; the caller then moves the device to a
// terminal status so it is not stranded outside both scheduler scans.
func (e *Engine) scheduleRetry(dev *Device, now time.Time) bool {
	next, ok := e.cfg.Retry.Next(dev.RetryAttempts, now)
	if !ok {
		log.Warn().Str("hostname", dev.Hostname).Int("attempts", dev.RetryAttempts).Msg("engine: retry attempts exhausted")
		dev.NextRetryAt = nil
		dev.RetryAttempts = 0
		return false
	}
	dev.NextRetryAt = &next
	dev.RetryAttempts++
	return true
}

// Start runs the background schedulers and the bounded worker pool until the
// context is cancelled. The light-sync cadence and the retry scan are
// independent; per-hostname serialization keeps them from racing on a device.
func (e *Engine) Start(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	requests := make(chan syncRequest)

	for i := 0; i < e.cfg.Workers; i++ {
		groupGoSafe(ctx, group, "sync worker", func(ctx context.Context) error {
			return e.worker(ctx, requests)
		})
	}
	groupGoSafe(ctx, group, "light sync cadence", func(ctx context.Context) error {
		return e.scanLoop(ctx, requests, e.cfg.LightSyncInterval, SyncModeLight, e.lightSyncBatch)
	})
	groupGoSafe(ctx, group, "retry scan", func(ctx context.Context) error {
		return e.scanLoop(ctx, requests, e.cfg.RetryScanInterval, SyncModeFull, e.retryBatch)
	})

	log.Info().
		Int("workers", e.cfg.Workers).
		Dur("light_sync_interval", e.cfg.LightSyncInterval).
		Dur("retry_scan_interval", e.cfg.RetryScanInterval).
		Msg("engine: started")
	return group.Wait()
}

func (e *Engine) worker(ctx context.Context, requests <-chan syncRequest) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-requests:
			e.trySync(ctx, req.hostname, req.mode)
		}
	}
}

func (e *Engine) scanLoop(ctx context.Context, requests chan<- syncRequest, interval time.Duration, mode SyncMode, batch func(context.Context) ([]string, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		hostnames, err := batch(ctx)
		if err != nil {
			log.Error().Err(err).Str("mode", string(mode)).Msg("engine: scheduler scan failed")
			continue
		}
		for _, hostname := range hostnames {
			select {
			case <-ctx.Done():
				return nil
			case requests <- syncRequest{hostname: hostname, mode: mode}:
			}
		}
	}
}

func (e *Engine) lightSyncBatch(ctx context.Context) ([]string, error) {
	return e.store.LightSyncCandidates(ctx, e.cfg.ScanBatch)
}

func (e *Engine) retryBatch(ctx context.Context) ([]string, error) {
	return e.store.DueRetries(ctx, e.clock(), e.cfg.ScanBatch)
}
