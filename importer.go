package syncagent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ImportRow is one raw row of a bulk upload, before validation.
type ImportRow struct {
	Hostname       string
	Ownership      string
	BusinessImpact string
	Criticality    string
}

// ImportError reports why one row was rejected. Row numbers are 1-based.
type ImportError struct {
	Row    int
	Reason string
}

// ImportResult aggregates a bulk import: valid rows are persisted, invalid
// rows are reported individually, the batch never aborts.
type ImportResult struct {
	CreatedCount int
	Errors       []ImportError
}

// Importer validates and ingests batches of device rows into the inventory.
type Importer struct {
	store Store
	clock func() time.Time
}

// NewImporter builds an importer backed by the given store.
func NewImporter(store Store) *Importer {
	return &Importer{store: store, clock: time.Now}
}

// Import validates each row independently and persists the valid ones as new
// devices in not_synced state. Within a batch the first occurrence of a
// hostname wins; later duplicates are rejected one by one. A hostname already
// present in the inventory is rejected the same way.
func (i *Importer) Import(ctx context.Context, rows []ImportRow) (*ImportResult, error) {
	if i == nil || i.store == nil {
		return nil, errors.New("importer: store is nil")
	}
	result := &ImportResult{}
	seen := make(map[string]struct{}, len(rows))

	for idx, row := range rows {
		rowNum := idx + 1
		reject := func(reason string) {
			result.Errors = append(result.Errors, ImportError{Row: rowNum, Reason: reason})
		}

		hostname := strings.TrimSpace(row.Hostname)
		if hostname == "" {
			reject("hostname is required")
			continue
		}
		key := strings.ToLower(hostname)
		if _, dup := seen[key]; dup {
			reject(fmt.Sprintf("duplicate hostname %q", hostname))
			continue
		}

		ownership, err := ParseOwnership(row.Ownership)
		if err != nil {
			reject(err.Error())
			continue
		}
		impact, err := ParseImpactLevel(row.BusinessImpact)
		if err != nil {
			reject(err.Error())
			continue
		}
		criticality, err := ParseImpactLevel(row.Criticality)
		if err != nil {
			reject(err.Error())
			continue
		}

		// The row is valid; it claims the hostname even if persistence fails,
		// so a later duplicate in the same batch is still reported as one.
		seen[key] = struct{}{}

		now := i.clock()
		dev := &Device{
			Hostname:       hostname,
			Ownership:      ownership,
			BusinessImpact: impact,
			Criticality:    criticality,
			SyncStatus:     SyncStatusNotSynced,
			Monitoring:     MonitoringNo,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := i.store.CreateDevice(ctx, dev); err != nil {
			if errors.Is(err, ErrDeviceExists) {
				reject(fmt.Sprintf("hostname %q already exists", hostname))
				continue
			}
			// Storage failure stays row-scoped; sibling rows proceed.
			log.Error().Err(err).Str("hostname", hostname).Int("row", rowNum).Msg("importer: persist device failed")
			reject(fmt.Sprintf("storage error: %v", err))
			continue
		}
		result.CreatedCount++
	}

	log.Info().
		Int("rows", len(rows)).
		Int("created", result.CreatedCount).
		Int("errors", len(result.Errors)).
		Msg("importer: batch finished")
	return result, nil
}
