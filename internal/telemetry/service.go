package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Service orchestrates one ingestion cycle: fetch the primary feed for every
// known station, backfill gaps from the secondary feed, merge with primary
// precedence, correct day-boundary anomalies, persist, export and publish
// the snapshot.
type Service struct {
	directory Directory
	primary   Source
	secondary Source
	store     Store
	cache     SnapshotCache
	exporter  DailyExporter

	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// ServiceConfig bundles the collaborators of a Service. Cache and Exporter
// are optional.
type ServiceConfig struct {
	Directory Directory
	Primary   Source
	Secondary Source
	Store     Store
	Cache     SnapshotCache
	Exporter  DailyExporter
	Location  *time.Location
	Now       func() time.Time
	Logger    zerolog.Logger
}

// NewService creates a new Service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		directory: cfg.Directory,
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		store:     cfg.Store,
		cache:     cfg.Cache,
		exporter:  cfg.Exporter,
		loc:       loc,
		now:       now,
		logger:    cfg.Logger,
	}
}

// FetchAndMerge produces one canonical row per known station. A failing
// source degrades to "no data" for this cycle; it never aborts the other
// source's contribution.
func (s *Service) FetchAndMerge(ctx context.Context) []Observation {
	ids := s.directory.IDs()
	if len(ids) == 0 {
		return nil
	}

	primary := s.fetch(ctx, s.primary, ids)

	// A station needs backfill when the primary feed skipped it or reported
	// no wind speed.
	var backfill []string
	for _, id := range ids {
		frag, ok := primary[id]
		if !ok || frag.Speed == nil {
			backfill = append(backfill, id)
		}
	}

	secondary := map[string]Fragment{}
	if len(backfill) > 0 {
		secondary = s.fetch(ctx, s.secondary, backfill)
	}

	rows := make([]Observation, 0, len(ids))
	for _, id := range ids {
		base := primary[id]
		if base.Speed == nil {
			base.Overlay(secondary[id])
		}

		var name *string
		if n := s.directory.DisplayName(id); n != "" {
			name = &n
		}
		rows = append(rows, Observation{StationID: id, Name: name, Fragment: base})
	}

	CorrectRows(rows)
	return rows
}

func (s *Service) fetch(ctx context.Context, src Source, ids []string) map[string]Fragment {
	if src == nil {
		return map[string]Fragment{}
	}
	frags, err := src.Fetch(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Str("source", src.Name()).Msg("source fetch failed; treating as empty")
		return map[string]Fragment{}
	}
	return frags
}

// RunCycle executes one full fetch-merge-correct-persist cycle. The snapshot
// is replaced only after the batch is durably stored, so query callers see
// either the previous cycle or this one, never a mix.
func (s *Service) RunCycle(ctx context.Context) error {
	rows := s.FetchAndMerge(ctx)
	if len(rows) == 0 {
		s.logger.Warn().Msg("cycle produced no rows; keeping last good snapshot")
		return nil
	}

	stored, err := s.store.Upsert(ctx, rows)
	if err != nil {
		return fmt.Errorf("upsert observations: %w", err)
	}

	if s.exporter != nil {
		s.exportDay(ctx, rows)
	}

	if s.cache != nil {
		s.cache.Replace(rows, s.now().In(s.loc))
	}

	s.logger.Info().Int("rows", len(rows)).Int("stored", stored).Msg("cycle complete")
	return nil
}

// exportDay rewrites the daily artifact for the civil day of the cycle's
// first observation. Export failure is logged; it does not fail the cycle.
func (s *Service) exportDay(ctx context.Context, rows []Observation) {
	var obsTime time.Time
	if rows[0].ObsTime != nil {
		if t, ok := ParseCivil(*rows[0].ObsTime); ok {
			obsTime = t
		}
	}
	if obsTime.IsZero() {
		obsTime = s.now().In(s.loc)
	}

	if path, err := s.exporter.WriteFor(ctx, obsTime); err != nil {
		s.logger.Error().Err(err).Msg("daily export failed")
	} else {
		s.logger.Debug().Str("file", path).Msg("daily export written")
	}
}

// PruneRetention deletes observations older than the retention horizon and
// returns the number removed.
func (s *Service) PruneRetention(ctx context.Context, hours int) (int64, error) {
	cutoff := FormatCivil(s.now().In(s.loc).Add(-time.Duration(hours) * time.Hour))
	deleted, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune observations: %w", err)
	}
	s.logger.Info().Str("cutoff", cutoff).Int64("deleted", deleted).Msg("pruned old observations")
	return deleted, nil
}
