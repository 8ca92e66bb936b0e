package weather

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"
)

// RefreshAll re-fetches every stored record by the key it was created with and
// overwrites its temperature and description. A failing record is skipped and the
// sweep continues. Only one sweep runs at a time; overlapping calls get
// ErrSweepInProgress.
func (s *Service) RefreshAll(ctx context.Context) (SweepReport, error) {
	if !s.sweeping.CAS(false, true) {
		return SweepReport{}, ErrSweepInProgress
	}
	defer s.sweeping.Store(false)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "weather.RefreshAll")
	defer span.End()

	report := SweepReport{StartedAt: s.now()}

	records, err := s.store.FindAll(ctx)
	if err != nil {
		span.RecordError(err)
		return report, fmt.Errorf("list weather records: %w", err)
	}
	report.Total = len(records)

	var (
		wg        sync.WaitGroup
		refreshed = atomic.NewInt64(0)
		failed    = atomic.NewInt64(0)
		sem       = make(chan struct{}, s.refreshConcurrency)
	)

	s.logger.Info("refresh sweep started", "records", len(records))

dispatch:
	for i, rec := range records {
		if ctx.Err() != nil {
			failed.Add(int64(len(records) - i))
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			failed.Add(int64(len(records) - i))
			break dispatch
		}

		wg.Add(1)
		go func(rec WeatherRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.refreshRecord(ctx, rec); err != nil {
				failed.Inc()
				s.logger.Warn("refresh skipped record",
					"id", rec.ID,
					"key", rec.SourceKey().String(),
					"error", err,
				)
				return
			}
			refreshed.Inc()
		}(rec)
	}
	wg.Wait()

	report.Refreshed = int(refreshed.Load())
	report.Failed = int(failed.Load())
	report.Duration = s.now().Sub(report.StartedAt)

	span.SetAttributes(
		attribute.Int("weather.sweep.total", report.Total),
		attribute.Int("weather.sweep.refreshed", report.Refreshed),
		attribute.Int("weather.sweep.failed", report.Failed),
	)
	s.logger.Info("refresh sweep completed",
		"total", report.Total,
		"refreshed", report.Refreshed,
		"failed", report.Failed,
		"duration", report.Duration,
	)

	return report, ctx.Err()
}

// Sweeping reports whether a refresh sweep is currently running.
func (s *Service) Sweeping() bool {
	return s.sweeping.Load()
}

func (s *Service) refreshRecord(ctx context.Context, rec WeatherRecord) error {
	key := rec.SourceKey()
	if key.Value == "" {
		return fmt.Errorf("record %s has no lookup key", rec.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, s.recordTimeout)
	defer cancel()

	reading, err := s.provider.Fetch(ctx, key.Value)
	if err != nil {
		return err
	}

	rec.apply(reading, s.now())
	if _, err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save refreshed record: %w", err)
	}
	return nil
}
