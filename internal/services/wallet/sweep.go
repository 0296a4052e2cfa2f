package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fastprodman/billwallet/internal/gateway"
	"github.com/fastprodman/billwallet/internal/models"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const maxAgeReason = "pending beyond max age"

// Sweep reconciles stale pending entries. Each entry is requeried with its
// provider and settled when the answer is definitive. Entries older than
// the max pending age are force refunded.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	cfg := s.cfg.Sweep
	now := s.now()

	list, err := s.store.PendingBefore(ctx, now.Add(-cfg.StaleAfter), cfg.BatchSize)
	if err != nil {
		s.metrics.SweepRun("error", now)
		return SweepReport{}, fmt.Errorf("sweep: %w", err)
	}

	var (
		mu     sync.Mutex
		report = SweepReport{Scanned: len(list)}
		g      errgroup.Group
	)

	g.SetLimit(max(cfg.Concurrency, 1))

	for _, t := range list {
		g.Go(func() error {
			status, err := s.sweepOne(ctx, now, t)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				report.Errors++
				slog.ErrorContext(ctx, "sweep entry failed", "reference", t.Reference, "error", err)

				return nil
			}

			switch status {
			case models.StatusCompleted:
				report.Completed++
			case models.StatusFailed:
				report.Failed++
			case models.StatusRefunded:
				report.Refunded++
			default:
				report.StillPending++
			}

			if status != models.StatusPending {
				s.metrics.SweepResolved(string(status))
			}

			return nil
		})
	}

	_ = g.Wait()

	result := "ok"
	if report.Errors > 0 {
		result = "partial"
	}

	s.metrics.SweepRun(result, now)

	slog.InfoContext(ctx, "sweep finished",
		"scanned", report.Scanned,
		"completed", report.Completed,
		"failed", report.Failed,
		"refunded", report.Refunded,
		"still_pending", report.StillPending,
		"errors", report.Errors,
	)

	return report, nil
}

func (s *Service) sweepOne(ctx context.Context, now time.Time, t models.Transaction) (models.Status, error) {
	provider, err := s.providers.Get(t.Provider)
	if err != nil && !errors.Is(err, gateway.ErrUnknownProvider) {
		return "", err
	}

	if provider != nil {
		start := time.Now()
		out, qerr := provider.Requery(ctx, t.Reference)
		s.metrics.GatewayCall(provider.Name(), "requery", string(out.Class), time.Since(start))

		if qerr != nil {
			slog.WarnContext(ctx, "sweep requery failed", "reference", t.Reference, "error", qerr)
		}

		if out.Definitive() {
			fs, err := s.settle(ctx, t.Reference, out, models.StatusFailed, "sweep requery")
			if err != nil {
				return "", err
			}

			return fs.Status, nil
		}
	}

	if now.Sub(t.CreatedAt) < s.cfg.Sweep.MaxPendingAge {
		return models.StatusPending, nil
	}

	fs, err := s.ForceResolve(ctx, t.Reference, gateway.Failed, maxAgeReason)
	if err != nil {
		return "", err
	}

	return fs.Status, nil
}

// NewSweepScheduler runs Sweep every interval. Overlapping runs are skipped.
// Each run is bounded by the interval and by ctx.
func NewSweepScheduler(ctx context.Context, s *Service, interval time.Duration) (*cron.Cron, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("schedule sweep: invalid interval %s", interval)
	}

	logger := cronLogger{}

	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := c.AddFunc("@every "+interval.String(), func() {
		runCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()

		_, err := s.Sweep(runCtx)
		if err != nil {
			slog.Error("scheduled sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}

	return c, nil
}

// cronLogger adapts cron's logger to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
