// Package scheduler runs periodic cache refreshes for a configured ticker set.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"market-data-cache/internal/cache"
)

const refreshTimeout = 5 * time.Minute

// Scheduler refreshes every configured ticker on a cron schedule. Each run
// covers the manager's default window ending today.
type Scheduler struct {
	manager *cache.Manager
	tickers []string
	spec    string
	log     *zap.Logger
	cron    *cron.Cron
}

func New(manager *cache.Manager, tickers []string, spec string, log *zap.Logger) *Scheduler {
	return &Scheduler{
		manager: manager,
		tickers: tickers,
		spec:    spec,
		log:     log,
		cron:    cron.New(),
	}
}

// Start registers the refresh job and starts the cron loop. It fails on an
// invalid schedule expression and never fires with no tickers configured.
func (s *Scheduler) Start() error {
	if len(s.tickers) == 0 {
		return fmt.Errorf("no tickers configured for scheduled refresh")
	}

	if _, err := s.cron.AddFunc(s.spec, s.refreshAll); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.log.Info("refresh scheduler started",
		zap.String("schedule", s.spec),
		zap.Strings("tickers", s.tickers))
	return nil
}

// Stop halts the cron loop and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("refresh scheduler stopped")
}

func (s *Scheduler) refreshAll() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	for _, ticker := range s.tickers {
		results, err := s.manager.RefreshAll(ctx, ticker, "", "")
		if err != nil {
			s.log.Error("scheduled refresh failed", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		for entity, ok := range results {
			if !ok {
				s.log.Warn("scheduled refresh incomplete",
					zap.String("ticker", ticker),
					zap.String("entity", string(entity)))
			}
		}
		s.log.Info("scheduled refresh completed", zap.String("ticker", ticker))
	}
}
