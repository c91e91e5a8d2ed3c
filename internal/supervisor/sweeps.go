package supervisor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bridgescope/backend/internal/config"
	"github.com/bridgescope/backend/internal/correlator"
	"github.com/bridgescope/backend/internal/metrics"
	"github.com/bridgescope/backend/internal/model"
	"github.com/bridgescope/backend/internal/risk"
)

// SweepStore is the relational slice the maintenance sweeps use.
type SweepStore interface {
	RecentlyUpdated(ctx context.Context, window time.Duration, limit int) ([]*model.CrossChainTransfer, error)
	StalePending(ctx context.Context, minAge time.Duration, limit int) ([]*model.CrossChainTransfer, error)
	UpdateRisk(ctx context.Context, id string, score float64, flags []model.RiskFlag, analyzedAt int64) error
	AppendFlag(ctx context.Context, id string, flag model.RiskFlag) error
}

// Sweeper runs the two periodic maintenance passes: rescoring recently
// touched rows and re-matching stale PENDING transfers.
type Sweeper struct {
	store  SweepStore
	engine *risk.Engine
	corr   *correlator.Correlator
	cfg    config.SweepsConfig
	logger *log.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper wires the sweeps; Start launches them.
func NewSweeper(store SweepStore, engine *risk.Engine, corr *correlator.Correlator, cfg config.SweepsConfig) *Sweeper {
	return &Sweeper{
		store:  store,
		engine: engine,
		corr:   corr,
		cfg:    cfg,
		logger: log.New(log.Writer(), "[SWEEPS] ", log.LstdFlags),
		stopCh: make(chan struct{}),
	}
}

// Start launches both sweep loops.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.loop(ctx, "rescore", s.cfg.RescoreInterval, s.rescore)
	go s.loop(ctx, "correlate", s.cfg.CorrelateInterval, s.correlate)
}

// Stop halts the loops and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, name string, interval time.Duration, pass func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			pass(ctx)
			metrics.SweepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
	}
}

// rescore re-runs the risk engine over a bounded batch of recently updated
// rows. UpdateRisk carries the latest-analysis-wins guard, so an older sweep
// result never clobbers a fresher score.
func (s *Sweeper) rescore(ctx context.Context) {
	batch, err := s.store.RecentlyUpdated(ctx, s.cfg.RescoreInterval*2, s.cfg.RescoreBatch)
	if err != nil {
		s.logger.Printf("rescore batch fetch failed: %v", err)
		return
	}
	var updated int
	for _, t := range batch {
		score, flags, at := s.engine.Score(ctx, t)
		if err := s.store.UpdateRisk(ctx, t.ID, score, flags, at); err != nil {
			s.logger.Printf("rescore update failed for %s: %v", t.ID, err)
			continue
		}
		updated++
	}
	if updated > 0 {
		s.logger.Printf("rescored %d transfers", updated)
	}
}

// correlate retries matching for PENDING rows past the minimum age, then
// flags rows unmatched beyond the correlation timeout. Status stays PENDING;
// the flag marks the row for review, it never fails the transfer.
func (s *Sweeper) correlate(ctx context.Context) {
	stale, err := s.store.StalePending(ctx, s.cfg.CorrelateMinAge, s.cfg.RescoreBatch)
	if err != nil {
		s.logger.Printf("correlation sweep fetch failed: %v", err)
		return
	}

	var linked, flagged int
	timeoutCutoff := time.Now().Add(-s.cfg.CorrelationTimeout).Unix()
	for _, t := range stale {
		cand, err := s.corr.Correlate(ctx, t)
		if err != nil {
			s.logger.Printf("sweep correlation failed for %s: %v", t.ID, err)
			continue
		}
		if cand != nil {
			linked++
			continue
		}
		if t.Timestamp > timeoutCutoff {
			continue
		}
		if hasFlag(t.RiskFlags, model.FlagCorrelationTimeout) {
			continue
		}
		flag := model.RiskFlag{
			Type:        model.FlagCorrelationTimeout,
			Severity:    model.SeverityLow,
			Description: "no counterpart found within the correlation timeout",
			Details:     map[string]string{"timeout": s.cfg.CorrelationTimeout.String()},
		}
		if err := s.store.AppendFlag(ctx, t.ID, flag); err != nil {
			s.logger.Printf("timeout flag failed for %s: %v", t.ID, err)
			continue
		}
		metrics.CorrelationTimeouts.Inc()
		flagged++
	}
	if linked > 0 || flagged > 0 {
		s.logger.Printf("correlation sweep: %d late links, %d timeouts flagged", linked, flagged)
	}
}

func hasFlag(flags []model.RiskFlag, typ string) bool {
	for _, f := range flags {
		if f.Type == typ {
			return true
		}
	}
	return false
}
