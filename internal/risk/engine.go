// Package risk scores transfer records from additive signals: sanctions
// watchlist hits, unusually large amounts and bursts of bridge activity.
package risk

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bridgescope/backend/internal/metrics"
	"github.com/bridgescope/backend/internal/model"
)

// Signal weights. The total is capped at 1.0.
const (
	weightSanctions = 0.8
	weightHighValue = 0.3
	weightFrequent  = 0.4
)

// SanctionsLookup resolves a wallet against the watchlist. A nil entry with
// nil error means no match.
type SanctionsLookup interface {
	Sanctioned(ctx context.Context, address string) (*model.SanctionsEntry, error)
}

// ActivityLookup counts recent bridge transfers touching a wallet.
type ActivityLookup interface {
	CountRecent(ctx context.Context, address string, window time.Duration) (int64, error)
}

// Options tune the scoring thresholds.
type Options struct {
	HighValueUnits int64         // token units above which a transfer is high-value
	FrequentCount  int           // transfers within the window that make a wallet busy
	ActivityWindow time.Duration // sliding window for the frequency signal
}

func (o *Options) fill() {
	if o.HighValueUnits <= 0 {
		o.HighValueUnits = 100_000
	}
	if o.FrequentCount <= 0 {
		o.FrequentCount = 10
	}
	if o.ActivityWindow <= 0 {
		o.ActivityWindow = 24 * time.Hour
	}
}

// Engine computes risk scores. Lookup failures degrade to a partial score
// with an ANALYSIS_INCOMPLETE flag; scoring never blocks the pipeline.
type Engine struct {
	sanctions SanctionsLookup
	activity  ActivityLookup
	opts      Options
	logger    *log.Logger
}

// NewEngine wires the lookups. Either lookup may be nil, which skips that
// signal entirely.
func NewEngine(sanctions SanctionsLookup, activity ActivityLookup, opts Options) *Engine {
	opts.fill()
	return &Engine{
		sanctions: sanctions,
		activity:  activity,
		opts:      opts,
		logger:    log.New(log.Writer(), "[RISK] ", log.LstdFlags),
	}
}

// Score evaluates one transfer and returns the capped score, the ordered
// flag list and the analysis timestamp in UTC seconds.
func (e *Engine) Score(ctx context.Context, t *model.CrossChainTransfer) (float64, []model.RiskFlag, int64) {
	var (
		score      float64
		flags      []model.RiskFlag
		incomplete []string
	)

	if e.sanctions != nil {
		hit, failed := e.checkSanctions(ctx, t)
		if failed {
			incomplete = append(incomplete, "sanctions")
		} else if hit != nil {
			score += weightSanctions
			flags = append(flags, *hit)
		}
	}

	if e.opts.HighValueUnits > 0 && t.Amount.ExceedsUnits(e.opts.HighValueUnits) {
		score += weightHighValue
		flags = append(flags, model.RiskFlag{
			Type:        model.FlagHighValueTransfer,
			Severity:    model.SeverityMedium,
			Description: fmt.Sprintf("transfer exceeds %d token units", e.opts.HighValueUnits),
			Details:     map[string]string{"amount": t.Amount.String()},
		})
	}

	if e.activity != nil {
		flag, failed := e.checkFrequency(ctx, t)
		if failed {
			incomplete = append(incomplete, "activity")
		} else if flag != nil {
			score += weightFrequent
			flags = append(flags, *flag)
		}
	}

	if len(incomplete) > 0 {
		flags = append(flags, model.RiskFlag{
			Type:        model.FlagAnalysisIncomplete,
			Severity:    model.SeverityLow,
			Description: "one or more risk lookups failed; score is partial",
			Details:     map[string]string{"failed_signals": fmt.Sprint(incomplete)},
		})
	}

	if score > 1.0 {
		score = 1.0
	}
	for _, f := range flags {
		metrics.RiskFlagsRaised.WithLabelValues(f.Type).Inc()
	}
	return score, flags, time.Now().UTC().Unix()
}

// checkSanctions returns a flag for the first sanctioned endpoint, or
// failed=true when the lookup errored.
func (e *Engine) checkSanctions(ctx context.Context, t *model.CrossChainTransfer) (*model.RiskFlag, bool) {
	for _, addr := range t.Endpoints() {
		entry, err := e.sanctions.Sanctioned(ctx, addr)
		if err != nil {
			e.logger.Printf("sanctions lookup failed for %s: %v", addr, err)
			return nil, true
		}
		if entry == nil {
			continue
		}
		return &model.RiskFlag{
			Type:        model.FlagSanctionsMatch,
			Severity:    model.SeverityHigh,
			Description: fmt.Sprintf("wallet appears on %s watchlist", entry.Source),
			Details: map[string]string{
				"wallet": addr,
				"entity": entry.EntityName,
				"source": entry.Source,
			},
		}, false
	}
	return nil, false
}

// checkFrequency flags wallets whose recent transfer count strictly exceeds
// the threshold in the sliding window.
func (e *Engine) checkFrequency(ctx context.Context, t *model.CrossChainTransfer) (*model.RiskFlag, bool) {
	for _, addr := range t.Endpoints() {
		n, err := e.activity.CountRecent(ctx, addr, e.opts.ActivityWindow)
		if err != nil {
			e.logger.Printf("activity lookup failed for %s: %v", addr, err)
			return nil, true
		}
		if n > int64(e.opts.FrequentCount) {
			return &model.RiskFlag{
				Type:        model.FlagFrequentBridge,
				Severity:    model.SeverityMedium,
				Description: fmt.Sprintf("wallet made %d bridge transfers within %s", n, e.opts.ActivityWindow),
				Details: map[string]string{
					"wallet": addr,
					"count":  fmt.Sprintf("%d", n),
				},
			}, false
		}
	}
	return nil, false
}
