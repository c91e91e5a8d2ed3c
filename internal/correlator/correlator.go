// Package correlator matches the two sides of a bridge transfer and links
// them atomically in the relational store.
package correlator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bridgescope/backend/internal/metrics"
	"github.com/bridgescope/backend/internal/model"
)

// Store is the slice of the relational store the correlator needs. LinkPair
// is the linearization point: both updates are conditioned on status=PENDING
// inside one transaction, so racing correlators cannot double-link.
type Store interface {
	FindCandidates(ctx context.Context, t *model.CrossChainTransfer, window time.Duration) ([]*model.CrossChainTransfer, error)
	LinkPair(ctx context.Context, subjectID, counterpartID string) (bool, error)
}

// GraphLinker draws the LINKED edge, best effort.
type GraphLinker interface {
	LinkTransfers(ctx context.Context, a, b *model.CrossChainTransfer) error
}

// Correlator finds counterpart transfers by fingerprint within a temporal
// window.
type Correlator struct {
	store  Store
	graph  GraphLinker
	window time.Duration
	logger *log.Logger
}

// New builds a correlator. graph may be nil.
func New(store Store, graph GraphLinker, window time.Duration) *Correlator {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &Correlator{
		store:  store,
		graph:  graph,
		window: window,
		logger: log.New(log.Writer(), "[CORRELATOR] ", log.LstdFlags),
	}
}

// Fingerprint renders the matching key: protocol, unordered address pair,
// token and the exact stored amount string. Two transfers with equal
// fingerprints within the window are the two sides of one logical transfer.
func Fingerprint(t *model.CrossChainTransfer) string {
	a, b := t.SourceAddress, t.DestinationAddress
	if a > b {
		a, b = b, a
	}
	return strings.Join([]string{string(t.Protocol), a, b, t.TokenAddress, t.Amount.String()}, "|")
}

// Correlate looks for the subject's counterpart and links the pair. It
// returns the matched counterpart, or nil when no candidate is eligible.
// Already-COMPLETED subjects and lost link races are quiet no-ops; finding
// nothing is not an error.
func (c *Correlator) Correlate(ctx context.Context, t *model.CrossChainTransfer) (*model.CrossChainTransfer, error) {
	if t.Status != model.StatusPending || t.LinkedTransferID != "" {
		return nil, nil
	}
	if t.Amount.IsZero() && t.SourceAddress == "" && t.DestinationAddress == "" {
		return nil, nil
	}

	candidates, err := c.store.FindCandidates(ctx, t, c.window)
	if err != nil {
		return nil, fmt.Errorf("correlate %s: %w", t.ID, err)
	}

	// Candidates come back nearest-in-time first; take the first one that
	// still links.
	for _, cand := range candidates {
		if !counterpart(t, cand) {
			continue
		}
		linked, err := c.store.LinkPair(ctx, t.ID, cand.ID)
		if err != nil {
			return nil, fmt.Errorf("correlate %s: %w", t.ID, err)
		}
		if !linked {
			continue
		}
		t.Status = model.StatusCompleted
		t.LinkedTransferID = cand.ID
		cand.Status = model.StatusCompleted
		cand.LinkedTransferID = t.ID
		metrics.CorrelationsLinked.WithLabelValues(string(t.Protocol)).Inc()
		c.logger.Printf("linked %s <-> %s protocol=%s amount=%s", t.ID, cand.ID, t.Protocol, t.Amount.String())

		if c.graph != nil {
			if err := c.graph.LinkTransfers(ctx, t, cand); err != nil {
				c.logger.Printf("graph link deferred: %v", err)
			}
		}
		return cand, nil
	}
	return nil, nil
}

// counterpart reports whether cand can be the other side of t's crossing.
// Both sides of one transfer record the same source/destination chain tuple
// and emit distinct event types, so a reversed tuple is a round-trip return
// leg and an equal event type is a repeated same-side event. Unknown chains
// on half-sided records stay eligible.
func counterpart(t, cand *model.CrossChainTransfer) bool {
	if t.EventType != "" && t.EventType == cand.EventType {
		return false
	}
	if t.SourceChain != "" && cand.SourceChain != "" && t.SourceChain != cand.SourceChain {
		return false
	}
	if t.DestinationChain != "" && cand.DestinationChain != "" && t.DestinationChain != cand.DestinationChain {
		return false
	}
	return true
}
