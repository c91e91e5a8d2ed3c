// Package observer runs one event-tailing loop per (protocol, chain,
// contract) tuple, decoding raw logs into transfer records and handing them
// to the processing pipeline in arrival order.
package observer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bridgescope/backend/internal/chain"
	"github.com/bridgescope/backend/internal/decoder"
	"github.com/bridgescope/backend/internal/metrics"
	"github.com/bridgescope/backend/internal/model"
)

// State is the observer lifecycle state.
type State string

const (
	StateInit         State = "INIT"
	StateConnecting   State = "CONNECTING"
	StateListening    State = "LISTENING"
	StateReconnecting State = "RECONNECTING"
	StateStopped      State = "STOPPED"
	StateFailed       State = "FAILED"
)

// Sink receives decoded transfers. Submit blocks until the record is queued;
// per-observer submission order is preserved downstream.
type Sink interface {
	Submit(ctx context.Context, key string, t *model.CrossChainTransfer) error
}

// Status is a point-in-time snapshot of one observer.
type Status struct {
	Protocol  model.Protocol `json:"protocol"`
	Chain     model.Chain    `json:"chain"`
	Contract  string         `json:"contract"`
	State     State          `json:"state"`
	Endpoint  string         `json:"endpoint"`
	LastBlock uint64         `json:"last_block"`
	Decoded   int64          `json:"decoded"`
	Dropped   int64          `json:"dropped"`
	Errors    int64          `json:"errors"`
}

// Options tune one observer's reconnect and backfill behavior.
type Options struct {
	BackoffBase    time.Duration // first reconnect delay, doubled per attempt
	MaxAttempts    int           // consecutive failures before FAILED
	BackfillWindow uint64        // max blocks replayed after a reconnect
}

func (o *Options) fill() {
	if o.BackoffBase <= 0 {
		o.BackoffBase = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BackfillWindow == 0 {
		o.BackfillWindow = 1000
	}
}

// Observer tails one bridge contract.
type Observer struct {
	protocol model.Protocol
	chainTag model.Chain
	contract common.Address
	client   chain.Client
	dec      *decoder.Decoder
	sink     Sink
	opts     Options
	logger   *log.Logger

	mu        sync.RWMutex
	state     State
	lastBlock uint64
	decoded   int64
	dropped   int64
	errors    int64
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds an observer in INIT state.
func New(p model.Protocol, c model.Chain, contract common.Address, cli chain.Client, dec *decoder.Decoder, sink Sink, opts Options) *Observer {
	opts.fill()
	return &Observer{
		protocol: p,
		chainTag: c,
		contract: contract,
		client:   cli,
		dec:      dec,
		sink:     sink,
		opts:     opts,
		state:    StateInit,
		logger:   log.New(log.Writer(), fmt.Sprintf("[OBSERVER:%s/%s] ", p, c), log.LstdFlags),
	}
}

// Key identifies this observer for routing and registry lookup.
func (o *Observer) Key() string {
	return fmt.Sprintf("%s/%s", o.protocol, o.chainTag)
}

// Start launches the observation loop. It is an error to start an observer
// that is already running.
func (o *Observer) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case StateConnecting, StateListening, StateReconnecting:
		return fmt.Errorf("observer %s already running", o.Key())
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	o.state = StateConnecting
	go o.run(runCtx)
	return nil
}

// Stop cancels the loop from any state and waits for it to exit.
func (o *Observer) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// Status returns a snapshot of the observer's counters and state.
func (o *Observer) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Status{
		Protocol:  o.protocol,
		Chain:     o.chainTag,
		Contract:  o.contract.Hex(),
		State:     o.state,
		Endpoint:  o.client.Endpoint(),
		LastBlock: o.lastBlock,
		Decoded:   o.decoded,
		Dropped:   o.dropped,
		Errors:    o.errors,
	}
}

// Running reports whether the loop is live.
func (o *Observer) Running() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	switch o.state {
	case StateConnecting, StateListening, StateReconnecting:
		return true
	}
	return false
}

func (o *Observer) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Observer) run(ctx context.Context) {
	defer close(o.done)
	defer func() {
		o.mu.Lock()
		if o.state != StateFailed {
			o.state = StateStopped
		}
		o.cancel = nil
		o.mu.Unlock()
	}()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		sink := make(chan types.Log, 256)
		sub, err := o.client.SubscribeLogs(ctx, o.contract, o.dec.Topics(), sink)
		if err != nil {
			attempt++
			o.countError()
			if attempt >= o.opts.MaxAttempts {
				o.logger.Printf("giving up after %d connect attempts: %v", attempt, err)
				o.setState(StateFailed)
				return
			}
			delay := o.opts.BackoffBase << (attempt - 1)
			o.logger.Printf("connect attempt %d failed, retrying in %s: %v", attempt, delay, err)
			o.setState(StateReconnecting)
			metrics.Reconnects.WithLabelValues(string(o.protocol), string(o.chainTag)).Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		o.setState(StateListening)
		o.logger.Printf("listening on %s via %s", o.contract.Hex(), o.client.Endpoint())

		o.backfill(ctx)

		if alive := o.listen(ctx, sub, sink); !alive {
			sub.Unsubscribe()
			return
		}
		sub.Unsubscribe()
		o.setState(StateReconnecting)
		metrics.Reconnects.WithLabelValues(string(o.protocol), string(o.chainTag)).Inc()
	}
}

// listen drains the subscription until it drops (returns true, caller
// reconnects) or the context ends (returns false).
func (o *Observer) listen(ctx context.Context, sub interface{ Err() <-chan error }, sink <-chan types.Log) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case err := <-sub.Err():
			o.countError()
			o.logger.Printf("subscription dropped: %v", err)
			return true
		case lg := <-sink:
			o.handleLog(ctx, lg)
		}
	}
}

// backfill replays logs missed while disconnected, bounded to the catch-up
// window so a long outage cannot stall the live tail.
func (o *Observer) backfill(ctx context.Context) {
	o.mu.RLock()
	last := o.lastBlock
	o.mu.RUnlock()
	if last == 0 {
		return
	}

	latest, err := o.client.LatestBlock(ctx)
	if err != nil {
		o.countError()
		o.logger.Printf("backfill skipped, head lookup failed: %v", err)
		return
	}
	if latest <= last {
		return
	}
	from := last + 1
	if latest-from >= o.opts.BackfillWindow {
		from = latest - o.opts.BackfillWindow + 1
	}

	logs, err := o.client.FilterLogs(ctx, o.contract, o.dec.Topics(), from, latest)
	if err != nil {
		o.countError()
		o.logger.Printf("backfill [%d,%d] failed: %v", from, latest, err)
		return
	}
	if len(logs) > 0 {
		o.logger.Printf("backfilling %d logs over blocks [%d,%d]", len(logs), from, latest)
	}
	for _, lg := range logs {
		o.handleLog(ctx, lg)
	}
}

func (o *Observer) handleLog(ctx context.Context, lg types.Log) {
	if lg.Removed {
		return
	}
	o.mu.Lock()
	if lg.BlockNumber > o.lastBlock {
		o.lastBlock = lg.BlockNumber
	}
	o.mu.Unlock()

	t, err := o.dec.Decode(o.chainTag, lg)
	if err != nil {
		o.mu.Lock()
		o.dropped++
		o.mu.Unlock()
		metrics.LogsDropped.WithLabelValues(string(o.protocol), string(o.chainTag)).Inc()
		o.logger.Printf("dropping malformed log tx=%s: %v", lg.TxHash.Hex(), err)
		return
	}
	if t == nil {
		o.mu.Lock()
		o.dropped++
		o.mu.Unlock()
		metrics.LogsDropped.WithLabelValues(string(o.protocol), string(o.chainTag)).Inc()
		return
	}

	if ts, err := o.client.BlockTimestamp(ctx, lg.BlockNumber); err == nil {
		t.Timestamp = int64(ts)
	} else {
		o.countError()
		t.Timestamp = time.Now().UTC().Unix()
		t.Metadata["timestamp_source"] = "observed"
	}

	if err := o.sink.Submit(ctx, o.Key(), t); err != nil {
		o.countError()
		o.logger.Printf("submit failed tx=%s: %v", t.TransactionHash, err)
		return
	}

	o.mu.Lock()
	o.decoded++
	o.mu.Unlock()
	metrics.LogsDecoded.WithLabelValues(string(o.protocol), string(o.chainTag)).Inc()
	o.logger.Printf("event=%s tx=%s block=%d src=%s dst=%s amount=%s",
		t.EventType, t.TransactionHash, t.BlockNumber, t.SourceChain, t.DestinationChain, t.Amount.String())
}

func (o *Observer) countError() {
	o.mu.Lock()
	o.errors++
	o.mu.Unlock()
	metrics.ObserverErrors.WithLabelValues(string(o.protocol), string(o.chainTag)).Inc()
}
