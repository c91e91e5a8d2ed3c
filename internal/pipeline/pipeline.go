// Package pipeline runs the per-record processing chain behind the
// observers: score, persist, record activity, mirror to the graph, correlate,
// publish. A bounded worker pool caps database pressure; records from the
// same observer always land on the same worker, preserving per-observer
// order.
package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/bridgescope/backend/internal/events"
	"github.com/bridgescope/backend/internal/metrics"
	"github.com/bridgescope/backend/internal/model"
	"github.com/bridgescope/backend/internal/store"
)

// Relational is the authoritative sink slice the pipeline writes.
type Relational interface {
	Upsert(ctx context.Context, t *model.CrossChainTransfer) error
	UpdateRisk(ctx context.Context, id string, score float64, flags []model.RiskFlag, analyzedAt int64) error
	DeadLetter(ctx context.Context, t *model.CrossChainTransfer, reason string) error
}

// GraphWriter mirrors records into the wallet graph, best effort.
type GraphWriter interface {
	RecordTransfer(ctx context.Context, t *model.CrossChainTransfer) error
}

// Scorer produces the risk verdict for one record.
type Scorer interface {
	Score(ctx context.Context, t *model.CrossChainTransfer) (float64, []model.RiskFlag, int64)
}

// ActivityRecorder feeds the sliding-window frequency counter after a record
// is persisted.
type ActivityRecorder interface {
	Record(ctx context.Context, address, transferID string, ts time.Time) error
}

// Linker matches the record against its counterpart.
type Linker interface {
	Correlate(ctx context.Context, t *model.CrossChainTransfer) (*model.CrossChainTransfer, error)
}

// Options size the pool and the retry policy.
type Options struct {
	Workers     int
	QueueDepth  int
	MaxRetries  int
	RetryJitter time.Duration
}

func (o *Options) fill() {
	if o.Workers <= 0 {
		o.Workers = 5
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 256
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryJitter <= 0 {
		o.RetryJitter = 500 * time.Millisecond
	}
}

type job struct {
	t *model.CrossChainTransfer
}

// Pipeline is the worker pool. Submissions route to a worker by observer
// key, so one slow observer cannot reorder another's records.
type Pipeline struct {
	rel      Relational
	graph    GraphWriter
	scorer   Scorer
	activity ActivityRecorder
	linker   Linker
	bus      *events.Bus
	opts     Options
	logger   *log.Logger

	queues []chan job
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New wires the pipeline. graph, activity, linker and bus may each be nil,
// which skips that stage.
func New(rel Relational, graph GraphWriter, scorer Scorer, activity ActivityRecorder, linker Linker, bus *events.Bus, opts Options) *Pipeline {
	opts.fill()
	p := &Pipeline{
		rel:      rel,
		graph:    graph,
		scorer:   scorer,
		activity: activity,
		linker:   linker,
		bus:      bus,
		opts:     opts,
		logger:   log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
		queues:   make([]chan job, opts.Workers),
	}
	for i := range p.queues {
		p.queues[i] = make(chan job, opts.QueueDepth)
	}
	return p
}

// Start launches the workers. Each worker owns one queue and drains it until
// Stop closes it.
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := range p.queues {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
	})
}

// Stop closes the queues and waits for in-flight records to finish. Callers
// must stop the observers first.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		for _, q := range p.queues {
			close(q)
		}
	})
	p.wg.Wait()
}

// Submit queues one record, blocking while the worker's queue is full so the
// observer's FIFO order holds. Implements the observer sink.
func (p *Pipeline) Submit(ctx context.Context, key string, t *model.CrossChainTransfer) error {
	q := p.queues[p.queueIndex(key)]
	select {
	case q <- job{t: t}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// queueIndex routes an observer key to a stable worker.
func (p *Pipeline) queueIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32()) % len(p.queues)
}

func (p *Pipeline) worker(ctx context.Context, idx int) {
	defer p.wg.Done()
	gauge := metrics.PipelineQueueDepth.WithLabelValues(fmt.Sprintf("%d", idx))
	for j := range p.queues[idx] {
		gauge.Set(float64(len(p.queues[idx])))
		p.process(ctx, j.t)
	}
	gauge.Set(0)
}

// process runs the full chain for one record. Scoring happens before the
// write so the scored record is what a counterpart sees; correlation runs
// after the write so the conditional link update can find the subject row.
func (p *Pipeline) process(ctx context.Context, t *model.CrossChainTransfer) {
	if p.scorer != nil {
		t.RiskScore, t.RiskFlags, t.AnalyzedAt = p.scorer.Score(ctx, t)
	}

	if err := t.Validate(); err != nil {
		p.deadLetter(ctx, t, fmt.Sprintf("validation: %v", err))
		return
	}

	if !p.persist(ctx, t) {
		return
	}
	metrics.RecordsPersisted.WithLabelValues(string(t.Protocol)).Inc()

	if p.activity != nil {
		for _, addr := range t.Endpoints() {
			if err := p.activity.Record(ctx, addr, t.ID, t.Time()); err != nil {
				p.logger.Printf("activity record failed for %s: %v", addr, err)
			}
		}
	}

	if p.graph != nil {
		// Best effort; failure already logged and counted by the sink.
		_ = p.graph.RecordTransfer(ctx, t)
	}

	if p.linker != nil {
		cand, err := p.linker.Correlate(ctx, t)
		if err != nil {
			p.logger.Printf("correlation failed for %s: %v", t.ID, err)
		} else if cand != nil && p.bus != nil {
			p.bus.Emit(events.TypeTransferLinked, t.ID, t)
		}
	}

	if p.bus != nil {
		p.bus.Emit(events.TypeTransferPersisted, t.ID, t)
	}
}

// persist upserts with bounded jittered retries on transient failures. A
// fatal error or an exhausted retry budget parks the record in the
// dead-letter table and reports false.
func (p *Pipeline) persist(ctx context.Context, t *model.CrossChainTransfer) bool {
	var lastErr error
	for attempt := 0; attempt < p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				p.deadLetter(ctx, t, "shutdown during persistence retries")
				return false
			case <-time.After(time.Duration(rand.Int63n(int64(p.opts.RetryJitter))) + p.opts.RetryJitter*time.Duration(attempt)):
			}
		}
		err := p.rel.Upsert(ctx, t)
		if err == nil {
			if rerr := p.rel.UpdateRisk(ctx, t.ID, t.RiskScore, t.RiskFlags, t.AnalyzedAt); rerr != nil {
				p.logger.Printf("risk update failed for %s: %v", t.ID, rerr)
			}
			return true
		}
		lastErr = err
		if !store.IsTransient(err) {
			p.deadLetter(ctx, t, fmt.Sprintf("fatal: %v", err))
			return false
		}
		p.logger.Printf("persist attempt %d failed for %s: %v", attempt+1, t.TransactionHash, err)
	}
	p.deadLetter(ctx, t, fmt.Sprintf("retries exhausted: %v", lastErr))
	return false
}

func (p *Pipeline) deadLetter(ctx context.Context, t *model.CrossChainTransfer, reason string) {
	metrics.DeadLetters.WithLabelValues(string(t.Protocol)).Inc()
	p.logger.Printf("dead-lettering %s tx=%s: %s", t.ID, t.TransactionHash, reason)
	if err := p.rel.DeadLetter(ctx, t, reason); err != nil {
		p.logger.Printf("dead letter write failed for %s: %v", t.ID, err)
	}
	if p.bus != nil {
		p.bus.Emit(events.TypeTransferDeadLetter, t.ID, map[string]string{
			"transfer_id": t.ID,
			"reason":      reason,
		})
	}
}
