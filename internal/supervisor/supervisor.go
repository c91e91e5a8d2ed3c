// Package supervisor owns the observer fleet: it builds observers from
// configuration, starts and stops them, aggregates status and runs the
// periodic maintenance sweeps.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/bridgescope/backend/internal/chain"
	"github.com/bridgescope/backend/internal/config"
	"github.com/bridgescope/backend/internal/decoder"
	"github.com/bridgescope/backend/internal/model"
	"github.com/bridgescope/backend/internal/observer"
)

type entry struct {
	obs    *observer.Observer
	client *chain.EndpointClient
}

// Report summarizes a StartAll call.
type Report struct {
	Running int
	Failed  int
	Errors  map[string]string // observer key -> start/config error
}

// Status is the fleet snapshot.
type Status struct {
	TotalRunning int               `json:"total_running"`
	TotalFailed  int               `json:"total_failed"`
	Observers    []observer.Status `json:"observers"`
	ConfigErrors map[string]string `json:"config_errors,omitempty"`
}

// Supervisor is the only holder of the observer registry; there are no
// package-level singletons.
type Supervisor struct {
	cfg    *config.Config
	sink   observer.Sink
	cache  *chain.TimestampCache
	logger *log.Logger

	mu        sync.RWMutex
	entries   map[string]*entry
	cfgErrors map[string]string
}

// New builds the fleet from configuration. Disabled (zero-address) entries
// are skipped; invalid entries are recorded without affecting the rest.
func New(cfg *config.Config, sink observer.Sink) (*Supervisor, error) {
	cache, err := chain.NewTimestampCache(cfg.Concurrency.TimestampCacheLen)
	if err != nil {
		return nil, err
	}
	s := &Supervisor{
		cfg:       cfg,
		sink:      sink,
		cache:     cache,
		logger:    log.New(log.Writer(), "[SUPERVISOR] ", log.LstdFlags),
		entries:   make(map[string]*entry),
		cfgErrors: make(map[string]string),
	}
	for _, oc := range cfg.Observers {
		key := fmt.Sprintf("%s/%s", oc.Protocol, oc.Chain)
		if oc.Disabled() {
			s.logger.Printf("observer %s disabled (zero contract address)", key)
			continue
		}
		if err := s.add(oc); err != nil {
			s.logger.Printf("observer %s not built: %v", key, err)
			s.cfgErrors[key] = err.Error()
		}
	}
	return s, nil
}

func (s *Supervisor) add(oc config.ObserverConfig) error {
	if err := oc.Validate(); err != nil {
		return err
	}
	p, _ := model.ParseProtocol(oc.Protocol)
	c, _ := model.ParseChain(oc.Chain)

	dec, err := decoder.ForProtocol(p)
	if err != nil {
		return err
	}
	client, err := chain.NewEndpointClient(chain.ClientConfig{
		Chain:     c,
		Endpoints: oc.Endpoints(),
		Timeout:   s.cfg.Concurrency.RPCTimeout,
		Cache:     s.cache,
	})
	if err != nil {
		return err
	}
	obs := observer.New(p, c, common.HexToAddress(oc.Contract), client, dec, s.sink, observer.Options{})

	s.mu.Lock()
	s.entries[obs.Key()] = &entry{obs: obs, client: client}
	s.mu.Unlock()
	return nil
}

// StartAll starts every built observer concurrently and collects per-observer
// results. Configuration failures recorded at build time count as failed.
func (s *Supervisor) StartAll(ctx context.Context) Report {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	var (
		mu     sync.Mutex
		report = Report{Errors: make(map[string]string)}
	)
	for k, msg := range s.cfgErrors {
		report.Failed++
		report.Errors[k] = msg
	}

	// Observers run on the caller's context and outlive this call; the group
	// only bounds the concurrent Start fan-out.
	var g errgroup.Group
	for _, key := range keys {
		key := key
		g.Go(func() error {
			err := s.Start(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.Errors[key] = err.Error()
			} else {
				report.Running++
			}
			return err
		})
	}
	g.Wait()
	s.logger.Printf("fleet started: %d running, %d failed", report.Running, report.Failed)
	return report
}

// Start launches one observer by key ("protocol/chain").
func (s *Supervisor) Start(ctx context.Context, key string) error {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no observer %s", key)
	}
	return e.obs.Start(ctx)
}

// Stop halts one observer by key.
func (s *Supervisor) Stop(key string) error {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no observer %s", key)
	}
	e.obs.Stop()
	return nil
}

// StopAll signals every observer and waits at most the shutdown timeout.
// Observers still busy after the deadline are abandoned; their clients are
// closed regardless.
func (s *Supervisor) StopAll() {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, e := range entries {
			wg.Add(1)
			go func(e *entry) {
				defer wg.Done()
				e.obs.Stop()
			}(e)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.Concurrency.ShutdownTimeout):
		s.logger.Printf("shutdown timeout reached, abandoning in-flight observers")
	}
	for _, e := range entries {
		e.client.Close()
	}
}

// FleetStatus snapshots every observer plus the recorded config errors.
func (s *Supervisor) FleetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{ConfigErrors: s.cfgErrors}
	for _, e := range s.entries {
		os := e.obs.Status()
		st.Observers = append(st.Observers, os)
		switch os.State {
		case observer.StateFailed:
			st.TotalFailed++
		case observer.StateConnecting, observer.StateListening, observer.StateReconnecting:
			st.TotalRunning++
		}
	}
	st.TotalFailed += len(s.cfgErrors)
	return st
}
