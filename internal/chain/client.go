// Package chain wraps EVM JSON-RPC access behind a chain-agnostic read
// interface with resilient endpoint selection.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/bridgescope/backend/internal/metrics"
	"github.com/bridgescope/backend/internal/model"
)

// Client is the read surface an observer needs from one chain.
type Client interface {
	// SubscribeLogs tails logs for the contract into sink. On HTTP-only
	// endpoints it transparently degrades to polling backfill.
	SubscribeLogs(ctx context.Context, contract common.Address, topics [][]common.Hash, sink chan<- types.Log) (ethereum.Subscription, error)
	// FilterLogs fetches historical logs, chunking the range to stay under
	// provider limits.
	FilterLogs(ctx context.Context, contract common.Address, topics [][]common.Hash, from, to uint64) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	LatestBlock(ctx context.Context) (uint64, error)
	Code(ctx context.Context, addr common.Address) ([]byte, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	Endpoint() string
	Close()
}

// ClientConfig configures an EndpointClient.
type ClientConfig struct {
	Chain         model.Chain
	Endpoints     []string // primary first
	Timeout       time.Duration
	Cache         *TimestampCache
	TripThreshold int
	ProbeInterval time.Duration
	MaxChunk      uint64
	PollInterval  time.Duration
}

// EndpointClient is the production Client: one ethclient per configured
// endpoint, dialed lazily, with rotation on sustained transient failure and
// a scheduled probe that returns traffic to the primary.
type EndpointClient struct {
	cfg    ClientConfig
	health []*endpointHealth
	logger *log.Logger

	mu        sync.Mutex
	idx       int
	conns     []*ethclient.Client
	lastProbe time.Time
	rotations int64
}

// NewEndpointClient validates the endpoint list; no connection is made until
// the first call.
func NewEndpointClient(cfg ClientConfig) (*EndpointClient, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("chain %s: no RPC endpoints configured", cfg.Chain)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxChunk == 0 {
		cfg.MaxChunk = 500
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = time.Minute
	}
	health := make([]*endpointHealth, len(cfg.Endpoints))
	for i := range health {
		health[i] = newEndpointHealth(cfg.TripThreshold)
	}
	return &EndpointClient{
		cfg:    cfg,
		health: health,
		conns:  make([]*ethclient.Client, len(cfg.Endpoints)),
		logger: log.New(log.Writer(), fmt.Sprintf("[CHAIN:%s] ", cfg.Chain), log.LstdFlags),
	}, nil
}

// Endpoint returns the endpoint currently serving calls.
func (c *EndpointClient) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Endpoints[c.idx]
}

// Rotations returns how many times the client advanced to a fallback.
func (c *EndpointClient) Rotations() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotations
}

// Close tears down every dialed connection.
func (c *EndpointClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, conn := range c.conns {
		if conn != nil {
			conn.Close()
			c.conns[i] = nil
		}
	}
}

func (c *EndpointClient) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// acquire returns the active connection, dialing it if needed, and runs the
// scheduled primary probe when due.
func (c *EndpointClient) acquire(ctx context.Context) (*ethclient.Client, int, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeProbeLocked(ctx)

	idx := c.idx
	ep := c.cfg.Endpoints[idx]
	if c.conns[idx] == nil {
		conn, err := ethclient.DialContext(ctx, ep)
		if err != nil {
			return nil, idx, ep, err
		}
		c.conns[idx] = conn
	}
	return c.conns[idx], idx, ep, nil
}

// maybeProbeLocked re-adopts the primary endpoint when the probe interval
// elapsed and the primary answers again. Called with c.mu held.
func (c *EndpointClient) maybeProbeLocked(ctx context.Context) {
	if c.idx == 0 || time.Since(c.lastProbe) < c.cfg.ProbeInterval {
		return
	}
	c.lastProbe = time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn := c.conns[0]
	if conn == nil {
		dialed, err := ethclient.DialContext(probeCtx, c.cfg.Endpoints[0])
		if err != nil {
			return
		}
		c.conns[0] = dialed
		conn = dialed
	}
	if _, err := conn.BlockNumber(probeCtx); err != nil {
		return
	}
	c.health[0].reset()
	c.logger.Printf("primary endpoint healthy again, switching back from %s", c.cfg.Endpoints[c.idx])
	c.idx = 0
}

// rotate advances to the next endpoint if from is still active.
func (c *EndpointClient) rotate(from int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx != from {
		return
	}
	next := (c.idx + 1) % len(c.cfg.Endpoints)
	if next == c.idx {
		return
	}
	c.rotations++
	metrics.RPCRotations.WithLabelValues(string(c.cfg.Chain)).Inc()
	c.logger.Printf("rotating endpoint %s -> %s after sustained failures",
		c.cfg.Endpoints[c.idx], c.cfg.Endpoints[next])
	c.idx = next
	c.lastProbe = time.Now()
}

// do runs one RPC call with deadline, health accounting and rotation.
func (c *EndpointClient) do(ctx context.Context, op string, fn func(context.Context, *ethclient.Client) error) error {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	cli, idx, ep, err := c.acquire(ctx)
	if err != nil {
		if c.health[idx].onFailure() {
			c.rotate(idx)
		}
		return &RPCError{Kind: KindTransient, Endpoint: ep, Op: op, Err: err}
	}

	if err := fn(ctx, cli); err != nil {
		kind := classify(err)
		if kind == KindTransient {
			if c.health[idx].onFailure() {
				c.rotate(idx)
			}
		}
		return &RPCError{Kind: kind, Endpoint: ep, Op: op, Err: err}
	}
	c.health[idx].onSuccess()
	return nil
}

// LatestBlock returns the current head number.
func (c *EndpointClient) LatestBlock(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.do(ctx, "eth_blockNumber", func(ctx context.Context, cli *ethclient.Client) error {
		var e error
		n, e = cli.BlockNumber(ctx)
		return e
	})
	return n, err
}

// BlockTimestamp returns the block's timestamp in UTC seconds, consulting
// the shared cache first.
func (c *EndpointClient) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if c.cfg.Cache != nil {
		if ts, ok := c.cfg.Cache.Get(c.cfg.Chain, number); ok {
			return ts, nil
		}
	}
	var ts uint64
	err := c.do(ctx, "eth_getBlockByNumber", func(ctx context.Context, cli *ethclient.Client) error {
		header, e := cli.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if e != nil {
			return e
		}
		ts = header.Time
		return nil
	})
	if err != nil {
		return 0, err
	}
	if c.cfg.Cache != nil {
		c.cfg.Cache.Add(c.cfg.Chain, number, ts)
	}
	return ts, nil
}

// Code returns the contract bytecode at addr.
func (c *EndpointClient) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	var code []byte
	err := c.do(ctx, "eth_getCode", func(ctx context.Context, cli *ethclient.Client) error {
		var e error
		code, e = cli.CodeAt(ctx, addr, nil)
		return e
	})
	return code, err
}

// Balance returns the native balance at addr.
func (c *EndpointClient) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var bal *big.Int
	err := c.do(ctx, "eth_getBalance", func(ctx context.Context, cli *ethclient.Client) error {
		var e error
		bal, e = cli.BalanceAt(ctx, addr, nil)
		return e
	})
	return bal, err
}

// GasPrice returns the suggested gas price.
func (c *EndpointClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var gp *big.Int
	err := c.do(ctx, "eth_gasPrice", func(ctx context.Context, cli *ethclient.Client) error {
		var e error
		gp, e = cli.SuggestGasPrice(ctx)
		return e
	})
	return gp, err
}

// FilterLogs fetches logs over [from, to], starting with chunks of MaxChunk
// blocks and halving whenever the provider reports the result too large.
func (c *EndpointClient) FilterLogs(ctx context.Context, contract common.Address, topics [][]common.Hash, from, to uint64) ([]types.Log, error) {
	var out []types.Log
	chunk := c.cfg.MaxChunk
	start := from
	for start <= to {
		end := start + chunk - 1
		if end > to {
			end = to
		}
		q := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{contract},
			Topics:    topics,
		}
		var logs []types.Log
		err := c.do(ctx, "eth_getLogs", func(ctx context.Context, cli *ethclient.Client) error {
			var e error
			logs, e = cli.FilterLogs(ctx, q)
			return e
		})
		if err != nil {
			if isResultTooLarge(err) && chunk > 1 {
				chunk /= 2
				continue
			}
			return nil, err
		}
		out = append(out, logs...)
		start = end + 1
	}
	return out, nil
}

// SubscribeLogs opens a live tail. Endpoints without notification support
// fall back to a polling subscription over FilterLogs.
func (c *EndpointClient) SubscribeLogs(ctx context.Context, contract common.Address, topics [][]common.Hash, sink chan<- types.Log) (ethereum.Subscription, error) {
	cli, idx, ep, err := c.acquire(ctx)
	if err != nil {
		if c.health[idx].onFailure() {
			c.rotate(idx)
		}
		return nil, &RPCError{Kind: KindTransient, Endpoint: ep, Op: "eth_subscribe", Err: err}
	}

	q := ethereum.FilterQuery{Addresses: []common.Address{contract}, Topics: topics}
	sub, err := cli.SubscribeFilterLogs(ctx, q, sink)
	if err == nil {
		c.health[idx].onSuccess()
		return sub, nil
	}
	if errors.Is(err, rpc.ErrNotificationsUnsupported) {
		c.logger.Printf("endpoint %s has no subscription support, polling every %s", ep, c.cfg.PollInterval)
		return c.startPolling(contract, topics, sink)
	}

	kind := classify(err)
	if kind == KindTransient {
		if c.health[idx].onFailure() {
			c.rotate(idx)
		}
	}
	return nil, &RPCError{Kind: kind, Endpoint: ep, Op: "eth_subscribe", Err: err}
}

// pollSub emulates an ethereum.Subscription over periodic eth_getLogs.
type pollSub struct {
	errCh chan error
	quit  chan struct{}
	once  sync.Once
}

func (p *pollSub) Err() <-chan error { return p.errCh }
func (p *pollSub) Unsubscribe()      { p.once.Do(func() { close(p.quit) }) }

func (c *EndpointClient) startPolling(contract common.Address, topics [][]common.Hash, sink chan<- types.Log) (*pollSub, error) {
	ctx := context.Background()
	next, err := c.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}
	next++

	sub := &pollSub{errCh: make(chan error, 1), quit: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sub.quit:
				return
			case <-ticker.C:
				latest, err := c.LatestBlock(ctx)
				if err != nil {
					sub.errCh <- err
					return
				}
				if latest < next {
					continue
				}
				logs, err := c.FilterLogs(ctx, contract, topics, next, latest)
				if err != nil {
					sub.errCh <- err
					return
				}
				for _, lg := range logs {
					select {
					case sink <- lg:
					case <-sub.quit:
						return
					}
				}
				next = latest + 1
			}
		}
	}()
	return sub, nil
}
