package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/bridgescope/backend/internal/metrics"
	"github.com/bridgescope/backend/internal/model"
)

// Graph is the best-effort wallet graph sink. Write failures are logged and
// counted; the relational row stays authoritative.
type Graph struct {
	driver  neo4j.DriverWithContext
	timeout time.Duration
	logger  *log.Logger
}

// OpenGraph connects to Neo4j with basic auth.
func OpenGraph(uri, user, password string, poolSize int, timeout time.Duration) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""),
		func(c *neo4j.Config) {
			if poolSize > 0 {
				c.MaxConnectionPoolSize = poolSize
			}
		})
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Graph{
		driver:  driver,
		timeout: timeout,
		logger:  log.New(log.Writer(), "[GRAPH] ", log.LstdFlags),
	}, nil
}

// Close tears down the driver.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// RecordTransfer merges wallet nodes for both endpoints, merges the
// transaction node keyed by (hash, event type) and wires the SENT, INITIATED
// and RECEIVED edges. Replays merge onto the same nodes.
func (g *Graph) RecordTransfer(ctx context.Context, t *model.CrossChainTransfer) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		params := map[string]interface{}{
			"hash":      t.TransactionHash,
			"event":     t.EventType,
			"protocol":  string(t.Protocol),
			"srcChain":  string(t.SourceChain),
			"dstChain":  string(t.DestinationChain),
			"amount":    t.Amount.String(),
			"token":     t.TokenAddress,
			"timestamp": t.Timestamp,
			"block":     int64(t.BlockNumber),
		}

		if _, err := tx.Run(ctx, `
MERGE (tx:Transaction {hash: $hash, event: $event})
SET tx.protocol = $protocol, tx.sourceChain = $srcChain,
    tx.destinationChain = $dstChain, tx.amount = $amount,
    tx.token = $token, tx.timestamp = $timestamp, tx.block = $block`,
			params); err != nil {
			return nil, err
		}

		if t.SourceAddress != "" {
			if _, err := tx.Run(ctx, `
MERGE (w:Wallet {address: $addr})
WITH w
MATCH (tx:Transaction {hash: $hash, event: $event})
MERGE (w)-[:INITIATED]->(tx)`,
				map[string]interface{}{"addr": t.SourceAddress, "hash": t.TransactionHash, "event": t.EventType}); err != nil {
				return nil, err
			}
		}
		if t.DestinationAddress != "" {
			if _, err := tx.Run(ctx, `
MERGE (w:Wallet {address: $addr})
WITH w
MATCH (tx:Transaction {hash: $hash, event: $event})
MERGE (w)-[:RECEIVED]->(tx)`,
				map[string]interface{}{"addr": t.DestinationAddress, "hash": t.TransactionHash, "event": t.EventType}); err != nil {
				return nil, err
			}
		}
		if t.SourceAddress != "" && t.DestinationAddress != "" && t.SourceAddress != t.DestinationAddress {
			if _, err := tx.Run(ctx, `
MATCH (src:Wallet {address: $src}), (dst:Wallet {address: $dst})
MERGE (src)-[s:SENT {token: $token}]->(dst)
SET s.amount = $amount`,
				map[string]interface{}{
					"src": t.SourceAddress, "dst": t.DestinationAddress,
					"token": t.TokenAddress, "amount": t.Amount.String(),
				}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		metrics.GraphWriteFailures.Inc()
		g.logger.Printf("graph write failed tx=%s: %v", t.TransactionHash, err)
		return fmt.Errorf("graph write %s: %w", t.TransactionHash, err)
	}
	return nil
}

// LinkTransfers draws the LINKED edge between the two transaction nodes.
func (g *Graph) LinkTransfers(ctx context.Context, a, b *model.CrossChainTransfer) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, `
MATCH (a:Transaction {hash: $ahash, event: $aevent})
MATCH (b:Transaction {hash: $bhash, event: $bevent})
MERGE (a)-[:LINKED]->(b)`,
			map[string]interface{}{
				"ahash": a.TransactionHash, "aevent": a.EventType,
				"bhash": b.TransactionHash, "bevent": b.EventType,
			})
		return nil, err
	})
	if err != nil {
		metrics.GraphWriteFailures.Inc()
		g.logger.Printf("graph link failed %s<->%s: %v", a.TransactionHash, b.TransactionHash, err)
		return fmt.Errorf("graph link: %w", err)
	}
	return nil
}
