// Package store persists transfer records to the relational store and, best
// effort, to the wallet graph.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/bridgescope/backend/internal/model"
)

// Postgres is the authoritative relational sink. All methods apply the
// configured statement timeout when the caller's context has no deadline.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
	logger  *log.Logger
}

// OpenPostgres connects and sizes the pool. The schema is not touched; call
// EnsureSchema explicitly.
func OpenPostgres(dsn string, poolSize int, timeout time.Duration) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if poolSize > 0 {
		db.SetMaxOpenConns(poolSize)
		db.SetMaxIdleConns(poolSize)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Postgres{
		db:      db,
		timeout: timeout,
		logger:  log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}, nil
}

// Close releases the pool.
func (s *Postgres) Close() error { return s.db.Close() }

// Ping verifies connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Postgres) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

const schema = `
CREATE TABLE IF NOT EXISTS bridge_transfer (
    id                  UUID PRIMARY KEY,
    protocol            TEXT NOT NULL,
    source_chain        TEXT,
    destination_chain   TEXT,
    source_address      TEXT,
    destination_address TEXT,
    token_address       TEXT,
    token_symbol        TEXT NOT NULL DEFAULT 'UNKNOWN',
    amount              NUMERIC(96,18) NOT NULL DEFAULT 0,
    transaction_hash    TEXT NOT NULL,
    block_number        BIGINT NOT NULL DEFAULT 0,
    event_timestamp     BIGINT NOT NULL DEFAULT 0,
    event_type          TEXT NOT NULL,
    status              TEXT NOT NULL DEFAULT 'PENDING',
    linked_transfer_id  UUID,
    risk_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
    risk_flags          JSONB NOT NULL DEFAULT '[]',
    analyzed_at         BIGINT,
    metadata            JSONB NOT NULL DEFAULT '{}',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT bridge_transfer_event_key UNIQUE (protocol, transaction_hash, event_type)
);

CREATE INDEX IF NOT EXISTS idx_bridge_transfer_source_addr
    ON bridge_transfer (source_address);
CREATE INDEX IF NOT EXISTS idx_bridge_transfer_dest_addr
    ON bridge_transfer (destination_address);
CREATE INDEX IF NOT EXISTS idx_bridge_transfer_protocol_ts
    ON bridge_transfer (protocol, event_timestamp);
CREATE INDEX IF NOT EXISTS idx_bridge_transfer_status_ts
    ON bridge_transfer (status, event_timestamp);
CREATE INDEX IF NOT EXISTS idx_bridge_transfer_metadata
    ON bridge_transfer USING GIN (metadata);

CREATE TABLE IF NOT EXISTS bridge_transfer_deadletter (
    id          BIGSERIAL PRIMARY KEY,
    transfer_id UUID NOT NULL,
    payload     JSONB NOT NULL,
    reason      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sanctions_watchlist (
    id             BIGSERIAL PRIMARY KEY,
    source         TEXT NOT NULL,
    entity_name    TEXT NOT NULL,
    wallet_address TEXT,
    chain          TEXT,
    risk_level     TEXT NOT NULL DEFAULT 'HIGH',
    is_active      BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_sanctions_wallet
    ON sanctions_watchlist (lower(wallet_address));

CREATE OR REPLACE VIEW high_risk_bridge_flows AS
    SELECT * FROM bridge_transfer
    WHERE risk_score > 0.7 OR amount > 100000;
`

// EnsureSchema creates the tables, indexes and views when absent.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const transferColumns = `id, protocol, source_chain, destination_chain,
    source_address, destination_address, token_address, token_symbol,
    amount::text, transaction_hash, block_number, event_timestamp, event_type,
    status, linked_transfer_id, risk_score, risk_flags, analyzed_at, metadata`

// Upsert inserts the transfer, keyed by (protocol, transaction_hash,
// event_type). Replays of the same log refresh mutable analysis fields but
// keep the original row identity and created_at. The record's ID is rewritten
// to the stored row's id.
func (s *Postgres) Upsert(ctx context.Context, t *model.CrossChainTransfer) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	flags, err := json.Marshal(flagsOrEmpty(t.RiskFlags))
	if err != nil {
		return err
	}
	meta, err := json.Marshal(metaOrEmpty(t.Metadata))
	if err != nil {
		return err
	}

	var id string
	err = s.db.QueryRowContext(ctx, `
INSERT INTO bridge_transfer (
    id, protocol, source_chain, destination_chain, source_address,
    destination_address, token_address, token_symbol, amount,
    transaction_hash, block_number, event_timestamp, event_type, status,
    risk_score, risk_flags, analyzed_at, metadata
) VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),NULLIF($5,''),NULLIF($6,''),
          NULLIF($7,''),$8,$9::numeric,$10,$11,$12,$13,$14,$15,$16,
          NULLIF($17,0),$18)
ON CONFLICT (protocol, transaction_hash, event_type) DO UPDATE SET
    updated_at = now()
RETURNING id`,
		t.ID, t.Protocol, t.SourceChain, t.DestinationChain, t.SourceAddress,
		t.DestinationAddress, t.TokenAddress, t.TokenSymbol, t.Amount.String(),
		t.TransactionHash, int64(t.BlockNumber), t.Timestamp, t.EventType,
		t.Status, t.RiskScore, flags, t.AnalyzedAt, meta,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("upsert transfer %s: %w", t.TransactionHash, err)
	}
	t.ID = id
	return nil
}

// UpdateRisk writes a scoring result. The latest analysis wins: rows already
// carrying a newer analyzed_at are left alone.
func (s *Postgres) UpdateRisk(ctx context.Context, id string, score float64, flags []model.RiskFlag, analyzedAt int64) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	b, err := json.Marshal(flagsOrEmpty(flags))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
UPDATE bridge_transfer
SET risk_score = $2, risk_flags = $3, analyzed_at = $4, updated_at = now()
WHERE id = $1 AND (analyzed_at IS NULL OR analyzed_at <= $4)`,
		id, score, b, analyzedAt)
	if err != nil {
		return fmt.Errorf("update risk %s: %w", id, err)
	}
	return nil
}

// AppendFlag adds one flag to the row unless an equal flag is already
// present.
func (s *Postgres) AppendFlag(ctx context.Context, id string, flag model.RiskFlag) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	one, err := json.Marshal(flag)
	if err != nil {
		return err
	}
	arr, err := json.Marshal([]model.RiskFlag{flag})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
UPDATE bridge_transfer
SET risk_flags = risk_flags || $2::jsonb, updated_at = now()
WHERE id = $1 AND NOT risk_flags @> $3::jsonb`,
		id, one, arr)
	if err != nil {
		return fmt.Errorf("append flag %s: %w", id, err)
	}
	return nil
}

// FindCandidates returns unlinked PENDING counterparts sharing the subject's
// fingerprint within the window, nearest in time first. The unordered address
// pair is compared via LEAST/GREATEST so either side matches. A counterpart
// must describe the same crossing: both sides of one transfer record the same
// source/destination chain tuple, so the chain predicates reject round-trip
// return legs, and the event_type predicate rejects a second identical
// source-side event (the two sides of every protocol emit distinct events).
// NULL chain columns on half-sided rows stay eligible.
func (s *Postgres) FindCandidates(ctx context.Context, t *model.CrossChainTransfer, window time.Duration) ([]*model.CrossChainTransfer, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	lo, hi := orderedPair(t.SourceAddress, t.DestinationAddress)
	win := int64(window / time.Second)

	rows, err := s.db.QueryContext(ctx, `
SELECT `+transferColumns+`
FROM bridge_transfer
WHERE protocol = $1
  AND id <> $2
  AND transaction_hash <> $3
  AND event_type <> $10
  AND status = 'PENDING'
  AND linked_transfer_id IS NULL
  AND COALESCE(token_address, '') = $4
  AND amount = $5::numeric
  AND LEAST(COALESCE(source_address,''), COALESCE(destination_address,'')) = $6
  AND GREATEST(COALESCE(source_address,''), COALESCE(destination_address,'')) = $7
  AND ($11 = '' OR source_chain IS NULL OR source_chain = $11)
  AND ($12 = '' OR destination_chain IS NULL OR destination_chain = $12)
  AND abs(event_timestamp - $8) <= $9
ORDER BY abs(event_timestamp - $8) ASC
LIMIT 10`,
		t.Protocol, t.ID, t.TransactionHash, t.TokenAddress, t.Amount.String(),
		lo, hi, t.Timestamp, win,
		t.EventType, string(t.SourceChain), string(t.DestinationChain))
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// LinkPair marks both rows COMPLETED with mutual references in one
// transaction. Each update is conditioned on the row still being PENDING and
// unlinked; if either side lost the race the whole link is rolled back and
// linked=false is returned.
func (s *Postgres) LinkPair(ctx context.Context, subjectID, counterpartID string) (bool, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("link pair: %w", err)
	}
	defer tx.Rollback()

	const stmt = `
UPDATE bridge_transfer
SET status = 'COMPLETED', linked_transfer_id = $2, updated_at = now()
WHERE id = $1 AND status = 'PENDING' AND linked_transfer_id IS NULL`

	for _, pair := range [][2]string{{subjectID, counterpartID}, {counterpartID, subjectID}} {
		res, err := tx.ExecContext(ctx, stmt, pair[0], pair[1])
		if err != nil {
			return false, fmt.Errorf("link pair: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		if n != 1 {
			return false, nil
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("link pair: %w", err)
	}
	return true, nil
}

// StalePending returns unlinked PENDING rows older than minAge, oldest first.
func (s *Postgres) StalePending(ctx context.Context, minAge time.Duration, limit int) ([]*model.CrossChainTransfer, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	cutoff := time.Now().Add(-minAge).Unix()
	rows, err := s.db.QueryContext(ctx, `
SELECT `+transferColumns+`
FROM bridge_transfer
WHERE status = 'PENDING' AND linked_transfer_id IS NULL AND event_timestamp <= $1
ORDER BY event_timestamp ASC
LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("stale pending: %w", err)
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// RecentlyUpdated returns rows touched within the window, for rescoring.
func (s *Postgres) RecentlyUpdated(ctx context.Context, window time.Duration, limit int) ([]*model.CrossChainTransfer, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
SELECT `+transferColumns+`
FROM bridge_transfer
WHERE updated_at >= now() - $1::interval
ORDER BY updated_at DESC
LIMIT $2`, fmt.Sprintf("%d seconds", int64(window/time.Second)), limit)
	if err != nil {
		return nil, fmt.Errorf("recently updated: %w", err)
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// Filter narrows listing queries. Zero values mean "any".
type Filter struct {
	Protocol model.Protocol
	Chain    model.Chain
	Status   model.Status
	MinRisk  float64
	Limit    int
	Offset   int
}

func (f Filter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return 100
	}
	return f.Limit
}

// ListRecent returns transfers newest first, honoring the filter.
func (s *Postgres) ListRecent(ctx context.Context, f Filter) ([]*model.CrossChainTransfer, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Protocol != "" {
		add("protocol = $%d", f.Protocol)
	}
	if f.Chain != "" {
		args = append(args, f.Chain)
		conds = append(conds, fmt.Sprintf("(source_chain = $%d OR destination_chain = $%d)", len(args), len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.MinRisk > 0 {
		add("risk_score >= $%d", f.MinRisk)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.limit(), f.Offset)
	q := fmt.Sprintf(`
SELECT %s
FROM bridge_transfer
%s
ORDER BY event_timestamp DESC, block_number DESC
LIMIT $%d OFFSET $%d`, transferColumns, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// ListByWallet returns transfers touching the wallet, newest first.
func (s *Postgres) ListByWallet(ctx context.Context, address string, limit, offset int) ([]*model.CrossChainTransfer, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	address = model.NormalizeAddress(address)
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+transferColumns+`
FROM bridge_transfer
WHERE source_address = $1 OR destination_address = $1
ORDER BY event_timestamp DESC
LIMIT $2 OFFSET $3`, address, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list by wallet: %w", err)
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// ErrNotFound reports a missing transfer id.
var ErrNotFound = errors.New("transfer not found")

// GetByID fetches one transfer.
func (s *Postgres) GetByID(ctx context.Context, id string) (*model.CrossChainTransfer, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
SELECT `+transferColumns+`
FROM bridge_transfer
WHERE id = $1`, id)
	t, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// Search runs a case-insensitive substring match over hashes, addresses and
// token symbols. Human queries only; correlation never goes through here.
func (s *Postgres) Search(ctx context.Context, query string, limit int) ([]*model.CrossChainTransfer, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	pat := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
SELECT `+transferColumns+`
FROM bridge_transfer
WHERE transaction_hash ILIKE $1
   OR source_address ILIKE $1
   OR destination_address ILIKE $1
   OR token_address ILIKE $1
   OR token_symbol ILIKE $1
ORDER BY event_timestamp DESC
LIMIT $2`, pat, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// Statistics summarizes the table for the collaborator API.
type Statistics struct {
	Total       int64                   `json:"total"`
	ByStatus    map[model.Status]int64  `json:"by_status"`
	ByProtocol  map[model.Protocol]int64 `json:"by_protocol"`
	LinkedPairs int64                   `json:"linked_pairs"`
	HighRisk    int64                   `json:"high_risk"`
	AvgRisk     float64                 `json:"avg_risk_score"`
}

// Stats aggregates counts by status and protocol plus risk figures.
func (s *Postgres) Stats(ctx context.Context) (*Statistics, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	out := &Statistics{
		ByStatus:   make(map[model.Status]int64),
		ByProtocol: make(map[model.Protocol]int64),
	}

	err := s.db.QueryRowContext(ctx, `
SELECT count(*),
       count(*) FILTER (WHERE linked_transfer_id IS NOT NULL) / 2,
       count(*) FILTER (WHERE risk_score > 0.7),
       COALESCE(avg(risk_score), 0)
FROM bridge_transfer`).Scan(&out.Total, &out.LinkedPairs, &out.HighRisk, &out.AvgRisk)
	if err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT status, count(*) FROM bridge_transfer GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st model.Status
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out.ByStatus[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.QueryContext(ctx, `
SELECT protocol, count(*) FROM bridge_transfer GROUP BY protocol`)
	if err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var p model.Protocol
		var n int64
		if err := prows.Scan(&p, &n); err != nil {
			return nil, err
		}
		out.ByProtocol[p] = n
	}
	return out, prows.Err()
}

// DeadLetter parks a record that exhausted its persistence retries. Dead
// letters live in their own table and never surface in listing queries.
func (s *Postgres) DeadLetter(ctx context.Context, t *model.CrossChainTransfer, reason string) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO bridge_transfer_deadletter (transfer_id, payload, reason)
VALUES ($1, $2, $3)`, t.ID, payload, reason)
	if err != nil {
		return fmt.Errorf("dead letter %s: %w", t.ID, err)
	}
	return nil
}

// Sanctioned implements the risk engine's watchlist lookup: case-insensitive
// exact address match over active entries.
func (s *Postgres) Sanctioned(ctx context.Context, address string) (*model.SanctionsEntry, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
SELECT source, entity_name, COALESCE(wallet_address, ''), COALESCE(chain, ''),
       risk_level, is_active
FROM sanctions_watchlist
WHERE lower(wallet_address) = lower($1) AND is_active
LIMIT 1`, address)

	var e model.SanctionsEntry
	err := row.Scan(&e.Source, &e.EntityName, &e.WalletAddress, &e.Chain, &e.RiskLevel, &e.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sanctions lookup: %w", err)
	}
	return &e, nil
}

// IsTransient reports whether a persistence error is worth retrying:
// connection trouble, resource pressure or serialization conflicts. Schema
// and constraint violations are fatal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return true
		}
		return false
	}
	// Unclassified driver/network failures get the retry.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "broken pipe") || strings.Contains(msg, "eof")
}

// ---- row mapping ----

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransfer(row rowScanner) (*model.CrossChainTransfer, error) {
	var (
		t          model.CrossChainTransfer
		srcChain   sql.NullString
		dstChain   sql.NullString
		srcAddr    sql.NullString
		dstAddr    sql.NullString
		tokenAddr  sql.NullString
		amount     string
		linkedID   sql.NullString
		analyzedAt sql.NullInt64
		blockNum   int64
		flags      []byte
		meta       []byte
	)
	err := row.Scan(&t.ID, &t.Protocol, &srcChain, &dstChain, &srcAddr, &dstAddr,
		&tokenAddr, &t.TokenSymbol, &amount, &t.TransactionHash, &blockNum,
		&t.Timestamp, &t.EventType, &t.Status, &linkedID, &t.RiskScore,
		&flags, &analyzedAt, &meta)
	if err != nil {
		return nil, err
	}
	t.SourceChain = model.Chain(srcChain.String)
	t.DestinationChain = model.Chain(dstChain.String)
	t.SourceAddress = srcAddr.String
	t.DestinationAddress = dstAddr.String
	t.TokenAddress = tokenAddr.String
	t.LinkedTransferID = linkedID.String
	t.AnalyzedAt = analyzedAt.Int64
	t.BlockNumber = uint64(blockNum)

	if t.Amount, err = model.AmountFromStored(amount); err != nil {
		return nil, fmt.Errorf("row %s: %w", t.ID, err)
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &t.RiskFlags); err != nil {
			return nil, fmt.Errorf("row %s flags: %w", t.ID, err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return nil, fmt.Errorf("row %s metadata: %w", t.ID, err)
		}
	}
	return &t, nil
}

func scanTransfers(rows *sql.Rows) ([]*model.CrossChainTransfer, error) {
	var out []*model.CrossChainTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// orderedPair sorts the address pair lexically; absent sides compare as "",
// mirroring the COALESCE in FindCandidates.
func orderedPair(a, b string) (string, string) {
	if a > b {
		a, b = b, a
	}
	return a, b
}

func flagsOrEmpty(flags []model.RiskFlag) []model.RiskFlag {
	if flags == nil {
		return []model.RiskFlag{}
	}
	return flags
}

func metaOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
