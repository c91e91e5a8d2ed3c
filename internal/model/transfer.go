// Package model defines the normalized cross-chain transfer record and the
// closed vocabularies (protocol, chain, status) shared by every component.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Protocol identifies a bridge protocol. The set is closed; unknown strings
// from external input must go through ParseProtocol.
type Protocol string

const (
	ProtocolStargate     Protocol = "stargate"
	ProtocolCelerCBridge Protocol = "celer_cbridge"
	ProtocolWormhole     Protocol = "wormhole"
	ProtocolSynapse      Protocol = "synapse"
	ProtocolHop          Protocol = "hop"
	ProtocolDeBridge     Protocol = "debridge"
	ProtocolAcross       Protocol = "across"
	ProtocolOrbiter      Protocol = "orbiter"
	ProtocolXBridge      Protocol = "xbridge"
	ProtocolMultichain   Protocol = "multichain"
)

// Protocols lists every supported protocol.
var Protocols = []Protocol{
	ProtocolStargate, ProtocolCelerCBridge, ProtocolWormhole, ProtocolSynapse,
	ProtocolHop, ProtocolDeBridge, ProtocolAcross, ProtocolOrbiter,
	ProtocolXBridge, ProtocolMultichain,
}

// ParseProtocol validates an external protocol string.
func ParseProtocol(s string) (Protocol, error) {
	p := Protocol(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Protocols {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown bridge protocol %q", s)
}

// Chain is a chain tag from the closed vocabulary, plus the literal
// "chain-<id>" form for numeric ids we do not recognize.
type Chain string

const (
	ChainEthereum  Chain = "ethereum"
	ChainBSC       Chain = "bsc"
	ChainPolygon   Chain = "polygon"
	ChainArbitrum  Chain = "arbitrum"
	ChainOptimism  Chain = "optimism"
	ChainAvalanche Chain = "avalanche"
	ChainFantom    Chain = "fantom"
	ChainZkSync    Chain = "zksync"
	ChainLinea     Chain = "linea"
	ChainBase      Chain = "base"
)

// Chains lists every named chain tag.
var Chains = []Chain{
	ChainEthereum, ChainBSC, ChainPolygon, ChainArbitrum, ChainOptimism,
	ChainAvalanche, ChainFantom, ChainZkSync, ChainLinea, ChainBase,
}

var chainByID = map[uint64]Chain{
	1:     ChainEthereum,
	56:    ChainBSC,
	137:   ChainPolygon,
	42161: ChainArbitrum,
	10:    ChainOptimism,
	43114: ChainAvalanche,
	250:   ChainFantom,
	324:   ChainZkSync,
	59144: ChainLinea,
	8453:  ChainBase,
}

// ChainFromID maps a standard EVM chain id to its tag. Unrecognized ids map
// to the literal "chain-<id>" so half-decoded records are never dropped.
func ChainFromID(id uint64) Chain {
	if c, ok := chainByID[id]; ok {
		return c
	}
	return Chain(fmt.Sprintf("chain-%d", id))
}

// ParseChain validates an external chain string. The "chain-<id>" escape form
// is accepted as-is.
func ParseChain(s string) (Chain, error) {
	c := Chain(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Chains {
		if c == known {
			return c, nil
		}
	}
	if strings.HasPrefix(string(c), "chain-") {
		return c, nil
	}
	return "", fmt.Errorf("unknown chain tag %q", s)
}

// Status is the transfer lifecycle status.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// ParseStatus validates an external status string.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusFailed:
		return StatusFailed, nil
	}
	return "", fmt.Errorf("unknown transfer status %q", s)
}

// Flag severities.
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// Well-known risk flag types.
const (
	FlagSanctionsMatch     = "SANCTIONS_MATCH"
	FlagHighValueTransfer  = "HIGH_VALUE_TRANSFER"
	FlagFrequentBridge     = "FREQUENT_BRIDGE_USAGE"
	FlagAnalysisIncomplete = "ANALYSIS_INCOMPLETE"
	FlagCorrelationTimeout = "CORRELATION_TIMEOUT"
)

// RiskFlag is one entry in a transfer's ordered risk flag list.
type RiskFlag struct {
	Type        string            `json:"type"`
	Severity    string            `json:"severity"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details,omitempty"`
}

// SanctionsEntry is a read-only row from the sanctions watchlist.
type SanctionsEntry struct {
	Source        string `json:"source"`
	EntityName    string `json:"entity_name"`
	WalletAddress string `json:"wallet_address,omitempty"`
	Chain         string `json:"chain,omitempty"`
	RiskLevel     string `json:"risk_level"`
	IsActive      bool   `json:"is_active"`
}

// CrossChainTransfer is the normalized record produced by the decoders and
// carried through risk scoring, correlation and persistence.
//
// Addresses are lowercased 0x-prefixed hex and may be empty on half-sided
// events. Timestamp and AnalyzedAt are UTC seconds.
type CrossChainTransfer struct {
	ID                 string            `json:"id"`
	Protocol           Protocol          `json:"protocol"`
	SourceChain        Chain             `json:"source_chain,omitempty"`
	DestinationChain   Chain             `json:"destination_chain,omitempty"`
	SourceAddress      string            `json:"source_address,omitempty"`
	DestinationAddress string            `json:"destination_address,omitempty"`
	TokenAddress       string            `json:"token_address,omitempty"`
	TokenSymbol        string            `json:"token_symbol"`
	Amount             Amount            `json:"amount"`
	TransactionHash    string            `json:"transaction_hash"`
	BlockNumber        uint64            `json:"block_number"`
	Timestamp          int64             `json:"timestamp"`
	EventType          string            `json:"event_type"`
	Status             Status            `json:"status"`
	LinkedTransferID   string            `json:"linked_transfer_id,omitempty"`
	RiskScore          float64           `json:"risk_score"`
	RiskFlags          []RiskFlag        `json:"risk_flags,omitempty"`
	AnalyzedAt         int64             `json:"analyzed_at,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// NewTransfer assigns an id and the initial status.
func NewTransfer(p Protocol) *CrossChainTransfer {
	return &CrossChainTransfer{
		ID:          uuid.NewString(),
		Protocol:    p,
		TokenSymbol: "UNKNOWN",
		Status:      StatusPending,
		Metadata:    make(map[string]string),
	}
}

var (
	addressRe = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
	txHashRe  = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
)

// NormalizeAddress lowercases and 0x-prefixes a hex address.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return ""
	}
	if !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}
	return addr
}

// ValidAddress reports whether addr is a normalized 20-byte hex address.
func ValidAddress(addr string) bool {
	return addressRe.MatchString(addr)
}

// ZeroAddress is the placeholder contract address; configuration entries
// carrying it are treated as disabled, never as valid targets.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// ValidTxHash reports whether h is a normalized 32-byte hex hash.
func ValidTxHash(h string) bool {
	return txHashRe.MatchString(strings.ToLower(h))
}

// Validate checks the record invariants before persistence.
func (t *CrossChainTransfer) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transfer missing id")
	}
	if _, err := ParseProtocol(string(t.Protocol)); err != nil {
		return err
	}
	if !ValidTxHash(t.TransactionHash) {
		return fmt.Errorf("invalid transaction hash %q", t.TransactionHash)
	}
	if t.EventType == "" {
		return fmt.Errorf("transfer %s missing event type", t.ID)
	}
	for _, addr := range []string{t.SourceAddress, t.DestinationAddress, t.TokenAddress} {
		if addr != "" && !ValidAddress(addr) {
			return fmt.Errorf("invalid address %q on transfer %s", addr, t.ID)
		}
	}
	if t.Amount.Sign() < 0 {
		return fmt.Errorf("negative amount on transfer %s", t.ID)
	}
	if t.RiskScore < 0 || t.RiskScore > 1 {
		return fmt.Errorf("risk score %f out of range on transfer %s", t.RiskScore, t.ID)
	}
	return nil
}

// Endpoints returns the non-empty wallet addresses involved in the transfer.
func (t *CrossChainTransfer) Endpoints() []string {
	var out []string
	if t.SourceAddress != "" {
		out = append(out, t.SourceAddress)
	}
	if t.DestinationAddress != "" && t.DestinationAddress != t.SourceAddress {
		out = append(out, t.DestinationAddress)
	}
	return out
}

// Time returns the block timestamp as a time.Time.
func (t *CrossChainTransfer) Time() time.Time {
	return time.Unix(t.Timestamp, 0).UTC()
}
