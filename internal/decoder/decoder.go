// Package decoder turns raw bridge contract logs into normalized
// CrossChainTransfer records.
//
// A Decoder is data, not code: per protocol it is a table of event
// signatures (topic0) and small parse functions. Adding a protocol means
// adding a table. Decoders are pure and perform no I/O; unknown topics
// decode to (nil, nil) and are dropped by the observer.
package decoder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bridgescope/backend/internal/model"
)

// ParseFunc maps one recognized log to a transfer record. The observer's
// chain tag is passed in so half-sided events can stamp their own side.
type ParseFunc func(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error)

// EventSpec declares one recognized event. Decoding routes on Topic, never
// on the name string, so signature aliases across protocol versions are just
// extra table rows.
type EventSpec struct {
	Name      string
	Signature string
	Topic     common.Hash
	EventType string
	Parse     ParseFunc
}

// Decoder is the per-protocol signature table.
type Decoder struct {
	protocol model.Protocol
	specs    map[common.Hash]EventSpec
	order    []common.Hash
}

func newDecoder(p model.Protocol, specs []EventSpec) *Decoder {
	d := &Decoder{protocol: p, specs: make(map[common.Hash]EventSpec, len(specs))}
	for _, s := range specs {
		if (s.Topic == common.Hash{}) {
			s.Topic = crypto.Keccak256Hash([]byte(s.Signature))
		}
		d.specs[s.Topic] = s
		d.order = append(d.order, s.Topic)
	}
	return d
}

// Protocol returns the protocol this decoder handles.
func (d *Decoder) Protocol() model.Protocol { return d.protocol }

// Topics returns the topic0 filter for subscription and backfill queries.
func (d *Decoder) Topics() [][]common.Hash {
	return [][]common.Hash{append([]common.Hash(nil), d.order...)}
}

// Decode maps a raw log to a transfer record, or (nil, nil) when the topic
// is not in the table.
func (d *Decoder) Decode(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if len(lg.Topics) == 0 {
		return nil, nil
	}
	spec, ok := d.specs[lg.Topics[0]]
	if !ok {
		return nil, nil
	}
	t, err := spec.Parse(chain, lg)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", d.protocol, spec.Name, err)
	}
	if t == nil {
		return nil, nil
	}
	t.Protocol = d.protocol
	if t.EventType == "" {
		t.EventType = spec.EventType
	}
	t.TransactionHash = model.NormalizeAddress(lg.TxHash.Hex())
	t.BlockNumber = lg.BlockNumber
	return t, nil
}

// ForProtocol returns the decoder for p.
func ForProtocol(p model.Protocol) (*Decoder, error) {
	switch p {
	case model.ProtocolStargate:
		return newStargateDecoder(), nil
	case model.ProtocolCelerCBridge:
		return newCelerDecoder(), nil
	case model.ProtocolWormhole:
		return newWormholeDecoder(), nil
	case model.ProtocolSynapse:
		return newSynapseDecoder(), nil
	case model.ProtocolHop:
		return newHopDecoder(), nil
	case model.ProtocolDeBridge:
		return newDeBridgeDecoder(), nil
	case model.ProtocolAcross:
		return newAcrossDecoder(), nil
	case model.ProtocolOrbiter:
		return newOrbiterDecoder(), nil
	case model.ProtocolXBridge:
		return newXBridgeDecoder(), nil
	case model.ProtocolMultichain:
		return newMultichainDecoder(), nil
	}
	return nil, fmt.Errorf("no decoder for protocol %q", p)
}

// ---- ABI word helpers ----

func word(data []byte, i int) ([]byte, error) {
	if len(data) < (i+1)*32 {
		return nil, fmt.Errorf("log data too short: want word %d, have %d bytes", i, len(data))
	}
	return data[i*32 : (i+1)*32], nil
}

func wordBig(data []byte, i int) (*big.Int, error) {
	w, err := word(data, i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

func wordU64(data []byte, i int) (uint64, error) {
	b, err := wordBig(data, i)
	if err != nil {
		return 0, err
	}
	if !b.IsUint64() {
		return 0, fmt.Errorf("word %d does not fit uint64", i)
	}
	return b.Uint64(), nil
}

// wordAddr extracts an address from a 32-byte left-padded word: last
// 20 bytes, lowercased.
func wordAddr(data []byte, i int) (string, error) {
	w, err := word(data, i)
	if err != nil {
		return "", err
	}
	return model.NormalizeAddress(common.BytesToAddress(w[12:]).Hex()), nil
}

// topicAddr extracts an address from an indexed topic word.
func topicAddr(h common.Hash) string {
	return model.NormalizeAddress(common.BytesToAddress(h.Bytes()[12:]).Hex())
}

func topicBig(h common.Hash) *big.Int {
	return new(big.Int).SetBytes(h.Bytes())
}

func requireTopics(lg types.Log, n int) error {
	if len(lg.Topics) < n {
		return fmt.Errorf("expected %d topics, got %d", n, len(lg.Topics))
	}
	return nil
}
