package decoder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bridgescope/backend/internal/model"
)

// Wormhole uses its own chain id namespace.
var wormholeChains = map[uint64]model.Chain{
	2:  model.ChainEthereum,
	4:  model.ChainBSC,
	5:  model.ChainPolygon,
	6:  model.ChainAvalanche,
	10: model.ChainFantom,
	23: model.ChainArbitrum,
	24: model.ChainOptimism,
	30: model.ChainBase,
	38: model.ChainLinea,
}

func wormholeChain(id uint64) model.Chain {
	if c, ok := wormholeChains[id]; ok {
		return c
	}
	return model.Chain(fmt.Sprintf("chain-%d", id))
}

// Token bridge payloads normalize amounts to 8 decimals.
const wormholeDecimals = 8

func newWormholeDecoder() *Decoder {
	return newDecoder(model.ProtocolWormhole, []EventSpec{
		{
			Name:      "LogMessagePublished",
			Signature: "LogMessagePublished(address,uint64,uint32,bytes,uint8)",
			EventType: "TransferTokens",
			Parse:     parseWormholePublished,
		},
		{
			Name:      "TransferRedeemed",
			Signature: "TransferRedeemed(uint16,bytes32,uint64)",
			EventType: "Redeem",
			Parse:     parseWormholeRedeemed,
		},
	})
}

// parseWormholePublished decodes the core bridge publication and, when the
// payload is a token-bridge type 1 transfer, lifts amount/token/recipient
// out of it. Non-transfer payloads are dropped (nil record).
//
// Payload type 1 layout: 1-byte payload id, 32-byte amount, 32-byte token
// address, 2-byte token chain, 32-byte recipient, 2-byte recipient chain.
func parseWormholePublished(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 2); err != nil {
		return nil, err
	}
	sender := topicAddr(lg.Topics[1])

	sequence, err := wordU64(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	nonce, err := wordU64(lg.Data, 1)
	if err != nil {
		return nil, err
	}
	payloadOff, err := wordU64(lg.Data, 2)
	if err != nil {
		return nil, err
	}
	if uint64(len(lg.Data)) < payloadOff+32 {
		return nil, fmt.Errorf("payload offset %d beyond data", payloadOff)
	}
	payloadLen := new(big.Int).SetBytes(lg.Data[payloadOff : payloadOff+32]).Uint64()
	start := payloadOff + 32
	if uint64(len(lg.Data)) < start+payloadLen {
		return nil, fmt.Errorf("payload length %d beyond data", payloadLen)
	}
	payload := lg.Data[start : start+payloadLen]

	// Only token-bridge transfers (payload id 1) become transfer records.
	if len(payload) < 101 || payload[0] != 1 {
		return nil, nil
	}
	amount := new(big.Int).SetBytes(payload[1:33])
	tokenWord := payload[33:65]
	toWord := payload[67:99]
	toChain := uint64(payload[99])<<8 | uint64(payload[100])

	t := model.NewTransfer(model.ProtocolWormhole)
	t.SourceChain = chain
	t.DestinationChain = wormholeChain(toChain)
	t.SourceAddress = sender
	t.DestinationAddress = model.NormalizeAddress(common.BytesToAddress(toWord[12:]).Hex())
	t.TokenAddress = model.NormalizeAddress(common.BytesToAddress(tokenWord[12:]).Hex())
	t.Amount = model.NewAmount(amount, wormholeDecimals)
	t.Metadata["sequence"] = fmt.Sprintf("%d", sequence)
	t.Metadata["nonce"] = fmt.Sprintf("%d", nonce)
	return t, nil
}

// TransferRedeemed fires on the destination chain. The event carries no
// amount or recipient; the record is half-sided and correlation relies on
// the emitter metadata.
func parseWormholeRedeemed(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 4); err != nil {
		return nil, err
	}
	emitterChain := topicBig(lg.Topics[1]).Uint64()
	emitter := lg.Topics[2]
	sequence := topicBig(lg.Topics[3]).Uint64()

	t := model.NewTransfer(model.ProtocolWormhole)
	t.SourceChain = wormholeChain(emitterChain)
	t.DestinationChain = chain
	t.Amount = model.NewRawAmount(big.NewInt(0))
	t.Metadata["emitter"] = emitter.Hex()
	t.Metadata["sequence"] = fmt.Sprintf("%d", sequence)
	return t, nil
}
