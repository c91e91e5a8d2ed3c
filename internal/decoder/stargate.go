package decoder

import (
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bridgescope/backend/internal/model"
)

// Stargate routes over LayerZero, so destination chains in Pool events are
// LayerZero endpoint ids rather than EVM chain ids.
var layerZeroChains = map[uint64]model.Chain{
	101: model.ChainEthereum,
	102: model.ChainBSC,
	106: model.ChainAvalanche,
	109: model.ChainPolygon,
	110: model.ChainArbitrum,
	111: model.ChainOptimism,
	112: model.ChainFantom,
	165: model.ChainZkSync,
	183: model.ChainLinea,
	184: model.ChainBase,
}

func lzChain(id uint64) model.Chain {
	if c, ok := layerZeroChains[id]; ok {
		return c
	}
	return model.ChainFromID(id)
}

// Stargate pool amounts are in shared decimals.
const stargateSharedDecimals = 6

func newStargateDecoder() *Decoder {
	return newDecoder(model.ProtocolStargate, []EventSpec{
		{
			Name:      "Swap",
			Signature: "Swap(uint16,uint256,address,uint256,uint256,uint256,uint256,uint256)",
			EventType: "Swap",
			Parse:     parseStargateSwap,
		},
		{
			Name:      "SwapRemote",
			Signature: "SwapRemote(address,uint256,uint256,uint256)",
			EventType: "SwapRemote",
			Parse:     parseStargateSwapRemote,
		},
	})
}

// Swap fires pool-side on the source chain: the destination is a LayerZero
// chain id, the recipient is not in the event (half-sided record).
func parseStargateSwap(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	dstChainID, err := wordU64(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	dstPoolID, err := wordBig(lg.Data, 1)
	if err != nil {
		return nil, err
	}
	from, err := wordAddr(lg.Data, 2)
	if err != nil {
		return nil, err
	}
	amountSD, err := wordBig(lg.Data, 3)
	if err != nil {
		return nil, err
	}
	protocolFee, err := wordBig(lg.Data, 6)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolStargate)
	t.SourceChain = chain
	t.DestinationChain = lzChain(dstChainID)
	t.SourceAddress = from
	t.TokenAddress = model.NormalizeAddress(lg.Address.Hex())
	t.Amount = model.NewAmount(amountSD, stargateSharedDecimals)
	t.Metadata["dst_pool_id"] = dstPoolID.String()
	t.Metadata["protocol_fee"] = protocolFee.String()
	return t, nil
}

// SwapRemote fires on the destination chain when the pool pays out.
func parseStargateSwapRemote(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	to, err := wordAddr(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	amountSD, err := wordBig(lg.Data, 1)
	if err != nil {
		return nil, err
	}
	dstFee, err := wordBig(lg.Data, 3)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolStargate)
	t.DestinationChain = chain
	t.DestinationAddress = to
	t.TokenAddress = model.NormalizeAddress(lg.Address.Hex())
	t.Amount = model.NewAmount(amountSD, stargateSharedDecimals)
	t.Metadata["dst_fee"] = dstFee.String()
	return t, nil
}
