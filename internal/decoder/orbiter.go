package decoder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bridgescope/backend/internal/model"
)

// Orbiter encodes the destination in the transfer amount itself: the last
// four digits are an identification code, 9000 plus the maker's internal
// chain number.
var orbiterChains = map[int64]model.Chain{
	1:  model.ChainEthereum,
	2:  model.ChainArbitrum,
	6:  model.ChainPolygon,
	7:  model.ChainOptimism,
	14: model.ChainZkSync,
	15: model.ChainBSC,
	21: model.ChainBase,
	22: model.ChainAvalanche,
	23: model.ChainLinea,
}

func newOrbiterDecoder() *Decoder {
	return newDecoder(model.ProtocolOrbiter, []EventSpec{
		{
			// Orbiter moves value through plain ERC20 transfers to maker
			// addresses; only the source side is observable from the token
			// contract.
			Name:      "Transfer",
			Signature: "Transfer(address,address,uint256)",
			EventType: "Transfer",
			Parse:     parseOrbiterTransfer,
		},
	})
}

func parseOrbiterTransfer(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 3); err != nil {
		return nil, err
	}
	from := topicAddr(lg.Topics[1])
	to := topicAddr(lg.Topics[2])
	value, err := wordBig(lg.Data, 0)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolOrbiter)
	t.SourceChain = chain
	t.SourceAddress = from
	t.DestinationAddress = to
	t.TokenAddress = model.NormalizeAddress(lg.Address.Hex())
	t.Amount = model.NewRawAmount(value)

	code := new(big.Int).Mod(value, big.NewInt(10000)).Int64()
	if code >= 9001 && code <= 9999 {
		t.Metadata["identification_code"] = big.NewInt(code).String()
		if dst, ok := orbiterChains[code-9000]; ok {
			t.DestinationChain = dst
		}
	}
	return t, nil
}
