package decoder

import (
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bridgescope/backend/internal/model"
)

func newMultichainDecoder() *Decoder {
	return newDecoder(model.ProtocolMultichain, []EventSpec{
		{
			Name:      "LogAnySwapOut",
			Signature: "LogAnySwapOut(address,address,address,uint256,uint256,uint256)",
			EventType: "LogAnySwapOut",
			Parse:     parseAnySwapOut,
		},
		{
			Name:      "LogAnySwapIn",
			Signature: "LogAnySwapIn(bytes32,address,address,uint256,uint256,uint256)",
			EventType: "LogAnySwapIn",
			Parse:     parseAnySwapIn,
		},
	})
}

// LogAnySwapOut(token indexed, from indexed, to indexed, amount, fromChainID,
// toChainID): router source side.
func parseAnySwapOut(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 4); err != nil {
		return nil, err
	}
	token := topicAddr(lg.Topics[1])
	from := topicAddr(lg.Topics[2])
	to := topicAddr(lg.Topics[3])

	amount, err := wordBig(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	dstChainID, err := wordU64(lg.Data, 2)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolMultichain)
	t.SourceChain = chain
	t.DestinationChain = model.ChainFromID(dstChainID)
	t.SourceAddress = from
	t.DestinationAddress = to
	t.TokenAddress = token
	t.Amount = model.NewRawAmount(amount)
	return t, nil
}

// LogAnySwapIn(txhash indexed, token indexed, to indexed, amount, fromChainID,
// toChainID): destination side; txhash is the source-chain transaction.
func parseAnySwapIn(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 4); err != nil {
		return nil, err
	}
	srcTxHash := lg.Topics[1]
	token := topicAddr(lg.Topics[2])
	to := topicAddr(lg.Topics[3])

	amount, err := wordBig(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	srcChainID, err := wordU64(lg.Data, 1)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolMultichain)
	t.SourceChain = model.ChainFromID(srcChainID)
	t.DestinationChain = chain
	t.DestinationAddress = to
	t.TokenAddress = token
	t.Amount = model.NewRawAmount(amount)
	t.Metadata["source_tx_hash"] = srcTxHash.Hex()
	return t, nil
}
