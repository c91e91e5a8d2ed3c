package decoder

import (
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bridgescope/backend/internal/model"
)

func newXBridgeDecoder() *Decoder {
	return newDecoder(model.ProtocolXBridge, []EventSpec{
		{
			Name:      "LogBridgeTo",
			Signature: "LogBridgeTo(uint256,address,address,address,uint256,uint256)",
			EventType: "LogBridgeTo",
			Parse:     parseXBridgeTo,
		},
		{
			Name:      "LogBridgeIn",
			Signature: "LogBridgeIn(uint256,address,address,uint256,uint256)",
			EventType: "LogBridgeIn",
			Parse:     parseXBridgeIn,
		},
	})
}

// LogBridgeTo(orderId indexed, from indexed, to indexed, token, amount,
// toChainId): aggregator source side.
func parseXBridgeTo(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 4); err != nil {
		return nil, err
	}
	orderID := topicBig(lg.Topics[1])
	from := topicAddr(lg.Topics[2])
	to := topicAddr(lg.Topics[3])

	token, err := wordAddr(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	amount, err := wordBig(lg.Data, 1)
	if err != nil {
		return nil, err
	}
	dstChainID, err := wordU64(lg.Data, 2)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolXBridge)
	t.SourceChain = chain
	t.DestinationChain = model.ChainFromID(dstChainID)
	t.SourceAddress = from
	t.DestinationAddress = to
	t.TokenAddress = token
	t.Amount = model.NewRawAmount(amount)
	t.Metadata["order_id"] = orderID.String()
	return t, nil
}

// LogBridgeIn(orderId indexed, to indexed, token, amount, fromChainId):
// destination side payout.
func parseXBridgeIn(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 3); err != nil {
		return nil, err
	}
	orderID := topicBig(lg.Topics[1])
	to := topicAddr(lg.Topics[2])

	token, err := wordAddr(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	amount, err := wordBig(lg.Data, 1)
	if err != nil {
		return nil, err
	}
	srcChainID, err := wordU64(lg.Data, 2)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolXBridge)
	t.SourceChain = model.ChainFromID(srcChainID)
	t.DestinationChain = chain
	t.DestinationAddress = to
	t.TokenAddress = token
	t.Amount = model.NewRawAmount(amount)
	t.Metadata["order_id"] = orderID.String()
	return t, nil
}
