package decoder

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bridgescope/backend/internal/model"
)

func newAcrossDecoder() *Decoder {
	return newDecoder(model.ProtocolAcross, []EventSpec{
		{
			Name:      "FundsDeposited",
			Signature: "FundsDeposited(uint256,uint256,uint256,int64,uint32,uint32,address,address,address,bytes)",
			EventType: "FundsDeposited",
			Parse:     parseAcrossDeposit,
		},
		{
			Name:      "FilledRelay",
			Signature: "FilledRelay(uint256,uint256,uint256,uint256,uint256,uint256,int64,int64,uint32,address,address,address,address,bytes)",
			EventType: "FilledRelay",
			Parse:     parseAcrossFill,
		},
	})
}

// FundsDeposited(amount, originChainId, destinationChainId indexed,
// relayerFeePct, depositId indexed, quoteTimestamp, originToken, recipient,
// depositor indexed, message): SpokePool source side.
func parseAcrossDeposit(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 4); err != nil {
		return nil, err
	}
	dstChainID := topicBig(lg.Topics[1]).Uint64()
	depositID := topicBig(lg.Topics[2]).Uint64()
	depositor := topicAddr(lg.Topics[3])

	amount, err := wordBig(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	originChainID, err := wordU64(lg.Data, 1)
	if err != nil {
		return nil, err
	}
	originToken, err := wordAddr(lg.Data, 4)
	if err != nil {
		return nil, err
	}
	recipient, err := wordAddr(lg.Data, 5)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolAcross)
	t.SourceChain = model.ChainFromID(originChainID)
	if t.SourceChain != chain {
		// Trust the observer's chain tag over the event field.
		t.SourceChain = chain
	}
	t.DestinationChain = model.ChainFromID(dstChainID)
	t.SourceAddress = depositor
	t.DestinationAddress = recipient
	t.TokenAddress = originToken
	t.Amount = model.NewRawAmount(amount)
	t.Metadata["deposit_id"] = fmt.Sprintf("%d", depositID)
	return t, nil
}

// FilledRelay(amount, totalFilledAmount, fillAmount, repaymentChainId,
// originChainId indexed, destinationChainId, relayerFeePct,
// realizedLpFeePct, depositId indexed, destinationToken, relayer,
// depositor indexed, recipient, message): destination side.
func parseAcrossFill(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 4); err != nil {
		return nil, err
	}
	originChainID := topicBig(lg.Topics[1]).Uint64()
	depositID := topicBig(lg.Topics[2]).Uint64()
	depositor := topicAddr(lg.Topics[3])

	amount, err := wordBig(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	fillAmount, err := wordBig(lg.Data, 2)
	if err != nil {
		return nil, err
	}
	destinationToken, err := wordAddr(lg.Data, 7)
	if err != nil {
		return nil, err
	}
	relayer, err := wordAddr(lg.Data, 8)
	if err != nil {
		return nil, err
	}
	recipient, err := wordAddr(lg.Data, 9)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolAcross)
	t.SourceChain = model.ChainFromID(originChainID)
	t.DestinationChain = chain
	t.SourceAddress = depositor
	t.DestinationAddress = recipient
	t.TokenAddress = destinationToken
	t.Amount = model.NewRawAmount(amount)
	t.Metadata["deposit_id"] = fmt.Sprintf("%d", depositID)
	t.Metadata["fill_amount"] = fillAmount.String()
	t.Metadata["relayer"] = relayer
	return t, nil
}
