package decoder

import (
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bridgescope/backend/internal/model"
)

func newHopDecoder() *Decoder {
	return newDecoder(model.ProtocolHop, []EventSpec{
		{
			Name:      "TransferSent",
			Signature: "TransferSent(bytes32,uint256,address,uint256,bytes32,uint256,uint256,uint256,uint256)",
			EventType: "TransferSent",
			Parse:     parseHopTransferSent,
		},
		{
			Name:      "TransferFromL1Completed",
			Signature: "TransferFromL1Completed(address,uint256,uint256,uint256,address,uint256)",
			EventType: "TransferFromL1Completed",
			Parse:     parseHopFromL1Completed,
		},
		{
			Name:      "WithdrawalBonded",
			Signature: "WithdrawalBonded(bytes32,uint256)",
			EventType: "WithdrawalBonded",
			Parse:     parseHopWithdrawalBonded,
		},
	})
}

// TransferSent(transferId indexed, chainId indexed, recipient indexed,
// amount, transferNonce, bonderFee, index, amountOutMin, deadline).
func parseHopTransferSent(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 4); err != nil {
		return nil, err
	}
	transferID := lg.Topics[1]
	dstChainID := topicBig(lg.Topics[2]).Uint64()
	recipient := topicAddr(lg.Topics[3])

	amount, err := wordBig(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	bonderFee, err := wordBig(lg.Data, 2)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolHop)
	t.SourceChain = chain
	t.DestinationChain = model.ChainFromID(dstChainID)
	t.DestinationAddress = recipient
	t.Amount = model.NewRawAmount(amount)
	t.Metadata["transfer_id"] = transferID.Hex()
	t.Metadata["bonder_fee"] = bonderFee.String()
	return t, nil
}

// TransferFromL1Completed(recipient indexed, amount, amountOutMin, deadline,
// relayer indexed, relayerFee): destination side of an L1->L2 send.
func parseHopFromL1Completed(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 3); err != nil {
		return nil, err
	}
	recipient := topicAddr(lg.Topics[1])
	relayer := topicAddr(lg.Topics[2])

	amount, err := wordBig(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	relayerFee, err := wordBig(lg.Data, 3)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolHop)
	t.SourceChain = model.ChainEthereum
	t.DestinationChain = chain
	t.DestinationAddress = recipient
	t.Amount = model.NewRawAmount(amount)
	t.Metadata["relayer"] = relayer
	t.Metadata["relayer_fee"] = relayerFee.String()
	return t, nil
}

// WithdrawalBonded(transferId indexed, amount): bonder fronted the exit on
// the destination chain.
func parseHopWithdrawalBonded(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 2); err != nil {
		return nil, err
	}
	transferID := lg.Topics[1]
	amount, err := wordBig(lg.Data, 0)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolHop)
	t.DestinationChain = chain
	t.Amount = model.NewRawAmount(amount)
	t.Metadata["transfer_id"] = transferID.Hex()
	return t, nil
}
