package decoder

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bridgescope/backend/internal/model"
)

func newCelerDecoder() *Decoder {
	return newDecoder(model.ProtocolCelerCBridge, []EventSpec{
		{
			Name:      "Send",
			Signature: "Send(bytes32,address,address,address,uint256,uint64,uint64,uint32)",
			EventType: "Send",
			Parse:     parseCelerSend,
		},
		{
			Name:      "Relay",
			Signature: "Relay(bytes32,address,address,address,uint256,uint64,bytes32)",
			EventType: "Relay",
			Parse:     parseCelerRelay,
		},
		{
			// Refund of a transfer that could not be relayed.
			Name:      "WithdrawDone",
			Signature: "WithdrawDone(bytes32,address,address,uint256,bytes32)",
			EventType: "WithdrawDone",
			Parse:     parseCelerWithdrawDone,
		},
	})
}

// Send(transferId, sender, receiver, token, amount, dstChainId, nonce, maxSlippage)
// fires on the source chain; every argument is unindexed.
func parseCelerSend(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	transferID, err := word(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	sender, err := wordAddr(lg.Data, 1)
	if err != nil {
		return nil, err
	}
	receiver, err := wordAddr(lg.Data, 2)
	if err != nil {
		return nil, err
	}
	token, err := wordAddr(lg.Data, 3)
	if err != nil {
		return nil, err
	}
	amount, err := wordBig(lg.Data, 4)
	if err != nil {
		return nil, err
	}
	dstChainID, err := wordU64(lg.Data, 5)
	if err != nil {
		return nil, err
	}
	nonce, err := wordU64(lg.Data, 6)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolCelerCBridge)
	t.SourceChain = chain
	t.DestinationChain = model.ChainFromID(dstChainID)
	t.SourceAddress = sender
	t.DestinationAddress = receiver
	t.TokenAddress = token
	t.Amount = model.NewRawAmount(amount)
	t.Metadata["transfer_id"] = common.BytesToHash(transferID).Hex()
	t.Metadata["nonce"] = fmt.Sprintf("%d", nonce)
	return t, nil
}

// Relay(transferId, sender, receiver, token, amount, srcChainId, srcTransferId)
// fires on the destination chain.
func parseCelerRelay(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	transferID, err := word(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	sender, err := wordAddr(lg.Data, 1)
	if err != nil {
		return nil, err
	}
	receiver, err := wordAddr(lg.Data, 2)
	if err != nil {
		return nil, err
	}
	token, err := wordAddr(lg.Data, 3)
	if err != nil {
		return nil, err
	}
	amount, err := wordBig(lg.Data, 4)
	if err != nil {
		return nil, err
	}
	srcChainID, err := wordU64(lg.Data, 5)
	if err != nil {
		return nil, err
	}
	srcTransferID, err := word(lg.Data, 6)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolCelerCBridge)
	t.SourceChain = model.ChainFromID(srcChainID)
	t.DestinationChain = chain
	t.SourceAddress = sender
	t.DestinationAddress = receiver
	t.TokenAddress = token
	t.Amount = model.NewRawAmount(amount)
	t.Metadata["transfer_id"] = common.BytesToHash(transferID).Hex()
	t.Metadata["src_transfer_id"] = common.BytesToHash(srcTransferID).Hex()
	return t, nil
}

// WithdrawDone fires when a failed transfer is refunded on the source chain.
func parseCelerWithdrawDone(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	withdrawID, err := word(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	receiver, err := wordAddr(lg.Data, 1)
	if err != nil {
		return nil, err
	}
	token, err := wordAddr(lg.Data, 2)
	if err != nil {
		return nil, err
	}
	amount, err := wordBig(lg.Data, 3)
	if err != nil {
		return nil, err
	}
	refID, err := word(lg.Data, 4)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolCelerCBridge)
	t.SourceChain = chain
	t.SourceAddress = receiver
	t.TokenAddress = token
	t.Amount = model.NewRawAmount(amount)
	t.Status = model.StatusFailed
	t.Metadata["withdraw_id"] = common.BytesToHash(withdrawID).Hex()
	t.Metadata["ref_id"] = common.BytesToHash(refID).Hex()
	return t, nil
}
