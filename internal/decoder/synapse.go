package decoder

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bridgescope/backend/internal/model"
)

func newSynapseDecoder() *Decoder {
	return newDecoder(model.ProtocolSynapse, []EventSpec{
		{
			Name:      "TokenDeposit",
			Signature: "TokenDeposit(address,uint256,address,uint256)",
			EventType: "TokenDeposit",
			Parse:     parseSynapseOutbound("TokenDeposit"),
		},
		{
			// Burn-and-redeem path; same shape as TokenDeposit.
			Name:      "TokenRedeem",
			Signature: "TokenRedeem(address,uint256,address,uint256)",
			EventType: "TokenRedeem",
			Parse:     parseSynapseOutbound("TokenRedeem"),
		},
		{
			Name:      "TokenMint",
			Signature: "TokenMint(address,address,uint256,uint256,bytes32)",
			EventType: "TokenMint",
			Parse:     parseSynapseInbound("TokenMint"),
		},
		{
			Name:      "TokenWithdraw",
			Signature: "TokenWithdraw(address,address,uint256,uint256,bytes32)",
			EventType: "TokenWithdraw",
			Parse:     parseSynapseInbound("TokenWithdraw"),
		},
	})
}

// TokenDeposit/TokenRedeem(to indexed, chainId, token, amount): source side.
func parseSynapseOutbound(eventType string) ParseFunc {
	return func(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
		if err := requireTopics(lg, 2); err != nil {
			return nil, err
		}
		to := topicAddr(lg.Topics[1])
		dstChainID, err := wordU64(lg.Data, 0)
		if err != nil {
			return nil, err
		}
		token, err := wordAddr(lg.Data, 1)
		if err != nil {
			return nil, err
		}
		amount, err := wordBig(lg.Data, 2)
		if err != nil {
			return nil, err
		}

		t := model.NewTransfer(model.ProtocolSynapse)
		t.EventType = eventType
		t.SourceChain = chain
		t.DestinationChain = model.ChainFromID(dstChainID)
		t.DestinationAddress = to
		t.TokenAddress = token
		t.Amount = model.NewRawAmount(amount)
		return t, nil
	}
}

// TokenMint/TokenWithdraw(to indexed, token, amount, fee, kappa): destination
// side; kappa is the keccak of the source tx hash.
func parseSynapseInbound(eventType string) ParseFunc {
	return func(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
		if err := requireTopics(lg, 2); err != nil {
			return nil, err
		}
		to := topicAddr(lg.Topics[1])
		token, err := wordAddr(lg.Data, 0)
		if err != nil {
			return nil, err
		}
		amount, err := wordBig(lg.Data, 1)
		if err != nil {
			return nil, err
		}
		fee, err := wordBig(lg.Data, 2)
		if err != nil {
			return nil, err
		}
		kappa, err := word(lg.Data, 3)
		if err != nil {
			return nil, err
		}

		t := model.NewTransfer(model.ProtocolSynapse)
		t.EventType = eventType
		t.DestinationChain = chain
		t.DestinationAddress = to
		t.TokenAddress = token
		t.Amount = model.NewRawAmount(amount)
		t.Metadata["fee"] = fee.String()
		t.Metadata["kappa"] = common.BytesToHash(kappa).Hex()
		return t, nil
	}
}
