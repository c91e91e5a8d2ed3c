package decoder

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bridgescope/backend/internal/model"
)

func newDeBridgeDecoder() *Decoder {
	return newDecoder(model.ProtocolDeBridge, []EventSpec{
		{
			Name:      "Sent",
			Signature: "Sent(bytes32,bytes32,uint256,bytes,uint256,uint256,uint32)",
			EventType: "Sent",
			Parse:     parseDeBridgeSent,
		},
		{
			Name:      "Claimed",
			Signature: "Claimed(bytes32,bytes32,uint256,address,uint256,uint256)",
			EventType: "Claimed",
			Parse:     parseDeBridgeClaimed,
		},
	})
}

// Sent(submissionId, debridgeId indexed, amount, receiver bytes, nonce,
// chainIdTo indexed, referralCode). The receiver is dynamic bytes: for EVM
// destinations it is a 20-byte address.
func parseDeBridgeSent(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 3); err != nil {
		return nil, err
	}
	debridgeID := lg.Topics[1]
	dstChainID := topicBig(lg.Topics[2]).Uint64()

	submissionID, err := word(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	amount, err := wordBig(lg.Data, 1)
	if err != nil {
		return nil, err
	}
	receiverOff, err := wordU64(lg.Data, 2)
	if err != nil {
		return nil, err
	}
	nonce, err := wordBig(lg.Data, 3)
	if err != nil {
		return nil, err
	}

	var receiver string
	if uint64(len(lg.Data)) >= receiverOff+32 {
		rlen := topicBig(common.BytesToHash(lg.Data[receiverOff : receiverOff+32])).Uint64()
		start := receiverOff + 32
		if rlen == 20 && uint64(len(lg.Data)) >= start+20 {
			receiver = model.NormalizeAddress(common.BytesToAddress(lg.Data[start : start+20]).Hex())
		}
	}

	t := model.NewTransfer(model.ProtocolDeBridge)
	t.SourceChain = chain
	t.DestinationChain = model.ChainFromID(dstChainID)
	t.DestinationAddress = receiver
	t.Amount = model.NewRawAmount(amount)
	t.Metadata["submission_id"] = common.BytesToHash(submissionID).Hex()
	t.Metadata["debridge_id"] = debridgeID.Hex()
	t.Metadata["nonce"] = nonce.String()
	return t, nil
}

// Claimed(submissionId, debridgeId indexed, amount, receiver indexed, nonce,
// chainIdFrom indexed): destination side.
func parseDeBridgeClaimed(chain model.Chain, lg types.Log) (*model.CrossChainTransfer, error) {
	if err := requireTopics(lg, 4); err != nil {
		return nil, err
	}
	debridgeID := lg.Topics[1]
	receiver := topicAddr(lg.Topics[2])
	srcChainID := topicBig(lg.Topics[3]).Uint64()

	submissionID, err := word(lg.Data, 0)
	if err != nil {
		return nil, err
	}
	amount, err := wordBig(lg.Data, 1)
	if err != nil {
		return nil, err
	}
	nonce, err := wordBig(lg.Data, 2)
	if err != nil {
		return nil, err
	}

	t := model.NewTransfer(model.ProtocolDeBridge)
	t.SourceChain = model.ChainFromID(srcChainID)
	t.DestinationChain = chain
	t.DestinationAddress = receiver
	t.Amount = model.NewRawAmount(amount)
	t.Metadata["submission_id"] = common.BytesToHash(submissionID).Hex()
	t.Metadata["debridge_id"] = debridgeID.Hex()
	t.Metadata["nonce"] = nonce.String()
	return t, nil
}
