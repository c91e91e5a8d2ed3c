package decoder

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgescope/backend/internal/model"
)

var (
	testTxHash   = common.HexToHash("0x" + strings.Repeat("aa", 32))
	testContract = common.HexToAddress("0x" + strings.Repeat("cc", 20))
	walletA      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	walletB      = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenAddr    = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func topicOf(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func uintTopic(v int64) common.Hash {
	return common.BigToHash(big.NewInt(v))
}

func words(vals ...*big.Int) []byte {
	out := make([]byte, 0, len(vals)*32)
	for _, v := range vals {
		out = append(out, common.BigToHash(v).Bytes()...)
	}
	return out
}

func addrWord(a common.Address) *big.Int {
	return new(big.Int).SetBytes(a.Bytes())
}

func mkLog(topics []common.Hash, data []byte) types.Log {
	return types.Log{
		Address:     testContract,
		Topics:      topics,
		Data:        data,
		TxHash:      testTxHash,
		BlockNumber: 1234,
	}
}

func TestForProtocolCoversAll(t *testing.T) {
	for _, p := range model.Protocols {
		d, err := ForProtocol(p)
		require.NoError(t, err, p)
		assert.Equal(t, p, d.Protocol())
		assert.NotEmpty(t, d.Topics()[0], p)
	}
	_, err := ForProtocol(model.Protocol("nope"))
	assert.Error(t, err)
}

func TestDecodeUnknownTopic(t *testing.T) {
	d, _ := ForProtocol(model.ProtocolHop)
	got, err := d.Decode(model.ChainEthereum, mkLog([]common.Hash{topicOf("Other(uint256)")}, nil))
	require.NoError(t, err)
	assert.Nil(t, got, "unknown topics decode to nil, nil")

	got, err = d.Decode(model.ChainEthereum, mkLog(nil, nil))
	require.NoError(t, err)
	assert.Nil(t, got, "topic-less logs are dropped")
}

func TestDecodeStampsEnvelope(t *testing.T) {
	d, _ := ForProtocol(model.ProtocolSynapse)
	lg := mkLog(
		[]common.Hash{topicOf("TokenDeposit(address,uint256,address,uint256)"), addrTopic(walletB)},
		words(big.NewInt(137), addrWord(tokenAddr), big.NewInt(5000)),
	)
	got, err := d.Decode(model.ChainEthereum, lg)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, model.ProtocolSynapse, got.Protocol)
	assert.Equal(t, "TokenDeposit", got.EventType)
	assert.Equal(t, strings.ToLower(testTxHash.Hex()), got.TransactionHash)
	assert.Equal(t, uint64(1234), got.BlockNumber)
	assert.Equal(t, model.ChainEthereum, got.SourceChain)
	assert.Equal(t, model.ChainPolygon, got.DestinationChain)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", got.DestinationAddress)
	assert.Equal(t, "0x3333333333333333333333333333333333333333", got.TokenAddress)
	assert.Equal(t, "5000", got.Amount.Raw().String())
}

func TestDecodeMalformedData(t *testing.T) {
	d, _ := ForProtocol(model.ProtocolSynapse)
	lg := mkLog(
		[]common.Hash{topicOf("TokenDeposit(address,uint256,address,uint256)"), addrTopic(walletB)},
		words(big.NewInt(137)), // token and amount words missing
	)
	_, err := d.Decode(model.ChainEthereum, lg)
	assert.Error(t, err)
}

func TestStargateSwap(t *testing.T) {
	d, _ := ForProtocol(model.ProtocolStargate)
	lg := mkLog(
		[]common.Hash{topicOf("Swap(uint16,uint256,address,uint256,uint256,uint256,uint256,uint256)")},
		words(
			big.NewInt(109),          // LayerZero id for polygon
			big.NewInt(1),            // dst pool
			addrWord(walletA),        // from
			big.NewInt(100_000_000),  // amount in shared decimals
			big.NewInt(0), big.NewInt(0),
			big.NewInt(25), big.NewInt(0),
		),
	)
	got, err := d.Decode(model.ChainEthereum, lg)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, model.ChainPolygon, got.DestinationChain)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", got.SourceAddress)
	assert.Empty(t, got.DestinationAddress, "pool-side swap is half-sided")
	assert.Equal(t, "100", got.Amount.String(), "shared decimals are 6")
	assert.Equal(t, "25", got.Metadata["protocol_fee"])
}

func TestCelerSend(t *testing.T) {
	d, _ := ForProtocol(model.ProtocolCelerCBridge)
	transferID := big.NewInt(0xbeef)
	lg := mkLog(
		[]common.Hash{topicOf("Send(bytes32,address,address,address,uint256,uint64,uint64,uint32)")},
		words(transferID, addrWord(walletA), addrWord(walletB), addrWord(tokenAddr),
			big.NewInt(777), big.NewInt(56), big.NewInt(9), big.NewInt(0)),
	)
	got, err := d.Decode(model.ChainEthereum, lg)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, model.ChainBSC, got.DestinationChain)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", got.SourceAddress)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", got.DestinationAddress)
	assert.Equal(t, "777", got.Amount.Raw().String())
	assert.Equal(t, "9", got.Metadata["nonce"])
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestCelerWithdrawDoneIsFailed(t *testing.T) {
	d, _ := ForProtocol(model.ProtocolCelerCBridge)
	lg := mkLog(
		[]common.Hash{topicOf("WithdrawDone(bytes32,address,address,uint256,bytes32)")},
		words(big.NewInt(1), addrWord(walletA), addrWord(tokenAddr), big.NewInt(10), big.NewInt(2)),
	)
	got, err := d.Decode(model.ChainEthereum, lg)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusFailed, got.Status, "refund marks the transfer failed")
}

func TestHopTransferSent(t *testing.T) {
	d, _ := ForProtocol(model.ProtocolHop)
	lg := mkLog(
		[]common.Hash{
			topicOf("TransferSent(bytes32,uint256,address,uint256,bytes32,uint256,uint256,uint256,uint256)"),
			common.BigToHash(big.NewInt(42)), // transferId
			uintTopic(10),                    // optimism
			addrTopic(walletB),
		},
		words(big.NewInt(900), big.NewInt(7), big.NewInt(3), big.NewInt(0), big.NewInt(0), big.NewInt(0)),
	)
	got, err := d.Decode(model.ChainArbitrum, lg)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, model.ChainArbitrum, got.SourceChain)
	assert.Equal(t, model.ChainOptimism, got.DestinationChain)
	assert.Equal(t, "900", got.Amount.Raw().String())
	assert.Equal(t, "3", got.Metadata["bonder_fee"])
}

func TestMultichainRoundTripSides(t *testing.T) {
	d, _ := ForProtocol(model.ProtocolMultichain)

	out := mkLog(
		[]common.Hash{
			topicOf("LogAnySwapOut(address,address,address,uint256,uint256,uint256)"),
			addrTopic(tokenAddr), addrTopic(walletA), addrTopic(walletB),
		},
		words(big.NewInt(5555), big.NewInt(1), big.NewInt(137)),
	)
	src, err := d.Decode(model.ChainEthereum, out)
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, model.ChainEthereum, src.SourceChain)
	assert.Equal(t, model.ChainPolygon, src.DestinationChain)

	in := mkLog(
		[]common.Hash{
			topicOf("LogAnySwapIn(bytes32,address,address,uint256,uint256,uint256)"),
			testTxHash, addrTopic(tokenAddr), addrTopic(walletB),
		},
		words(big.NewInt(5555), big.NewInt(1), big.NewInt(137)),
	)
	dst, err := d.Decode(model.ChainPolygon, in)
	require.NoError(t, err)
	require.NotNil(t, dst)
	assert.Equal(t, model.ChainEthereum, dst.SourceChain)
	assert.Equal(t, model.ChainPolygon, dst.DestinationChain)
	assert.Equal(t, src.Amount.String(), dst.Amount.String(), "both sides carry the same amount")
}

func TestOrbiterIdentificationCode(t *testing.T) {
	d, _ := ForProtocol(model.ProtocolOrbiter)
	// amount ending in 9006 targets the maker's polygon lane
	amount := big.NewInt(1_000_000_009_006)
	lg := mkLog(
		[]common.Hash{topicOf("Transfer(address,address,uint256)"), addrTopic(walletA), addrTopic(walletB)},
		words(amount),
	)
	got, err := d.Decode(model.ChainEthereum, lg)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, model.ChainPolygon, got.DestinationChain)
	assert.Equal(t, "9006", got.Metadata["identification_code"])

	// a plain transfer without a recognizable code keeps the destination open
	plain := mkLog(
		[]common.Hash{topicOf("Transfer(address,address,uint256)"), addrTopic(walletA), addrTopic(walletB)},
		words(big.NewInt(1_000_000_000_000)),
	)
	got, err = d.Decode(model.ChainEthereum, plain)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.DestinationChain)
}

func TestDeBridgeSentReceiverBytes(t *testing.T) {
	d, _ := ForProtocol(model.ProtocolDeBridge)

	// static part: submissionId, amount, receiver offset, nonce; then the
	// dynamic receiver bytes (length 20 + the address)
	data := words(big.NewInt(0xabc), big.NewInt(4242), big.NewInt(128), big.NewInt(1))
	data = append(data, common.BigToHash(big.NewInt(20)).Bytes()...)
	data = append(data, walletB.Bytes()...)

	lg := mkLog(
		[]common.Hash{
			topicOf("Sent(bytes32,bytes32,uint256,bytes,uint256,uint256,uint32)"),
			common.BigToHash(big.NewInt(7)), // debridgeId
			uintTopic(42161),                // chainIdTo
		},
		data,
	)
	got, err := d.Decode(model.ChainEthereum, lg)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, model.ChainArbitrum, got.DestinationChain)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", got.DestinationAddress)
	assert.Equal(t, "4242", got.Amount.Raw().String())
	assert.Equal(t, "1", got.Metadata["nonce"])
}

func TestWormholeNonTokenPayloadDropped(t *testing.T) {
	d, _ := ForProtocol(model.ProtocolWormhole)

	// payload type 2 (attestation) must decode to nil, not error
	payload := []byte{2}
	payload = append(payload, make([]byte, 132)...)
	// sequence, nonce, payload offset, consistency level, then length+bytes
	data := words(big.NewInt(1), big.NewInt(0), big.NewInt(128), big.NewInt(1))
	data = append(data, common.BigToHash(big.NewInt(int64(len(payload)))).Bytes()...)
	data = append(data, payload...)
	pad := (32 - len(payload)%32) % 32
	data = append(data, make([]byte, pad)...)

	lg := mkLog(
		[]common.Hash{
			topicOf("LogMessagePublished(address,uint64,uint32,bytes,uint8)"),
			addrTopic(walletA),
		},
		data,
	)
	got, err := d.Decode(model.ChainEthereum, lg)
	require.NoError(t, err)
	assert.Nil(t, got)
}
