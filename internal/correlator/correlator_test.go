package correlator

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgescope/backend/internal/model"
)

type fakeStore struct {
	candidates []*model.CrossChainTransfer
	findErr    error

	linkCalls  [][2]string
	linkResult map[string]bool // counterpart id -> linked
	linkErr    error
}

func (f *fakeStore) FindCandidates(_ context.Context, t *model.CrossChainTransfer, _ time.Duration) ([]*model.CrossChainTransfer, error) {
	return f.candidates, f.findErr
}

func (f *fakeStore) LinkPair(_ context.Context, subjectID, counterpartID string) (bool, error) {
	f.linkCalls = append(f.linkCalls, [2]string{subjectID, counterpartID})
	if f.linkErr != nil {
		return false, f.linkErr
	}
	if f.linkResult == nil {
		return true, nil
	}
	return f.linkResult[counterpartID], nil
}

func pendingTransfer(id string, ts int64) *model.CrossChainTransfer {
	t := model.NewTransfer(model.ProtocolStargate)
	t.ID = id
	t.SourceAddress = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	t.DestinationAddress = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	t.TokenAddress = "0xcccccccccccccccccccccccccccccccccccccccc"
	t.Amount = model.NewAmount(big.NewInt(100), 0)
	t.Timestamp = ts
	return t
}

func TestFingerprintUnorderedPair(t *testing.T) {
	a := pendingTransfer("a", 0)
	b := pendingTransfer("b", 0)
	b.SourceAddress, b.DestinationAddress = a.DestinationAddress, a.SourceAddress

	assert.Equal(t, Fingerprint(a), Fingerprint(b), "either side of the bridge produces the same key")

	c := pendingTransfer("c", 0)
	c.Amount = model.NewAmount(big.NewInt(101), 0)
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestCorrelateLinksNearest(t *testing.T) {
	subject := pendingTransfer("subject", 1000)
	nearest := pendingTransfer("near", 1060)
	farther := pendingTransfer("far", 1500)
	st := &fakeStore{candidates: []*model.CrossChainTransfer{nearest, farther}}

	c := New(st, nil, 30*time.Minute)
	got, err := c.Correlate(context.Background(), subject)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "near", got.ID)
	assert.Equal(t, model.StatusCompleted, subject.Status)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, "near", subject.LinkedTransferID)
	assert.Equal(t, "subject", got.LinkedTransferID)
	require.Len(t, st.linkCalls, 1)
}

func TestCorrelateNoCandidates(t *testing.T) {
	subject := pendingTransfer("subject", 1000)
	st := &fakeStore{}

	c := New(st, nil, 30*time.Minute)
	got, err := c.Correlate(context.Background(), subject)
	require.NoError(t, err, "no match is not an error")
	assert.Nil(t, got)
	assert.Equal(t, model.StatusPending, subject.Status)
}

func TestCorrelateSkipsCompletedSubject(t *testing.T) {
	subject := pendingTransfer("subject", 1000)
	subject.Status = model.StatusCompleted
	st := &fakeStore{candidates: []*model.CrossChainTransfer{pendingTransfer("x", 1000)}}

	c := New(st, nil, 30*time.Minute)
	got, err := c.Correlate(context.Background(), subject)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, st.linkCalls, "completed subjects are never re-linked")
}

func TestCorrelateLostRaceTriesNext(t *testing.T) {
	subject := pendingTransfer("subject", 1000)
	taken := pendingTransfer("taken", 1010)
	free := pendingTransfer("free", 1100)
	st := &fakeStore{
		candidates: []*model.CrossChainTransfer{taken, free},
		linkResult: map[string]bool{"taken": false, "free": true},
	}

	c := New(st, nil, 30*time.Minute)
	got, err := c.Correlate(context.Background(), subject)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "free", got.ID)
	assert.Len(t, st.linkCalls, 2)
}

func TestCorrelateStoreError(t *testing.T) {
	subject := pendingTransfer("subject", 1000)
	st := &fakeStore{findErr: errors.New("db gone")}

	c := New(st, nil, 30*time.Minute)
	_, err := c.Correlate(context.Background(), subject)
	assert.Error(t, err)
}

func TestCorrelateRejectsNonCounterparts(t *testing.T) {
	subject := pendingTransfer("subject", 1000)
	subject.EventType = "Send"
	subject.SourceChain = model.ChainEthereum
	subject.DestinationChain = model.ChainPolygon

	// a second identical source-side deposit, not the other leg
	duplicate := pendingTransfer("duplicate", 1010)
	duplicate.EventType = "Send"
	duplicate.SourceChain = model.ChainEthereum
	duplicate.DestinationChain = model.ChainPolygon

	// the return trip reverses the chain tuple
	roundTrip := pendingTransfer("roundtrip", 1020)
	roundTrip.EventType = "Relay"
	roundTrip.SourceChain = model.ChainPolygon
	roundTrip.DestinationChain = model.ChainEthereum

	genuine := pendingTransfer("genuine", 1100)
	genuine.EventType = "Relay"
	genuine.SourceChain = model.ChainEthereum
	genuine.DestinationChain = model.ChainPolygon

	st := &fakeStore{candidates: []*model.CrossChainTransfer{duplicate, roundTrip, genuine}}
	c := New(st, nil, 30*time.Minute)

	got, err := c.Correlate(context.Background(), subject)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "genuine", got.ID)
	require.Len(t, st.linkCalls, 1, "ineligible candidates never reach LinkPair")
	assert.Equal(t, [2]string{"subject", "genuine"}, st.linkCalls[0])

	assert.Equal(t, model.StatusPending, duplicate.Status)
	assert.Equal(t, model.StatusPending, roundTrip.Status)
}

func TestCorrelateHalfSidedChainStaysEligible(t *testing.T) {
	subject := pendingTransfer("subject", 1000)
	subject.EventType = "Send"
	subject.SourceChain = model.ChainEthereum
	subject.DestinationChain = model.ChainPolygon

	// destination leg that could not decode its origin chain
	partial := pendingTransfer("partial", 1050)
	partial.EventType = "Relay"
	partial.DestinationChain = model.ChainPolygon

	st := &fakeStore{candidates: []*model.CrossChainTransfer{partial}}
	c := New(st, nil, 30*time.Minute)

	got, err := c.Correlate(context.Background(), subject)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "partial", got.ID)
}

func TestCorrelateSkipsEmptyFingerprint(t *testing.T) {
	subject := model.NewTransfer(model.ProtocolWormhole) // no addresses, zero amount
	st := &fakeStore{candidates: []*model.CrossChainTransfer{pendingTransfer("x", 0)}}

	c := New(st, nil, 30*time.Minute)
	got, err := c.Correlate(context.Background(), subject)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, st.linkCalls)
}
