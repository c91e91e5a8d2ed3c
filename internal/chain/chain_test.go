package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgescope/backend/internal/metrics"
	"github.com/bridgescope/backend/internal/model"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("dial tcp: connection refused"), KindTransient},
		{errors.New("context deadline exceeded"), KindTransient},
		{context.DeadlineExceeded, KindTransient},
		{errors.New("502 Bad Gateway"), KindTransient},
		{errors.New("429 too many requests"), KindTransient},
		{errors.New("websocket: close 1006"), KindTransient},
		{errors.New("401 Unauthorized"), KindFatal},
		{errors.New("invalid api key"), KindFatal},
		{errors.New("the method not found"), KindFatal},
		{errors.New("json: cannot unmarshal string"), KindFatal},
		{errors.New("something never seen before"), KindTransient},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, classify(c.err), "%v", c.err)
	}
}

func TestIsTransient(t *testing.T) {
	base := errors.New("connection reset by peer")
	wrapped := fmt.Errorf("filter: %w", &RPCError{Kind: KindTransient, Endpoint: "ws://a", Op: "eth_getLogs", Err: base})
	assert.True(t, IsTransient(wrapped))

	fatal := &RPCError{Kind: KindFatal, Endpoint: "ws://a", Op: "eth_call", Err: errors.New("403")}
	assert.False(t, IsTransient(fatal))
	assert.False(t, IsTransient(errors.New("bare")))
	assert.ErrorIs(t, fatal, fatal.Err, "Unwrap exposes the cause")
}

func TestIsResultTooLarge(t *testing.T) {
	assert.True(t, isResultTooLarge(errors.New("query returned more than 10000 results")))
	assert.True(t, isResultTooLarge(errors.New("Log response size exceeded")))
	assert.False(t, isResultTooLarge(errors.New("execution reverted")))
	assert.False(t, isResultTooLarge(nil))
}

func TestEndpointHealthTripAndReset(t *testing.T) {
	h := newEndpointHealth(3)

	assert.False(t, h.onFailure())
	assert.False(t, h.onFailure())
	assert.True(t, h.onFailure(), "third consecutive failure trips")
	assert.False(t, h.onFailure(), "already tripped, no re-trigger")
	assert.True(t, h.tripped())

	// A lone success clears the streak but does not untrip retroactively.
	h.onSuccess()
	assert.False(t, h.tripped())

	h.onFailure()
	h.onFailure()
	h.reset()
	assert.False(t, h.tripped())
}

func TestTimestampCache(t *testing.T) {
	c, err := NewTimestampCache(2)
	require.NoError(t, err)

	c.Add(model.ChainEthereum, 100, 1700000000)
	c.Add(model.ChainPolygon, 100, 1700000005)

	ts, ok := c.Get(model.ChainEthereum, 100)
	require.True(t, ok)
	assert.Equal(t, uint64(1700000000), ts)

	_, ok = c.Get(model.ChainEthereum, 101)
	assert.False(t, ok)

	// same block number on another chain is a distinct key
	ts, _ = c.Get(model.ChainPolygon, 100)
	assert.Equal(t, uint64(1700000005), ts)

	c.Add(model.ChainBSC, 1, 1)
	assert.Equal(t, 2, c.Len(), "LRU stays bounded")
}

func TestNewEndpointClientValidation(t *testing.T) {
	_, err := NewEndpointClient(ClientConfig{Chain: model.ChainEthereum})
	assert.Error(t, err, "no endpoints")

	c, err := NewEndpointClient(ClientConfig{
		Chain:     model.ChainEthereum,
		Endpoints: []string{"wss://primary", "https://fallback"},
	})
	require.NoError(t, err)
	assert.Equal(t, "wss://primary", c.Endpoint())
	assert.EqualValues(t, 0, c.Rotations())
	c.Close()
}

func TestRotateAdvancesAndSticks(t *testing.T) {
	c, err := NewEndpointClient(ClientConfig{
		Chain:     model.ChainEthereum,
		Endpoints: []string{"wss://primary", "https://f1", "https://f2"},
	})
	require.NoError(t, err)

	c.rotate(0)
	assert.Equal(t, "https://f1", c.Endpoint())
	assert.EqualValues(t, 1, c.Rotations())

	// a stale rotate for an endpoint no longer active is a no-op
	c.rotate(0)
	assert.Equal(t, "https://f1", c.Endpoint())
	assert.EqualValues(t, 1, c.Rotations())

	c.rotate(1)
	assert.Equal(t, "https://f2", c.Endpoint())
}

func TestRotateCountsMetric(t *testing.T) {
	c, err := NewEndpointClient(ClientConfig{
		Chain:     model.ChainArbitrum,
		Endpoints: []string{"wss://primary", "https://f1"},
	})
	require.NoError(t, err)

	counter := metrics.RPCRotations.WithLabelValues(string(model.ChainArbitrum))
	before := testutil.ToFloat64(counter)

	c.rotate(0)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	// stale rotate does not count
	c.rotate(0)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
