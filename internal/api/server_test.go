package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgescope/backend/internal/model"
	"github.com/bridgescope/backend/internal/store"
	"github.com/bridgescope/backend/internal/supervisor"
)

type fakeReader struct {
	transfers []*model.CrossChainTransfer
	lastFilter store.Filter
	lastWallet string
	lastQuery  string
}

func (f *fakeReader) ListRecent(_ context.Context, filter store.Filter) ([]*model.CrossChainTransfer, error) {
	f.lastFilter = filter
	return f.transfers, nil
}

func (f *fakeReader) ListByWallet(_ context.Context, address string, _, _ int) ([]*model.CrossChainTransfer, error) {
	f.lastWallet = address
	return f.transfers, nil
}

func (f *fakeReader) GetByID(_ context.Context, id string) (*model.CrossChainTransfer, error) {
	for _, t := range f.transfers {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeReader) Search(_ context.Context, query string, _ int) ([]*model.CrossChainTransfer, error) {
	f.lastQuery = query
	return f.transfers, nil
}

func (f *fakeReader) Stats(context.Context) (*store.Statistics, error) {
	return &store.Statistics{Total: int64(len(f.transfers))}, nil
}

type fakeFleet struct {
	started []string
	stopped []string
	startErr error
}

func (f *fakeFleet) Start(_ context.Context, key string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, key)
	return nil
}

func (f *fakeFleet) Stop(key string) error {
	f.stopped = append(f.stopped, key)
	return nil
}

func (f *fakeFleet) FleetStatus() supervisor.Status {
	return supervisor.Status{TotalRunning: 2}
}

func sampleTransfer(id string) *model.CrossChainTransfer {
	t := model.NewTransfer(model.ProtocolStargate)
	t.ID = id
	t.TransactionHash = "0x" + strings.Repeat("ab", 32)
	t.EventType = "Swap"
	t.Amount = model.NewAmount(big.NewInt(100), 0)
	return t
}

func newTestServer(reader *fakeReader, fleet *fakeFleet) *Server {
	return NewServer(":0", reader, fleet, nil)
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestServer(&fakeReader{}, &fakeFleet{}), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	rec := do(t, newTestServer(&fakeReader{}, &fakeFleet{}), http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var st supervisor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 2, st.TotalRunning)
}

func TestListTransfersFilters(t *testing.T) {
	reader := &fakeReader{transfers: []*model.CrossChainTransfer{sampleTransfer("t-1")}}
	s := newTestServer(reader, &fakeFleet{})

	rec := do(t, s, http.MethodGet, "/transfers?protocol=stargate&status=pending&min_risk=0.5&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, model.ProtocolStargate, reader.lastFilter.Protocol)
	assert.Equal(t, model.StatusPending, reader.lastFilter.Status)
	assert.InDelta(t, 0.5, reader.lastFilter.MinRisk, 1e-9)
	assert.Equal(t, 10, reader.lastFilter.Limit)

	var body struct {
		Count     int               `json:"count"`
		Transfers []json.RawMessage `json:"transfers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestListTransfersBadFilter(t *testing.T) {
	s := newTestServer(&fakeReader{}, &fakeFleet{})

	for _, path := range []string{
		"/transfers?protocol=teleporter",
		"/transfers?status=LOST",
		"/transfers?chain=solana",
		"/transfers?min_risk=7",
	} {
		rec := do(t, s, http.MethodGet, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"error"`, path)
	}
}

func TestGetByID(t *testing.T) {
	reader := &fakeReader{transfers: []*model.CrossChainTransfer{sampleTransfer("t-1")}}
	s := newTestServer(reader, &fakeFleet{})

	rec := do(t, s, http.MethodGet, "/transfers/t-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/transfers/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestListByWalletValidation(t *testing.T) {
	reader := &fakeReader{}
	s := newTestServer(reader, &fakeFleet{})

	addr := "0x" + strings.Repeat("AB", 20)
	rec := do(t, s, http.MethodGet, "/wallets/"+addr+"/transfers")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, strings.ToLower(addr), reader.lastWallet, "addresses normalize before querying")

	rec = do(t, s, http.MethodGet, "/wallets/0x123/transfers")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchMinLength(t *testing.T) {
	s := newTestServer(&fakeReader{}, &fakeFleet{})
	rec := do(t, s, http.MethodGet, "/search?q=ab")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/search?q=0xabc")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestObserverControl(t *testing.T) {
	fleet := &fakeFleet{}
	s := newTestServer(&fakeReader{}, fleet)

	rec := do(t, s, http.MethodPost, "/observers/hop/arbitrum/start")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"hop/arbitrum"}, fleet.started)

	rec = do(t, s, http.MethodPost, "/observers/hop/arbitrum/stop")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"hop/arbitrum"}, fleet.stopped)

	rec = do(t, s, http.MethodPost, "/observers/nope/arbitrum/start")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	fleet.startErr = errors.New("already running")
	rec = do(t, s, http.MethodPost, "/observers/hop/arbitrum/start")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatistics(t *testing.T) {
	reader := &fakeReader{transfers: []*model.CrossChainTransfer{sampleTransfer("a"), sampleTransfer("b")}}
	rec := do(t, newTestServer(reader, &fakeFleet{}), http.MethodGet, "/statistics")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats store.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 2, stats.Total)
}

func TestStreamUnavailableWithoutBus(t *testing.T) {
	rec := do(t, newTestServer(&fakeReader{}, &fakeFleet{}), http.MethodGet, "/stream")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
