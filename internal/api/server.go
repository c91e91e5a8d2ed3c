// Package api exposes the collaborator HTTP surface: read queries over
// persisted transfers, fleet control, Prometheus metrics and a websocket
// live feed. Authentication is an external concern.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bridgescope/backend/internal/events"
	"github.com/bridgescope/backend/internal/model"
	"github.com/bridgescope/backend/internal/store"
	"github.com/bridgescope/backend/internal/supervisor"
)

// TransferReader is the query slice of the relational store.
type TransferReader interface {
	ListRecent(ctx context.Context, f store.Filter) ([]*model.CrossChainTransfer, error)
	ListByWallet(ctx context.Context, address string, limit, offset int) ([]*model.CrossChainTransfer, error)
	GetByID(ctx context.Context, id string) (*model.CrossChainTransfer, error)
	Search(ctx context.Context, query string, limit int) ([]*model.CrossChainTransfer, error)
	Stats(ctx context.Context) (*store.Statistics, error)
}

// Fleet is the supervisor slice the control endpoints use.
type Fleet interface {
	Start(ctx context.Context, key string) error
	Stop(key string) error
	FleetStatus() supervisor.Status
}

// Server is the HTTP front.
type Server struct {
	reader TransferReader
	fleet  Fleet
	bus    *events.Bus
	logger *log.Logger

	srv      *http.Server
	upgrader websocket.Upgrader
}

// NewServer wires the routes. bus may be nil, which disables /stream.
func NewServer(addr string, reader TransferReader, fleet Fleet, bus *events.Bus) *Server {
	s := &Server{
		reader: reader,
		fleet:  fleet,
		bus:    bus,
		logger: log.New(log.Writer(), "[API] ", log.LstdFlags),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/transfers", s.handleListRecent).Methods(http.MethodGet)
	r.HandleFunc("/transfers/{id}", s.handleGetByID).Methods(http.MethodGet)
	r.HandleFunc("/wallets/{address}/transfers", s.handleListByWallet).Methods(http.MethodGet)
	r.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/statistics", s.handleStatistics).Methods(http.MethodGet)
	r.HandleFunc("/observers/{protocol}/{chain}/start", s.handleObserverStart).Methods(http.MethodPost)
	r.HandleFunc("/observers/{protocol}/{chain}/stop", s.handleObserverStop).Methods(http.MethodPost)
	r.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Shutdown. It blocks; run it in its own goroutine.
func (s *Server) Start() error {
	s.logger.Printf("listening on %s", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ---- handlers ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.FleetStatus())
}

func (s *Server) handleListRecent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{
		Limit:  intParam(q.Get("limit"), 100),
		Offset: intParam(q.Get("offset"), 0),
	}
	if v := q.Get("protocol"); v != "" {
		p, err := model.ParseProtocol(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		f.Protocol = p
	}
	if v := q.Get("chain"); v != "" {
		c, err := model.ParseChain(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		f.Chain = c
	}
	if v := q.Get("status"); v != "" {
		st, err := model.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		f.Status = st
	}
	if v := q.Get("min_risk"); v != "" {
		mr, err := strconv.ParseFloat(v, 64)
		if err != nil || mr < 0 || mr > 1 {
			writeError(w, http.StatusBadRequest, "bad_request", "min_risk must be a number in [0,1]")
			return
		}
		f.MinRisk = mr
	}

	out, err := s.reader.ListRecent(r.Context(), f)
	if err != nil {
		s.fail(w, "list transfers", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(out))
}

func (s *Server) handleGetByID(w http.ResponseWriter, r *http.Request) {
	t, err := s.reader.GetByID(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no such transfer")
		return
	}
	if err != nil {
		s.fail(w, "get transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListByWallet(w http.ResponseWriter, r *http.Request) {
	addr := model.NormalizeAddress(mux.Vars(r)["address"])
	if !model.ValidAddress(addr) {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid wallet address")
		return
	}
	q := r.URL.Query()
	out, err := s.reader.ListByWallet(r.Context(), addr, intParam(q.Get("limit"), 100), intParam(q.Get("offset"), 0))
	if err != nil {
		s.fail(w, "list by wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(out))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if len(q) < 3 {
		writeError(w, http.StatusBadRequest, "bad_request", "query must be at least 3 characters")
		return
	}
	out, err := s.reader.Search(r.Context(), q, intParam(r.URL.Query().Get("limit"), 100))
	if err != nil {
		s.fail(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(out))
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reader.Stats(r.Context())
	if err != nil {
		s.fail(w, "statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) observerKey(r *http.Request) (string, error) {
	vars := mux.Vars(r)
	p, err := model.ParseProtocol(vars["protocol"])
	if err != nil {
		return "", err
	}
	c, err := model.ParseChain(vars["chain"])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", p, c), nil
}

func (s *Server) handleObserverStart(w http.ResponseWriter, r *http.Request) {
	key, err := s.observerKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := s.fleet.Start(r.Context(), key); err != nil {
		writeError(w, http.StatusConflict, "start_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"observer": key, "state": "starting"})
}

func (s *Server) handleObserverStop(w http.ResponseWriter, r *http.Request) {
	key, err := s.observerKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := s.fleet.Stop(key); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"observer": key, "state": "stopped"})
}

// handleStream upgrades to websocket and forwards bus events until the peer
// goes away. Slow peers drop events at the bus, never block the pipeline.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "event stream not enabled")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	// Reader goroutine only to detect close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

// ---- response plumbing ----

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.logger.Printf("%s failed: %v", op, err)
	writeError(w, http.StatusInternalServerError, "internal", "query failed")
}

func listResponse(items []*model.CrossChainTransfer) map[string]interface{} {
	if items == nil {
		items = []*model.CrossChainTransfer{}
	}
	return map[string]interface{}{"count": len(items), "transfers": items}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, message string) {
	writeJSON(w, code, map[string]interface{}{
		"error": map[string]string{"kind": kind, "message": message},
	})
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
