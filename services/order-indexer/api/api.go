package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"orderchain/crypto"
	"orderchain/services/order-indexer/store"
)

// Store is the read surface of the index.
type Store interface {
	Ping(ctx context.Context) error
	Order(ctx context.Context, orderID string) (*store.OrderRecord, error)
	EventsForOrder(ctx context.Context, orderID string) ([]store.Event, error)
	OrdersForParty(ctx context.Context, addr common.Address) ([]store.PartyOrderSummary, error)
}

// Server exposes indexed orders over HTTP.
type Server struct {
	store  Store
	logger *slog.Logger
	router http.Handler
}

func New(st Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{store: st, logger: logger.With("component", "api")}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/orders/{id}", s.order)
	r.Get("/orders/{id}/events", s.orderEvents)
	r.Get("/parties/{address}/orders", s.partyOrders)
	return otelhttp.NewHandler(r, "order-indexer")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err.Error())
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) order(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	record, err := s.store.Order(r.Context(), id)
	if err != nil {
		s.storeError(w, "order", err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) orderEvents(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	events, err := s.store.EventsForOrder(r.Context(), id)
	if err != nil {
		s.storeError(w, "order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orderId": id, "events": events})
}

func (s *Server) partyOrders(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	orders, err := s.store.OrdersForParty(r.Context(), addr)
	if err != nil {
		s.storeError(w, "party orders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": crypto.FromCommon(addr).String(),
		"orders":  orders,
	})
}

func (s *Server) storeError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, what+" not found", http.StatusNotFound)
		return
	}
	s.logger.Error("store query failed", "query", what, "error", err.Error())
	http.Error(w, "failed to load "+what, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
