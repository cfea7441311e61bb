// mock-gateway serves the custody backend's REST surface in memory for
// local development. Seed intentions and notices through the /admin
// endpoints, then point the reconciler's GATEWAY_URL at it.
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opencustody/recon/internal/logging"
)

type intention struct {
	ID        string          `json:"id"`
	Currency  string          `json:"currency"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Address   string          `json:"address"`
}

type withdrawNotice struct {
	WithdrawID string          `json:"withdraw_id"`
	Amount     decimal.Decimal `json:"amount"`
	IsDone     bool            `json:"is_done"`
}

type store struct {
	mu         sync.Mutex
	intentions []intention
	notices    []withdrawNotice
	balances   map[string]decimal.Decimal
	// broadcast results keyed by idempotency token
	broadcasts map[string]map[string]any
}

func main() {
	logging.Init("mock-gateway", "info", os.Getenv("APP_ENV"))

	s := &store{
		balances:   map[string]decimal.Decimal{},
		broadcasts: map[string]map[string]any{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/gate/v1/deposits/intentions", s.handlePollDeposits)
	mux.HandleFunc("GET /api/gate/v1/withdraws/pending", s.handlePollWithdraws)
	mux.HandleFunc("POST /api/gate/v1/invoices", s.handleCreateInvoice)
	mux.HandleFunc("POST /api/gate/v1/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/gate/v1/balance", s.handleBalance)
	mux.HandleFunc("GET /api/gate/v1/balances", s.handleBalances)
	mux.HandleFunc("POST /admin/intentions", s.handleSeedIntention)
	mux.HandleFunc("POST /admin/withdraw-notices", s.handleSeedNotice)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	addr := ":8091"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	slog.Info("mock gateway started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (s *store) handlePollDeposits(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Intentions are re-delivered on every poll; the reconciler is
	// responsible for idempotency.
	writeJSON(w, s.intentions)
}

func (s *store) handlePollWithdraws(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, s.notices)
}

func (s *store) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount     decimal.Decimal `json:"amount"`
		CurrencyID string          `json:"currency_id"`
		Comment    string          `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	writeJSON(w, map[string]any{
		"id": id,
		"links": []map[string]string{
			{"type": "payment", "url": "https://mock-gateway.local/pay/" + id},
		},
		"expires_at": time.Now().UTC().Add(24 * time.Hour),
	})
}

func (s *store) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key            string          `json:"key"`
		ToAddress      string          `json:"to_address"`
		Cryptocurrency string          `json:"cryptocurrency"`
		Amount         decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Key == "" {
		http.Error(w, "key is required", http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.broadcasts[req.Key]; ok {
		writeJSON(w, tx)
		return
	}
	tx := map[string]any{
		"txid":       uuid.NewString(),
		"to_address": req.ToAddress,
		"amount":     req.Amount,
		"status":     "pending",
	}
	s.broadcasts[req.Key] = tx
	writeJSON(w, tx)
}

func (s *store) handleBalance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, map[string]decimal.Decimal{
		"amount": s.balances[r.URL.Query().Get("currency")],
	})
}

func (s *store) handleBalances(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, s.balances)
}

func (s *store) handleSeedIntention(w http.ResponseWriter, r *http.Request) {
	var in intention
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.intentions = append(s.intentions, in)
	s.balances[in.Currency] = s.balances[in.Currency].Add(in.Amount)
	s.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, in)
}

func (s *store) handleSeedNotice(w http.ResponseWriter, r *http.Request) {
	var n withdrawNotice
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.notices = append(s.notices, n)
	s.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, n)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
