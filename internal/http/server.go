// Package http exposes the ledger as a JSON API.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"potledger/internal/clock"
	"potledger/internal/services"
)

type Server struct {
	httpServer  *http.Server
	pots        *services.PotService
	txs         *services.TransactionService
	history     *services.HistoryService
	coordinator *services.PeriodRolloverCoordinator
	clock       clock.Clock
	limiter     *ipRateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(
	addr string,
	pots *services.PotService,
	txs *services.TransactionService,
	history *services.HistoryService,
	coordinator *services.PeriodRolloverCoordinator,
	clk clock.Clock,
) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		pots:        pots,
		txs:         txs,
		history:     history,
		coordinator: coordinator,
		clock:       clk,
		limiter:     newIPRateLimiter(1, 5),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/pots", s.wrap(s.handleGetPots))
	mux.HandleFunc("POST /api/pots/spending", s.wrap(s.handleCreateSpendingPot))
	mux.HandleFunc("POST /api/pots/savings", s.wrap(s.handleCreateSavingsPot))
	mux.HandleFunc("GET /api/pots/dropdown", s.wrap(s.handlePotDropdown))
	mux.HandleFunc("GET /api/pots/spending/{id}", s.wrap(s.handleGetSpendingPot))

	mux.HandleFunc("GET /api/transactions", s.wrap(s.handleCurrentTransactions))
	mux.HandleFunc("GET /api/transactions/unprocessed", s.wrap(s.handleUnprocessedTransactions))
	mux.HandleFunc("PUT /api/transactions/{id}/pot", s.wrap(s.handleUpdateTransactionPot))
	mux.HandleFunc("POST /api/transactions/{id}/subscription", s.wrap(s.handleMarkSubscription))

	mux.HandleFunc("GET /api/rules", s.wrap(s.handleGetRules))
	mux.HandleFunc("POST /api/rules", s.wrap(s.handleCreateRule))

	mux.HandleFunc("POST /api/periods/rollover", s.wrap(s.handleRollover))
	mux.HandleFunc("GET /api/periods/history", s.wrap(s.handleHistoricMonths))
	mux.HandleFunc("GET /api/periods/history/{id}", s.wrap(s.handleHistoricMonth))
	mux.HandleFunc("GET /api/periods/yearly", s.wrap(s.handleYearlyData))

	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// wrap applies security headers, request tracing and write rate limiting to
// a handler.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		slog.InfoContext(r.Context(), "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.limiter.allow(clientIP) {
			slog.WarnContext(r.Context(), "Rate limit exceeded",
				"request_id", requestID, "client_ip", clientIP)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(r.Context(), "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
