// Package gateway implements the external query and invocation interface.
//
// The HTTP API:
//   - POST /api/program/method: call (or, with "test": true, simulate) a
//     program method with tagged text arguments
//   - GET /api/balance/{address}: committed native balance
//   - GET /api/receipt/{txid}: stored receipt
//   - GET /api/health: liveness, current height and state root
//
// The same call operation is served over gRPC by GRPCServer.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/fortiblox/X1-Nimbus/pkg/receipts"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Config holds gateway server configuration.
type Config struct {
	// Addr is the HTTP listen address (host:port).
	Addr string `yaml:"addr"`

	// GRPCAddr is the gRPC listen address; empty disables gRPC.
	GRPCAddr string `yaml:"grpc_addr"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxRequestSize is the maximum allowed request body size in bytes.
	MaxRequestSize int64 `yaml:"max_request_size"`

	// EnableCORS enables CORS headers for browser access.
	EnableCORS bool `yaml:"enable_cors"`

	// AllowedOrigins specifies allowed CORS origins (empty means all).
	AllowedOrigins []string `yaml:"allowed_origins"`

	// LogRequests enables request logging.
	LogRequests bool `yaml:"log_requests"`

	// Logger receives server logs.
	Logger zerolog.Logger `yaml:"-"`
}

// DefaultConfig returns a default gateway configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8087",
		GRPCAddr:       ":8088",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxRequestSize: 64 * 1024,
		EnableCORS:     true,
		Logger:         zerolog.Nop(),
	}
}

// Server is the HTTP gateway.
type Server struct {
	config Config
	svc    *Service
	logger zerolog.Logger

	server *http.Server

	mu      sync.Mutex
	running bool
}

// New creates an HTTP gateway over svc.
func New(config Config, svc *Service) *Server {
	return &Server{
		config: config,
		svc:    svc,
		logger: config.Logger.With().Str("component", "gateway").Logger(),
	}
}

// Handler returns the HTTP handler with routing, CORS and logging applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/program/method", s.handleCall).Methods(http.MethodPost)
	api.HandleFunc("/balance/{address}", s.handleBalance).Methods(http.MethodGet)
	api.HandleFunc("/receipt/{txid}", s.handleReceipt).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if s.config.LogRequests {
		r.Use(s.logMiddleware)
	}

	var h http.Handler = r
	if s.config.EnableCORS {
		h = cors.New(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         3600,
		}).Handler(h)
	}
	return h
}

// Start serves HTTP until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	srv := s.server
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.config.Addr).Msg("gateway listening")

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:     fmt.Sprintf("malformed request: %v", err),
			ErrorCode: failure.KindValidation.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Call(&req))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Balance(mux.Vars(r)["address"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Receipt(mux.Vars(r)["txid"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := s.svc.Health()
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := failure.KindInternal.String()
	switch {
	case errors.Is(err, receipts.ErrNotFound), errors.Is(err, ErrReceiptsDisabled):
		status = http.StatusNotFound
		code = "NotFound"
	case failure.Is(err, failure.KindValidation):
		status = http.StatusBadRequest
		code = failure.KindValidation.String()
	}
	msg := err.Error()
	if sig, ok := failure.As(err); ok {
		msg = sig.Message
	}
	writeJSON(w, status, ErrorResponse{Error: msg, ErrorCode: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
