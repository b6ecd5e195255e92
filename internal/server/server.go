// Package server exposes the resolver over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"priceScope/internal/cache"
	"priceScope/internal/metrics"
	"priceScope/internal/model"
)

const maxBatchTokens = 100

// Resolver is the pricing surface served over HTTP.
type Resolver interface {
	ResolvePrice(ctx context.Context, token model.Token) model.PriceOutcome
	ResolveMany(ctx context.Context, tokens []model.Token) map[model.Token]model.PriceOutcome
}

// History returns the last successful price stored for a token;
// *postgres.Store satisfies it.
type History interface {
	LatestPrice(ctx context.Context, token model.Token) (model.PriceOutcome, bool, error)
}

// Server routes price requests to a Resolver.
type Server struct {
	resolver Resolver
	cache    cache.Admin
	history  History
	logger   *zap.Logger
	mux      *http.ServeMux
}

// New builds a Server. cacheAdmin may be nil, which disables the cache routes.
func New(resolver Resolver, cacheAdmin cache.Admin, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		resolver: resolver,
		cache:    cacheAdmin,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.Handle("GET /metrics", metrics.Handler(nil))
	s.mux.HandleFunc("GET /v1/price/{token}", s.handlePrice)
	s.mux.HandleFunc("GET /v1/prices", s.handlePrices)
	if s.cache != nil {
		s.mux.HandleFunc("GET /v1/cache", s.handleCacheStats)
		s.mux.HandleFunc("DELETE /v1/cache", s.handleCacheClear)
	}
}

// WithHistory enables GET /v1/price/{token}/latest, which serves the last
// stored price without resolving.
func (s *Server) WithHistory(history History) *Server {
	if history != nil && s.history == nil {
		s.history = history
		s.mux.HandleFunc("GET /v1/price/{token}/latest", s.handleLatest)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("http request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Duration("elapsed", time.Since(start)),
	)
}

type errorBody struct {
	Error string `json:"error"`
}

type pricesBody struct {
	Prices map[model.Token]model.PriceOutcome `json:"prices"`
}

// handlePrice answers 200 for error outcomes too; the outcome's source
// tells the caller whether it is usable.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	token, err := model.ParseToken(r.PathValue("token"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	outcome := s.resolver.ResolvePrice(r.Context(), token)
	writeJSON(w, http.StatusOK, model.PriceRecord{Token: token, PriceOutcome: outcome})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	var raw []string
	for _, value := range r.URL.Query()["tokens"] {
		raw = append(raw, strings.Split(value, ",")...)
	}
	tokens, err := model.ParseTokens(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if len(tokens) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "tokens query parameter is required"})
		return
	}
	if len(tokens) > maxBatchTokens {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "too many tokens"})
		return
	}
	writeJSON(w, http.StatusOK, pricesBody{Prices: s.resolver.ResolveMany(r.Context(), tokens)})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	token, err := model.ParseToken(r.PathValue("token"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	outcome, ok, err := s.history.LatestPrice(r.Context(), token)
	if err != nil {
		s.logger.Warn("latest price lookup failed", zap.String("token", token.String()), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no stored price for " + token.String()})
		return
	}
	writeJSON(w, http.StatusOK, model.PriceRecord{Token: token, PriceOutcome: outcome})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		s.logger.Warn("cache stats failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Warn("cache clear failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("price server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
