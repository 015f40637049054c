package microservice

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// Resolver is the part of a memo.Memoizer the HTTP handlers use.
type Resolver interface {
	TryCall(ctx context.Context, key string) (string, error)
	Flush(ctx context.Context) error
}

// ResolveResponse is the body of a successful resolve.
type ResolveResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RegisterResolverRoutes adds the memoizer endpoints to mux:
//
//	GET  /v1/resolve/{key}  resolve through the cache, producing on a miss
//	POST /v1/flush          force a durable flush
func RegisterResolverRoutes(mux *http.ServeMux, resolver Resolver, logger zerolog.Logger) {
	h := &resolverHandlers{
		resolver: resolver,
		logger:   logger.With().Str("component", "ResolverHandlers").Logger(),
	}
	mux.HandleFunc("GET /v1/resolve/{key}", h.resolve)
	mux.HandleFunc("POST /v1/flush", h.flush)
}

type resolverHandlers struct {
	resolver Resolver
	logger   zerolog.Logger
}

func (h *resolverHandlers) resolve(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "key is required"})
		return
	}

	value, err := h.resolver.TryCall(r.Context(), key)
	if err != nil {
		h.logger.Warn().Err(err).Str("key", key).Msg("Resolve failed.")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{Key: key, Value: value})
}

func (h *resolverHandlers) flush(w http.ResponseWriter, r *http.Request) {
	if err := h.resolver.Flush(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
