package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// classify maps a service error to its HTTP status and a stable code. The
// retry-exhausted check comes first because it wraps the conflict it gave
// up on.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, orders.ErrRetryExhausted):
		return http.StatusServiceUnavailable, "retry_exhausted"
	case errors.Is(err, orders.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, orders.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, orders.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, err error) {
	code, kind := classify(err)
	if code >= 500 {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error(), Code: kind})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "validation"})
}
