package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(mutationID)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// mutationID tags the request context with the client's X-Mutation-Id so
// the resulting change events carry it back to the writer.
func mutationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Mutation-Id"); id != "" {
			r = r.WithContext(orders.WithMutationID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
