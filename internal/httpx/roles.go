package httpx

import "net/http"

type Role int

const (
	RoleUnknown Role = iota
	RoleUser
	RoleAdmin
)

// RoleOf reads the role the gateway put in X-Role.
func RoleOf(r *http.Request) Role {
	switch r.Header.Get("X-Role") {
	case "admin":
		return RoleAdmin
	case "user":
		return RoleUser
	}
	return RoleUnknown
}

// requireRole rejects callers below min. Admin satisfies user routes.
func requireRole(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleOf(r) < min {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Code: "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
