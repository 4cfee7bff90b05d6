package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	middleware "github.com/markdave123-py/fincontexta/internal/api/middlewares"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

// requireUser reads the authenticated user id or answers 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
	}
	return userID, ok
}
