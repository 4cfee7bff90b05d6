package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/markdave123-py/fincontexta/internal/services"
)

// Retriever runs the two stage chunk search for one user.
type Retriever interface {
	Retrieve(ctx context.Context, userID string, req services.RetrievalRequest) services.RetrievalResponse
}

type RetrievalHandler struct {
	retriever Retriever
}

func NewRetrievalHandler(retriever Retriever) *RetrievalHandler {
	return &RetrievalHandler{retriever: retriever}
}

// RetrieveChunks answers with the chunk list, or with the error object and
// a 502 when the search itself failed.
func (h *RetrievalHandler) RetrieveChunks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req services.RetrievalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query_text is required", http.StatusBadRequest)
		return
	}

	res := h.retriever.Retrieve(r.Context(), userID, req)
	status := http.StatusOK
	if res.Err != nil {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}
