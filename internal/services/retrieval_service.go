package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/markdave123-py/fincontexta/internal/core"
	"github.com/markdave123-py/fincontexta/internal/models"
)

const defaultMatchCount = 50

// RetrievalRequest is a question plus optional filters.
// MatchCount bounds the first, similarity based stage.
type RetrievalRequest struct {
	Query      string `json:"query_text"`
	MatchCount int    `json:"match_count,omitempty"`
	models.ChunkFilter
}

// RetrievalError is the structured error returned instead of failing the caller.
type RetrievalError struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// RetrievalResponse holds either chunks or an error, never both.
type RetrievalResponse struct {
	Chunks []models.RetrievedChunk
	Err    *RetrievalError
}

// MarshalJSON renders the chunk list, or the error object when retrieval failed.
func (r RetrievalResponse) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(r.Err)
	}
	if r.Chunks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Chunks)
}

// RetrievalService finds chunks similar to a query and widens each hit to
// its whole section.
type RetrievalService struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
}

func NewRetrievalService(db core.DbClient, embedder core.EmbeddingProvider) *RetrievalService {
	return &RetrievalService{db: db, embedder: embedder}
}

// Retrieve runs the two stage search for userID. Failures are reported in
// the response, never returned as errors.
func (s *RetrievalService) Retrieve(ctx context.Context, userID string, req RetrievalRequest) RetrievalResponse {
	log := slog.With("user_id", userID)

	if strings.TrimSpace(req.Query) == "" {
		return failed("Query text is required.", errors.New("empty query"))
	}
	limit := req.MatchCount
	if limit <= 0 {
		limit = defaultMatchCount
	}

	vec, err := s.embedder.EmbedQuery(ctx, req.Query)
	if err == nil && len(vec) == 0 {
		err = errors.New("embedding returned no vector")
	}
	if err != nil {
		log.Error("query embedding failed", "err", err)
		return failed("Failed to generate query embedding.", err)
	}

	initial, err := s.db.MatchChunks(ctx, userID, vec, req.ChunkFilter, limit)
	if err != nil {
		log.Error("match_chunks failed", "err", err)
		return failed("Failed to retrieve initial chunks.", err)
	}
	if len(initial) == 0 {
		return RetrievalResponse{Chunks: []models.RetrievedChunk{}}
	}

	sectionIDs := distinctSectionIDs(initial)
	if len(sectionIDs) == 0 {
		return RetrievalResponse{Chunks: initial}
	}

	expanded, err := s.db.GetChunksForSections(ctx, userID, sectionIDs)
	if err != nil {
		log.Warn("section expansion failed, returning initial matches", "sections", len(sectionIDs), "err", err)
		return RetrievalResponse{Chunks: initial}
	}

	for i := range expanded {
		expanded[i].SimilarityScore = nil
	}
	sortChunks(expanded)
	log.Info("chunks retrieved", "initial", len(initial), "sections", len(sectionIDs), "returned", len(expanded))
	return RetrievalResponse{Chunks: expanded}
}

// RetrieveJSON is Retrieve rendered as the JSON document handed to the agent.
func (s *RetrievalService) RetrieveJSON(ctx context.Context, userID string, req RetrievalRequest) string {
	out, err := json.Marshal(s.Retrieve(ctx, userID, req))
	if err != nil {
		out, _ = json.Marshal(RetrievalError{Error: "Failed to encode retrieval result.", Details: err.Error()})
	}
	return string(out)
}

func failed(msg string, err error) RetrievalResponse {
	return RetrievalResponse{Err: &RetrievalError{Error: msg, Details: err.Error()}}
}

// distinctSectionIDs returns the non-empty section ids of chunks, sorted.
func distinctSectionIDs(chunks []models.RetrievedChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.SectionID == "" {
			continue
		}
		if _, ok := seen[c.SectionID]; ok {
			continue
		}
		seen[c.SectionID] = struct{}{}
		ids = append(ids, c.SectionID)
	}
	sort.Strings(ids)
	return ids
}

// sortChunks orders by document filename, section id, then chunk index.
func sortChunks(chunks []models.RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.DocumentFilename != b.DocumentFilename {
			return a.DocumentFilename < b.DocumentFilename
		}
		if a.SectionID != b.SectionID {
			return a.SectionID < b.SectionID
		}
		return a.ChunkIndex < b.ChunkIndex
	})
}
