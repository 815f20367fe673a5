package server

import (
	"context"
	"net/http"

	"github.com/desertthunder/curator/internal/models"
)

// UnmatchedLister lists unmatched tracks. See [repositories.UnmatchedTrackRepository.List].
type UnmatchedLister interface {
	List(ctx context.Context, criteria map[string]any) ([]*models.UnmatchedTrack, error)
}

// UnmatchedHandler serves unmatched tracks and their stored suggestions.
type UnmatchedHandler struct {
	tracks UnmatchedLister
}

func NewUnmatchedHandler(tracks UnmatchedLister) *UnmatchedHandler {
	return &UnmatchedHandler{tracks: tracks}
}

func (h *UnmatchedHandler) Routes() []string {
	return []string{"GET /api/unmatched"}
}

// ServeHTTP lists unmatched tracks. Query parameters: library_id, limit, and suggested=true|false.
func (h *UnmatchedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	criteria := map[string]any{"limit": defaultListLimit}
	for _, key := range []string{"library_id", "limit"} {
		n, ok, err := queryInt(r, key)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if ok {
			criteria[key] = n
		}
	}
	switch r.URL.Query().Get("suggested") {
	case "true", "1":
		criteria["suggested"] = true
	case "false", "0":
		criteria["suggested"] = false
	}

	list, err := h.tracks.List(r.Context(), criteria)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list unmatched tracks")
		return
	}
	if list == nil {
		list = []*models.UnmatchedTrack{}
	}
	writeJSON(w, http.StatusOK, list)
}
