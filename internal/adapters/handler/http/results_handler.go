package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/ballot/internal/core/ports"
)

type ResultsHandler struct {
	service ports.ResultsService
}

func NewResultsHandler(service ports.ResultsService) *ResultsHandler {
	return &ResultsHandler{
		service: service,
	}
}

// GetResults serves the creator view to the poll's creator and the public
// summary to everyone else, anonymous callers included.
func (h *ResultsHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	pollID, err := pollIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var requester *uuid.UUID
	if userID, ok := UserIDFromContext(r.Context()); ok {
		requester = &userID
	}

	view, err := h.service.GetResults(r.Context(), pollID, requester)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
