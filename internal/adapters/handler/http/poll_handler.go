package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
	"github.com/vncsmyrnk/ballot/internal/core/ports"
)

type PollHandler struct {
	service ports.PollService
}

func NewPollHandler(service ports.PollService) *PollHandler {
	return &PollHandler{
		service: service,
	}
}

type createPollRequest struct {
	Question        string     `json:"question"`
	Options         []string   `json:"options"`
	MultipleAnswers bool       `json:"multiple_answers"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	var req createPollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	poll, err := h.service.Create(r.Context(), ports.CreatePollInput{
		Question:        req.Question,
		Options:         req.Options,
		CreatorID:       userID,
		MultipleAnswers: req.MultipleAnswers,
		ExpiresAt:       req.ExpiresAt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, poll)
}

func (h *PollHandler) ListPolls(w http.ResponseWriter, r *http.Request) {
	input := ports.ListPollsInput{}
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			writeError(w, r, fmt.Errorf("%w: page must be a positive integer", domain.ErrValidation))
			return
		}
		input.Page = page
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			writeError(w, r, fmt.Errorf("%w: page_size must be a positive integer", domain.ErrValidation))
			return
		}
		input.PageSize = size
	}

	polls, err := h.service.ListPolls(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, polls)
}

func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	poll, err := h.service.GetPoll(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, poll)
}

type addCommentRequest struct {
	Text string `json:"text"`
}

type addCommentResponse struct {
	Comment  *domain.Comment  `json:"comment"`
	Comments []domain.Comment `json:"comments"`
}

func (h *PollHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	pollID, err := pollIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	var req addCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	comment, comments, err := h.service.AddComment(r.Context(), ports.AddCommentInput{
		PollID:   pollID,
		AuthorID: userID,
		Text:     req.Text,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, addCommentResponse{Comment: comment, Comments: comments})
}

func (h *PollHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	pollID, err := pollIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	comments, err := h.service.ListComments(r.Context(), pollID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func pollIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domain.ErrInvalidPollID
	}
	return id, nil
}
