package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/lingqdeck/internal/domain"
	"github.com/conorfennell/lingqdeck/internal/storage"
)

var validate = validator.New()

// reviewRequest is the card state the study client computed after a review.
type reviewRequest struct {
	Rating     int          `json:"rating" validate:"gte=1,lte=4"`
	State      domain.State `json:"state" validate:"gte=0,lte=3"`
	Due        time.Time    `json:"due" validate:"required"`
	Stability  float64      `json:"stability" validate:"gte=0"`
	Difficulty float64      `json:"difficulty" validate:"gte=0"`
	Suspended  bool         `json:"suspended"`
}

// handleReview stores the outcome of a review: the rating and the card's
// state before it go to the review log, the new schedule to the card.
func (s *Server) handleReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.sessionUser(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not signed in"})
			return
		}
		cardID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid card id"})
			return
		}

		var req reviewRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormMemory))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid review body"})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}

		current, err := s.Reviews.FindCard(r.Context(), userID, cardID)
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "card not found"})
			return
		}
		if err != nil {
			s.reviewError(w, r, cardID, err)
			return
		}

		now := time.Now()
		next := domain.Card{
			ID:         current.Card.ID,
			NoteID:     current.Card.NoteID,
			State:      req.State,
			Due:        req.Due,
			Stability:  req.Stability,
			Difficulty: req.Difficulty,
			LastReview: &now,
			Suspended:  req.Suspended,
		}
		entry := domain.ReviewLog{
			CardID:   current.Card.ID,
			UserID:   userID,
			Rating:   req.Rating,
			State:    current.Card.State,
			Reviewed: now,
		}
		if err := s.Reviews.RecordReview(r.Context(), entry, next); err != nil {
			s.reviewError(w, r, cardID, err)
			return
		}
		slog.DebugContext(r.Context(), "review recorded", "user_id", userID, "card_id", cardID, "rating", req.Rating)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) reviewError(w http.ResponseWriter, r *http.Request, cardID int64, err error) {
	slog.ErrorContext(r.Context(), "failed to record review", "request_id", RequestID(r.Context()), "card_id", cardID, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}
