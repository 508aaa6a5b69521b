package web

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/conorfennell/lingqdeck/internal/domain"
	"github.com/conorfennell/lingqdeck/internal/study"
)

const signInCallbackCard = "/api/auth/signin?callbackUrl=/card"

type cardPage struct {
	Source     string
	Sources    []string
	TodayCount int
	Limit      int
	Notebox    domain.Notebox
}

// handleCard renders today's notebox, or the finish page when nothing is due.
func (s *Server) handleCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.sessionUser(r)
		if err != nil {
			http.Redirect(w, r, signInCallbackCard, http.StatusTemporaryRedirect)
			return
		}

		source := sourceParam(r.URL.Query())
		data, err := s.Notebooks.Load(r.Context(), userID, source)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to load notebox", "request_id", RequestID(r.Context()), "user_id", userID, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if data.Finished() {
			s.render(w, r, http.StatusOK, "finish", data)
			return
		}

		sources, err := s.Sources.GetSourceNames(r.Context(), userID)
		if err != nil {
			// The source picker is optional, the study view still works.
			slog.WarnContext(r.Context(), "failed to list sources", "user_id", userID, "error", err)
		}

		page := cardPage{
			Sources:    sources,
			TodayCount: data.TodayCount,
			Limit:      data.Limit,
			Notebox:    study.Shuffle(data.Notebox, s.Random),
		}
		if source != nil {
			page.Source = *source
		}
		s.render(w, r, http.StatusOK, "card", page)
	}
}

// sourceParam distinguishes an absent source (no filter) from an empty one.
func sourceParam(q url.Values) *string {
	if !q.Has("source") {
		return nil
	}
	v := q.Get("source")
	return &v
}
