package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/conorfennell/lingqdeck/internal/storage"
	decksync "github.com/conorfennell/lingqdeck/internal/sync"
)

const signInCallbackSources = "/api/auth/signin?callbackUrl=/sources"

type sourcesPage struct {
	Sources []storage.Source
	Error   string
}

// handleGetSources renders the source management page of the signed-in user.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.sessionUser(r)
		if err != nil {
			http.Redirect(w, r, signInCallbackSources, http.StatusTemporaryRedirect)
			return
		}
		s.renderSources(w, r, userID, http.StatusOK, "")
	}
}

// handlePostSource adds a git source for the signed-in user. Local
// directories can only be added from the command line.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.sessionUser(r)
		if err != nil {
			http.Redirect(w, r, signInCallbackSources, http.StatusSeeOther)
			return
		}

		path := strings.TrimSpace(r.PostFormValue("path"))
		if path == "" {
			s.renderSources(w, r, userID, http.StatusBadRequest, "Path cannot be empty.")
			return
		}
		if decksync.SourceType(path) != storage.SourceGit {
			s.renderSources(w, r, userID, http.StatusBadRequest, "Only git URLs can be added here. Add local directories with --add-source.")
			return
		}

		source, err := s.Syncer.AddSource(r.Context(), userID, path)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to add source", "request_id", RequestID(r.Context()), "user_id", userID, "path", path, "error", err)
			http.Error(w, "Failed to add source", http.StatusInternalServerError)
			return
		}
		slog.InfoContext(r.Context(), "source added", "user_id", userID, "source_id", source.ID, "path", source.Path)
		http.Redirect(w, r, "/sources", http.StatusSeeOther)
	}
}

// handleDeleteSource removes one of the signed-in user's sources and its notes.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.sessionUser(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid source ID", http.StatusBadRequest)
			return
		}

		err = s.Sources.DeleteSource(r.Context(), userID, id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.NotFound(w, r)
		case err != nil:
			slog.ErrorContext(r.Context(), "failed to delete source", "request_id", RequestID(r.Context()), "user_id", userID, "source_id", id, "error", err)
			http.Error(w, "Failed to delete source", http.StatusInternalServerError)
		default:
			slog.InfoContext(r.Context(), "source deleted", "user_id", userID, "source_id", id)
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

// handlePostSync imports the signed-in user's sources in the foreground.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.sessionUser(r)
		if err != nil {
			http.Redirect(w, r, signInCallbackSources, http.StatusSeeOther)
			return
		}
		if err := s.Syncer.SyncUser(r.Context(), userID); err != nil {
			slog.WarnContext(r.Context(), "sync failed", "request_id", RequestID(r.Context()), "user_id", userID, "error", err)
			s.renderSources(w, r, userID, http.StatusBadGateway, "Some sources failed to sync.")
			return
		}
		http.Redirect(w, r, "/sources", http.StatusSeeOther)
	}
}

func (s *Server) renderSources(w http.ResponseWriter, r *http.Request, userID int64, status int, message string) {
	sources, err := s.Sources.GetSources(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to get sources", "request_id", RequestID(r.Context()), "user_id", userID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, status, "sources", sourcesPage{Sources: sources, Error: message})
}
