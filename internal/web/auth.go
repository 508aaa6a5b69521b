package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/conorfennell/lingqdeck/internal/auth"
	"github.com/conorfennell/lingqdeck/internal/domain"
	"github.com/conorfennell/lingqdeck/internal/storage"
)

const sessionCookie = "session"

// ErrNoSession is returned when a request carries no valid session.
var ErrNoSession = errors.New("web: no session")

func (s *Server) sessionUser(r *http.Request) (int64, error) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return 0, ErrNoSession
	}
	userID, err := s.Sessions.Parse(c.Value)
	if err != nil {
		return 0, errors.Join(ErrNoSession, err)
	}
	return userID, nil
}

type signInPage struct {
	CallbackURL string
	Error       string
}

func (s *Server) handleSignInPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, "signin", signInPage{CallbackURL: safeCallback(r.URL.Query().Get("callbackUrl"))})
	}
}

const errBadCredentials = "Invalid name or password."

// signInError carries a message shown on the sign-in page with its status.
type signInError struct {
	status  int
	message string
}

func (e *signInError) Error() string { return e.message }

// handleSignIn registers an unknown name with the given password, or checks
// the password of an existing user, and sets the session cookie.
func (s *Server) handleSignIn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callback := safeCallback(r.PostFormValue("callbackUrl"))
		name := strings.TrimSpace(r.PostFormValue("name"))
		if name == "" || len(name) > 64 {
			s.render(w, r, http.StatusBadRequest, "signin", signInPage{CallbackURL: callback, Error: "Enter a name of at most 64 characters."})
			return
		}

		user, err := s.authenticate(r, name, r.PostFormValue("password"))
		if err != nil {
			var pageErr *signInError
			if errors.As(err, &pageErr) {
				slog.InfoContext(r.Context(), "sign-in rejected", "name", name, "reason", pageErr.message)
				s.render(w, r, pageErr.status, "signin", signInPage{CallbackURL: callback, Error: pageErr.message})
				return
			}
			slog.ErrorContext(r.Context(), "failed to sign in", "name", name, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		token, err := s.Sessions.Issue(user.ID)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to issue session", "user_id", user.ID, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		s.setCookie(w, token, time.Now().Add(s.Sessions.TTL()))
		slog.InfoContext(r.Context(), "signed in", "user_id", user.ID)
		http.Redirect(w, r, callback, http.StatusSeeOther)
	}
}

func (s *Server) authenticate(r *http.Request, name, password string) (*domain.User, error) {
	user, err := s.Users.FindUserByName(r.Context(), name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if len(password) < auth.MinPasswordLen {
			return nil, &signInError{http.StatusBadRequest, fmt.Sprintf("Choose a password of at least %d characters.", auth.MinPasswordLen)}
		}
		hash, salt, err := auth.HashPassword(password)
		if err != nil {
			return nil, err
		}
		user, err = s.Users.CreateUser(r.Context(), name, s.NewCardLimit, hash, salt)
		if errors.Is(err, storage.ErrExists) {
			// Someone registered the name between the lookup and the insert.
			return nil, &signInError{http.StatusUnauthorized, errBadCredentials}
		}
		if err != nil {
			return nil, err
		}
		slog.InfoContext(r.Context(), "user registered", "user_id", user.ID)
		return user, nil
	case err != nil:
		return nil, err
	}

	if !auth.VerifyPassword(password, user.PasswordHash, user.PasswordSalt) {
		return nil, &signInError{http.StatusUnauthorized, errBadCredentials}
	}
	return user, nil
}

func (s *Server) handleSignOut() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.setCookie(w, "", time.Unix(0, 0))
		http.Redirect(w, r, "/api/auth/signin", http.StatusSeeOther)
	}
}

// setCookie writes the session cookie; an expiry in the past clears it.
func (s *Server) setCookie(w http.ResponseWriter, value string, expires time.Time) {
	c := &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge := int(time.Until(expires).Seconds()); maxAge > 0 {
		c.MaxAge = maxAge
	} else {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}

// safeCallback only follows local absolute paths.
func safeCallback(u string) string {
	if !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") || strings.HasPrefix(u, "/\\") {
		return "/card"
	}
	return u
}
