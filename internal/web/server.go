package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/conorfennell/lingqdeck/internal/auth"
	"github.com/conorfennell/lingqdeck/internal/domain"
	"github.com/conorfennell/lingqdeck/internal/lingq"
	"github.com/conorfennell/lingqdeck/internal/storage"
	"github.com/conorfennell/lingqdeck/internal/study"
	"github.com/google/uuid"
)

//go:embed all:templates
var templateFiles embed.FS

// Vendor is the LingQ API the proxy forwards to.
type Vendor interface {
	GetLingq(ctx context.Context, req lingq.GetRequest) (json.RawMessage, error)
	ChangeLingqStatus(ctx context.Context, req lingq.StatusRequest) (json.RawMessage, error)
}

// Notebooks loads the notebox of a user.
type Notebooks interface {
	Load(ctx context.Context, userID int64, source *string) (*study.Data, error)
}

// Users is the account storage used by sign-in.
type Users interface {
	FindUserByName(ctx context.Context, name string) (*domain.User, error)
	CreateUser(ctx context.Context, name string, newCardLimit int, passwordHash, passwordSalt []byte) (*domain.User, error)
	Ping(ctx context.Context) error
}

// Sources lists and removes the deck sources of a user.
type Sources interface {
	GetSources(ctx context.Context, userID int64) ([]storage.Source, error)
	GetSourceNames(ctx context.Context, userID int64) ([]string, error)
	DeleteSource(ctx context.Context, userID, id int64) error
}

// Syncer registers sources and imports their notes.
type Syncer interface {
	AddSource(ctx context.Context, userID int64, path string) (*storage.Source, error)
	SyncUser(ctx context.Context, userID int64) error
}

// Reviews records study results against a user's cards.
type Reviews interface {
	FindCard(ctx context.Context, userID, cardID int64) (*domain.NoteCard, error)
	RecordReview(ctx context.Context, l domain.ReviewLog, next domain.Card) error
}

// Deps holds the dependencies for the HTTP server.
type Deps struct {
	Vendor       Vendor
	Notebooks    Notebooks
	Users        Users
	Sources      Sources
	Syncer       Syncer
	Reviews      Reviews
	Sessions     *auth.Sessions
	NewCardLimit int
	SecureCookie bool
	// Random feeds the notebox shuffle; nil means math/rand.
	Random func() float64
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	Deps
	router    *http.ServeMux
	templates *template.Template
}

// NewServer creates and configures a new server.
func NewServer(deps Deps) (*Server, error) {
	tpl, err := template.New("").Funcs(template.FuncMap{
		"stateName": func(i int) string { return domain.States[i].String() },
		"noteHTML":  noteHTML,
		"datetime": func(t *time.Time) string {
			if t == nil {
				return "never"
			}
			return t.Format("2006-01-02 15:04")
		},
	}).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		Deps:      deps,
		router:    http.NewServeMux(),
		templates: tpl,
	}
	s.routes()
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /api/lingq/v3/{language}/cards/{id}", s.handleGetLingq())
	s.router.HandleFunc("PATCH /api/lingq/v3/{language}/cards/{id}", s.handlePatchLingq())

	s.router.HandleFunc("GET /card", s.handleCard())
	s.router.HandleFunc("POST /api/cards/{id}/review", s.handleReview())

	s.router.HandleFunc("GET /sources", s.handleGetSources())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())

	s.router.HandleFunc("GET /api/auth/signin", s.handleSignInPage())
	s.router.HandleFunc("POST /api/auth/signin", s.handleSignIn())
	s.router.HandleFunc("GET /api/auth/signout", s.handleSignOut())

	s.router.HandleFunc("GET /healthz", s.handleHealth())
	s.router.Handle("GET /{$}", http.RedirectHandler("/card", http.StatusFound))
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Users.Ping(ctx); err != nil {
			slog.ErrorContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "database unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "failed to render template", "template", name, "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write JSON response", "error", err)
	}
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// RequestID returns the id logRequests assigned to the request in ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
