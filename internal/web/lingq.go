package web

import (
	"errors"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/conorfennell/lingqdeck/internal/lingq"
)

const maxFormMemory = 1 << 20

// handleGetLingq relays a lingq fetched with the caller's LingQ token.
func (s *Server) handleGetLingq() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "token not found"})
			return
		}

		data, err := s.Vendor.GetLingq(r.Context(), lingq.GetRequest{
			Language: r.PathValue("language"),
			ID:       toNumber(r.PathValue("id")),
			Token:    token,
		})
		if err != nil {
			s.vendorError(w, r, err)
			return
		}
		writeRawJSON(w, data)
	}
}

// handlePatchLingq changes the status of a lingq from form fields.
func (s *Server) handlePatchLingq() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("authorization")
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "token not found"})
			return
		}

		if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid form body"})
			return
		}

		data, err := s.Vendor.ChangeLingqStatus(r.Context(), lingq.StatusRequest{
			Language:       r.PathValue("language"),
			ID:             toNumber(r.PathValue("id")),
			Token:          token,
			Status:         lingq.Status(toNumber(r.PostFormValue("status"))),
			ExtendedStatus: lingq.ExtendedStatus(toNumber(r.PostFormValue("extended_status"))),
		})
		if err != nil {
			s.vendorError(w, r, err)
			return
		}
		writeRawJSON(w, data)
	}
}

func (s *Server) vendorError(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *lingq.StatusError
	switch {
	case errors.Is(err, lingq.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.As(err, &statusErr):
		slog.WarnContext(r.Context(), "lingq rejected request", "request_id", RequestID(r.Context()), "status", statusErr.StatusCode, "path", r.URL.Path)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: statusErr.Error()})
	default:
		slog.ErrorContext(r.Context(), "lingq request failed", "request_id", RequestID(r.Context()), "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "lingq unavailable"})
	}
}

func writeRawJSON(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write lingq response", "error", err)
	}
}

var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// toNumber converts a form or path value the way JavaScript's Number()
// does: blank is 0, 0x/0o/0b prefixes select the radix, Infinity is
// accepted with a sign, and anything else unparsable is NaN.
func toNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			if s[2] == '+' || s[2] == '-' {
				return math.NaN()
			}
			n, ok := new(big.Int).SetString(s[2:], base)
			if !ok {
				return math.NaN()
			}
			f, _ := new(big.Float).SetInt(n).Float64()
			return f
		}
	}

	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	if !decimalLiteral.MatchString(s) {
		return math.NaN()
	}
	// Out of range values come back as ±Inf alongside ErrRange, as in JavaScript.
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
