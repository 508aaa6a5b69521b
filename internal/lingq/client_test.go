package lingq

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLingq(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v3/en/cards/123/", r.URL.Path)
		assert.Equal(t, "Token abc", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"pk":123,"term":"house","status":1}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/v3/", time.Second)
	body, err := c.GetLingq(context.Background(), GetRequest{Language: "en", ID: 123, Token: "Token abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pk":123,"term":"house","status":1}`, string(body))
}

func TestChangeLingqStatus(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/de/cards/7/", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = io.WriteString(w, `{"pk":7,"status":3,"extended_status":3}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	body, err := c.ChangeLingqStatus(context.Background(), StatusRequest{
		Language: "de", ID: 7, Token: "t", Status: StatusLearned, ExtendedStatus: ExtendedStatusKnown,
	})
	require.NoError(t, err)
	assert.Equal(t, "3", form.Get("status"))
	assert.Equal(t, "3", form.Get("extended_status"))
	assert.JSONEq(t, `{"pk":7,"status":3,"extended_status":3}`, string(body))
}

func TestValidation(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()
	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	testCases := []struct {
		name string
		req  StatusRequest
	}{
		{"NaN id", StatusRequest{Language: "en", ID: math.NaN(), Token: "t"}},
		{"fractional id", StatusRequest{Language: "en", ID: 1.5, Token: "t"}},
		{"negative id", StatusRequest{Language: "en", ID: -1, Token: "t"}},
		{"NaN status", StatusRequest{Language: "en", ID: 1, Token: "t", Status: Status(math.NaN())}},
		{"status out of range", StatusRequest{Language: "en", ID: 1, Token: "t", Status: 9}},
		{"missing token", StatusRequest{Language: "en", ID: 1}},
		{"missing language", StatusRequest{ID: 1, Token: "t"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.ChangeLingqStatus(ctx, tc.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	_, err := c.GetLingq(ctx, GetRequest{Language: "en", ID: math.Inf(1), Token: "t"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.False(t, called, "invalid requests never reach LingQ")
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Invalid token."}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).GetLingq(context.Background(), GetRequest{Language: "en", ID: 1, Token: "bad"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Body, "Invalid token")
}

func TestNonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).GetLingq(context.Background(), GetRequest{Language: "en", ID: 1, Token: "t"})
	assert.Error(t, err)
}
