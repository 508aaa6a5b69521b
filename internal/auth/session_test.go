package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParse_Success(t *testing.T) {
	t.Parallel()

	s := NewSessions([]byte("super-secret"), time.Hour)
	tok, err := s.Issue(42)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	uid, err := s.Parse(tok)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if uid != 42 {
		t.Fatalf("user mismatch: got %d want 42", uid)
	}
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()

	s := NewSessions([]byte("secret"), time.Hour)
	issued := time.Now()
	s.now = func() time.Time { return issued }
	tok, err := s.Issue(1)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	s.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = s.Parse(tok)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected jwt.ErrTokenExpired, got %v", err)
	}
}

func TestParse_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewSessions([]byte("right-secret"), time.Hour).Issue(2)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := NewSessions([]byte("wrong-secret"), time.Hour).Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParse_Garbage(t *testing.T) {
	t.Parallel()

	s := NewSessions([]byte("secret"), time.Hour)
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := s.Parse(tok); err == nil {
			t.Errorf("expected error for %q", tok)
		}
	}
}

func TestParse_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           3,
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewSessions(secret, time.Hour).Parse(tok); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
}
