// Package lingq is a small client for the LingQ v3 cards API.
//
// Numeric request fields are float64 so that values coerced from user input
// (which may be NaN) reach the client unchanged; requests are rejected when a value
// is not a finite whole number in range.
package lingq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultBaseURL is the public LingQ API root.
const DefaultBaseURL = "https://www.lingq.com/api/v3"

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("lingq: invalid request")

// Status is the learning status LingQ keeps for a word.
type Status float64

const (
	StatusNew        Status = 0
	StatusRecognized Status = 1
	StatusFamiliar   Status = 2
	StatusLearned    Status = 3
)

// ExtendedStatus refines StatusLearned; 3 marks a word as known.
type ExtendedStatus float64

const (
	ExtendedStatusNone  ExtendedStatus = 0
	ExtendedStatusKnown ExtendedStatus = 3
)

// GetRequest identifies a lingq.
type GetRequest struct {
	Language string  `validate:"required,min=2,max=8"`
	ID       float64 `validate:"wholenum,gte=0"`
	Token    string  `validate:"required"`
}

// StatusRequest changes the status of a lingq.
type StatusRequest struct {
	Language       string         `validate:"required,min=2,max=8"`
	ID             float64        `validate:"wholenum,gte=0"`
	Token          string         `validate:"required"`
	Status         Status         `validate:"wholenum,gte=0,lte=3"`
	ExtendedStatus ExtendedStatus `validate:"wholenum,gte=0,lte=3"`
}

// StatusError is returned when LingQ answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lingq: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the LingQ API.
type Client struct {
	baseURL  string
	http     *http.Client
	validate *validator.Validate
}

// NewClient returns a client for baseURL. A zero timeout means no timeout
// beyond the request context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// wholenum accepts finite floats without a fractional part.
	_ = v.RegisterValidation("wholenum", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
	})
	return v
}

// GetLingq fetches a lingq and returns LingQ's JSON body untouched.
func (c *Client) GetLingq(ctx context.Context, req GetRequest) (json.RawMessage, error) {
	if err := c.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cardURL(req.Language, req.ID), nil)
	if err != nil {
		return nil, fmt.Errorf("lingq: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", req.Token)
	httpReq.Header.Set("Accept", "application/json")
	return c.do(httpReq)
}

// ChangeLingqStatus updates status and extended_status of a lingq and
// returns LingQ's JSON body untouched.
func (c *Client) ChangeLingqStatus(ctx context.Context, req StatusRequest) (json.RawMessage, error) {
	if err := c.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	form := url.Values{}
	form.Set("status", formatNumber(float64(req.Status)))
	form.Set("extended_status", formatNumber(float64(req.ExtendedStatus)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.cardURL(req.Language, req.ID), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("lingq: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", req.Token)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(httpReq)
}

func (c *Client) cardURL(language string, id float64) string {
	return fmt.Sprintf("%s/%s/cards/%s/", c.baseURL, url.PathEscape(language), formatNumber(id))
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lingq: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("lingq: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if !json.Valid(body) {
		return nil, errors.New("lingq: response is not JSON")
	}
	return json.RawMessage(body), nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
