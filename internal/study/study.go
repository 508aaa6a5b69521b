// Package study assembles the notebox: the notes a user has left to study
// today, grouped by card state.
package study

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/conorfennell/lingqdeck/internal/domain"
	"github.com/conorfennell/lingqdeck/internal/fsrs"
	"golang.org/x/sync/errgroup"
)

// NoteStore is the storage the study flow reads from.
type NoteStore interface {
	GetNotes(ctx context.Context, q domain.NoteQuery) ([]domain.NoteCard, error)
	TodayLearnedNewCardCount(ctx context.Context, userID int64, startOfDay time.Time) (todayCount, limit int, err error)
}

// Data is everything a study page needs, computed once per request.
type Data struct {
	UserID     int64
	Now        time.Time
	StartOfDay time.Time
	TodayCount int
	Limit      int
	Notebox    domain.Notebox
}

// Finished reports whether nothing is left to study.
func (d *Data) Finished() bool {
	return d.Notebox.Empty()
}

// Service builds notebox data.
type Service struct {
	store NoteStore
	loc   *time.Location
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service reading from store. Day boundaries are
// computed in loc; nil means time.Local.
func NewService(store NoteStore, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.Local
	}
	s := &Service{store: store, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the user's notebox. A nil source matches every source.
func (s *Service) Load(ctx context.Context, userID int64, source *string) (*Data, error) {
	clock := s.now()
	now := fsrs.StudyDay(clock, s.loc, fsrs.DayStartHour)
	startOfDay := fsrs.StartOfDay(clock, s.loc, fsrs.DayStartHour)

	todayCount, limit, err := s.store.TodayLearnedNewCardCount(ctx, userID, startOfDay)
	if err != nil {
		return nil, fmt.Errorf("count new cards learned today: %w", err)
	}

	queries := Queries(userID, startOfDay, limit, todayCount, source)
	box := make(domain.Notebox, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			notes, err := s.store.GetNotes(gctx, q)
			if err != nil {
				return err
			}
			box[i] = notes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load notebox: %w", err)
	}

	slog.DebugContext(ctx, "notebox loaded",
		"user_id", userID,
		"start_of_day", startOfDay,
		"today_count", todayCount,
		"limit", limit,
		"new", len(box[0]),
		"learning", len(box[1]),
		"relearning", len(box[2]),
		"review", len(box[3]),
	)

	return &Data{
		UserID:     userID,
		Now:        now,
		StartOfDay: startOfDay,
		TodayCount: todayCount,
		Limit:      limit,
		Notebox:    box,
	}, nil
}

// NewCardTake is how many New cards may still be shown today.
func NewCardTake(limit, todayCount int) int {
	return max(0, limit-todayCount)
}

// Queries builds one query per state, in domain.States order. Only New
// cards are capped and only Review cards are filtered by due date; suspended
// cards are always left out.
func Queries(userID int64, startOfDay time.Time, limit, todayCount int, source *string) []domain.NoteQuery {
	queries := make([]domain.NoteQuery, 0, len(domain.States))
	for _, state := range domain.States {
		q := domain.NoteQuery{
			UserID:    userID,
			State:     state,
			Suspended: false,
			Source:    source,
		}
		if state == domain.New {
			take := NewCardTake(limit, todayCount)
			q.Take = &take
		}
		if state == domain.Review {
			due := startOfDay
			q.DueBefore = &due
		}
		queries = append(queries, q)
	}
	return queries
}

// Shuffle reorders every state of box in place by sorting with a random
// comparator. The result is not a uniform permutation.
func Shuffle(box domain.Notebox, random func() float64) domain.Notebox {
	if random == nil {
		random = rand.Float64
	}
	for _, notes := range box {
		slices.SortStableFunc(notes, func(_, _ domain.NoteCard) int {
			d := random() - random()
			switch {
			case d < 0:
				return -1
			case d > 0:
				return 1
			default:
				return 0
			}
		})
	}
	return box
}
