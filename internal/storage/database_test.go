package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/lingqdeck/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func insertNote(t *testing.T, db *DB, userID int64, question, source string, due time.Time) domain.Card {
	t.Helper()
	card, err := db.InsertNote(context.Background(), domain.Note{
		UserID:   userID,
		Question: question,
		Hash:     "hash-" + question,
		Source:   source,
	}, 0, due)
	require.NoError(t, err)
	return card
}

func review(t *testing.T, db *DB, userID int64, card domain.Card, rating int, reviewed time.Time) {
	t.Helper()
	require.NoError(t, db.RecordReview(context.Background(), domain.ReviewLog{
		CardID: card.ID, UserID: userID, Rating: rating, State: card.State, Reviewed: reviewed,
	}, card))
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "twice.db")
	ctx := context.Background()

	db, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Ping(ctx))
	require.NoError(t, db.Close())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestUpsertUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	u1, err := db.UpsertUser(ctx, "ana", 15)
	require.NoError(t, err)
	assert.Equal(t, 15, u1.NewCardLimit)

	u2, err := db.UpsertUser(ctx, "ana", 99)
	require.NoError(t, err)
	assert.Equal(t, u1.ID, u2.ID)
	assert.Equal(t, 15, u2.NewCardLimit, "existing users keep their limit")

	_, err = db.FindUser(ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetNotes_Filters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user, err := db.UpsertUser(ctx, "ana", 20)
	require.NoError(t, err)
	other, err := db.UpsertUser(ctx, "ben", 20)
	require.NoError(t, err)

	start := time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC)

	insertNote(t, db, user.ID, "new-es", "spanish", start)
	insertNote(t, db, user.ID, "new-de", "german", start.Add(time.Minute))
	insertNote(t, db, other.ID, "someone-else", "spanish", start)

	setCard := func(question string, state domain.State, due time.Time, suspended bool) {
		card := insertNote(t, db, user.ID, question, "spanish", start)
		card.State = state
		card.Due = due
		card.Suspended = suspended
		review(t, db, user.ID, card, 3, start.Add(-2*time.Hour))
	}
	setCard("review-due", domain.Review, start.Add(-time.Hour), false)
	setCard("review-later", domain.Review, start.Add(time.Hour), false)
	setCard("suspended", domain.Review, start.Add(-time.Hour), true)

	t.Run("state and user", func(t *testing.T) {
		notes, err := db.GetNotes(ctx, domain.NoteQuery{UserID: user.ID, State: domain.New})
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, "new-es", notes[0].Question, "earliest due first")
		assert.Equal(t, domain.New, notes[0].Card.State)
	})

	t.Run("due filter", func(t *testing.T) {
		notes, err := db.GetNotes(ctx, domain.NoteQuery{UserID: user.ID, State: domain.Review, DueBefore: &start})
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "review-due", notes[0].Question)
	})

	t.Run("suspended", func(t *testing.T) {
		notes, err := db.GetNotes(ctx, domain.NoteQuery{UserID: user.ID, State: domain.Review, Suspended: true})
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.True(t, notes[0].Card.Suspended)
	})

	t.Run("source", func(t *testing.T) {
		source := "german"
		notes, err := db.GetNotes(ctx, domain.NoteQuery{UserID: user.ID, State: domain.New, Source: &source})
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "german", notes[0].Source)
	})

	t.Run("take", func(t *testing.T) {
		one, zero := 1, 0
		notes, err := db.GetNotes(ctx, domain.NoteQuery{UserID: user.ID, State: domain.New, Take: &one})
		require.NoError(t, err)
		assert.Len(t, notes, 1)

		notes, err = db.GetNotes(ctx, domain.NoteQuery{UserID: user.ID, State: domain.New, Take: &zero})
		require.NoError(t, err)
		assert.Empty(t, notes)
	})
}

func TestTodayLearnedNewCardCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user, err := db.UpsertUser(ctx, "ana", 10)
	require.NoError(t, err)

	start := time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC)
	cards := map[string]domain.Card{}
	for i, q := range []string{"a", "b", "c"} {
		card := insertNote(t, db, user.ID, q, "", start)
		cards[q] = card

		reviewed := start.Add(time.Duration(i) * time.Hour)
		if q == "c" {
			reviewed = start.Add(-time.Minute) // yesterday
		}
		review(t, db, user.ID, card, 3, reviewed)
	}
	// A second review of the same card, and a review of a non-New card.
	review(t, db, user.ID, cards["a"], 1, start.Add(2*time.Hour))
	learning := cards["a"]
	learning.State = domain.Learning
	review(t, db, user.ID, learning, 3, start.Add(3*time.Hour))

	count, limit, err := db.TodayLearnedNewCardCount(ctx, user.ID, start)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 10, limit)

	require.NoError(t, db.SetNewCardLimit(ctx, user.ID, 5))
	_, limit, err = db.TodayLearnedNewCardCount(ctx, user.ID, start)
	require.NoError(t, err)
	assert.Equal(t, 5, limit)
}

func TestRecordReview(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ana, err := db.UpsertUser(ctx, "ana", 10)
	require.NoError(t, err)
	ben, err := db.UpsertUser(ctx, "ben", 10)
	require.NoError(t, err)

	start := time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC)
	card := insertNote(t, db, ana.ID, "q", "", start)

	_, err = db.FindCard(ctx, ben.ID, card.ID)
	assert.ErrorIs(t, err, ErrNotFound, "cards are scoped to their owner")

	reviewed := start.Add(time.Hour)
	next := card
	next.State = domain.Learning
	next.Due = reviewed.Add(10 * time.Minute)
	next.Stability = 2.5
	next.Difficulty = 5.1
	next.LastReview = &reviewed
	require.NoError(t, db.RecordReview(ctx, domain.ReviewLog{
		CardID: card.ID, UserID: ana.ID, Rating: 3, State: card.State, Reviewed: reviewed,
	}, next))

	got, err := db.FindCard(ctx, ana.ID, card.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Learning, got.Card.State)
	assert.True(t, got.Card.Due.Equal(next.Due))
	assert.Equal(t, 2.5, got.Card.Stability)
	require.NotNil(t, got.Card.LastReview)
	assert.True(t, got.Card.LastReview.Equal(reviewed))

	count, _, err := db.TodayLearnedNewCardCount(ctx, ana.ID, start)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	missing := next
	missing.ID = 9999
	err = db.RecordReview(ctx, domain.ReviewLog{CardID: card.ID, UserID: ana.ID, Rating: 3, Reviewed: reviewed}, missing)
	assert.ErrorIs(t, err, ErrNotFound)
	count, _, err = db.TodayLearnedNewCardCount(ctx, ana.ID, start)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a failed review leaves no log behind")
}

func TestUsers_Passwords(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	u, err := db.CreateUser(ctx, "ana", 12, []byte("hash"), []byte("salt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hash"), u.PasswordHash)
	assert.Equal(t, []byte("salt"), u.PasswordSalt)
	assert.Equal(t, 12, u.NewCardLimit)

	_, err = db.CreateUser(ctx, "ana", 12, []byte("other"), []byte("other"))
	assert.ErrorIs(t, err, ErrExists)

	cli, err := db.UpsertUser(ctx, "ben", 20)
	require.NoError(t, err)
	assert.Empty(t, cli.PasswordHash)

	require.NoError(t, db.SetPassword(ctx, cli.ID, []byte("h2"), []byte("s2")))
	found, err := db.FindUserByName(ctx, "ben")
	require.NoError(t, err)
	assert.Equal(t, []byte("h2"), found.PasswordHash)

	_, err = db.FindUserByName(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.SetPassword(ctx, 9999, nil, nil), ErrNotFound)
}

func TestSources(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user, err := db.UpsertUser(ctx, "ana", 10)
	require.NoError(t, err)
	other, err := db.UpsertUser(ctx, "ben", 10)
	require.NoError(t, err)

	id, err := db.InsertSource(ctx, user.ID, "decks", "/tmp/decks", SourceLocal)
	require.NoError(t, err)

	_, err = db.InsertSource(ctx, user.ID, "decks", "/tmp/decks", SourceLocal)
	assert.Error(t, err, "paths are unique per user")

	otherID, err := db.InsertSource(ctx, other.ID, "decks", "/tmp/decks", SourceLocal)
	require.NoError(t, err, "another user may register the same path")
	assert.NotEqual(t, id, otherID)

	src, err := db.FindSourceByPath(ctx, user.ID, "/tmp/decks")
	require.NoError(t, err)
	assert.Equal(t, id, src.ID)
	assert.Equal(t, user.ID, src.UserID)
	assert.Nil(t, src.LastScanned)

	scanned := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpdateSourceLastScanned(ctx, id, scanned))

	all, err := db.GetAllSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := db.GetSources(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].LastScanned)
	assert.True(t, mine[0].LastScanned.Equal(scanned))

	_, err = db.InsertNote(ctx, domain.Note{UserID: user.ID, Question: "q", Hash: "h", Source: "decks"}, id, scanned)
	require.NoError(t, err)
	_, err = db.InsertNote(ctx, domain.Note{UserID: user.ID, Question: "q2", Hash: "h2", Source: "decks"}, id, scanned)
	require.NoError(t, err)

	hashes, err := db.GetNoteHashesBySourceID(ctx, id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"h", "h2"}, hashes)

	names, err := db.GetSourceNames(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"decks"}, names)

	require.NoError(t, db.DeleteSourceNote(ctx, id, "h"))
	hashes, err = db.GetNoteHashesBySourceID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"h2"}, hashes)

	assert.ErrorIs(t, db.DeleteSource(ctx, other.ID, id), ErrNotFound, "users cannot delete each other's sources")

	require.NoError(t, db.DeleteSource(ctx, user.ID, id))
	_, err = db.FindSourceByPath(ctx, user.ID, "/tmp/decks")
	assert.ErrorIs(t, err, ErrNotFound)
	notes, err := db.GetNotes(ctx, domain.NoteQuery{UserID: user.ID, State: domain.New})
	require.NoError(t, err)
	assert.Empty(t, notes, "deleting a source deletes its notes")
}

func TestNotes_SharedAcrossSources(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user, err := db.UpsertUser(ctx, "ana", 10)
	require.NoError(t, err)
	a, err := db.InsertSource(ctx, user.ID, "a", "/decks/a", SourceLocal)
	require.NoError(t, err)
	b, err := db.InsertSource(ctx, user.ID, "b", "/decks/b", SourceLocal)
	require.NoError(t, err)

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	note := domain.Note{UserID: user.ID, Question: "casa", Hash: "same"}
	note.Source = "a"
	_, err = db.InsertNote(ctx, note, a, now)
	require.NoError(t, err)
	note.Source = "b"
	_, err = db.InsertNote(ctx, note, b, now)
	require.NoError(t, err, "the same note may come from two sources")

	require.NoError(t, db.DeleteSourceNote(ctx, a, "same"))

	source := "b"
	notes, err := db.GetNotes(ctx, domain.NoteQuery{UserID: user.ID, State: domain.New, Source: &source})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "casa", notes[0].Question)
}
