package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/lingqdeck/internal/domain"
)

// FindCard returns a user's card with its note.
func (db *DB) FindCard(ctx context.Context, userID, cardID int64) (*domain.NoteCard, error) {
	var r noteCardRow
	err := db.conn.GetContext(ctx, &r, "SELECT"+noteCardColumns+" WHERE n.user_id = ? AND c.id = ?", userID, cardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find card %d: %w", cardID, err)
	}
	nc := r.toDomain()
	return &nc, nil
}

// RecordReview logs a review and writes the card's new scheduling state in
// one transaction. l.State is the card state before the review.
func (db *DB) RecordReview(ctx context.Context, l domain.ReviewLog, next domain.Card) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin review of card %d: %w", l.CardID, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO revlog (card_id, user_id, rating, state, review) VALUES (?, ?, ?, ?, ?)
	`, l.CardID, l.UserID, l.Rating, int(l.State), toMillis(l.Reviewed))
	if err != nil {
		return fmt.Errorf("failed to insert review log for card %d: %w", l.CardID, err)
	}

	var lastReview sql.NullInt64
	if next.LastReview != nil {
		lastReview = sql.NullInt64{Int64: toMillis(*next.LastReview), Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET state = ?, due = ?, stability = ?, difficulty = ?, last_review = ?, suspended = ?
		WHERE id = ?
	`, int(next.State), toMillis(next.Due), next.Stability, next.Difficulty, lastReview, next.Suspended, next.ID)
	if err != nil {
		return fmt.Errorf("failed to update card %d: %w", next.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review of card %d: %w", l.CardID, err)
	}
	return nil
}
