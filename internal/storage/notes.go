package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/lingqdeck/internal/domain"
)

// noteCardRow is the flat shape of a notes ⨝ cards row.
type noteCardRow struct {
	ID         int64         `db:"id"`
	UserID     int64         `db:"user_id"`
	Question   string        `db:"question"`
	Answer     string        `db:"answer"`
	Context    string        `db:"context"`
	Hash       string        `db:"hash"`
	Source     string        `db:"source"`
	CardID     int64         `db:"card_id"`
	State      int           `db:"state"`
	Due        int64         `db:"due"`
	Stability  float64       `db:"stability"`
	Difficulty float64       `db:"difficulty"`
	LastReview sql.NullInt64 `db:"last_review"`
	Suspended  bool          `db:"suspended"`
}

func (r noteCardRow) toDomain() domain.NoteCard {
	nc := domain.NoteCard{
		Note: domain.Note{
			ID:       r.ID,
			UserID:   r.UserID,
			Question: r.Question,
			Answer:   r.Answer,
			Context:  r.Context,
			Hash:     r.Hash,
			Source:   r.Source,
		},
		Card: domain.Card{
			ID:         r.CardID,
			NoteID:     r.ID,
			State:      domain.State(r.State),
			Due:        fromMillis(r.Due),
			Stability:  r.Stability,
			Difficulty: r.Difficulty,
			Suspended:  r.Suspended,
		},
	}
	if r.LastReview.Valid {
		lr := fromMillis(r.LastReview.Int64)
		nc.Card.LastReview = &lr
	}
	return nc
}

const noteCardColumns = `
	n.id, n.user_id, n.question, n.answer, n.context, n.hash, n.source,
	c.id AS card_id, c.state, c.due, c.stability, c.difficulty, c.last_review, c.suspended
	FROM notes n JOIN cards c ON c.note_id = n.id`

// GetNotes returns the notes matching q, joined with their cards, earliest
// due first.
func (db *DB) GetNotes(ctx context.Context, q domain.NoteQuery) ([]domain.NoteCard, error) {
	var sb strings.Builder
	args := []any{q.UserID, int(q.State), q.Suspended}
	sb.WriteString("SELECT")
	sb.WriteString(noteCardColumns)
	sb.WriteString(" WHERE n.user_id = ? AND c.state = ? AND c.suspended = ?")
	if q.DueBefore != nil {
		sb.WriteString(" AND c.due <= ?")
		args = append(args, toMillis(*q.DueBefore))
	}
	if q.Source != nil {
		sb.WriteString(" AND n.source = ?")
		args = append(args, *q.Source)
	}
	sb.WriteString(" ORDER BY c.due, n.id")
	if q.Take != nil {
		sb.WriteString(" LIMIT ?")
		args = append(args, *q.Take)
	}

	var rows []noteCardRow
	if err := db.conn.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("failed to get %s notes for user %d: %w", q.State, q.UserID, err)
	}

	notes := make([]domain.NoteCard, 0, len(rows))
	for _, r := range rows {
		notes = append(notes, r.toDomain())
	}
	return notes, nil
}

// InsertNote stores a note for a source together with a New card due at
// due, and returns that card.
func (db *DB) InsertNote(ctx context.Context, note domain.Note, sourceID int64, due time.Time) (domain.Card, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to begin insert of note %s: %w", note.Hash, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO notes (user_id, source_id, source, hash, question, answer, context)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, note.UserID, sql.NullInt64{Int64: sourceID, Valid: sourceID != 0}, note.Source,
		note.Hash, note.Question, note.Answer, note.Context)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to insert note %s: %w", note.Hash, err)
	}
	noteID, err := res.LastInsertId()
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to get id of note %s: %w", note.Hash, err)
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO cards (note_id, state, due) VALUES (?, ?, ?)
	`, noteID, int(domain.New), toMillis(due))
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to insert card for note %s: %w", note.Hash, err)
	}
	cardID, err := res.LastInsertId()
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to get card id of note %s: %w", note.Hash, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Card{}, fmt.Errorf("failed to commit note %s: %w", note.Hash, err)
	}
	return domain.Card{ID: cardID, NoteID: noteID, State: domain.New, Due: fromMillis(toMillis(due))}, nil
}

// GetNoteHashesBySourceID lists the hashes of every note imported from a source.
func (db *DB) GetNoteHashesBySourceID(ctx context.Context, sourceID int64) ([]string, error) {
	var hashes []string
	if err := db.conn.SelectContext(ctx, &hashes, `SELECT hash FROM notes WHERE source_id = ?`, sourceID); err != nil {
		return nil, fmt.Errorf("failed to get notes for source ID %d: %w", sourceID, err)
	}
	return hashes, nil
}

// DeleteSourceNote removes the note a source imported with the given hash
// and, by cascade, its card and logs. Copies from other sources stay.
func (db *DB) DeleteSourceNote(ctx context.Context, sourceID int64, hash string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE source_id = ? AND hash = ?`, sourceID, hash); err != nil {
		return fmt.Errorf("failed to delete note with hash %s from source %d: %w", hash, sourceID, err)
	}
	return nil
}
