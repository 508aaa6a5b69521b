package domain

import "time"

// NoteQuery selects the notes of one user whose card is in State.
type NoteQuery struct {
	UserID int64
	State  State
	// DueBefore keeps only cards due at or before the given time.
	DueBefore *time.Time
	Suspended bool
	// Source restricts notes to one import source; nil matches any.
	Source *string
	// Take caps the number of notes returned; nil means no cap.
	Take *int
}
