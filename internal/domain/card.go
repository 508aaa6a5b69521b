package domain

import (
	"fmt"
	"time"
)

// State is the FSRS learning state of a card.
type State int

const (
	New State = iota
	Learning
	Review
	Relearning
)

// States lists the card states in the order a notebox is built.
var States = []State{New, Learning, Relearning, Review}

func (s State) String() string {
	switch s {
	case New:
		return "New"
	case Learning:
		return "Learning"
	case Review:
		return "Review"
	case Relearning:
		return "Relearning"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Card holds the scheduling metadata of a note.
type Card struct {
	ID         int64      `json:"id"`
	NoteID     int64      `json:"note_id"`
	State      State      `json:"state"`
	Due        time.Time  `json:"due"`
	Stability  float64    `json:"stability"`
	Difficulty float64    `json:"difficulty"`
	LastReview *time.Time `json:"last_review"`
	Suspended  bool       `json:"suspended"`
}

// Note is a unit of learning content parsed from a deck file.
type Note struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Context  string `json:"context"`
	Hash     string `json:"hash"`
	Source   string `json:"source"`
}

// NoteCard is a note joined with its card.
type NoteCard struct {
	Note
	Card Card `json:"card"`
}

// Notebox groups the notes due today by card state, in States order.
type Notebox [][]NoteCard

// Empty reports whether no state has any note left.
func (b Notebox) Empty() bool {
	for _, notes := range b {
		if len(notes) > 0 {
			return false
		}
	}
	return true
}

// ReviewLog records a single review event for a card.
// Rating follows FSRS: 1 Again, 2 Hard, 3 Good, 4 Easy.
type ReviewLog struct {
	CardID   int64
	UserID   int64
	Rating   int
	State    State
	Reviewed time.Time
}

// User is an account that owns notes.
type User struct {
	ID           int64
	Name         string
	NewCardLimit int
	// PasswordHash is empty for users created from the command line until a
	// password is set.
	PasswordHash []byte
	PasswordSalt []byte
	CreatedAt    time.Time
}
