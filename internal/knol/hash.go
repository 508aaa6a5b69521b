package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conorfennell/lingqdeck/internal/domain"
)

// Normalize lowercases, trims and unifies line endings of each note field and
// joins them with newlines, so "question"+"answer" can't collide with
// "questionanswer".
func Normalize(note domain.Note) string {
	parts := []string{note.Question, note.Answer, note.Context}
	for i, p := range parts {
		p = strings.ReplaceAll(p, "\r\n", "\n")
		parts[i] = strings.TrimSpace(strings.ToLower(p))
	}
	return strings.Join(parts, "\n")
}

// Hash returns the hex SHA-256 of the normalized note content. It identifies a
// note across imports.
func Hash(note domain.Note) string {
	sum := sha256.Sum256([]byte(Normalize(note)))
	return hex.EncodeToString(sum[:])
}
