package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Source types.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Source represents a deck origin, either a local path or a Git URL.
type Source struct {
	ID          int64
	UserID      int64
	Name        string
	Path        string
	Type        string
	LastScanned *time.Time
}

type sourceRow struct {
	ID          int64         `db:"id"`
	UserID      int64         `db:"user_id"`
	Name        string        `db:"name"`
	Path        string        `db:"path"`
	Type        string        `db:"type"`
	LastScanned sql.NullInt64 `db:"last_scanned"`
}

func (r sourceRow) toSource() Source {
	s := Source{ID: r.ID, UserID: r.UserID, Name: r.Name, Path: r.Path, Type: r.Type}
	if r.LastScanned.Valid {
		t := fromMillis(r.LastScanned.Int64)
		s.LastScanned = &t
	}
	return s
}

const sourceColumns = `SELECT id, user_id, name, path, type, last_scanned FROM sources`

// InsertSource stores a new source owned by userID and returns its ID.
func (db *DB) InsertSource(ctx context.Context, userID int64, name, path, sourceType string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (user_id, name, path, type) VALUES (?, ?, ?, ?)
	`, userID, name, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a user's source by its path.
func (db *DB) FindSourceByPath(ctx context.Context, userID int64, path string) (*Source, error) {
	var r sourceRow
	if err := db.conn.GetContext(ctx, &r, sourceColumns+` WHERE user_id = ? AND path = ?`, userID, path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	s := r.toSource()
	return &s, nil
}

// GetAllSources retrieves every stored source.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	return db.selectSources(ctx, sourceColumns+` ORDER BY id`)
}

// GetSources retrieves the sources of one user.
func (db *DB) GetSources(ctx context.Context, userID int64) ([]Source, error) {
	return db.selectSources(ctx, sourceColumns+` WHERE user_id = ? ORDER BY id`, userID)
}

func (db *DB) selectSources(ctx context.Context, query string, args ...any) ([]Source, error) {
	var rows []sourceRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	sources := make([]Source, 0, len(rows))
	for _, r := range rows {
		sources = append(sources, r.toSource())
	}
	return sources, nil
}

// GetSourceNames lists the distinct source names of a user's notes.
func (db *DB) GetSourceNames(ctx context.Context, userID int64) ([]string, error) {
	var names []string
	err := db.conn.SelectContext(ctx, &names, `
		SELECT DISTINCT source FROM notes WHERE user_id = ? AND source != '' ORDER BY source
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get source names for user %d: %w", userID, err)
	}
	return names, nil
}

// UpdateSourceLastScanned stamps a source with the time of its last scan.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	if _, err := db.conn.ExecContext(ctx, `UPDATE sources SET last_scanned = ? WHERE id = ?`, toMillis(at), sourceID); err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a user's source together with the notes it imported.
// It returns ErrNotFound when the user has no such source.
func (db *DB) DeleteSource(ctx context.Context, userID, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sources WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
