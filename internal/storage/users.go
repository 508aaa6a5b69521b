package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/lingqdeck/internal/domain"
)

type userRow struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	NewCardLimit int    `db:"new_card_limit"`
	PasswordHash []byte `db:"password_hash"`
	PasswordSalt []byte `db:"password_salt"`
	CreatedAt    int64  `db:"created_at"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Name:         r.Name,
		NewCardLimit: r.NewCardLimit,
		PasswordHash: r.PasswordHash,
		PasswordSalt: r.PasswordSalt,
		CreatedAt:    fromMillis(r.CreatedAt),
	}
}

const userColumns = `SELECT id, name, new_card_limit, password_hash, password_salt, created_at FROM users`

// UpsertUser returns the user with the given name, creating it with
// newCardLimit and no password when it does not exist yet.
func (db *DB) UpsertUser(ctx context.Context, name string, newCardLimit int) (*domain.User, error) {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (name, new_card_limit, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, newCardLimit, toMillis(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user %s: %w", name, err)
	}
	return db.FindUserByName(ctx, name)
}

// CreateUser stores a new user with a password. It returns ErrExists when the
// name is taken.
func (db *DB) CreateUser(ctx context.Context, name string, newCardLimit int, passwordHash, passwordSalt []byte) (*domain.User, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (name, new_card_limit, password_hash, password_salt, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, newCardLimit, passwordHash, passwordSalt, toMillis(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", name, err)
	} else if n == 0 {
		return nil, ErrExists
	}
	return db.FindUserByName(ctx, name)
}

// SetPassword replaces a user's password hash and salt.
func (db *DB) SetPassword(ctx context.Context, userID int64, passwordHash, passwordSalt []byte) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE users SET password_hash = ?, password_salt = ? WHERE id = ?`,
		passwordHash, passwordSalt, userID)
	if err != nil {
		return fmt.Errorf("failed to set password for user %d: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindUser returns a user by ID.
func (db *DB) FindUser(ctx context.Context, id int64) (*domain.User, error) {
	var r userRow
	if err := db.conn.GetContext(ctx, &r, userColumns+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user %d: %w", id, err)
	}
	return r.toDomain(), nil
}

// FindUserByName returns a user by name.
func (db *DB) FindUserByName(ctx context.Context, name string) (*domain.User, error) {
	var r userRow
	if err := db.conn.GetContext(ctx, &r, userColumns+` WHERE name = ?`, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user %s: %w", name, err)
	}
	return r.toDomain(), nil
}

// SetNewCardLimit changes a user's daily New-card budget.
func (db *DB) SetNewCardLimit(ctx context.Context, userID int64, limit int) error {
	if _, err := db.conn.ExecContext(ctx, `UPDATE users SET new_card_limit = ? WHERE id = ?`, limit, userID); err != nil {
		return fmt.Errorf("failed to set new card limit for user %d: %w", userID, err)
	}
	return nil
}

// TodayLearnedNewCardCount returns how many New cards the user has reviewed
// since startOfDay, along with the user's daily New-card limit.
func (db *DB) TodayLearnedNewCardCount(ctx context.Context, userID int64, startOfDay time.Time) (todayCount, limit int, err error) {
	user, err := db.FindUser(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	err = db.conn.GetContext(ctx, &todayCount, `
		SELECT COUNT(DISTINCT card_id) FROM revlog
		WHERE user_id = ? AND state = ? AND review >= ?
	`, userID, int(domain.New), toMillis(startOfDay))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count new cards learned by user %d: %w", userID, err)
	}
	return todayCount, user.NewCardLimit, nil
}
