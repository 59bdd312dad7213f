package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/MikroWizard/mikroman/internal/models"
)

// ErrUserNotFound is returned when no credential row matches the username.
var ErrUserNotFound = errors.New("user not found")

// UserRepo reads credential rows.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetByUsername resolves the RADIUS User-Name to a stored credential.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, COALESCE(hash,''), created FROM users WHERE username=$1`,
		username,
	).Scan(&u.ID, &u.Username, &u.NTHash, &u.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
