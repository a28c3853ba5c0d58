package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/linklite/apiserver/types"
)

const uniqueViolation = "unique_violation"

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, email, password_hash, bio, avatar, created_at, updated_at`

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// Create inserts the user and fills in the database-assigned id and timestamps.
// A duplicate email yields ErrConflict. When beforeCommit is non-nil it is
// called with the stored record inside the insert transaction; an error from
// it rolls the insert back and is returned unchanged.
func (r *UserRepository) Create(ctx context.Context, user types.User, beforeCommit func(types.User) error) (types.User, error) {
	const query = `
		INSERT INTO users (name, email, password_hash, bio, avatar)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(
			ctx,
			query,
			user.Name,
			user.Email,
			user.PasswordHash,
			user.Bio,
			user.Avatar,
		).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}
		if beforeCommit != nil {
			return beforeCommit(user)
		}
		return nil
	})
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

// UpdateProfile rewrites the mutable profile columns. Email and password are
// not touched.
func (r *UserRepository) UpdateProfile(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		UPDATE users
		SET name = $1,
			bio = $2,
			avatar = $3
		WHERE id = $4
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(
		ctx,
		query,
		user.Name,
		user.Bio,
		user.Avatar,
		user.ID,
	))
}

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	var bio, avatar sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&bio,
		&avatar,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	user.Bio = nullableString(bio)
	user.Avatar = nullableString(avatar)
	return user, nil
}

func nullableString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == uniqueViolation
	}
	return false
}
