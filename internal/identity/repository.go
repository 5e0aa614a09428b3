package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	UpdateDisplayName(ctx context.Context, id string, name *string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, phone_number, name, created_at, last_login)
        VALUES ($1, $2, $3, $4, $5)`, userID, user.Phone, user.DisplayName, user.CreatedAt.UTC(), user.LastLoginAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrUserExists
	}
	return err
}

// FindByPhone fetches a user by normalized phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT id, phone_number, name, created_at, last_login FROM users WHERE phone_number = $1`, phone)
	return scanUser(row)
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, phone_number, name, created_at, last_login FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// TouchLogin records the time of the latest successful login.
func (r *PostgresRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, id, at.UTC())
}

// UpdateDisplayName sets or clears the optional display name.
func (r *PostgresRepository) UpdateDisplayName(ctx context.Context, id string, name *string) error {
	return r.update(ctx, `UPDATE users SET name = $1 WHERE id = $2`, id, name)
}

func (r *PostgresRepository) update(ctx context.Context, query, id string, value any) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}
	cmd, err := r.db.Exec(ctx, query, value, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id   uuid.UUID
		user User
	)
	if err := row.Scan(&id, &user.Phone, &user.DisplayName, &user.CreatedAt, &user.LastLoginAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	user.CreatedAt = user.CreatedAt.UTC()
	user.LastLoginAt = user.LastLoginAt.UTC()
	return user, nil
}
