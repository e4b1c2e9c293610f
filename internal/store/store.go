// Package store persists local user records in Postgres and keeps them in
// sync with reconciled identity accounts via an idempotent upsert-by-email.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by FindByEmail when no user matches.
var ErrNotFound = errors.New("store: user not found")

// DBTX abstracts a pgx pool or transaction so queries run over either.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// User is one local user record. The ID is the durable identifier issued by
// the identity provider at first reconciliation; it never changes afterwards.
type User struct {
	ID                 string
	Name               string
	Email              string
	Role               string
	Phone              string
	Document           string
	Address            string
	Country            string
	City               string
	PlanType           string
	SubscriptionStatus string
	SubscriptionEnd    time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Patch carries the mutable fields applied to an existing user on re-import.
// The durable ID and email key are deliberately absent.
type Patch struct {
	Name               string
	Role               string
	Phone              string
	Document           string
	Address            string
	Country            string
	City               string
	PlanType           string
	SubscriptionStatus string
	SubscriptionEnd    time.Time
}

// Users is the local user store consumed by the pipeline.
type Users interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Insert(ctx context.Context, u *User) error
	Update(ctx context.Context, id string, p Patch) error
}

// PGUsers is the Postgres-backed Users implementation.
type PGUsers struct {
	db DBTX
}

// NewPGUsers returns a Users store over the given pool or transaction.
func NewPGUsers(db DBTX) *PGUsers {
	return &PGUsers{db: db}
}

func (s *PGUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	const q = `
		SELECT id, name, email, role,
		       COALESCE(phone, ''), COALESCE(document, ''),
		       COALESCE(address, ''), COALESCE(country, ''), COALESCE(city, ''),
		       plan_type, subscription_status, subscription_end,
		       created_at, updated_at
		FROM users
		WHERE email = $1`

	var u User
	err := s.db.QueryRow(ctx, q, email).Scan(
		&u.ID, &u.Name, &u.Email, &u.Role,
		&u.Phone, &u.Document,
		&u.Address, &u.Country, &u.City,
		&u.PlanType, &u.SubscriptionStatus, &u.SubscriptionEnd,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &u, nil
}

func (s *PGUsers) Insert(ctx context.Context, u *User) error {
	const q = `
		INSERT INTO users (
			id, name, email, role,
			phone, document, address, country, city,
			plan_type, subscription_status, subscription_end,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''),
			$10, $11, $12,
			now(), now()
		)`

	_, err := s.db.Exec(ctx, q,
		u.ID, u.Name, u.Email, u.Role,
		u.Phone, u.Document, u.Address, u.Country, u.City,
		u.PlanType, u.SubscriptionStatus, u.SubscriptionEnd,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PGUsers) Update(ctx context.Context, id string, p Patch) error {
	const q = `
		UPDATE users SET
			name = $2, role = $3,
			phone = NULLIF($4, ''), document = NULLIF($5, ''),
			address = NULLIF($6, ''), country = NULLIF($7, ''), city = NULLIF($8, ''),
			plan_type = $9, subscription_status = $10, subscription_end = $11,
			updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, q,
		id, p.Name, p.Role,
		p.Phone, p.Document,
		p.Address, p.Country, p.City,
		p.PlanType, p.SubscriptionStatus, p.SubscriptionEnd,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update user %s: %w", id, ErrNotFound)
	}
	return nil
}
