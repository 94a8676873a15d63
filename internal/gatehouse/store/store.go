package store

import (
	"context"
	"errors"

	"github.com/quayside/gatehouse/internal/gatehouse/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. The authentication core only
// needs identity lookups, so the surface is deliberately narrow; concrete
// drivers (sqlite today) implement it.
type Store interface {
	Accounts() Accounts

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Accounts interface {
	// GetAccount resolves an identity by id and role together. Token
	// validation looks accounts up this way so a claims role that drifted
	// from the stored one reads as not-found.
	GetAccount(ctx context.Context, id, role string) (domain.Account, error)

	// GetAccountByEmail is used during password login.
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)

	// CreateAccount inserts a new account (id is provided by the app via ULID).
	CreateAccount(ctx context.Context, a domain.Account) error
}
