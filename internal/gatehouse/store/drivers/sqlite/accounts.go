package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quayside/gatehouse/internal/gatehouse/domain"
)

type accountsRepo struct {
	db *sql.DB
}

func (r *accountsRepo) GetAccount(ctx context.Context, id, role string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, role, password_hash, authorization_key, created_at, updated_at
		FROM accounts
		WHERE id = ? AND role = ?`,
		id, role,
	)
	return scanAccount(row)
}

func (r *accountsRepo) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, role, password_hash, authorization_key, created_at, updated_at
		FROM accounts
		WHERE email = ?`,
		email,
	)
	return scanAccount(row)
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, role, password_hash, authorization_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.Role, a.PasswordHash, a.AuthorizationKey, now, now,
	)
	return mapConstraint(err)
}

func scanAccount(row *sql.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Role,
		&a.PasswordHash,
		&a.AuthorizationKey,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return a, nil
}
