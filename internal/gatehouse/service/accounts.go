package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quayside/gatehouse/internal/gatehouse/domain"
	"github.com/quayside/gatehouse/internal/gatehouse/store"
	"github.com/quayside/gatehouse/pkg/cryptox"
	"github.com/quayside/gatehouse/pkg/idx"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

// AccountService handles registration and credential verification.
type AccountService struct {
	Store   store.Store
	Secrets *cryptox.SecretCipher

	Now func() time.Time
}

// Register creates an account with a freshly generated, sealed
// authorization key. The key never leaves the process unencrypted except
// transiently during fingerprint computation.
func (s *AccountService) Register(ctx context.Context, email, password, role string) (domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" || role == "" {
		return domain.Account{}, fmt.Errorf("email, password and role are required")
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}

	authKey, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Account{}, fmt.Errorf("generate authorization key: %w", err)
	}
	sealed, err := s.Secrets.Encrypt([]byte(authKey))
	if err != nil {
		return domain.Account{}, fmt.Errorf("seal authorization key: %w", err)
	}

	acc := domain.Account{
		ID:               idx.New().String(),
		Email:            email,
		Role:             role,
		PasswordHash:     hash,
		AuthorizationKey: sealed,
	}

	if err := s.Store.Accounts().CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Account{}, ErrEmailTaken
		}
		return domain.Account{}, err
	}
	return acc, nil
}

// VerifyCredentials checks an email/password pair and returns the resolved
// user projection with its authorization key unsealed, ready for token
// issuance. Unknown email and wrong password are indistinguishable to the
// caller.
func (s *AccountService) VerifyCredentials(ctx context.Context, email, password string) (*domain.User, error) {
	acc, err := s.Store.Accounts().GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := cryptox.VerifyPassword(password, acc.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	key, err := s.Secrets.Decrypt(acc.AuthorizationKey)
	if err != nil {
		return nil, fmt.Errorf("unseal authorization key: %w", err)
	}

	return &domain.User{ID: acc.ID, Role: acc.Role, AuthorizationKey: key}, nil
}
