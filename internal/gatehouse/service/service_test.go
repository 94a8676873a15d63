package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quayside/gatehouse/internal/gatehouse/domain"
	"github.com/quayside/gatehouse/internal/gatehouse/store"
	"github.com/quayside/gatehouse/pkg/cryptox"
	"github.com/quayside/gatehouse/pkg/idx"
	"github.com/quayside/gatehouse/pkg/jwtx"
)

const (
	testIssuer = "api.example.com"
	testOrigin = "https://app.example.com"
)

var testOrigins = []string{testOrigin, "https://admin.example.com"}

// memStore is an in-memory store.Store for service tests; the sqlite driver
// has its own coverage.
type memStore struct {
	accounts map[string]domain.Account // keyed by id
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]domain.Account)}
}

func (m *memStore) Accounts() store.Accounts   { return m }
func (m *memStore) ApplyMigrations() error     { return nil }
func (m *memStore) Close() error               { return nil }
func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) GetAccount(_ context.Context, id, role string) (domain.Account, error) {
	acc, ok := m.accounts[id]
	if !ok || acc.Role != role {
		return domain.Account{}, store.ErrNotFound
	}
	return acc, nil
}

func (m *memStore) GetAccountByEmail(_ context.Context, email string) (domain.Account, error) {
	for _, acc := range m.accounts {
		if acc.Email == email {
			return acc, nil
		}
	}
	return domain.Account{}, store.ErrNotFound
}

func (m *memStore) CreateAccount(_ context.Context, a domain.Account) error {
	for _, acc := range m.accounts {
		if acc.Email == a.Email {
			return store.ErrAlreadyExists
		}
	}
	m.accounts[a.ID] = a
	return nil
}

// testEnv wires a full authentication core around the in-memory store with
// an adjustable clock.
type testEnv struct {
	store   *memStore
	secrets *cryptox.SecretCipher
	binder  *cryptox.Binder

	tokens   *TokenService
	auth     *Authenticator
	sessions *Sessions

	clock time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	accessCodec, err := jwtx.NewHMACCodec("HS256", []byte("test-access-secret"))
	require.NoError(t, err)
	refreshCodec, err := jwtx.NewHMACCodec("HS512", []byte("test-refresh-secret"))
	require.NoError(t, err)

	binder, err := cryptox.NewBinder("sha256")
	require.NoError(t, err)
	secrets, err := cryptox.NewSecretCipher([]byte("test-master-key"))
	require.NoError(t, err)

	env := &testEnv{
		store:   newMemStore(),
		secrets: secrets,
		binder:  binder,
		clock:   time.Unix(1000, 0),
	}
	now := func() time.Time { return env.clock }

	// The codecs classify expiry at decode time with their own clock, so
	// they need the fake one too.
	accessCodec.Now = now
	refreshCodec.Now = now

	env.tokens = &TokenService{
		AccessCodec:  accessCodec,
		RefreshCodec: refreshCodec,
		Binder:       binder,
		Issuer:       testIssuer,
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   24 * time.Hour,
		Now:          now,
	}
	env.auth = &Authenticator{
		AccessCodec:    accessCodec,
		RefreshCodec:   refreshCodec,
		Binder:         binder,
		Secrets:        secrets,
		Store:          env.store,
		Issuer:         testIssuer,
		AllowedOrigins: testOrigins,
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     24 * time.Hour,
		Now:            now,
	}
	env.sessions = &Sessions{Tokens: env.tokens, Auth: env.auth, Now: now}

	return env
}

// seedUser stores an account and returns its user projection with the
// authorization key unsealed, as VerifyCredentials would hand it out.
func (env *testEnv) seedUser(t *testing.T, id, role string) *domain.User {
	t.Helper()

	key := []byte("authorization-key-" + id)
	sealed, err := env.secrets.Encrypt(key)
	require.NoError(t, err)

	env.store.accounts[id] = domain.Account{
		ID:               id,
		Email:            id + "@example.com",
		Role:             role,
		AuthorizationKey: sealed,
	}
	return &domain.User{ID: id, Role: role, AuthorizationKey: key}
}

// request builds the request-context view of a session the way the
// transport layer would, observed at the env's current clock.
func (env *testEnv) request(sess *Session) *Request {
	req := &Request{
		ID:            idx.NewAt(env.clock),
		Origin:        testOrigin,
		ContextCookie: sess.Cookie,
		AccessToken:   sess.Access.Raw,
		ClientIP:      "203.0.113.7",
		SeenAt:        env.clock,
	}
	if sess.Refresh != nil {
		req.RefreshToken = sess.Refresh.Raw
	}
	return req
}
