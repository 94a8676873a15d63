package domain

import "time"

// Account is the stored identity record. AuthorizationKey is kept sealed
// (AES-GCM under the process master key); it is only decrypted transiently
// to compute or verify token fingerprints.
type Account struct {
	ID               string
	Email            string
	Role             string
	PasswordHash     string // argon2id, PHC encoded
	AuthorizationKey []byte // sealed per-account secret
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
