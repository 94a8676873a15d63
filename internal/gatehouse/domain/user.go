package domain

// User is the authentication-context projection of an account, constructed
// transiently per request from token claims. The zero value is the anonymous
// user every unauthenticated request resolves to.
type User struct {
	ID               string
	Role             string
	AuthorizationKey []byte // decrypted; empty for the anonymous user
}

// Anonymous reports whether this is the unauthenticated placeholder.
func (u *User) Anonymous() bool {
	return u.ID == "" && u.Role == ""
}
