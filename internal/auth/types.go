package auth

import (
	"errors"
	"time"
)

// User represents a registered account. Roles are loaded eagerly so the
// permission snapshot can be computed at token issuance without further
// queries.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Age          int       `json:"age"`
	Roles        []Role    `json:"roles,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Role is a named bundle of permissions assignable to users.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission is a namespaced capability string, e.g. "lemonade-stand.me.get".
type Permission struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AccessTokenRecord is the stored session record for an issued access token.
// Rows are immutable except LastSeenAt, which is updated on each successful
// validation.
type AccessTokenRecord struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"userId"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	Token      string    `json:"token"`
	Expiration time.Time `json:"expiration"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// RefreshTokenRecord is the stored session record for an issued refresh token.
// A record transitions at most once from unused to consumed (revoked with
// LastUsedAt set) and is otherwise immutable.
type RefreshTokenRecord struct {
	ID         int64      `json:"id"`
	UserID     string     `json:"userId"`
	IPAddress  string     `json:"ipAddress"`
	UserAgent  string     `json:"userAgent"`
	Token      string     `json:"token"`
	Revoked    bool       `json:"revoked"`
	Expiration time.Time  `json:"expiration"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"` // nil means not yet consumed
}

// Consumed reports whether the refresh token can never validate again.
func (r *RefreshTokenRecord) Consumed() bool {
	return r.Revoked || r.LastUsedAt != nil
}

// TokenPair is an access/refresh token pair returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// PermissionsOf flattens the user's roles into the ordered permission-name
// list granted at token issuance. Duplicates from overlapping roles are kept
// as-is; the guard's subset check is unaffected by them.
func PermissionsOf(user *User) []string {
	var names []string
	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			names = append(names, perm.Name)
		}
	}
	return names
}

// Sentinel errors for auth operations.
var (
	// ErrInvalidCredentials covers bad passwords, unknown users, and
	// missing, malformed, stale or reused tokens. Deliberately coarse so
	// responses don't reveal which check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredToken is returned only from the raw codec decode path when
	// the signature is valid but the expiry has passed.
	ErrExpiredToken = errors.New("token has expired")

	// ErrInvalidPermissions means the caller is authenticated but the token
	// grant does not cover the required permissions.
	ErrInvalidPermissions = errors.New("invalid permissions")

	// ErrUserExists is returned when registration hits the unique email
	// constraint.
	ErrUserExists = errors.New("user already exists")

	// ErrUserNotFound is returned by user lookups with no match.
	ErrUserNotFound = errors.New("user not found")

	// ErrRoleNotFound is returned when a named role is missing, which
	// indicates the role seed has not run.
	ErrRoleNotFound = errors.New("role not found")

	// ErrTokenConflict is returned when persisting a token pair loses a
	// uniqueness race. Callers map it to a generic bad-request outcome.
	ErrTokenConflict = errors.New("token conflict")
)
