package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload for both token kinds. The token identifier is
// carried under the non-standard "jwtid" key rather than the registered
// "jti", and the roles claim is present on access tokens only.
type Claims struct {
	Subject   string   `json:"sub"`
	Issuer    string   `json:"iss"`
	Audience  string   `json:"aud"`
	ExpiresAt int64    `json:"exp"`
	IssuedAt  int64    `json:"iat"`
	TokenID   string   `json:"jwtid"`
	Roles     []string `json:"roles,omitempty"`
}

// jwt.Claims implementation so the library validator covers exp, iss and aud.

func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	if c.ExpiresAt == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	if c.IssuedAt == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

func (c *Claims) GetIssuer() (string, error) { return c.Issuer, nil }

func (c *Claims) GetSubject() (string, error) { return c.Subject, nil }

func (c *Claims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

// Expired reports whether the claim expiry is strictly before now. The codec
// already rejects exp <= now; this is the independent re-check used after a
// session-store hit.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt < now.Unix()
}

// Codec signs and verifies token strings. All configuration is injected once
// at construction; the codec itself reads nothing from the environment.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	method   jwt.SigningMethod

	// timeFunc overrides the clock used for expiry validation. Nil means
	// time.Now; tests pin it to exercise exact boundaries.
	timeFunc func() time.Time
}

// signingMethods maps the configurable algorithm names to their HMAC
// implementations. Asymmetric algorithms are not supported.
var signingMethods = map[string]jwt.SigningMethod{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// NewCodec builds a Codec for the given signing algorithm.
func NewCodec(secret, issuer, audience, algorithm string) (*Codec, error) {
	method, ok := signingMethods[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	if secret == "" {
		return nil, errors.New("signing secret is empty")
	}
	return &Codec{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		method:   method,
	}, nil
}

// NewAccessClaims assembles the claim set for an access token issued at now.
func (c *Codec) NewAccessClaims(userID, tokenID string, roles []string, now time.Time, ttl time.Duration) *Claims {
	claims := c.newClaims(userID, tokenID, now, ttl)
	claims.Roles = roles
	if claims.Roles == nil {
		claims.Roles = []string{}
	}
	return claims
}

// NewRefreshClaims assembles the claim set for a refresh token issued at now.
func (c *Codec) NewRefreshClaims(userID, tokenID string, now time.Time, ttl time.Duration) *Claims {
	return c.newClaims(userID, tokenID, now, ttl)
}

func (c *Codec) newClaims(userID, tokenID string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		Subject:   userID,
		Issuer:    c.issuer,
		Audience:  c.audience,
		ExpiresAt: now.Add(ttl).Unix(),
		IssuedAt:  now.Unix(),
		TokenID:   tokenID,
	}
}

// Encode signs the claims into a compact token string.
func (c *Codec) Encode(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(c.method, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// DecodeAccess verifies an access token string and returns its claims. The
// roles claim must be present; a refresh token presented here is rejected.
func (c *Codec) DecodeAccess(raw string) (*Claims, error) {
	claims, err := c.decode(raw)
	if err != nil {
		return nil, err
	}
	if claims.Roles == nil {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

// DecodeRefresh verifies a refresh token string and returns its claims. A
// token carrying a roles claim is not a refresh token and is rejected.
func (c *Codec) DecodeRefresh(raw string) (*Claims, error) {
	claims, err := c.decode(raw)
	if err != nil {
		return nil, err
	}
	if claims.Roles != nil {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

// decode verifies signature, algorithm, expiry, issuer and audience. Expiry
// failure is the only condition surfaced distinctly; every other defect
// collapses into ErrInvalidCredentials.
func (c *Codec) decode(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
	}
	if c.timeFunc != nil {
		opts = append(opts, jwt.WithTimeFunc(c.timeFunc))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidCredentials
	}
	if claims.Subject == "" || claims.TokenID == "" {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}
