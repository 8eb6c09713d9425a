package auth

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/citrusbyte/lemonade-core/internal/infrastructure/logging"
)

// Service drives the token lifecycle: login, issuance, refresh, revocation
// and access validation. All timing comes from the injected clock so expiry
// behaviour is testable without real waits.
type Service struct {
	users      UserRepository
	tokens     TokenRepository
	codec      *Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        *logging.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

func NewService(users UserRepository, tokens TokenRepository, codec *Codec, accessTTL, refreshTTL time.Duration, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Default()
	}
	return &Service{
		users:      users,
		tokens:     tokens,
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		log:        log,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// Register creates an account with the default user role attached.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string, age int) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Age:          age,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := s.users.AssignRole(ctx, user.ID, RoleUser); err != nil {
		return nil, err
	}

	s.log.Info("user registered", "user_id", user.ID)
	return s.users.GetByID(ctx, user.ID)
}

// Login verifies the credentials and issues a fresh token pair. Unknown
// emails and wrong passwords both come back as ErrInvalidCredentials; the
// unknown-email path additionally sleeps a randomised interval so its
// response time resembles a password verification.
func (s *Service) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*TokenPair, *User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.sleep(time.Duration(100+rand.Intn(201)) * time.Millisecond)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.log.Warn("failed login attempt", "user_id", user.ID)
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.IssueTokenPair(ctx, user, ipAddress, userAgent)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("login", "user_id", user.ID)
	return pair, user, nil
}

// IssueTokenPair signs an access/refresh pair for the user and records both
// rows. The access token carries a snapshot of the user's permissions at
// this instant; later role changes do not alter it.
func (s *Service) IssueTokenPair(ctx context.Context, user *User, ipAddress, userAgent string) (*TokenPair, error) {
	pair, record, err := s.signPair(user, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.CreateTokenPair(ctx, record); err != nil {
		return nil, err
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed in the same transaction that records the replacement, so each
// refresh token rotates at most once even under concurrent use.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken, ipAddress, userAgent string) (*TokenPair, error) {
	claims, err := s.codec.DecodeRefresh(rawRefreshToken)
	if err != nil {
		return nil, err
	}

	if _, err := s.tokens.GetUsableRefreshToken(ctx, claims.Subject, rawRefreshToken); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	pair, record, err := s.signPair(user, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.RotateTokenPair(ctx, rawRefreshToken, record); err != nil {
		return nil, err
	}

	s.log.Info("token refreshed", "user_id", user.ID)
	return pair, nil
}

// Revoke consumes a refresh token out of band. Revoking an already consumed
// token succeeds without effect.
func (s *Service) Revoke(ctx context.Context, rawRefreshToken string) error {
	claims, err := s.codec.DecodeRefresh(rawRefreshToken)
	if err != nil {
		return err
	}
	if err := s.tokens.ConsumeRefreshToken(ctx, claims.Subject, rawRefreshToken, s.now()); err != nil {
		return err
	}
	s.log.Info("token revoked", "user_id", claims.Subject)
	return nil
}

// ValidateAccess authenticates a raw access token and checks that its grant
// covers every required permission. On success the resolved user and claims
// are returned for the request context.
func (s *Service) ValidateAccess(ctx context.Context, rawToken string, required []string) (*User, *Claims, error) {
	claims, err := s.codec.DecodeAccess(rawToken)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	record, err := s.tokens.GetAccessToken(ctx, user.ID, rawToken)
	if err != nil {
		return nil, nil, err
	}

	// Expiry is re-checked against the store-held claims even though the
	// codec validated it. A clock that moved between the two reads fails
	// closed here, with the generic credential error.
	if claims.Expired(s.now()) {
		return nil, nil, ErrInvalidCredentials
	}

	// Best effort. A failed touch must not reject an otherwise valid
	// request.
	if err := s.tokens.TouchAccessToken(ctx, record.ID, s.now()); err != nil {
		s.log.Warn("failed to update token last seen", "error", err)
	}

	for _, perm := range required {
		if !containsPermission(claims.Roles, perm) {
			return nil, nil, ErrInvalidPermissions
		}
	}
	return user, claims, nil
}

func (s *Service) signPair(user *User, ipAddress, userAgent string) (*TokenPair, TokenPairRecord, error) {
	now := s.now()

	accessClaims := s.codec.NewAccessClaims(user.ID, uuid.NewString(), PermissionsOf(user), now, s.accessTTL)
	accessToken, err := s.codec.Encode(accessClaims)
	if err != nil {
		return nil, TokenPairRecord{}, err
	}

	refreshClaims := s.codec.NewRefreshClaims(user.ID, uuid.NewString(), now, s.refreshTTL)
	refreshToken, err := s.codec.Encode(refreshClaims)
	if err != nil {
		return nil, TokenPairRecord{}, err
	}

	record := TokenPairRecord{
		UserID:            user.ID,
		IPAddress:         ipAddress,
		UserAgent:         userAgent,
		AccessToken:       accessToken,
		RefreshToken:      refreshToken,
		AccessExpiration:  now.Add(s.accessTTL),
		RefreshExpiration: now.Add(s.refreshTTL),
		IssuedAt:          now,
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, record, nil
}

func containsPermission(granted []string, want string) bool {
	for _, have := range granted {
		if have == want {
			return true
		}
	}
	return false
}
