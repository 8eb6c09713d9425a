package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testPair(userID, access, refresh string, issued time.Time) TokenPairRecord {
	return TokenPairRecord{
		UserID:            userID,
		IPAddress:         "127.0.0.1",
		UserAgent:         "go-test",
		AccessToken:       access,
		RefreshToken:      refresh,
		AccessExpiration:  issued.Add(15 * time.Minute),
		RefreshExpiration: issued.Add(30 * 24 * time.Hour),
		IssuedAt:          issued,
	}
}

func TestTokenRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	seedRolesOrFail(t, db)
	svc := testService(t, db)
	user := seedTestUser(t, svc, "ada@example.com")

	repo := NewSQLiteTokenRepository(db.DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := repo.CreateTokenPair(ctx, testPair(user.ID, "acc-1", "ref-1", now)); err != nil {
		t.Fatalf("creating pair: %v", err)
	}

	access, err := repo.GetAccessToken(ctx, user.ID, "acc-1")
	if err != nil {
		t.Fatalf("getting access token: %v", err)
	}
	if access.UserID != user.ID || access.Token != "acc-1" {
		t.Errorf("access = %+v", access)
	}
	if !access.LastSeenAt.Equal(now) {
		t.Errorf("last seen = %v, want issuance time %v", access.LastSeenAt, now)
	}

	refresh, err := repo.GetUsableRefreshToken(ctx, user.ID, "ref-1")
	if err != nil {
		t.Fatalf("getting refresh token: %v", err)
	}
	if refresh.Consumed() {
		t.Error("fresh refresh token reported consumed")
	}
}

func TestTokenRepository_GetAccessTokenScopedToUser(t *testing.T) {
	db := testDB(t)
	seedRolesOrFail(t, db)
	svc := testService(t, db)
	user := seedTestUser(t, svc, "ada@example.com")
	other := seedTestUser(t, svc, "bob@example.com")

	repo := NewSQLiteTokenRepository(db.DB)
	ctx := context.Background()

	if err := repo.CreateTokenPair(ctx, testPair(user.ID, "acc-1", "ref-1", time.Now())); err != nil {
		t.Fatalf("creating pair: %v", err)
	}

	// A row only matches under its owning user.
	if _, err := repo.GetAccessToken(ctx, other.ID, "acc-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("cross-user lookup: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestTokenRepository_RotateConsumesOldToken(t *testing.T) {
	db := testDB(t)
	seedRolesOrFail(t, db)
	svc := testService(t, db)
	user := seedTestUser(t, svc, "ada@example.com")

	repo := NewSQLiteTokenRepository(db.DB)
	ctx := context.Background()
	now := time.Now()

	if err := repo.CreateTokenPair(ctx, testPair(user.ID, "acc-1", "ref-1", now)); err != nil {
		t.Fatalf("creating pair: %v", err)
	}
	if err := repo.RotateTokenPair(ctx, "ref-1", testPair(user.ID, "acc-2", "ref-2", now.Add(time.Minute))); err != nil {
		t.Fatalf("rotating: %v", err)
	}

	if _, err := repo.GetUsableRefreshToken(ctx, user.ID, "ref-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old token usable after rotation: err = %v", err)
	}
	if _, err := repo.GetUsableRefreshToken(ctx, user.ID, "ref-2"); err != nil {
		t.Errorf("new token not usable: %v", err)
	}

	// Second rotation of the same token loses the single-use check and
	// must insert nothing.
	err := repo.RotateTokenPair(ctx, "ref-1", testPair(user.ID, "acc-3", "ref-3", now.Add(2*time.Minute)))
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("reused rotation: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := repo.GetAccessToken(ctx, user.ID, "acc-3"); !errors.Is(err, ErrInvalidCredentials) {
		t.Error("failed rotation left an access token behind")
	}
}

func TestTokenRepository_RotateTombstonesInsteadOfDeleting(t *testing.T) {
	db := testDB(t)
	seedRolesOrFail(t, db)
	svc := testService(t, db)
	user := seedTestUser(t, svc, "ada@example.com")

	repo := NewSQLiteTokenRepository(db.DB)
	ctx := context.Background()

	if err := repo.CreateTokenPair(ctx, testPair(user.ID, "acc-1", "ref-1", time.Now())); err != nil {
		t.Fatalf("creating pair: %v", err)
	}
	if err := repo.RotateTokenPair(ctx, "ref-1", testPair(user.ID, "acc-2", "ref-2", time.Now())); err != nil {
		t.Fatalf("rotating: %v", err)
	}

	records, err := repo.ListRefreshTokens(ctx, user.ID)
	if err != nil {
		t.Fatalf("listing refresh tokens: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("refresh rows = %d, want 2 (old row tombstoned, not deleted)", len(records))
	}
	for _, rec := range records {
		if rec.Token == "ref-1" {
			if !rec.Revoked || rec.LastUsedAt == nil {
				t.Errorf("consumed row = %+v, want revoked with last used set", rec)
			}
		}
	}
}

func TestTokenRepository_ConsumeIsIdempotent(t *testing.T) {
	db := testDB(t)
	seedRolesOrFail(t, db)
	svc := testService(t, db)
	user := seedTestUser(t, svc, "ada@example.com")

	repo := NewSQLiteTokenRepository(db.DB)
	ctx := context.Background()
	first := time.Now().UTC().Truncate(time.Second)

	if err := repo.CreateTokenPair(ctx, testPair(user.ID, "acc-1", "ref-1", first)); err != nil {
		t.Fatalf("creating pair: %v", err)
	}

	if err := repo.ConsumeRefreshToken(ctx, user.ID, "ref-1", first); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if err := repo.ConsumeRefreshToken(ctx, user.ID, "ref-1", first.Add(time.Hour)); err != nil {
		t.Fatalf("second consume: %v", err)
	}

	records, err := repo.ListRefreshTokens(ctx, user.ID)
	if err != nil {
		t.Fatalf("listing refresh tokens: %v", err)
	}
	if len(records) != 1 || records[0].LastUsedAt == nil {
		t.Fatalf("records = %+v", records)
	}
	// The original consumption instant survives the repeat call.
	if !records[0].LastUsedAt.Equal(first) {
		t.Errorf("last used = %v, want %v", records[0].LastUsedAt, first)
	}
}

func TestTokenRepository_TouchAccessToken(t *testing.T) {
	db := testDB(t)
	seedRolesOrFail(t, db)
	svc := testService(t, db)
	user := seedTestUser(t, svc, "ada@example.com")

	repo := NewSQLiteTokenRepository(db.DB)
	ctx := context.Background()
	issued := time.Now().UTC().Truncate(time.Second)

	if err := repo.CreateTokenPair(ctx, testPair(user.ID, "acc-1", "ref-1", issued)); err != nil {
		t.Fatalf("creating pair: %v", err)
	}
	rec, err := repo.GetAccessToken(ctx, user.ID, "acc-1")
	if err != nil {
		t.Fatalf("getting access token: %v", err)
	}

	seen := issued.Add(5 * time.Minute)
	if err := repo.TouchAccessToken(ctx, rec.ID, seen); err != nil {
		t.Fatalf("touching: %v", err)
	}

	rec, err = repo.GetAccessToken(ctx, user.ID, "acc-1")
	if err != nil {
		t.Fatalf("re-getting access token: %v", err)
	}
	if !rec.LastSeenAt.Equal(seen) {
		t.Errorf("last seen = %v, want %v", rec.LastSeenAt, seen)
	}
}

func TestTokenRepository_DuplicateTokenString(t *testing.T) {
	db := testDB(t)
	seedRolesOrFail(t, db)
	svc := testService(t, db)
	user := seedTestUser(t, svc, "ada@example.com")

	repo := NewSQLiteTokenRepository(db.DB)
	ctx := context.Background()

	if err := repo.CreateTokenPair(ctx, testPair(user.ID, "acc-1", "ref-1", time.Now())); err != nil {
		t.Fatalf("creating pair: %v", err)
	}
	err := repo.CreateTokenPair(ctx, testPair(user.ID, "acc-1", "ref-9", time.Now()))
	if !errors.Is(err, ErrTokenConflict) {
		t.Errorf("duplicate token string: err = %v, want ErrTokenConflict", err)
	}
}

func TestTokenRepository_DeleteExpired(t *testing.T) {
	db := testDB(t)
	seedRolesOrFail(t, db)
	svc := testService(t, db)
	user := seedTestUser(t, svc, "ada@example.com")

	repo := NewSQLiteTokenRepository(db.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := testPair(user.ID, "acc-old", "ref-old", now.Add(-60*24*time.Hour))
	if err := repo.CreateTokenPair(ctx, stale); err != nil {
		t.Fatalf("creating stale pair: %v", err)
	}
	if err := repo.CreateTokenPair(ctx, testPair(user.ID, "acc-new", "ref-new", now)); err != nil {
		t.Fatalf("creating fresh pair: %v", err)
	}

	deleted, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("deleting expired: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if _, err := repo.GetAccessToken(ctx, user.ID, "acc-new"); err != nil {
		t.Errorf("fresh access token removed: %v", err)
	}
	if _, err := repo.GetUsableRefreshToken(ctx, user.ID, "ref-new"); err != nil {
		t.Errorf("fresh refresh token removed: %v", err)
	}
}
