package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/citrusbyte/lemonade-core/internal/infrastructure/database"
	_ "github.com/citrusbyte/lemonade-core/migrations"
)

const (
	testSecret   = "test-signing-secret-0123456789abcdef"
	testIssuer   = "lemonade-core"
	testAudience = "lemonade-stand"
)

// testDB opens a migrated temp-file database that is cleaned up with the
// test.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "lemonade.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func testCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec(testSecret, testIssuer, testAudience, "HS256")
	if err != nil {
		t.Fatalf("creating codec: %v", err)
	}
	return codec
}

// testService wires a Service over the given database with short TTLs and
// no login delay.
func testService(t *testing.T, db *database.DB) *Service {
	t.Helper()

	svc := NewService(
		NewSQLiteUserRepository(db.DB),
		NewSQLiteTokenRepository(db.DB),
		testCodec(t),
		15*time.Minute,
		30*24*time.Hour,
		nil,
	)
	svc.sleep = func(time.Duration) {}
	return svc
}

// seedTestUser registers a user through the service so roles and password
// hashing match production; the seed roles must exist first.
func seedTestUser(t *testing.T, svc *Service, email string) *User {
	t.Helper()

	user, err := svc.Register(context.Background(), email, "hunter2!", "Ada", "Citrus", 29)
	if err != nil {
		t.Fatalf("registering test user: %v", err)
	}
	return user
}

func seedRolesOrFail(t *testing.T, db *database.DB) {
	t.Helper()
	if err := SeedRoles(context.Background(), NewSQLiteRoleRepository(db.DB)); err != nil {
		t.Fatalf("seeding roles: %v", err)
	}
}
