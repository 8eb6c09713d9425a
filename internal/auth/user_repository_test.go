package auth

import (
	"context"
	"errors"
	"testing"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteUserRepository(db.DB)
	ctx := context.Background()

	user := &User{
		Email:        "Ada@Example.com",
		PasswordHash: "$argon2id$fake",
		FirstName:    "Ada",
		LastName:     "Citrus",
		Age:          29,
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	if user.ID == "" {
		t.Fatal("no identifier assigned")
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("getting user: %v", err)
	}
	if got.Email != "ada@example.com" {
		t.Errorf("email = %q, want lowercased ada@example.com", got.Email)
	}

	// Lookup is case-insensitive either way.
	if _, err := repo.GetByEmail(ctx, "ADA@EXAMPLE.COM"); err != nil {
		t.Errorf("case-insensitive lookup: %v", err)
	}
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteUserRepository(db.DB)
	ctx := context.Background()

	first := &User{Email: "ada@example.com", PasswordHash: "h", FirstName: "Ada", LastName: "C", Age: 29}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	dup := &User{Email: "Ada@example.com", PasswordHash: "h", FirstName: "Other", LastName: "C", Age: 30}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate email: err = %v, want ErrUserExists", err)
	}
}

func TestUserRepository_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteUserRepository(db.DB)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "usr-missing0"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID: err = %v, want ErrUserNotFound", err)
	}
	if _, err := repo.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByEmail: err = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_RolesLoadOrdered(t *testing.T) {
	db := testDB(t)
	seedRolesOrFail(t, db)
	users := NewSQLiteUserRepository(db.DB)
	ctx := context.Background()

	user := &User{Email: "ada@example.com", PasswordHash: "h", FirstName: "Ada", LastName: "C", Age: 29}
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	if err := users.AssignRole(ctx, user.ID, RoleAdmin); err != nil {
		t.Fatalf("assigning admin: %v", err)
	}
	if err := users.AssignRole(ctx, user.ID, RoleUser); err != nil {
		t.Fatalf("assigning user role: %v", err)
	}
	// Repeat assignment is a no-op.
	if err := users.AssignRole(ctx, user.ID, RoleUser); err != nil {
		t.Fatalf("re-assigning user role: %v", err)
	}

	got, err := users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("getting user: %v", err)
	}
	if len(got.Roles) != 2 {
		t.Fatalf("roles = %d, want 2", len(got.Roles))
	}
	// Seed order puts the user role before admin regardless of assignment
	// order.
	if got.Roles[0].Name != RoleUser || got.Roles[1].Name != RoleAdmin {
		t.Errorf("role order = [%s %s]", got.Roles[0].Name, got.Roles[1].Name)
	}
	if len(got.Roles[0].Permissions) == 0 {
		t.Error("user role has no permissions loaded")
	}

	perms := PermissionsOf(got)
	want := len(got.Roles[0].Permissions) + len(got.Roles[1].Permissions)
	if len(perms) != want {
		t.Errorf("flattened permissions = %d, want %d", len(perms), want)
	}
	if perms[0] != PermMeGet {
		t.Errorf("first permission = %q, want %q", perms[0], PermMeGet)
	}
}

func TestUserRepository_AssignUnknownRole(t *testing.T) {
	db := testDB(t)
	users := NewSQLiteUserRepository(db.DB)
	ctx := context.Background()

	user := &User{Email: "ada@example.com", PasswordHash: "h", FirstName: "Ada", LastName: "C", Age: 29}
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	if err := users.AssignRole(ctx, user.ID, "no-such-role"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("err = %v, want ErrRoleNotFound", err)
	}
}

func TestUserRepository_List(t *testing.T) {
	db := testDB(t)
	users := NewSQLiteUserRepository(db.DB)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		u := &User{Email: email, PasswordHash: "h", FirstName: "X", LastName: "Y", Age: 20}
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("creating %s: %v", email, err)
		}
	}

	all, err := users.List(ctx)
	if err != nil {
		t.Fatalf("listing users: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("users = %d, want 3", len(all))
	}
}

func TestRoleRepository_SeedIsIdempotent(t *testing.T) {
	db := testDB(t)
	roles := NewSQLiteRoleRepository(db.DB)
	ctx := context.Background()

	if err := SeedRoles(ctx, roles); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if err := SeedRoles(ctx, roles); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	all, err := roles.List(ctx)
	if err != nil {
		t.Fatalf("listing roles: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("roles = %d, want 2", len(all))
	}

	userRole, err := roles.GetByName(ctx, RoleUser)
	if err != nil {
		t.Fatalf("getting user role: %v", err)
	}
	if len(userRole.Permissions) != len(seedRoles[RoleUser]) {
		t.Errorf("user role permissions = %d, want %d", len(userRole.Permissions), len(seedRoles[RoleUser]))
	}

	if _, err := roles.GetByName(ctx, "no-such-role"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("err = %v, want ErrRoleNotFound", err)
	}
}
