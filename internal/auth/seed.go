package auth

import "context"

// Role names.
const (
	RoleUser  = "lemonade-stand.user"
	RoleAdmin = "lemonade-stand.admin"
)

// Permission names. Handlers reference these when declaring their guard
// requirements, and the seed grants them to the built-in roles.
const (
	PermMeGet          = "lemonade-stand.me.get"
	PermMyStandsGet    = "lemonade-stand.my.stands.get"
	PermMyStandsCreate = "lemonade-stand.my.stands.create"
	PermMyStandsUpdate = "lemonade-stand.my.stands.update"
	PermMyStandsDelete = "lemonade-stand.my.stands.delete"
	PermMySalesCreate  = "lemonade-stand.my.stands.sales.create"
	PermMySalesGet     = "lemonade-stand.my.stands.sales.get"
	PermMyStatsGet     = "lemonade-stand.my.stands.stats.get"
	PermMyStatsCreate  = "lemonade-stand.my.stands.stats.create"
	PermMyTokensGet    = "lemonade-stand.my.tokens.get"
	PermAdminUsersGet  = "lemonade-stand.admin.users.get"
	PermAdminTokensGet = "lemonade-stand.admin.tokens.get"
)

var seedRoles = map[string][]string{
	RoleUser: {
		PermMeGet,
		PermMyStandsGet,
		PermMyStandsCreate,
		PermMyStandsUpdate,
		PermMyStandsDelete,
		PermMySalesCreate,
		PermMySalesGet,
		PermMyStatsGet,
		PermMyStatsCreate,
		PermMyTokensGet,
	},
	RoleAdmin: {
		PermAdminUsersGet,
		PermAdminTokensGet,
	},
}

// SeedRoles ensures the built-in roles and their permission grants exist.
// Safe to run on every startup.
func SeedRoles(ctx context.Context, roles RoleRepository) error {
	// Fixed order keeps role identifiers stable across fresh databases.
	for _, name := range []string{RoleUser, RoleAdmin} {
		if err := roles.Ensure(ctx, name, seedRoles[name]); err != nil {
			return err
		}
	}
	return nil
}
