// Package auth implements accounts, roles and the token lifecycle: paired
// access/refresh JWTs, single-use refresh rotation, revocation and
// permission-based access checks backed by a SQLite session store.
package auth
