package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TokenPairRecord carries the values persisted for a newly issued pair.
// Both rows share the issuance instant and request metadata.
type TokenPairRecord struct {
	UserID            string
	IPAddress         string
	UserAgent         string
	AccessToken       string
	RefreshToken      string
	AccessExpiration  time.Time
	RefreshExpiration time.Time
	IssuedAt          time.Time
}

// TokenRepository is the session store for issued token pairs. Refresh rows
// are tombstoned, never deleted, so a reused token stays detectable for the
// life of the row.
type TokenRepository interface {
	// CreateTokenPair inserts the access and refresh rows atomically.
	CreateTokenPair(ctx context.Context, pair TokenPairRecord) error

	// RotateTokenPair consumes the old refresh token and inserts the new
	// pair in one transaction. When the old token was already consumed,
	// revoked or absent it returns ErrInvalidCredentials and inserts
	// nothing; concurrent refreshes of the same token serialise here and
	// exactly one wins.
	RotateTokenPair(ctx context.Context, oldRefreshToken string, pair TokenPairRecord) error

	// GetAccessToken finds the stored row for a raw access token scoped to
	// the given user. Returns ErrInvalidCredentials when absent.
	GetAccessToken(ctx context.Context, userID, token string) (*AccessTokenRecord, error)

	// GetUsableRefreshToken finds an unconsumed, unrevoked refresh row.
	// Returns ErrInvalidCredentials when no such row exists.
	GetUsableRefreshToken(ctx context.Context, userID, token string) (*RefreshTokenRecord, error)

	// ConsumeRefreshToken tombstones a refresh row regardless of state.
	// Already consumed rows are left as they are.
	ConsumeRefreshToken(ctx context.Context, userID, token string, now time.Time) error

	// TouchAccessToken updates the row's last seen timestamp.
	TouchAccessToken(ctx context.Context, id int64, now time.Time) error

	// ListAccessTokens returns the user's access token rows, newest first.
	ListAccessTokens(ctx context.Context, userID string) ([]*AccessTokenRecord, error)

	// ListRefreshTokens returns the user's refresh token rows, newest first.
	ListRefreshTokens(ctx context.Context, userID string) ([]*RefreshTokenRecord, error)

	// DeleteExpired removes access rows past their expiry and consumed or
	// expired refresh rows. Returns the number of rows removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteTokenRepository is the SQLite-backed TokenRepository.
type SQLiteTokenRepository struct {
	db *sql.DB
}

func NewSQLiteTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

func (r *SQLiteTokenRepository) CreateTokenPair(ctx context.Context, pair TokenPairRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertTokenPair(ctx, tx, pair); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteTokenRepository) RotateTokenPair(ctx context.Context, oldRefreshToken string, pair TokenPairRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// The guarded update is the authoritative single-use check. Zero rows
	// means the token was never issued, already rotated or revoked.
	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, last_used_at = ?
		WHERE user_id = ? AND token = ? AND revoked = 0 AND last_used_at IS NULL`,
		formatTime(pair.IssuedAt), pair.UserID, oldRefreshToken)
	if err != nil {
		return fmt.Errorf("consuming refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consuming refresh token: %w", err)
	}
	if affected == 0 {
		return ErrInvalidCredentials
	}

	if err := insertTokenPair(ctx, tx, pair); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTokenPair(ctx context.Context, tx *sql.Tx, pair TokenPairRecord) error {
	issued := formatTime(pair.IssuedAt)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO access_tokens (user_id, ip_address, user_agent, token, expiration, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pair.UserID, pair.IPAddress, pair.UserAgent, pair.AccessToken,
		formatTime(pair.AccessExpiration), issued, issued)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTokenConflict
		}
		return fmt.Errorf("inserting access token: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, ip_address, user_agent, token, revoked, expiration, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		pair.UserID, pair.IPAddress, pair.UserAgent, pair.RefreshToken,
		formatTime(pair.RefreshExpiration), issued)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTokenConflict
		}
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	return nil
}

func (r *SQLiteTokenRepository) GetAccessToken(ctx context.Context, userID, token string) (*AccessTokenRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, ip_address, user_agent, token, expiration, created_at, last_seen_at
		FROM access_tokens WHERE user_id = ? AND token = ?`,
		userID, token)

	rec, err := scanAccessToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("querying access token: %w", err)
	}
	return rec, nil
}

func (r *SQLiteTokenRepository) GetUsableRefreshToken(ctx context.Context, userID, token string) (*RefreshTokenRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, ip_address, user_agent, token, revoked, expiration, created_at, last_used_at
		FROM refresh_tokens
		WHERE user_id = ? AND token = ? AND revoked = 0 AND last_used_at IS NULL`,
		userID, token)

	rec, err := scanRefreshToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("querying refresh token: %w", err)
	}
	return rec, nil
}

func (r *SQLiteTokenRepository) ConsumeRefreshToken(ctx context.Context, userID, token string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, last_used_at = COALESCE(last_used_at, ?)
		WHERE user_id = ? AND token = ?`,
		formatTime(now), userID, token)
	if err != nil {
		return fmt.Errorf("consuming refresh token: %w", err)
	}
	return nil
}

func (r *SQLiteTokenRepository) TouchAccessToken(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE access_tokens SET last_seen_at = ? WHERE id = ?`,
		formatTime(now), id)
	if err != nil {
		return fmt.Errorf("updating last seen: %w", err)
	}
	return nil
}

func (r *SQLiteTokenRepository) ListAccessTokens(ctx context.Context, userID string) ([]*AccessTokenRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, ip_address, user_agent, token, expiration, created_at, last_seen_at
		FROM access_tokens WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("listing access tokens: %w", err)
	}
	defer rows.Close()

	var records []*AccessTokenRecord
	for rows.Next() {
		rec, err := scanAccessToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning access token: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *SQLiteTokenRepository) ListRefreshTokens(ctx context.Context, userID string) ([]*RefreshTokenRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, ip_address, user_agent, token, revoked, expiration, created_at, last_used_at
		FROM refresh_tokens WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}
	defer rows.Close()

	var records []*RefreshTokenRecord
	for rows.Next() {
		rec, err := scanRefreshToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning refresh token: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := formatTime(now)

	var total int64
	res, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE expiration < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired access tokens: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE expiration < ? OR revoked = 1 OR last_used_at IS NOT NULL`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired refresh tokens: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	return total, nil
}

func scanAccessToken(s scanner) (*AccessTokenRecord, error) {
	var (
		rec                              AccessTokenRecord
		expiration, createdAt, lastSeen string
	)
	err := s.Scan(&rec.ID, &rec.UserID, &rec.IPAddress, &rec.UserAgent, &rec.Token,
		&expiration, &createdAt, &lastSeen)
	if err != nil {
		return nil, err
	}
	rec.Expiration = parseTime(expiration)
	rec.CreatedAt = parseTime(createdAt)
	rec.LastSeenAt = parseTime(lastSeen)
	return &rec, nil
}

func scanRefreshToken(s scanner) (*RefreshTokenRecord, error) {
	var (
		rec                   RefreshTokenRecord
		revoked               int
		expiration, createdAt string
		lastUsed              sql.NullString
	)
	err := s.Scan(&rec.ID, &rec.UserID, &rec.IPAddress, &rec.UserAgent, &rec.Token,
		&revoked, &expiration, &createdAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	rec.Revoked = revoked != 0
	rec.Expiration = parseTime(expiration)
	rec.CreatedAt = parseTime(createdAt)
	if lastUsed.Valid {
		t := parseTime(lastUsed.String)
		rec.LastUsedAt = &t
	}
	return &rec, nil
}
