package stand

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository persists lemonade stands and their sales. Stand reads and
// writes are scoped to the owning user; discovery by location is the one
// cross-owner read.
type Repository interface {
	Create(ctx context.Context, s *LemonadeStand) error
	GetByOwnerAndID(ctx context.Context, ownerID string, id int64) (*LemonadeStand, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*LemonadeStand, error)
	Update(ctx context.Context, s *LemonadeStand) error
	Delete(ctx context.Context, ownerID string, id int64) error

	CreateSale(ctx context.Context, sale *Sale) error
	ListSales(ctx context.Context, standID int64) ([]*Sale, error)
	ListSalesByOwner(ctx context.Context, ownerID string) ([]*Sale, error)
	StatsFor(ctx context.Context, standID int64) (*Stats, error)

	// Nearby returns stands within radiusMeters of the point, closest
	// first, at most limit of them.
	Nearby(ctx context.Context, lon, lat, radiusMeters float64, limit int) ([]*NearbyStand, error)
}

// SQLiteRepository is the SQLite-backed Repository.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, s *LemonadeStand) error {
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Currency == "" {
		s.Currency = "USD"
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO lemonade_stands (name, owner_id, longitude, latitude, currency, current_price_in_micros, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.OwnerID, s.Longitude, s.Latitude, s.Currency, s.CurrentPriceInMicros,
		formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrStandExists
		}
		return fmt.Errorf("inserting stand: %w", err)
	}

	s.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading stand id: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByOwnerAndID(ctx context.Context, ownerID string, id int64) (*LemonadeStand, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, longitude, latitude, currency, current_price_in_micros, created_at, updated_at
		FROM lemonade_stands WHERE owner_id = ? AND id = ?`,
		ownerID, id)

	s, err := scanStand(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStandNotFound
		}
		return nil, fmt.Errorf("querying stand: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*LemonadeStand, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, owner_id, longitude, latitude, currency, current_price_in_micros, created_at, updated_at
		FROM lemonade_stands WHERE owner_id = ? ORDER BY id`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing stands: %w", err)
	}
	defer rows.Close()

	var stands []*LemonadeStand
	for rows.Next() {
		s, err := scanStand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stand: %w", err)
		}
		stands = append(stands, s)
	}
	return stands, rows.Err()
}

func (r *SQLiteRepository) Update(ctx context.Context, s *LemonadeStand) error {
	s.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE lemonade_stands
		SET name = ?, longitude = ?, latitude = ?, currency = ?, current_price_in_micros = ?, updated_at = ?
		WHERE owner_id = ? AND id = ?`,
		s.Name, s.Longitude, s.Latitude, s.Currency, s.CurrentPriceInMicros,
		formatTime(s.UpdatedAt), s.OwnerID, s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrStandExists
		}
		return fmt.Errorf("updating stand: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating stand: %w", err)
	}
	if affected == 0 {
		return ErrStandNotFound
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, ownerID string, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM lemonade_stands WHERE owner_id = ? AND id = ?`,
		ownerID, id)
	if err != nil {
		return fmt.Errorf("deleting stand: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting stand: %w", err)
	}
	if affected == 0 {
		return ErrStandNotFound
	}
	return nil
}

func (r *SQLiteRepository) CreateSale(ctx context.Context, sale *Sale) error {
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO lemonade_stand_sales (lemonade_stand_id, date, currency, price_in_micros)
		VALUES (?, ?, ?, ?)`,
		sale.LemonadeStandID, formatTime(sale.Date), sale.Currency, sale.PriceInMicros)
	if err != nil {
		return fmt.Errorf("inserting sale: %w", err)
	}

	sale.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading sale id: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListSales(ctx context.Context, standID int64) ([]*Sale, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, lemonade_stand_id, date, currency, price_in_micros
		FROM lemonade_stand_sales WHERE lemonade_stand_id = ? ORDER BY date DESC, id DESC`,
		standID)
	if err != nil {
		return nil, fmt.Errorf("listing sales: %w", err)
	}
	defer rows.Close()

	var sales []*Sale
	for rows.Next() {
		var (
			sale Sale
			date string
		)
		if err := rows.Scan(&sale.ID, &sale.LemonadeStandID, &date, &sale.Currency, &sale.PriceInMicros); err != nil {
			return nil, fmt.Errorf("scanning sale: %w", err)
		}
		sale.Date = parseTime(date)
		sales = append(sales, &sale)
	}
	return sales, rows.Err()
}

// ListSalesByOwner returns sales across all of one owner's stands.
func (r *SQLiteRepository) ListSalesByOwner(ctx context.Context, ownerID string) ([]*Sale, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.lemonade_stand_id, s.date, s.currency, s.price_in_micros
		FROM lemonade_stand_sales s
		JOIN lemonade_stands ls ON ls.id = s.lemonade_stand_id
		WHERE ls.owner_id = ? ORDER BY s.date DESC, s.id DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing sales by owner: %w", err)
	}
	defer rows.Close()

	var sales []*Sale
	for rows.Next() {
		var (
			sale Sale
			date string
		)
		if err := rows.Scan(&sale.ID, &sale.LemonadeStandID, &date, &sale.Currency, &sale.PriceInMicros); err != nil {
			return nil, fmt.Errorf("scanning sale: %w", err)
		}
		sale.Date = parseTime(date)
		sales = append(sales, &sale)
	}
	return sales, rows.Err()
}

func (r *SQLiteRepository) StatsFor(ctx context.Context, standID int64) (*Stats, error) {
	stats := &Stats{LemonadeStandID: standID}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(price_in_micros), 0)
		FROM lemonade_stand_sales WHERE lemonade_stand_id = ?`,
		standID).Scan(&stats.SaleCount, &stats.RevenueInMicros)
	if err != nil {
		return nil, fmt.Errorf("aggregating sales: %w", err)
	}
	return stats, nil
}

// Nearby prefilters candidates with a bounding-box index scan and re-checks
// each with the exact great-circle distance.
func (r *SQLiteRepository) Nearby(ctx context.Context, lon, lat, radiusMeters float64, limit int) ([]*NearbyStand, error) {
	minLon, maxLon, minLat, maxLat := boundingBox(lon, lat, radiusMeters)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, owner_id, longitude, latitude, currency, current_price_in_micros, created_at, updated_at
		FROM lemonade_stands
		WHERE longitude BETWEEN ? AND ? AND latitude BETWEEN ? AND ?`,
		minLon, maxLon, minLat, maxLat)
	if err != nil {
		return nil, fmt.Errorf("querying nearby stands: %w", err)
	}
	defer rows.Close()

	var nearby []*NearbyStand
	for rows.Next() {
		s, err := scanStand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stand: %w", err)
		}
		distance := haversineMeters(lon, lat, s.Longitude, s.Latitude)
		if distance <= radiusMeters {
			nearby = append(nearby, &NearbyStand{LemonadeStand: *s, DistanceMeters: distance})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(nearby, func(i, j int) bool { return nearby[i].DistanceMeters < nearby[j].DistanceMeters })
	if limit > 0 && len(nearby) > limit {
		nearby = nearby[:limit]
	}
	return nearby, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStand(s scanner) (*LemonadeStand, error) {
	var (
		stand              LemonadeStand
		createdAt, updated string
	)
	err := s.Scan(&stand.ID, &stand.Name, &stand.OwnerID, &stand.Longitude, &stand.Latitude,
		&stand.Currency, &stand.CurrentPriceInMicros, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	stand.CreatedAt = parseTime(createdAt)
	stand.UpdatedAt = parseTime(updated)
	return &stand, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
