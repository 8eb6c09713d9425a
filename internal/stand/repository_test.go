package stand

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/citrusbyte/lemonade-core/internal/infrastructure/database"
	_ "github.com/citrusbyte/lemonade-core/migrations"
)

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

// seedOwner inserts a bare user row to satisfy the ownership constraint.
func seedOwner(t *testing.T, db *database.DB, id string) string {
	t.Helper()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO users (id, email, password_hash, first_name, last_name, age, created_at, updated_at)
		VALUES (?, ?, 'h', 'Test', 'Owner', 30, ?, ?)`,
		id, id+"@example.com", now, now)
	if err != nil {
		t.Fatalf("seeding owner: %v", err)
	}
	return id
}

func testStand(owner, name string, lon, lat float64) *LemonadeStand {
	return &LemonadeStand{
		Name:                 name,
		OwnerID:              owner,
		Longitude:            lon,
		Latitude:             lat,
		Currency:             "USD",
		CurrentPriceInMicros: 1_500_000,
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	owner := seedOwner(t, db, "usr-owner001")
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	s := testStand(owner, "Granny Smith's", -122.42, 37.77)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("creating stand: %v", err)
	}
	if s.ID == 0 {
		t.Fatal("no identifier assigned")
	}

	got, err := repo.GetByOwnerAndID(ctx, owner, s.ID)
	if err != nil {
		t.Fatalf("getting stand: %v", err)
	}
	if got.Name != "Granny Smith's" || got.CurrentPriceInMicros != 1_500_000 {
		t.Errorf("stand = %+v", got)
	}
}

func TestRepository_DuplicateName(t *testing.T) {
	db := testDB(t)
	owner := seedOwner(t, db, "usr-owner001")
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	if err := repo.Create(ctx, testStand(owner, "Citrus Corner", 0, 0)); err != nil {
		t.Fatalf("creating stand: %v", err)
	}
	err := repo.Create(ctx, testStand(owner, "Citrus Corner", 1, 1))
	if !errors.Is(err, ErrStandExists) {
		t.Errorf("err = %v, want ErrStandExists", err)
	}
}

func TestRepository_OwnershipScoping(t *testing.T) {
	db := testDB(t)
	owner := seedOwner(t, db, "usr-owner001")
	other := seedOwner(t, db, "usr-owner002")
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	s := testStand(owner, "Citrus Corner", 0, 0)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("creating stand: %v", err)
	}

	// Another user's stand is indistinguishable from a missing one.
	if _, err := repo.GetByOwnerAndID(ctx, other, s.ID); !errors.Is(err, ErrStandNotFound) {
		t.Errorf("cross-owner get: err = %v, want ErrStandNotFound", err)
	}
	if err := repo.Delete(ctx, other, s.ID); !errors.Is(err, ErrStandNotFound) {
		t.Errorf("cross-owner delete: err = %v, want ErrStandNotFound", err)
	}

	foreign := *s
	foreign.OwnerID = other
	foreign.Name = "Stolen"
	if err := repo.Update(ctx, &foreign); !errors.Is(err, ErrStandNotFound) {
		t.Errorf("cross-owner update: err = %v, want ErrStandNotFound", err)
	}
}

func TestRepository_UpdateAndDelete(t *testing.T) {
	db := testDB(t)
	owner := seedOwner(t, db, "usr-owner001")
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	s := testStand(owner, "Citrus Corner", 0, 0)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("creating stand: %v", err)
	}

	s.Name = "Citrus Corner II"
	s.CurrentPriceInMicros = 2_000_000
	if err := repo.Update(ctx, s); err != nil {
		t.Fatalf("updating stand: %v", err)
	}

	got, err := repo.GetByOwnerAndID(ctx, owner, s.ID)
	if err != nil {
		t.Fatalf("getting stand: %v", err)
	}
	if got.Name != "Citrus Corner II" || got.CurrentPriceInMicros != 2_000_000 {
		t.Errorf("stand = %+v", got)
	}

	if err := repo.Delete(ctx, owner, s.ID); err != nil {
		t.Fatalf("deleting stand: %v", err)
	}
	if _, err := repo.GetByOwnerAndID(ctx, owner, s.ID); !errors.Is(err, ErrStandNotFound) {
		t.Errorf("get after delete: err = %v, want ErrStandNotFound", err)
	}
}

func TestRepository_SalesAndStats(t *testing.T) {
	db := testDB(t)
	owner := seedOwner(t, db, "usr-owner001")
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	s := testStand(owner, "Citrus Corner", 0, 0)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("creating stand: %v", err)
	}

	for i := 0; i < 3; i++ {
		sale := &Sale{
			LemonadeStandID: s.ID,
			Date:            time.Now().UTC().Add(time.Duration(i) * time.Minute),
			Currency:        "USD",
			PriceInMicros:   1_500_000,
		}
		if err := repo.CreateSale(ctx, sale); err != nil {
			t.Fatalf("creating sale %d: %v", i, err)
		}
	}

	sales, err := repo.ListSales(ctx, s.ID)
	if err != nil {
		t.Fatalf("listing sales: %v", err)
	}
	if len(sales) != 3 {
		t.Fatalf("sales = %d, want 3", len(sales))
	}
	// Newest first.
	if sales[0].Date.Before(sales[2].Date) {
		t.Error("sales not ordered newest first")
	}

	stats, err := repo.StatsFor(ctx, s.ID)
	if err != nil {
		t.Fatalf("aggregating: %v", err)
	}
	if stats.SaleCount != 3 || stats.RevenueInMicros != 4_500_000 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRepository_Nearby(t *testing.T) {
	db := testDB(t)
	owner := seedOwner(t, db, "usr-owner001")
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	// Distances from the Ferry Building in San Francisco.
	stands := []struct {
		name     string
		lon, lat float64
	}{
		{"Embarcadero", -122.3937, 37.7955},   // ~0 km
		{"Mission District", -122.4148, 37.7599}, // ~4 km
		{"Oakland", -122.2712, 37.8044},       // ~11 km
		{"San Jose", -121.8863, 37.3382},      // ~67 km, outside radius
	}
	for _, def := range stands {
		if err := repo.Create(ctx, testStand(owner, def.name, def.lon, def.lat)); err != nil {
			t.Fatalf("creating %s: %v", def.name, err)
		}
	}

	nearby, err := repo.Nearby(ctx, -122.3937, 37.7955, 50_000, 5)
	if err != nil {
		t.Fatalf("querying nearby: %v", err)
	}
	if len(nearby) != 3 {
		t.Fatalf("nearby = %d stands, want 3", len(nearby))
	}
	if nearby[0].Name != "Embarcadero" {
		t.Errorf("closest = %s, want Embarcadero", nearby[0].Name)
	}
	for i := 1; i < len(nearby); i++ {
		if nearby[i].DistanceMeters < nearby[i-1].DistanceMeters {
			t.Error("results not ordered by distance")
		}
	}

	limited, err := repo.Nearby(ctx, -122.3937, 37.7955, 50_000, 2)
	if err != nil {
		t.Fatalf("querying nearby with limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited = %d stands, want 2", len(limited))
	}
}

func TestRepository_SalesCascadeOnStandDelete(t *testing.T) {
	db := testDB(t)
	owner := seedOwner(t, db, "usr-owner001")
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	s := testStand(owner, "Citrus Corner", 0, 0)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("creating stand: %v", err)
	}
	if err := repo.CreateSale(ctx, &Sale{LemonadeStandID: s.ID, Currency: "USD", PriceInMicros: 1}); err != nil {
		t.Fatalf("creating sale: %v", err)
	}
	if err := repo.Delete(ctx, owner, s.ID); err != nil {
		t.Fatalf("deleting stand: %v", err)
	}

	sales, err := repo.ListSales(ctx, s.ID)
	if err != nil {
		t.Fatalf("listing sales: %v", err)
	}
	if len(sales) != 0 {
		t.Errorf("sales = %d after stand delete, want 0", len(sales))
	}
}

func TestHaversineMeters(t *testing.T) {
	tests := []struct {
		name                   string
		lon1, lat1, lon2, lat2 float64
		want                   float64 // metres
	}{
		{"same point", -122.39, 37.79, -122.39, 37.79, 0},
		{"sf to oakland", -122.3937, 37.7955, -122.2712, 37.8044, 10_800},
		{"equator degree", 0, 0, 1, 0, 111_195},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := haversineMeters(tt.lon1, tt.lat1, tt.lon2, tt.lat2)
			tolerance := tt.want * 0.02
			if tolerance < 1 {
				tolerance = 1
			}
			if diff := got - tt.want; diff < -tolerance || diff > tolerance {
				t.Errorf("distance = %.0f m, want %.0f m (2%%)", got, tt.want)
			}
		})
	}
}

func TestBoundingBoxCoversRadius(t *testing.T) {
	lon, lat, radius := -122.39, 37.79, 50_000.0
	minLon, maxLon, minLat, maxLat := boundingBox(lon, lat, radius)

	// Points on the cardinal edges of the circle must fall inside the box.
	for _, p := range []struct{ lon, lat float64 }{
		{lon, lat + radius/earthRadiusMeters*180/3.141592653589793},
		{lon, lat - radius/earthRadiusMeters*180/3.141592653589793},
	} {
		if p.lon < minLon || p.lon > maxLon || p.lat < minLat || p.lat > maxLat {
			t.Errorf("point %v outside box [%f..%f, %f..%f]", p, minLon, maxLon, minLat, maxLat)
		}
	}
	if fmt.Sprintf("%.4f", (minLon+maxLon)/2) != fmt.Sprintf("%.4f", lon) {
		t.Error("box not centred on query longitude")
	}
}
