package stand

import (
	"errors"
	"time"
)

// LemonadeStand is a selling location owned by a single user. Prices are
// integer micros of the stand's currency, never floats.
type LemonadeStand struct {
	ID                   int64     `json:"id"`
	Name                 string    `json:"name"`
	OwnerID              string    `json:"ownerId"`
	Longitude            float64   `json:"longitude"`
	Latitude             float64   `json:"latitude"`
	Currency             string    `json:"currency"`
	CurrentPriceInMicros int64     `json:"currentPriceInMicros"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Sale records one cup sold at a stand, with the price frozen at sale time.
type Sale struct {
	ID              int64     `json:"id"`
	LemonadeStandID int64     `json:"lemonadeStandId"`
	Date            time.Time `json:"date"`
	Currency        string    `json:"currency"`
	PriceInMicros   int64     `json:"priceInMicros"`
}

// Stats aggregates a stand's sales.
type Stats struct {
	LemonadeStandID int64 `json:"lemonadeStandId"`
	SaleCount       int64 `json:"saleCount"`
	RevenueInMicros int64 `json:"revenueInMicros"`
}

// NearbyStand pairs a stand with its distance from a query point.
type NearbyStand struct {
	LemonadeStand
	DistanceMeters float64 `json:"distanceMeters"`
}

var (
	// ErrStandExists is returned when creation hits the unique name
	// constraint.
	ErrStandExists = errors.New("lemonade stand already exists")

	// ErrStandNotFound is returned by lookups with no match, including
	// lookups scoped to a different owner.
	ErrStandNotFound = errors.New("lemonade stand not found")
)
