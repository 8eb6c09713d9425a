package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/citrusbyte/lemonade-core/internal/audit"
	"github.com/citrusbyte/lemonade-core/internal/stand"
)

type standRequest struct {
	Name                 string  `json:"name"`
	Longitude            float64 `json:"longitude"`
	Latitude             float64 `json:"latitude"`
	Currency             string  `json:"currency"`
	CurrentPriceInMicros int64   `json:"currentPriceInMicros"`
}

func (req *standRequest) validate() string {
	switch {
	case req.Name == "":
		return "name is required"
	case req.Longitude < -180 || req.Longitude > 180:
		return "longitude must be within [-180, 180]"
	case req.Latitude < -90 || req.Latitude > 90:
		return "latitude must be within [-90, 90]"
	case req.CurrentPriceInMicros <= 0:
		return "currentPriceInMicros must be positive"
	default:
		return ""
	}
}

// standIDParam parses the {id} route parameter. A malformed id behaves like
// a missing stand.
func standIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleListMyStands(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	stands, err := s.stands.ListByOwner(r.Context(), user.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if stands == nil {
		stands = []*stand.LemonadeStand{}
	}
	writeJSON(w, http.StatusOK, stands)
}

func (s *Server) handleCreateStand(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	var req standRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeUnprocessable(w, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeUnprocessable(w, msg)
		return
	}

	st := &stand.LemonadeStand{
		Name:                 req.Name,
		OwnerID:              user.ID,
		Longitude:            req.Longitude,
		Latitude:             req.Latitude,
		Currency:             req.Currency,
		CurrentPriceInMicros: req.CurrentPriceInMicros,
	}
	if err := s.stands.Create(r.Context(), st); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.Entry{
		Action:     audit.ActionStandCreated,
		EntityType: "stand",
		EntityID:   strconv.FormatInt(st.ID, 10),
		UserID:     user.ID,
	})
	w.Header().Set("Location", fmt.Sprintf("/my/stands/%d", st.ID))
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleGetStand(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}
	id, ok := standIDParam(r)
	if !ok {
		writeNotFound(w)
		return
	}

	st, err := s.stands.GetByOwnerAndID(r.Context(), user.ID, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleUpdateStand(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}
	id, ok := standIDParam(r)
	if !ok {
		writeNotFound(w)
		return
	}

	var req standRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeUnprocessable(w, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeUnprocessable(w, msg)
		return
	}

	st, err := s.stands.GetByOwnerAndID(r.Context(), user.ID, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	st.Name = req.Name
	st.Longitude = req.Longitude
	st.Latitude = req.Latitude
	if req.Currency != "" {
		st.Currency = req.Currency
	}
	st.CurrentPriceInMicros = req.CurrentPriceInMicros
	if err := s.stands.Update(r.Context(), st); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.Entry{
		Action:     audit.ActionStandUpdated,
		EntityType: "stand",
		EntityID:   strconv.FormatInt(st.ID, 10),
		UserID:     user.ID,
	})
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteStand(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}
	id, ok := standIDParam(r)
	if !ok {
		writeNotFound(w)
		return
	}

	if err := s.stands.Delete(r.Context(), user.ID, id); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.Entry{
		Action:     audit.ActionStandDeleted,
		EntityType: "stand",
		EntityID:   strconv.FormatInt(id, 10),
		UserID:     user.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateSale records one cup sold at the stand's current price and
// fans the event out to the live feed, MQTT and the telemetry bucket.
func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}
	id, ok := standIDParam(r)
	if !ok {
		writeNotFound(w)
		return
	}

	st, err := s.stands.GetByOwnerAndID(r.Context(), user.ID, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	sale := &stand.Sale{
		LemonadeStandID: st.ID,
		Currency:        st.Currency,
		PriceInMicros:   st.CurrentPriceInMicros,
	}
	if err := s.stands.CreateSale(r.Context(), sale); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.Entry{
		Action:     audit.ActionSaleRecorded,
		EntityType: "sale",
		EntityID:   strconv.FormatInt(sale.ID, 10),
		UserID:     user.ID,
	})
	s.publishSale(st, sale)
	writeJSON(w, http.StatusCreated, sale)
}

// publishSale pushes a recorded sale to the optional outputs. All of them
// are best effort; the sale is already durable.
func (s *Server) publishSale(st *stand.LemonadeStand, sale *stand.Sale) {
	s.hub.BroadcastTo(st.OwnerID, Event{Type: "sale.created", Data: sale})

	if s.mqtt != nil {
		payload, err := json.Marshal(sale)
		if err == nil {
			topic := fmt.Sprintf("lemonade/sales/%d", st.ID)
			if err := s.mqtt.Publish(topic, payload); err != nil {
				s.log.Warn("mqtt sale publish failed", "stand_id", st.ID, "error", err)
			}
		}
	}

	if s.influx != nil {
		s.influx.WriteSale(st.ID, st.Name, sale.Currency, sale.PriceInMicros, sale.Date)
	}
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}
	id, ok := standIDParam(r)
	if !ok {
		writeNotFound(w)
		return
	}

	// Ownership gate before exposing the ledger.
	if _, err := s.stands.GetByOwnerAndID(r.Context(), user.ID, id); err != nil {
		s.writeDomainError(w, err)
		return
	}

	sales, err := s.stands.ListSales(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if sales == nil {
		sales = []*stand.Sale{}
	}
	writeJSON(w, http.StatusOK, sales)
}

func (s *Server) handleListAllMySales(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	sales, err := s.stands.ListSalesByOwner(r.Context(), user.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if sales == nil {
		sales = []*stand.Sale{}
	}
	writeJSON(w, http.StatusOK, sales)
}

func (s *Server) handleStandStats(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}
	id, ok := standIDParam(r)
	if !ok {
		writeNotFound(w)
		return
	}

	if _, err := s.stands.GetByOwnerAndID(r.Context(), user.ID, id); err != nil {
		s.writeDomainError(w, err)
		return
	}

	stats, err := s.stands.StatsFor(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

const (
	nearMeRadiusMeters = 50_000
	nearMeLimit        = 5
)

// handleNearMe is the one public stand query: the closest stands within
// 50 km of the given point.
func (s *Server) handleNearMe(w http.ResponseWriter, r *http.Request) {
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("longitude"), 64)
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("latitude"), 64)
	if errLon != nil || errLat != nil || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		writeUnprocessable(w, "valid longitude and latitude query parameters are required")
		return
	}

	nearby, err := s.stands.Nearby(r.Context(), lon, lat, nearMeRadiusMeters, nearMeLimit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if nearby == nil {
		nearby = []*stand.NearbyStand{}
	}
	writeJSON(w, http.StatusOK, nearby)
}
