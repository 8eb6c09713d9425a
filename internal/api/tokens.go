package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/citrusbyte/lemonade-core/internal/auth"
)

// accessTokenResponse exposes session metadata. The raw token string never
// leaves the store once issued.
type accessTokenResponse struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"userId"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	Expiration time.Time `json:"expiration"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

func toAccessTokenResponses(records []*auth.AccessTokenRecord) []accessTokenResponse {
	out := make([]accessTokenResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, accessTokenResponse{
			ID:         rec.ID,
			UserID:     rec.UserID,
			IPAddress:  rec.IPAddress,
			UserAgent:  rec.UserAgent,
			Expiration: rec.Expiration,
			CreatedAt:  rec.CreatedAt,
			LastSeenAt: rec.LastSeenAt,
		})
	}
	return out
}

// handleMyTokens lists the caller's active and past access token sessions.
func (s *Server) handleMyTokens(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	records, err := s.tokens.ListAccessTokens(r.Context(), user.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccessTokenResponses(records))
}

// handleUserTokens lists any user's access token sessions. Admin only.
func (s *Server) handleUserTokens(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if _, err := s.users.GetByID(r.Context(), userID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	records, err := s.tokens.ListAccessTokens(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccessTokenResponses(records))
}
