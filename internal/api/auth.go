package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citrusbyte/lemonade-core/internal/audit"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// handleLogin exchanges credentials for a token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeUnprocessable(w, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeUnprocessable(w, "email and password are required")
		return
	}

	pair, user, err := s.auth.Login(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		s.recordAudit(r.Context(), &audit.Entry{
			Action:     audit.ActionLoginFailed,
			EntityType: "user",
			Details:    "ip=" + clientIP(r),
		})
		s.writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.Entry{
		Action:     audit.ActionUserLogin,
		EntityType: "user",
		EntityID:   user.ID,
		UserID:     user.ID,
		Details:    "ip=" + clientIP(r),
	})
	writeJSON(w, http.StatusCreated, tokenPairResponse(*pair))
}

// handleRefresh rotates a refresh token into a new pair.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeUnprocessable(w, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeUnprocessable(w, "refreshToken is required")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken, clientIP(r), r.UserAgent())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.Entry{
		Action:     audit.ActionTokenRefreshed,
		EntityType: "token",
		Details:    "ip=" + clientIP(r),
	})
	writeJSON(w, http.StatusCreated, tokenPairResponse(*pair))
}

// handleRevoke consumes a refresh token ahead of its use. Requires a valid
// access token but no particular permission.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeUnprocessable(w, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeUnprocessable(w, "refreshToken is required")
		return
	}

	if err := s.auth.Revoke(r.Context(), req.RefreshToken); err != nil {
		s.writeDomainError(w, err)
		return
	}

	if user, ok := userFromContext(r.Context()); ok {
		s.recordAudit(r.Context(), &audit.Entry{
			Action:     audit.ActionTokenRevoked,
			EntityType: "token",
			UserID:     user.ID,
		})
	}
	w.WriteHeader(http.StatusCreated)
}

// handleWSTicket issues a single-use ticket for the websocket feed, since
// browsers cannot set an Authorization header on the upgrade request.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ticket := s.tickets.issue(user.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":    ticket,
		"expiresIn": int(ticketTTL.Seconds()),
	})
}

const ticketTTL = 30 * time.Second

type wsTicket struct {
	userID  string
	expires time.Time
}

// ticketStore holds short-lived single-use websocket tickets.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]wsTicket
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]wsTicket)}
}

func (t *ticketStore) issue(userID string) string {
	id := uuid.NewString()
	t.mu.Lock()
	t.tickets[id] = wsTicket{userID: userID, expires: time.Now().Add(ticketTTL)}
	t.mu.Unlock()
	return id
}

// redeem consumes a ticket. A ticket validates exactly once.
func (t *ticketStore) redeem(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ticket, ok := t.tickets[id]
	if !ok {
		return "", false
	}
	delete(t.tickets, id)
	if time.Now().After(ticket.expires) {
		return "", false
	}
	return ticket.userID, true
}

func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			t.mu.Lock()
			for id, ticket := range t.tickets {
				if now.After(ticket.expires) {
					delete(t.tickets, id)
				}
			}
			t.mu.Unlock()
		}
	}
}
