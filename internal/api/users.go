package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/citrusbyte/lemonade-core/internal/audit"
	"github.com/citrusbyte/lemonade-core/internal/auth"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Age       int    `json:"age"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Age       int       `json:"age"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(user *auth.User) userResponse {
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, role.Name)
	}
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Age:       user.Age,
		Roles:     roles,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

// handleRegister creates an account. Open endpoint; the new user gets the
// default role.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeUnprocessable(w, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	switch {
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		writeUnprocessable(w, "a valid email is required")
		return
	case len(req.Password) < 8:
		writeUnprocessable(w, "password must be at least 8 characters")
		return
	case req.FirstName == "" || req.LastName == "":
		writeUnprocessable(w, "firstName and lastName are required")
		return
	case req.Age < 0:
		writeUnprocessable(w, "age must not be negative")
		return
	}

	user, err := s.auth.Register(r.Context(), req.Email, req.Password, req.FirstName, req.LastName, req.Age)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.Entry{
		Action:     audit.ActionUserRegistered,
		EntityType: "user",
		EntityID:   user.ID,
		UserID:     user.ID,
	})
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// handleMe returns the authenticated user's own profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// handleListUsers returns every account. Admin only.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, toUserResponse(user))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetUser returns one account by id. Admin only.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
