package api

import (
	"net/http"

	"github.com/citrusbyte/lemonade-core/internal/auth"
)

type roleResponse struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// handleListRoles lists the defined roles with their permission grants.
func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.roles.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		perms := make([]string, 0, len(role.Permissions))
		for _, perm := range role.Permissions {
			perms = append(perms, perm.Name)
		}
		out = append(out, roleResponse{ID: role.ID, Name: role.Name, Permissions: perms})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListPermissions lists every defined permission string.
func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	roles, err := s.roles.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	seen := make(map[int64]bool)
	var out []auth.Permission
	for _, role := range roles {
		for _, perm := range role.Permissions {
			if !seen[perm.ID] {
				seen[perm.ID] = true
				out = append(out, perm)
			}
		}
	}
	if out == nil {
		out = []auth.Permission{}
	}
	writeJSON(w, http.StatusOK, out)
}
