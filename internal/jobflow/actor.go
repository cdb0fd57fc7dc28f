package jobflow

import (
	"strings"

	"github.com/google/uuid"

	"github.com/JAY4T/kaakazini/internal/models"
)

// ActingAsCraftsman decides whether a request goes through craftsman-only
// logic. An explicit role override wins; otherwise the user must hold the
// craftsman role and an approved profile. Profile existence alone is not enough.
func ActingAsCraftsman(role models.Role, profile *models.CraftsmanProfile, override string) bool {
	approved := profile != nil && profile.IsApproved
	switch models.Role(strings.ToLower(strings.TrimSpace(override))) {
	case models.RoleClient, models.RoleAdmin:
		return false
	case models.RoleCraftsman:
		return approved
	}
	return role == models.RoleCraftsman && approved
}

// NewActor resolves the identity used for guards. An override can only
// narrow the caller to the client view, never widen it.
func NewActor(userID uuid.UUID, role models.Role, profile *models.CraftsmanProfile, override string) Actor {
	a := Actor{UserID: userID, Role: role}
	if models.Role(strings.ToLower(strings.TrimSpace(override))) == models.RoleClient {
		a.Role = models.RoleClient
	}
	if ActingAsCraftsman(role, profile, override) {
		id := profile.ID
		a.CraftsmanID = &id
	}
	return a
}
