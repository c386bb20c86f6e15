package admin

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateStructure(ctx context.Context, s *Structure) error
	GetStructure(ctx context.Context, id string) (*Structure, error)
	UpdateStructure(ctx context.Context, s *Structure) error
	ListStructures(ctx context.Context, limit, offset int) ([]*Structure, int, error)

	AddMember(ctx context.Context, m *TeamMember) error
	RemoveMember(ctx context.Context, id uuid.UUID) error
	ListMembers(ctx context.Context, structureID string, limit, offset int) ([]*TeamMember, int, error)
	// MemberRole returns the role of a user within a structure.
	MemberRole(ctx context.Context, userID, structureID string) (string, error)

	GrantPermission(ctx context.Context, p *RolePermission) error
	RevokePermission(ctx context.Context, structureID, role, permission string) error
	// HasPermission resolves role -> permission within a structure.
	HasPermission(ctx context.Context, structureID, role, permission string) (bool, error)
	ListPermissions(ctx context.Context, structureID, role string) ([]*RolePermission, error)
}
