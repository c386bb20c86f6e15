package admin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Provisioner prepares storage for a new structure; the server wires the
// schema migrator in here.
type Provisioner interface {
	Provision(ctx context.Context, structureID string) error
}

// The id doubles as the Postgres schema suffix, so only schema-safe
// characters are allowed.
var structureIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

type Service struct {
	repo        Repository
	provisioner Provisioner
	logger      zerolog.Logger
}

func NewService(repo Repository, provisioner Provisioner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, provisioner: provisioner, logger: logger}
}

// CreateStructure registers a tenant and provisions its schema.
func (s *Service) CreateStructure(ctx context.Context, st *Structure) error {
	if !structureIDPattern.MatchString(st.ID) {
		return fmt.Errorf("structure id must match %s", structureIDPattern)
	}
	if st.Name == "" {
		return fmt.Errorf("name is required")
	}
	if st.Timezone == "" {
		st.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(st.Timezone); err != nil {
		return fmt.Errorf("invalid timezone: %s", st.Timezone)
	}

	st.Active = true
	if err := s.repo.CreateStructure(ctx, st); err != nil {
		return err
	}

	if s.provisioner != nil {
		if err := s.provisioner.Provision(ctx, st.ID); err != nil {
			return fmt.Errorf("provisioning structure %s: %w", st.ID, err)
		}
	}
	s.logger.Info().Str("structure_id", st.ID).Msg("admin: structure created")
	return nil
}

func (s *Service) Structure(ctx context.Context, id string) (*Structure, error) {
	return s.repo.GetStructure(ctx, id)
}

func (s *Service) UpdateStructure(ctx context.Context, st *Structure) error {
	if st.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.repo.UpdateStructure(ctx, st)
}

func (s *Service) ListStructures(ctx context.Context, limit, offset int) ([]*Structure, int, error) {
	return s.repo.ListStructures(ctx, limit, offset)
}

func (s *Service) AddMember(ctx context.Context, m *TeamMember) error {
	if m.UserID == "" || m.StructureID == "" {
		return fmt.Errorf("user_id and structure_id are required")
	}
	if m.Role == "" {
		return fmt.Errorf("role is required")
	}
	return s.repo.AddMember(ctx, m)
}

func (s *Service) RemoveMember(ctx context.Context, id uuid.UUID) error {
	return s.repo.RemoveMember(ctx, id)
}

func (s *Service) ListMembers(ctx context.Context, structureID string, limit, offset int) ([]*TeamMember, int, error) {
	return s.repo.ListMembers(ctx, structureID, limit, offset)
}

func (s *Service) GrantPermission(ctx context.Context, p *RolePermission) error {
	if p.StructureID == "" || p.Role == "" || p.Permission == "" {
		return fmt.Errorf("structure_id, role and permission are required")
	}
	return s.repo.GrantPermission(ctx, p)
}

func (s *Service) RevokePermission(ctx context.Context, structureID, role, permission string) error {
	return s.repo.RevokePermission(ctx, structureID, role, permission)
}

func (s *Service) ListPermissions(ctx context.Context, structureID, role string) ([]*RolePermission, error) {
	return s.repo.ListPermissions(ctx, structureID, role)
}

// Can resolves whether a user holds a permission within a structure: the
// user's team role is looked up, then the role's grants. Admins hold every
// permission; users outside the structure hold none.
func (s *Service) Can(ctx context.Context, userID, structureID, permission string) (bool, error) {
	role, err := s.repo.MemberRole(ctx, userID, structureID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if role == "admin" {
		return true, nil
	}
	return s.repo.HasPermission(ctx, structureID, role, permission)
}
