package members

import (
	"context"
	"fmt"
	"strings"

	"github.com/chuanlbx-ui/zhongdao-core/pkg/db"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	dbtypes "github.com/chuanlbx-ui/zhongdao-core/pkg/db/types"
	pkgerrors "github.com/chuanlbx-ui/zhongdao-core/pkg/errors"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultDescendantLimit = 1000

// Service exposes referral-tree operations.
type Service interface {
	AddMember(ctx context.Context, input AddMemberInput) (*models.Member, error)
	GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error)
	GetAncestors(ctx context.Context, id uuid.UUID) ([]models.Member, error)
	GetDescendants(ctx context.Context, id uuid.UUID, opts DescendantOptions) ([]models.Member, error)
	ListChildren(ctx context.Context, id uuid.UUID, params pagination.Params) (*MemberList, error)
}

type service struct {
	repo     Repository
	maxDepth int
}

// NewService builds a members service. maxDepth caps how deep the tree can
// grow; placements below the cap are rejected.
func NewService(repo Repository, maxDepth int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("members repository required")
	}
	if maxDepth < 1 {
		return nil, fmt.Errorf("max depth must be positive")
	}
	return &service{repo: repo, maxDepth: maxDepth}, nil
}

func (s *service) AddMember(ctx context.Context, input AddMemberInput) (*models.Member, error) {
	nickname := strings.TrimSpace(input.Nickname)
	if nickname == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nickname required")
	}

	id := uuid.New()
	if input.ID != nil {
		if *input.ID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id cannot be nil")
		}
		id = *input.ID
		// Caller-supplied ids can collide; reject them before any referrer
		// work. The unique constraint on Create still backstops races.
		taken, err := s.repo.Exists(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check member id")
		}
		if taken {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "member already exists").
				WithDetails(map[string]any{"member_id": id})
		}
	}

	member := &models.Member{
		ID:            id,
		Nickname:      nickname,
		Tier:          1,
		TeamPath:      dbtypes.UUIDArray{},
		Depth:         1,
		DirectSales:   decimal.Zero,
		TeamSales:     decimal.Zero,
		PointsBalance: decimal.Zero,
		PointsFrozen:  decimal.Zero,
	}

	if input.ParentID != nil {
		if *input.ParentID == id {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidParent, "member cannot refer itself")
		}
		parent, err := s.repo.FindByID(ctx, *input.ParentID)
		if err != nil {
			if db.IsNotFound(err) {
				return nil, pkgerrors.New(pkgerrors.CodeInvalidParent, "referrer does not exist").
					WithDetails(map[string]any{"parent_id": input.ParentID})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load referrer")
		}
		if parent.TeamPath.Contains(id) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidParent, "placement would create a cycle")
		}
		if parent.Depth+1 > s.maxDepth {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidParent, "referral chain too deep").
				WithDetails(map[string]any{"max_depth": s.maxDepth})
		}

		path := make(dbtypes.UUIDArray, 0, len(parent.TeamPath)+1)
		path = append(path, parent.TeamPath...)
		path = append(path, parent.ID)

		member.ParentID = input.ParentID
		member.TeamPath = path
		member.Depth = parent.Depth + 1
	}

	created, err := s.repo.Create(ctx, member)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "member already exists").
				WithDetails(map[string]any{"member_id": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create member")
	}
	return created, nil
}

func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	member, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	return member, nil
}

// GetAncestors returns the chain from the root down to the direct parent.
// Roots get an empty chain.
func (s *service) GetAncestors(ctx context.Context, id uuid.UUID) ([]models.Member, error) {
	member, err := s.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(member.TeamPath) == 0 {
		return nil, nil
	}

	rows, err := s.repo.FindByIDs(ctx, member.TeamPath)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ancestors")
	}
	if len(rows) != len(member.TeamPath) {
		return nil, pkgerrors.New(pkgerrors.CodeInvariantViolation, "ancestor chain has missing members").
			WithDetails(map[string]any{"member_id": id})
	}

	byID := make(map[uuid.UUID]models.Member, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	out := make([]models.Member, 0, len(member.TeamPath))
	for _, ancestorID := range member.TeamPath {
		out = append(out, byID[ancestorID])
	}
	return out, nil
}

// GetDescendants walks the subtree breadth-first starting at the member's
// children. The walk stops once the limit or relative depth bound is hit.
func (s *service) GetDescendants(ctx context.Context, id uuid.UUID, opts DescendantOptions) ([]models.Member, error) {
	root, err := s.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 || limit > defaultDescendantLimit {
		limit = defaultDescendantLimit
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = s.maxDepth
	}

	var out []models.Member
	frontier := []uuid.UUID{root.ID}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []uuid.UUID
		for _, parentID := range frontier {
			children, err := s.repo.FindChildren(ctx, parentID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load children")
			}
			for _, child := range children {
				if len(out) >= limit {
					return out, nil
				}
				out = append(out, child)
				next = append(next, child.ID)
			}
		}
		frontier = next
	}
	return out, nil
}

func (s *service) ListChildren(ctx context.Context, id uuid.UUID, params pagination.Params) (*MemberList, error) {
	if _, err := s.GetMember(ctx, id); err != nil {
		return nil, err
	}
	list, err := s.repo.ListChildren(ctx, id, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list children")
	}
	return list, nil
}
