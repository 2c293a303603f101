package members

import (
	"context"

	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the referral tree.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, member *models.Member) (*models.Member, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Member, error)
	FindChildren(ctx context.Context, parentID uuid.UUID) ([]models.Member, error)
	ListChildren(ctx context.Context, parentID uuid.UUID, params pagination.Params) (*MemberList, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}
