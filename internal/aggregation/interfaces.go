package aggregation

import (
	"context"

	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for sale aggregation.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindMember(ctx context.Context, id uuid.UUID) (*models.Member, error)
	FindMembers(ctx context.Context, ids []uuid.UUID) ([]models.Member, error)
	FindSaleEventByKey(ctx context.Context, eventKey string) (*models.SaleEvent, error)
	CreateSaleEvent(ctx context.Context, event *models.SaleEvent) (*models.SaleEvent, error)
	UpdateMember(ctx context.Context, id uuid.UUID, updates map[string]any) error
}
