package aggregation

import (
	"context"

	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an aggregation repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) FindMembers(ctx context.Context, ids []uuid.UUID) ([]models.Member, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Member
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) FindSaleEventByKey(ctx context.Context, eventKey string) (*models.SaleEvent, error) {
	var event models.SaleEvent
	err := r.db.WithContext(ctx).
		Where("event_key = ?", eventKey).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) CreateSaleEvent(ctx context.Context, event *models.SaleEvent) (*models.SaleEvent, error) {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (r *repository) UpdateMember(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ?", id).
		Updates(updates).Error
}
