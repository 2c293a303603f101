package ledger

import (
	"context"

	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the points ledger. Entries
// are append-only; the member balance column is the only mutable state.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindMember(ctx context.Context, id uuid.UUID) (*models.Member, error)
	UpdateMemberBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error)
	ListEntries(ctx context.Context, memberID uuid.UUID, params pagination.Params) (*EntryList, error)
}
