package models

import (
	"encoding/json"
	"time"

	"github.com/chuanlbx-ui/zhongdao-core/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntry records an immutable points movement for a member. Entries are
// append-only; BalanceAfter snapshots the member balance the entry produced.
type LedgerEntry struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MemberID     uuid.UUID          `gorm:"column:member_id;type:uuid;not null;index:idx_ledger_member_created" json:"member_id"`
	Delta        decimal.Decimal    `gorm:"column:delta;type:decimal(18,2);not null" json:"delta"`
	Reason       enums.LedgerReason `gorm:"column:reason;type:ledger_reason_enum;not null" json:"reason"`
	BalanceAfter decimal.Decimal    `gorm:"column:balance_after;type:decimal(18,2);not null" json:"balance_after"`
	Metadata     json.RawMessage    `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime;index:idx_ledger_member_created" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
