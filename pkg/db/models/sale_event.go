package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleEvent pins an applied sale to its caller-supplied idempotency key.
// The unique index on EventKey is what makes RecordSale exactly-once.
type SaleEvent struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EventKey  string          `gorm:"column:event_key;type:text;not null;uniqueIndex:uq_sale_events_event_key" json:"event_key"`
	MemberID  uuid.UUID       `gorm:"column:member_id;type:uuid;not null;index" json:"member_id"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	NewBuyer  bool            `gorm:"column:new_buyer;not null" json:"new_buyer"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (SaleEvent) TableName() string {
	return "sale_events"
}
