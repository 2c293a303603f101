package models

import (
	"time"

	dbtypes "github.com/chuanlbx-ui/zhongdao-core/pkg/db/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Member is a node in the referral tree. TeamPath holds the ancestor chain
// from the root down to the direct parent; parent assignment is immutable
// after creation.
type Member struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ParentID      *uuid.UUID        `gorm:"column:parent_id;type:uuid;index" json:"parent_id,omitempty"`
	Nickname      string            `gorm:"column:nickname;type:text;not null" json:"nickname"`
	Tier          int               `gorm:"column:tier;not null;default:1" json:"tier"`
	TeamPath      dbtypes.UUIDArray `gorm:"column:team_path;type:uuid[];not null" json:"team_path"`
	Depth         int               `gorm:"column:depth;not null" json:"depth"`
	DirectSales   decimal.Decimal   `gorm:"column:direct_sales;type:decimal(18,2);not null" json:"direct_sales"`
	TeamSales     decimal.Decimal   `gorm:"column:team_sales;type:decimal(18,2);not null" json:"team_sales"`
	DirectCount   int               `gorm:"column:direct_count;not null" json:"direct_count"`
	TeamCount     int               `gorm:"column:team_count;not null" json:"team_count"`
	PointsBalance decimal.Decimal   `gorm:"column:points_balance;type:decimal(18,2);not null" json:"points_balance"`
	PointsFrozen  decimal.Decimal   `gorm:"column:points_frozen;type:decimal(18,2);not null" json:"points_frozen"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Member) TableName() string {
	return "members"
}
