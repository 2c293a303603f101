package aggregation

import (
	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordSaleInput applies one sale to a member and their upline. EventKey is
// the caller's idempotency key; replays of the same key are rejected after
// the first application.
type RecordSaleInput struct {
	EventKey string
	MemberID uuid.UUID
	Amount   decimal.Decimal
	NewBuyer bool
}

// TierChange reports a promotion produced by aggregation.
type TierChange struct {
	MemberID uuid.UUID `json:"member_id"`
	OldTier  int       `json:"old_tier"`
	NewTier  int       `json:"new_tier"`
}

// RecordSaleResult carries the applied event plus the seller's refreshed
// aggregates and any promotions along the chain.
type RecordSaleResult struct {
	Event      *models.SaleEvent `json:"event"`
	Member     *models.Member    `json:"member"`
	Promotions []TierChange      `json:"promotions,omitempty"`
}

// ApplyPurchaseInput runs the shop buy-in flow: the plan fee, discounted for
// the member's current tier, is debited from points and recorded as a sale.
type ApplyPurchaseInput struct {
	EventKey string
	MemberID uuid.UUID
	NewBuyer bool
}

// ApplyPurchaseResult summarizes a completed buy-in.
type ApplyPurchaseResult struct {
	Fee       decimal.Decimal     `json:"fee"`
	Units     int                 `json:"units"`
	GiftUnits int                 `json:"gift_units"`
	Entry     *models.LedgerEntry `json:"entry"`
	Sale      *RecordSaleResult   `json:"sale"`
}
