package ledger

import (
	"encoding/json"

	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostInput captures a single points movement. Delta is signed; negative
// deltas that would take the balance below zero are rejected unless the
// reason is an administrative override.
type PostInput struct {
	MemberID uuid.UUID
	Delta    decimal.Decimal
	Reason   enums.LedgerReason
	Metadata json.RawMessage
}

// TransferInput moves points between two members atomically.
type TransferInput struct {
	FromID   uuid.UUID
	ToID     uuid.UUID
	Amount   decimal.Decimal
	Metadata json.RawMessage
}

// TransferResult carries the paired entries a transfer produced.
type TransferResult struct {
	Out *models.LedgerEntry `json:"out"`
	In  *models.LedgerEntry `json:"in"`
}

// EntryList is a cursor page of ledger entries in chronological order.
type EntryList struct {
	Entries    []models.LedgerEntry `json:"entries"`
	NextCursor *string              `json:"next_cursor,omitempty"`
}

// ReplayResult is the balance recomputed from the full entry stream.
type ReplayResult struct {
	MemberID uuid.UUID       `json:"member_id"`
	Balance  decimal.Decimal `json:"balance"`
	Entries  int             `json:"entries"`
}

// ReconcileResult compares the stored balance against a replay.
type ReconcileResult struct {
	MemberID        uuid.UUID       `json:"member_id"`
	StoredBalance   decimal.Decimal `json:"stored_balance"`
	ReplayedBalance decimal.Decimal `json:"replayed_balance"`
	Consistent      bool            `json:"consistent"`
}
