package enums

import "fmt"

// LedgerReason maps to the ledger_reason_enum enum in Postgres.
type LedgerReason string

const (
	LedgerReasonPurchase    LedgerReason = "purchase"
	LedgerReasonCommission  LedgerReason = "commission"
	LedgerReasonTransferIn  LedgerReason = "transfer_in"
	LedgerReasonTransferOut LedgerReason = "transfer_out"
	LedgerReasonSignupBonus LedgerReason = "signup_bonus"
	LedgerReasonAdminAdjust LedgerReason = "admin_adjust"
)

var validLedgerReasons = []LedgerReason{
	LedgerReasonPurchase,
	LedgerReasonCommission,
	LedgerReasonTransferIn,
	LedgerReasonTransferOut,
	LedgerReasonSignupBonus,
	LedgerReasonAdminAdjust,
}

// IsValid reports whether the value matches the canonical ledger reason enum.
func (r LedgerReason) IsValid() bool {
	for _, candidate := range validLedgerReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsOverride reports whether the reason is an administrative override allowed
// to drive a balance below zero.
func (r LedgerReason) IsOverride() bool {
	return r == LedgerReasonAdminAdjust
}

// ParseLedgerReason converts raw input into LedgerReason.
func ParseLedgerReason(value string) (LedgerReason, error) {
	for _, candidate := range validLedgerReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger reason %q", value)
}
