package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chuanlbx-ui/zhongdao-core/pkg/db"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/enums"
	pkgerrors "github.com/chuanlbx-ui/zhongdao-core/pkg/errors"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/locks"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/metrics"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Keys in the shared lock table are namespaced so ledger postings never
// contend with tree aggregation; the two paths touch disjoint member columns.
const lockPrefix = "points/"

const replayBatchSize = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes points-ledger operations.
type Service interface {
	Post(ctx context.Context, input PostInput) (*models.LedgerEntry, error)
	PostInTx(ctx context.Context, tx *gorm.DB, input PostInput) (*models.LedgerEntry, error)
	Transfer(ctx context.Context, input TransferInput) (*TransferResult, error)
	History(ctx context.Context, memberID uuid.UUID, params pagination.Params) (*EntryList, error)
	Replay(ctx context.Context, memberID uuid.UUID) (*ReplayResult, error)
	Reconcile(ctx context.Context, memberID uuid.UUID) (*ReconcileResult, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	locks   *locks.Table
	metrics *metrics.LedgerMetrics
}

// NewService builds a ledger service with the required dependencies.
func NewService(repo Repository, tx txRunner, lockTable *locks.Table, m *metrics.LedgerMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if lockTable == nil {
		return nil, fmt.Errorf("lock table required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		locks:   lockTable,
		metrics: m,
	}, nil
}

// LockKey names the lock guarding one member's ledger. Callers composing a
// posting into a wider transaction hold it via PostInTx.
func LockKey(id uuid.UUID) string {
	return lockPrefix + id.String()
}

func validatePostInput(input PostInput) error {
	if input.MemberID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	if input.Delta.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "delta cannot be zero")
	}
	if !input.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown ledger reason").
			WithDetails(map[string]any{"reason": input.Reason})
	}
	return nil
}

func (s *service) Post(ctx context.Context, input PostInput) (*models.LedgerEntry, error) {
	if err := validatePostInput(input); err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, LockKey(input.MemberID))
	if err != nil {
		if err == locks.ErrNotAcquired {
			return nil, pkgerrors.New(pkgerrors.CodeContention, "member ledger busy")
		}
		return nil, err
	}
	defer release()

	var entry *models.LedgerEntry
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.post(ctx, tx, input)
		if err != nil {
			return err
		}
		entry = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPosting(string(input.Reason))
	return entry, nil
}

// PostInTx appends an entry inside the caller's transaction. The caller must
// hold LockKey for the member until the transaction resolves, so the balance
// read here stays current and a rollback undoes the posting together with the
// caller's own writes.
func (s *service) PostInTx(ctx context.Context, tx *gorm.DB, input PostInput) (*models.LedgerEntry, error) {
	if err := validatePostInput(input); err != nil {
		return nil, err
	}
	entry, err := s.post(ctx, tx, input)
	if err != nil {
		return nil, err
	}
	s.metrics.IncPosting(string(input.Reason))
	return entry, nil
}

func (s *service) post(ctx context.Context, tx *gorm.DB, input PostInput) (*models.LedgerEntry, error) {
	repo := s.repo.WithTx(tx)

	member, err := repo.FindMember(ctx, input.MemberID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}

	balance := member.PointsBalance.Add(input.Delta)
	if balance.IsNegative() && !input.Reason.IsOverride() {
		s.metrics.IncInsufficientBalance()
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "balance cannot go negative").
			WithDetails(map[string]any{
				"member_id": input.MemberID,
				"balance":   member.PointsBalance,
				"delta":     input.Delta,
			})
	}

	entry, err := repo.CreateEntry(ctx, &models.LedgerEntry{
		ID:           uuid.New(),
		MemberID:     input.MemberID,
		Delta:        input.Delta,
		Reason:       input.Reason,
		BalanceAfter: balance,
		Metadata:     input.Metadata,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
	}
	if err := repo.UpdateMemberBalance(ctx, input.MemberID, balance); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance")
	}
	return entry, nil
}

func (s *service) Transfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	if input.FromID == uuid.Nil || input.ToID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "both transfer endpoints required")
	}
	if input.FromID == input.ToID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot transfer to self")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	// Lexicographic key order keeps concurrent opposing transfers from
	// deadlocking against each other.
	first, second := LockKey(input.FromID), LockKey(input.ToID)
	if second < first {
		first, second = second, first
	}
	release, err := s.locks.Acquire(ctx, first, second)
	if err != nil {
		if err == locks.ErrNotAcquired {
			return nil, pkgerrors.New(pkgerrors.CodeContention, "transfer endpoints busy")
		}
		return nil, err
	}
	defer release()

	transferID := uuid.New()
	result := &TransferResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		from, err := repo.FindMember(ctx, input.FromID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "sender not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sender")
		}
		to, err := repo.FindMember(ctx, input.ToID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "recipient not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recipient")
		}

		fromBalance := from.PointsBalance.Sub(input.Amount)
		if fromBalance.IsNegative() {
			s.metrics.IncInsufficientBalance()
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "sender balance too low").
				WithDetails(map[string]any{
					"member_id": input.FromID,
					"balance":   from.PointsBalance,
					"amount":    input.Amount,
				})
		}
		toBalance := to.PointsBalance.Add(input.Amount)

		outMeta, err := transferMetadata(transferID, input.ToID, input.Metadata)
		if err != nil {
			return err
		}
		inMeta, err := transferMetadata(transferID, input.FromID, input.Metadata)
		if err != nil {
			return err
		}

		out, err := repo.CreateEntry(ctx, &models.LedgerEntry{
			ID:           uuid.New(),
			MemberID:     input.FromID,
			Delta:        input.Amount.Neg(),
			Reason:       enums.LedgerReasonTransferOut,
			BalanceAfter: fromBalance,
			Metadata:     outMeta,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append debit entry")
		}
		in, err := repo.CreateEntry(ctx, &models.LedgerEntry{
			ID:           uuid.New(),
			MemberID:     input.ToID,
			Delta:        input.Amount,
			Reason:       enums.LedgerReasonTransferIn,
			BalanceAfter: toBalance,
			Metadata:     inMeta,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append credit entry")
		}

		if err := repo.UpdateMemberBalance(ctx, input.FromID, fromBalance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sender balance")
		}
		if err := repo.UpdateMemberBalance(ctx, input.ToID, toBalance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update recipient balance")
		}

		result.Out = out
		result.In = in
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransfer()
	s.metrics.IncPosting(string(enums.LedgerReasonTransferOut))
	s.metrics.IncPosting(string(enums.LedgerReasonTransferIn))
	return result, nil
}

func (s *service) History(ctx context.Context, memberID uuid.UUID, params pagination.Params) (*EntryList, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	if _, err := s.repo.FindMember(ctx, memberID); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	list, err := s.repo.ListEntries(ctx, memberID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list entries")
	}
	return list, nil
}

// Replay recomputes the balance by streaming every entry in timestamp order.
// Each entry's BalanceAfter snapshot is checked against the running sum.
func (s *service) Replay(ctx context.Context, memberID uuid.UUID) (*ReplayResult, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	if _, err := s.repo.FindMember(ctx, memberID); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}

	result := &ReplayResult{MemberID: memberID}
	params := pagination.Params{Limit: replayBatchSize}
	for {
		page, err := s.repo.ListEntries(ctx, memberID, params)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stream entries")
		}
		for _, entry := range page.Entries {
			result.Balance = result.Balance.Add(entry.Delta)
			result.Entries++
			if !result.Balance.Equal(entry.BalanceAfter) {
				return nil, pkgerrors.New(pkgerrors.CodeInvariantViolation, "ledger snapshot diverges from replay").
					WithDetails(map[string]any{
						"member_id": memberID,
						"entry_id":  entry.ID,
						"expected":  result.Balance,
						"snapshot":  entry.BalanceAfter,
					})
			}
		}
		if page.NextCursor == nil {
			return result, nil
		}
		params.Cursor = *page.NextCursor
	}
}

func (s *service) Reconcile(ctx context.Context, memberID uuid.UUID) (*ReconcileResult, error) {
	member, err := s.repo.FindMember(ctx, memberID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}

	replay, err := s.Replay(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{
		MemberID:        memberID,
		StoredBalance:   member.PointsBalance,
		ReplayedBalance: replay.Balance,
		Consistent:      member.PointsBalance.Equal(replay.Balance),
	}, nil
}

func transferMetadata(transferID, counterparty uuid.UUID, extra json.RawMessage) (json.RawMessage, error) {
	payload := map[string]any{
		"transfer_id":  transferID,
		"counterparty": counterparty,
	}
	if len(extra) > 0 {
		payload["note"] = extra
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode transfer metadata")
	}
	return raw, nil
}
