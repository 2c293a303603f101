package aggregation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chuanlbx-ui/zhongdao-core/internal/ledger"
	"github.com/chuanlbx-ui/zhongdao-core/internal/tiers"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/db"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/enums"
	pkgerrors "github.com/chuanlbx-ui/zhongdao-core/pkg/errors"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/locks"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lock keys are prefixed so aggregation never contends with ledger postings;
// the two paths touch disjoint member columns.
const lockPrefix = "tree/"

const (
	outcomeApplied   = "applied"
	outcomeDuplicate = "duplicate"
	outcomeContended = "contended"
	outcomeError     = "error"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pointsPoster interface {
	PostInTx(ctx context.Context, tx *gorm.DB, input ledger.PostInput) (*models.LedgerEntry, error)
}

// Service applies sales to the referral tree and keeps tiers current.
type Service interface {
	RecordSale(ctx context.Context, input RecordSaleInput) (*RecordSaleResult, error)
	RecomputeTier(ctx context.Context, memberID uuid.UUID) (*TierChange, error)
	ApplyPurchase(ctx context.Context, input ApplyPurchaseInput) (*ApplyPurchaseResult, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	locks   *locks.Table
	catalog *tiers.Catalog
	points  pointsPoster
	metrics *metrics.AggregationMetrics
}

// NewService builds an aggregation service with the required dependencies.
// lockTable must be the table the ledger service posts under; ApplyPurchase
// takes the buyer's ledger key from it to exclude concurrent postings.
func NewService(repo Repository, tx txRunner, lockTable *locks.Table, catalog *tiers.Catalog, points pointsPoster, m *metrics.AggregationMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("aggregation repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if lockTable == nil {
		return nil, fmt.Errorf("lock table required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("tier catalog required")
	}
	if points == nil {
		return nil, fmt.Errorf("points ledger required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		locks:   lockTable,
		catalog: catalog,
		points:  points,
		metrics: m,
	}, nil
}

func (s *service) RecordSale(ctx context.Context, input RecordSaleInput) (*RecordSaleResult, error) {
	start := time.Now()
	result, outcome, err := s.recordSale(ctx, input)
	s.metrics.ObserveRecordSale(outcome, time.Since(start))
	return result, err
}

func (s *service) recordSale(ctx context.Context, input RecordSaleInput) (*RecordSaleResult, string, error) {
	if strings.TrimSpace(input.EventKey) == "" {
		return nil, outcomeError, pkgerrors.New(pkgerrors.CodeValidation, "event key required")
	}
	if input.MemberID == uuid.Nil {
		return nil, outcomeError, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	if !input.Amount.IsPositive() {
		return nil, outcomeError, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	member, err := s.repo.FindMember(ctx, input.MemberID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, outcomeError, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, outcomeError, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}

	// Fast path: a replayed key never needs the chain locked.
	if _, err := s.repo.FindSaleEventByKey(ctx, input.EventKey); err == nil {
		s.metrics.IncDuplicateEvent()
		return nil, outcomeDuplicate, duplicateEventError(input.EventKey)
	} else if !db.IsNotFound(err) {
		return nil, outcomeError, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check event key")
	}

	// The whole ancestor chain is locked root to leaf. Every writer walks
	// the same direction, so overlapping chains queue instead of deadlock.
	keys := make([]string, 0, len(member.TeamPath)+1)
	for _, ancestorID := range member.TeamPath {
		keys = append(keys, lockPrefix+ancestorID.String())
	}
	keys = append(keys, lockPrefix+member.ID.String())

	release, err := s.locks.Acquire(ctx, keys...)
	if err != nil {
		if err == locks.ErrNotAcquired {
			s.metrics.IncContention()
			return nil, outcomeContended, pkgerrors.New(pkgerrors.CodeContention, "ancestor chain busy").
				WithDetails(map[string]any{"member_id": input.MemberID})
		}
		return nil, outcomeError, err
	}
	defer release()

	result := &RecordSaleResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.applySale(ctx, tx, input, result)
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeDuplicateEvent) {
			return nil, outcomeDuplicate, err
		}
		return nil, outcomeError, err
	}

	s.metrics.IncSaleRecorded()
	return result, outcomeApplied, nil
}

// applySale writes the sale event and the aggregate updates inside the
// caller's transaction. The caller must hold the chain locks for the
// transaction's duration.
func (s *service) applySale(ctx context.Context, tx *gorm.DB, input RecordSaleInput, result *RecordSaleResult) error {
	repo := s.repo.WithTx(tx)

	event, err := repo.CreateSaleEvent(ctx, &models.SaleEvent{
		ID:       uuid.New(),
		EventKey: input.EventKey,
		MemberID: input.MemberID,
		Amount:   input.Amount,
		NewBuyer: input.NewBuyer,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "uq_sale_events_event_key") {
			s.metrics.IncDuplicateEvent()
			return duplicateEventError(input.EventKey)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record sale event")
	}
	result.Event = event

	// Reload inside the transaction; the pre-lock read may be stale.
	seller, err := repo.FindMember(ctx, input.MemberID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload member")
	}
	ancestors, err := repo.FindMembers(ctx, seller.TeamPath)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load upline")
	}
	if len(ancestors) != len(seller.TeamPath) {
		s.metrics.IncInvariantViolation()
		return pkgerrors.New(pkgerrors.CodeInvariantViolation, "ancestor chain has missing members").
			WithDetails(map[string]any{"member_id": seller.ID})
	}

	countDelta := 0
	if input.NewBuyer {
		countDelta = 1
	}

	seller.DirectSales = seller.DirectSales.Add(input.Amount)
	seller.TeamSales = seller.TeamSales.Add(input.Amount)
	seller.DirectCount += countDelta
	seller.TeamCount += countDelta

	touched := make([]*models.Member, 0, len(ancestors)+1)
	touched = append(touched, seller)
	for i := range ancestors {
		ancestor := &ancestors[i]
		ancestor.TeamSales = ancestor.TeamSales.Add(input.Amount)
		ancestor.TeamCount += countDelta
		touched = append(touched, ancestor)
	}

	for _, m := range touched {
		if m.TeamSales.LessThan(m.DirectSales) || m.TeamCount < m.DirectCount {
			s.metrics.IncInvariantViolation()
			return pkgerrors.New(pkgerrors.CodeInvariantViolation, "team aggregates fell below direct aggregates").
				WithDetails(map[string]any{"member_id": m.ID})
		}
	}

	for _, m := range touched {
		updates := map[string]any{
			"team_sales": m.TeamSales,
			"team_count": m.TeamCount,
		}
		if m.ID == seller.ID {
			updates["direct_sales"] = m.DirectSales
			updates["direct_count"] = m.DirectCount
		}
		if newTier := s.catalog.TierForSales(m.TeamSales); newTier > m.Tier {
			result.Promotions = append(result.Promotions, TierChange{
				MemberID: m.ID,
				OldTier:  m.Tier,
				NewTier:  newTier,
			})
			m.Tier = newTier
			updates["tier"] = newTier
			s.metrics.IncTierPromotion(strconv.Itoa(newTier))
		}
		if err := repo.UpdateMember(ctx, m.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist aggregates")
		}
	}

	result.Member = seller
	return nil
}

// RecomputeTier re-derives one member's tier from their current team sales.
// Tiers never move down; a shrunk team keeps the highest tier earned.
func (s *service) RecomputeTier(ctx context.Context, memberID uuid.UUID) (*TierChange, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}

	release, err := s.locks.Acquire(ctx, lockPrefix+memberID.String())
	if err != nil {
		if err == locks.ErrNotAcquired {
			s.metrics.IncContention()
			return nil, pkgerrors.New(pkgerrors.CodeContention, "member busy")
		}
		return nil, err
	}
	defer release()

	change := &TierChange{MemberID: memberID}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		member, err := repo.FindMember(ctx, memberID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
		}

		change.OldTier = member.Tier
		change.NewTier = member.Tier
		if newTier := s.catalog.TierForSales(member.TeamSales); newTier > member.Tier {
			change.NewTier = newTier
			if err := repo.UpdateMember(ctx, memberID, map[string]any{"tier": newTier}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist tier")
			}
			s.metrics.IncTierPromotion(strconv.Itoa(newTier))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// ApplyPurchase runs the shop buy-in: the plan fee, discounted for the
// member's current tier, is debited from points and recorded as a sale under
// the given event key. Debit and sale share one transaction, so a retry after
// any failure finds either the committed event key or an untouched balance.
func (s *service) ApplyPurchase(ctx context.Context, input ApplyPurchaseInput) (*ApplyPurchaseResult, error) {
	if strings.TrimSpace(input.EventKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event key required")
	}
	if input.MemberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}

	member, err := s.repo.FindMember(ctx, input.MemberID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}

	// Fast path: a replayed key never needs anything locked.
	if _, err := s.repo.FindSaleEventByKey(ctx, input.EventKey); err == nil {
		s.metrics.IncDuplicateEvent()
		return nil, duplicateEventError(input.EventKey)
	} else if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check event key")
	}

	def, ok := s.catalog.Definition(member.Tier)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvariantViolation, "member tier not in catalog").
			WithDetails(map[string]any{"member_id": member.ID, "tier": member.Tier})
	}
	plan := s.catalog.Plan()
	fee := plan.DiscountedFee(def)

	meta, err := json.Marshal(map[string]any{"event_key": input.EventKey})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode purchase metadata")
	}

	// The ancestor chain and the buyer's ledger lock are taken together,
	// before any write. Contention surfaces here, never between the debit
	// and the sale.
	keys := make([]string, 0, len(member.TeamPath)+2)
	for _, ancestorID := range member.TeamPath {
		keys = append(keys, lockPrefix+ancestorID.String())
	}
	keys = append(keys, lockPrefix+member.ID.String(), ledger.LockKey(member.ID))

	release, err := s.locks.Acquire(ctx, keys...)
	if err != nil {
		if err == locks.ErrNotAcquired {
			s.metrics.IncContention()
			return nil, pkgerrors.New(pkgerrors.CodeContention, "member busy").
				WithDetails(map[string]any{"member_id": input.MemberID})
		}
		return nil, err
	}
	defer release()

	result := &ApplyPurchaseResult{
		Fee:       fee,
		Units:     plan.Units,
		GiftUnits: plan.GiftUnits(),
		Sale:      &RecordSaleResult{},
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := s.points.PostInTx(ctx, tx, ledger.PostInput{
			MemberID: input.MemberID,
			Delta:    fee.Neg(),
			Reason:   enums.LedgerReasonPurchase,
			Metadata: meta,
		})
		if err != nil {
			return err
		}
		result.Entry = entry
		return s.applySale(ctx, tx, RecordSaleInput{
			EventKey: input.EventKey,
			MemberID: input.MemberID,
			Amount:   fee,
			NewBuyer: input.NewBuyer,
		}, result.Sale)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncSaleRecorded()
	return result, nil
}

func duplicateEventError(eventKey string) error {
	return pkgerrors.New(pkgerrors.CodeDuplicateEvent, "sale event already applied").
		WithDetails(map[string]any{"event_key": eventKey})
}
