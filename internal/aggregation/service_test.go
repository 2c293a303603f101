package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/chuanlbx-ui/zhongdao-core/internal/ledger"
	"github.com/chuanlbx-ui/zhongdao-core/internal/tiers"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	pkgerrors "github.com/chuanlbx-ui/zhongdao-core/pkg/errors"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/locks"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type stubAggregationRepo struct {
	members map[uuid.UUID]*models.Member
	events  map[string]*models.SaleEvent
}

func newStubAggregationRepo(seed ...*models.Member) *stubAggregationRepo {
	repo := &stubAggregationRepo{
		members: make(map[uuid.UUID]*models.Member),
		events:  make(map[string]*models.SaleEvent),
	}
	for _, m := range seed {
		repo.members[m.ID] = m
	}
	return repo
}

func (s *stubAggregationRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubAggregationRepo) FindMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	member, ok := s.members[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *member
	return &copied, nil
}

func (s *stubAggregationRepo) FindMembers(ctx context.Context, ids []uuid.UUID) ([]models.Member, error) {
	var out []models.Member
	for _, id := range ids {
		if member, ok := s.members[id]; ok {
			out = append(out, *member)
		}
	}
	return out, nil
}

func (s *stubAggregationRepo) FindSaleEventByKey(ctx context.Context, eventKey string) (*models.SaleEvent, error) {
	event, ok := s.events[eventKey]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *event
	return &copied, nil
}

func (s *stubAggregationRepo) CreateSaleEvent(ctx context.Context, event *models.SaleEvent) (*models.SaleEvent, error) {
	if _, ok := s.events[event.EventKey]; ok {
		return nil, gorm.ErrDuplicatedKey
	}
	event.CreatedAt = time.Now().UTC()
	s.events[event.EventKey] = event
	return event, nil
}

func (s *stubAggregationRepo) UpdateMember(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	member, ok := s.members[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for column, value := range updates {
		switch column {
		case "direct_sales":
			member.DirectSales = value.(decimal.Decimal)
		case "team_sales":
			member.TeamSales = value.(decimal.Decimal)
		case "direct_count":
			member.DirectCount = value.(int)
		case "team_count":
			member.TeamCount = value.(int)
		case "tier":
			member.Tier = value.(int)
		}
	}
	return nil
}

type stubPointsPoster struct {
	repo    *stubAggregationRepo
	posts   []ledger.PostInput
	postErr error
}

func (s *stubPointsPoster) PostInTx(ctx context.Context, tx *gorm.DB, input ledger.PostInput) (*models.LedgerEntry, error) {
	if s.postErr != nil {
		return nil, s.postErr
	}
	member, ok := s.repo.members[input.MemberID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}
	balance := member.PointsBalance.Add(input.Delta)
	if balance.IsNegative() && !input.Reason.IsOverride() {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "balance cannot go negative")
	}
	member.PointsBalance = balance
	s.posts = append(s.posts, input)
	return &models.LedgerEntry{
		ID:           uuid.New(),
		MemberID:     input.MemberID,
		Delta:        input.Delta,
		Reason:       input.Reason,
		BalanceAfter: balance,
	}, nil
}

type aggTxRunner struct{}

func (aggTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func zeroMember(nickname string, parent *models.Member) *models.Member {
	m := &models.Member{
		ID:            uuid.New(),
		Nickname:      nickname,
		Tier:          1,
		TeamPath:      []uuid.UUID{},
		Depth:         1,
		DirectSales:   decimal.Zero,
		TeamSales:     decimal.Zero,
		PointsBalance: decimal.Zero,
		PointsFrozen:  decimal.Zero,
	}
	if parent != nil {
		m.ParentID = &parent.ID
		m.TeamPath = append(append([]uuid.UUID{}, parent.TeamPath...), parent.ID)
		m.Depth = parent.Depth + 1
	}
	return m
}

func newAggregationService(t *testing.T, repo *stubAggregationRepo) (Service, *stubPointsPoster) {
	t.Helper()
	poster := &stubPointsPoster{repo: repo}
	svc, err := NewService(repo, aggTxRunner{}, locks.NewTable(time.Second), tiers.Default(), poster, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, poster
}

func TestRecordSalePropagatesUpChain(t *testing.T) {
	root := zeroMember("root", nil)
	a := zeroMember("a", root)
	b := zeroMember("b", a)
	repo := newStubAggregationRepo(root, a, b)
	svc, _ := newAggregationService(t, repo)

	result, err := svc.RecordSale(context.Background(), RecordSaleInput{
		EventKey: "evt-1",
		MemberID: b.ID,
		Amount:   decimal.NewFromInt(100),
		NewBuyer: true,
	})
	if err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	if result.Event == nil || result.Event.EventKey != "evt-1" {
		t.Fatal("missing applied event")
	}

	seller := repo.members[b.ID]
	if !seller.DirectSales.Equal(decimal.NewFromInt(100)) || !seller.TeamSales.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("seller aggregates: direct %s team %s", seller.DirectSales, seller.TeamSales)
	}
	if seller.DirectCount != 1 || seller.TeamCount != 1 {
		t.Fatalf("seller counts: direct %d team %d", seller.DirectCount, seller.TeamCount)
	}

	for _, id := range []uuid.UUID{a.ID, root.ID} {
		up := repo.members[id]
		if !up.TeamSales.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("%s team sales = %s, want 100", up.Nickname, up.TeamSales)
		}
		if !up.DirectSales.IsZero() || up.DirectCount != 0 {
			t.Fatalf("%s direct aggregates must be untouched", up.Nickname)
		}
		if up.TeamCount != 1 {
			t.Fatalf("%s team count = %d, want 1", up.Nickname, up.TeamCount)
		}
	}
}

func TestRecordSaleDuplicateKeyAppliedOnce(t *testing.T) {
	member := zeroMember("solo", nil)
	repo := newStubAggregationRepo(member)
	svc, _ := newAggregationService(t, repo)
	ctx := context.Background()

	input := RecordSaleInput{
		EventKey: "evt-dup",
		MemberID: member.ID,
		Amount:   decimal.NewFromInt(40),
	}
	if _, err := svc.RecordSale(ctx, input); err != nil {
		t.Fatalf("first RecordSale: %v", err)
	}
	_, err := svc.RecordSale(ctx, input)
	if !pkgerrors.Is(err, pkgerrors.CodeDuplicateEvent) {
		t.Fatalf("expected DUPLICATE_EVENT, got %v", err)
	}
	if !repo.members[member.ID].DirectSales.Equal(decimal.NewFromInt(40)) {
		t.Fatal("replayed key must not change aggregates")
	}
}

func TestRecordSalePromotesAtInclusiveThreshold(t *testing.T) {
	member := zeroMember("seller", nil)
	member.TeamSales = decimal.NewFromInt(4900)
	member.DirectSales = decimal.NewFromInt(4900)
	repo := newStubAggregationRepo(member)
	svc, _ := newAggregationService(t, repo)

	result, err := svc.RecordSale(context.Background(), RecordSaleInput{
		EventKey: "evt-promote",
		MemberID: member.ID,
		Amount:   decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	if repo.members[member.ID].Tier != 2 {
		t.Fatalf("tier = %d, want 2 at exactly 5000", repo.members[member.ID].Tier)
	}
	if len(result.Promotions) != 1 || result.Promotions[0].NewTier != 2 {
		t.Fatalf("promotions: %+v", result.Promotions)
	}
}

func TestRecordSalePromotesUpline(t *testing.T) {
	root := zeroMember("root", nil)
	root.TeamSales = decimal.NewFromInt(14950)
	child := zeroMember("child", root)
	repo := newStubAggregationRepo(root, child)
	svc, _ := newAggregationService(t, repo)

	_, err := svc.RecordSale(context.Background(), RecordSaleInput{
		EventKey: "evt-upline",
		MemberID: child.ID,
		Amount:   decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	if repo.members[root.ID].Tier != 3 {
		t.Fatalf("root tier = %d, want 3", repo.members[root.ID].Tier)
	}
	if repo.members[child.ID].Tier != 1 {
		t.Fatalf("child tier = %d, want 1", repo.members[child.ID].Tier)
	}
}

func TestRecordSaleMissingAncestor(t *testing.T) {
	ghost := uuid.New()
	member := zeroMember("stranded", nil)
	member.TeamPath = []uuid.UUID{ghost}
	member.Depth = 2
	repo := newStubAggregationRepo(member)
	svc, _ := newAggregationService(t, repo)

	_, err := svc.RecordSale(context.Background(), RecordSaleInput{
		EventKey: "evt-ghost",
		MemberID: member.ID,
		Amount:   decimal.NewFromInt(10),
	})
	if !pkgerrors.Is(err, pkgerrors.CodeInvariantViolation) {
		t.Fatalf("expected INVARIANT_VIOLATION, got %v", err)
	}
}

func TestRecordSaleContention(t *testing.T) {
	member := zeroMember("busy", nil)
	repo := newStubAggregationRepo(member)
	poster := &stubPointsPoster{repo: repo}
	table := locks.NewTable(50 * time.Millisecond)
	svc, err := NewService(repo, aggTxRunner{}, table, tiers.Default(), poster, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	release, err := table.Acquire(context.Background(), lockPrefix+member.ID.String())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	_, err = svc.RecordSale(context.Background(), RecordSaleInput{
		EventKey: "evt-busy",
		MemberID: member.ID,
		Amount:   decimal.NewFromInt(10),
	})
	if !pkgerrors.Is(err, pkgerrors.CodeContention) {
		t.Fatalf("expected CONTENTION, got %v", err)
	}
}

func TestRecordSaleValidation(t *testing.T) {
	member := zeroMember("m", nil)
	svc, _ := newAggregationService(t, newStubAggregationRepo(member))
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, RecordSaleInput{MemberID: member.ID, Amount: decimal.NewFromInt(10)})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("missing key: expected VALIDATION_ERROR, got %v", err)
	}

	_, err = svc.RecordSale(ctx, RecordSaleInput{EventKey: "evt", MemberID: member.ID, Amount: decimal.NewFromInt(-5)})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("negative amount: expected VALIDATION_ERROR, got %v", err)
	}

	_, err = svc.RecordSale(ctx, RecordSaleInput{EventKey: "evt", MemberID: uuid.New(), Amount: decimal.NewFromInt(5)})
	if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("unknown member: expected NOT_FOUND, got %v", err)
	}
}

func TestRecomputeTierNeverDowngrades(t *testing.T) {
	member := zeroMember("earned", nil)
	member.Tier = 3
	member.TeamSales = decimal.NewFromInt(100)
	repo := newStubAggregationRepo(member)
	svc, _ := newAggregationService(t, repo)

	change, err := svc.RecomputeTier(context.Background(), member.ID)
	if err != nil {
		t.Fatalf("RecomputeTier: %v", err)
	}
	if change.OldTier != 3 || change.NewTier != 3 {
		t.Fatalf("tier change %d -> %d, want 3 -> 3", change.OldTier, change.NewTier)
	}
	if repo.members[member.ID].Tier != 3 {
		t.Fatal("tier must never move down")
	}
}

func TestRecomputeTierPromotes(t *testing.T) {
	member := zeroMember("catchup", nil)
	member.TeamSales = decimal.NewFromInt(6000)
	repo := newStubAggregationRepo(member)
	svc, _ := newAggregationService(t, repo)

	change, err := svc.RecomputeTier(context.Background(), member.ID)
	if err != nil {
		t.Fatalf("RecomputeTier: %v", err)
	}
	if change.OldTier != 1 || change.NewTier != 2 {
		t.Fatalf("tier change %d -> %d, want 1 -> 2", change.OldTier, change.NewTier)
	}
}

func TestApplyPurchaseDebitsDiscountedFee(t *testing.T) {
	member := zeroMember("buyer", nil)
	member.PointsBalance = decimal.NewFromInt(5000)
	repo := newStubAggregationRepo(member)
	svc, poster := newAggregationService(t, repo)

	result, err := svc.ApplyPurchase(context.Background(), ApplyPurchaseInput{
		EventKey: "buy-1",
		MemberID: member.ID,
		NewBuyer: true,
	})
	if err != nil {
		t.Fatalf("ApplyPurchase: %v", err)
	}

	// Tier 1 carries a 5% discount on the 5000 entry fee.
	if !result.Fee.Equal(decimal.NewFromInt(4750)) {
		t.Fatalf("fee = %s, want 4750", result.Fee)
	}
	if result.Units != 50 || result.GiftUnits != 5 {
		t.Fatalf("bundle %d units + %d gifts, want 50 + 5", result.Units, result.GiftUnits)
	}
	if !repo.members[member.ID].PointsBalance.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("balance = %s, want 250", repo.members[member.ID].PointsBalance)
	}
	if len(poster.posts) != 1 || !poster.posts[0].Delta.Equal(decimal.NewFromInt(-4750)) {
		t.Fatalf("unexpected ledger posts: %+v", poster.posts)
	}
	if !repo.members[member.ID].DirectSales.Equal(decimal.NewFromInt(4750)) {
		t.Fatal("purchase must be recorded as a sale")
	}
}

func TestApplyPurchaseReplayDoesNotDoubleDebit(t *testing.T) {
	member := zeroMember("buyer", nil)
	member.PointsBalance = decimal.NewFromInt(10000)
	repo := newStubAggregationRepo(member)
	svc, poster := newAggregationService(t, repo)
	ctx := context.Background()

	input := ApplyPurchaseInput{EventKey: "buy-dup", MemberID: member.ID}
	if _, err := svc.ApplyPurchase(ctx, input); err != nil {
		t.Fatalf("first ApplyPurchase: %v", err)
	}
	_, err := svc.ApplyPurchase(ctx, input)
	if !pkgerrors.Is(err, pkgerrors.CodeDuplicateEvent) {
		t.Fatalf("expected DUPLICATE_EVENT, got %v", err)
	}
	if len(poster.posts) != 1 {
		t.Fatalf("replay debited again: %d posts", len(poster.posts))
	}
}

func TestApplyPurchaseContentionThenRetryDebitsOnce(t *testing.T) {
	member := zeroMember("buyer", nil)
	member.PointsBalance = decimal.NewFromInt(5000)
	repo := newStubAggregationRepo(member)
	poster := &stubPointsPoster{repo: repo}
	table := locks.NewTable(50 * time.Millisecond)
	svc, err := NewService(repo, aggTxRunner{}, table, tiers.Default(), poster, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	release, err := table.Acquire(ctx, lockPrefix+member.ID.String())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	input := ApplyPurchaseInput{EventKey: "buy-retry", MemberID: member.ID}
	_, err = svc.ApplyPurchase(ctx, input)
	if !pkgerrors.Is(err, pkgerrors.CodeContention) {
		t.Fatalf("expected CONTENTION, got %v", err)
	}
	if len(poster.posts) != 0 {
		t.Fatalf("contended purchase must not debit: %d posts", len(poster.posts))
	}
	if !repo.members[member.ID].PointsBalance.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("balance = %s, want untouched 5000", repo.members[member.ID].PointsBalance)
	}
	release()

	// Nothing committed, so the same key retried is a fresh purchase and the
	// fee comes off exactly once.
	result, err := svc.ApplyPurchase(ctx, input)
	if err != nil {
		t.Fatalf("retry ApplyPurchase: %v", err)
	}
	if len(poster.posts) != 1 || !result.Fee.Equal(decimal.NewFromInt(4750)) {
		t.Fatalf("retry debited %d times, fee %s", len(poster.posts), result.Fee)
	}
	if !repo.members[member.ID].PointsBalance.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("balance = %s, want 250 after one debit", repo.members[member.ID].PointsBalance)
	}
}

func TestApplyPurchaseGuardsLedgerLock(t *testing.T) {
	member := zeroMember("buyer", nil)
	member.PointsBalance = decimal.NewFromInt(5000)
	repo := newStubAggregationRepo(member)
	poster := &stubPointsPoster{repo: repo}
	table := locks.NewTable(50 * time.Millisecond)
	svc, err := NewService(repo, aggTxRunner{}, table, tiers.Default(), poster, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	// A concurrent posting holding the member's ledger lock defers the
	// purchase as a whole.
	release, err := table.Acquire(context.Background(), ledger.LockKey(member.ID))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	_, err = svc.ApplyPurchase(context.Background(), ApplyPurchaseInput{
		EventKey: "buy-locked",
		MemberID: member.ID,
	})
	if !pkgerrors.Is(err, pkgerrors.CodeContention) {
		t.Fatalf("expected CONTENTION, got %v", err)
	}
	if len(poster.posts) != 0 {
		t.Fatal("contended purchase must not debit")
	}
}

func TestApplyPurchaseInsufficientBalance(t *testing.T) {
	member := zeroMember("broke", nil)
	member.PointsBalance = decimal.NewFromInt(100)
	repo := newStubAggregationRepo(member)
	svc, _ := newAggregationService(t, repo)

	_, err := svc.ApplyPurchase(context.Background(), ApplyPurchaseInput{
		EventKey: "buy-broke",
		MemberID: member.ID,
	})
	if !pkgerrors.Is(err, pkgerrors.CodeInsufficientBalance) {
		t.Fatalf("expected INSUFFICIENT_BALANCE, got %v", err)
	}
	if !repo.members[member.ID].DirectSales.IsZero() {
		t.Fatal("failed purchase must not record a sale")
	}
}
