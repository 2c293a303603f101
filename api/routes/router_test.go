package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/chuanlbx-ui/zhongdao-core/internal/aggregation"
	"github.com/chuanlbx-ui/zhongdao-core/internal/ledger"
	"github.com/chuanlbx-ui/zhongdao-core/internal/members"
	"github.com/chuanlbx-ui/zhongdao-core/internal/tiers"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/config"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/logger"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/pagination"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/redis"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubMembersService struct{}

func (stubMembersService) AddMember(ctx context.Context, input members.AddMemberInput) (*models.Member, error) {
	return &models.Member{ID: uuid.New(), Nickname: input.Nickname, Tier: 1}, nil
}

func (stubMembersService) GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	return &models.Member{ID: id, Nickname: "stub", Tier: 1}, nil
}

func (stubMembersService) GetAncestors(ctx context.Context, id uuid.UUID) ([]models.Member, error) {
	return nil, nil
}

func (stubMembersService) GetDescendants(ctx context.Context, id uuid.UUID, opts members.DescendantOptions) ([]models.Member, error) {
	return nil, nil
}

func (stubMembersService) ListChildren(ctx context.Context, id uuid.UUID, params pagination.Params) (*members.MemberList, error) {
	return &members.MemberList{}, nil
}

type stubAggregationService struct{}

func (stubAggregationService) RecordSale(ctx context.Context, input aggregation.RecordSaleInput) (*aggregation.RecordSaleResult, error) {
	return &aggregation.RecordSaleResult{}, nil
}

func (stubAggregationService) RecomputeTier(ctx context.Context, memberID uuid.UUID) (*aggregation.TierChange, error) {
	return &aggregation.TierChange{MemberID: memberID, OldTier: 1, NewTier: 1}, nil
}

func (stubAggregationService) ApplyPurchase(ctx context.Context, input aggregation.ApplyPurchaseInput) (*aggregation.ApplyPurchaseResult, error) {
	return &aggregation.ApplyPurchaseResult{}, nil
}

type stubLedgerService struct{}

func (stubLedgerService) Post(ctx context.Context, input ledger.PostInput) (*models.LedgerEntry, error) {
	return &models.LedgerEntry{MemberID: input.MemberID, Delta: input.Delta}, nil
}

func (stubLedgerService) PostInTx(ctx context.Context, tx *gorm.DB, input ledger.PostInput) (*models.LedgerEntry, error) {
	return &models.LedgerEntry{MemberID: input.MemberID, Delta: input.Delta}, nil
}

func (stubLedgerService) Transfer(ctx context.Context, input ledger.TransferInput) (*ledger.TransferResult, error) {
	return &ledger.TransferResult{}, nil
}

func (stubLedgerService) History(ctx context.Context, memberID uuid.UUID, params pagination.Params) (*ledger.EntryList, error) {
	return &ledger.EntryList{}, nil
}

func (stubLedgerService) Replay(ctx context.Context, memberID uuid.UUID) (*ledger.ReplayResult, error) {
	return &ledger.ReplayResult{MemberID: memberID, Balance: decimal.Zero}, nil
}

func (stubLedgerService) Reconcile(ctx context.Context, memberID uuid.UUID) (*ledger.ReconcileResult, error) {
	return &ledger.ReconcileResult{MemberID: memberID, Consistent: true}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		(*redis.Client)(nil),
		tiers.Default(),
		stubMembersService{},
		stubAggregationService{},
		stubLedgerService{},
		nil,
	)
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if env := resp.Header().Get("X-Zhongdao-Env"); env != "test" {
		t.Fatalf("expected env header test got %q", env)
	}
}

func TestPublicPing(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/public/ping", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPublicTierCatalog(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/public/tiers", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "cloud_shop") {
		t.Fatalf("expected catalog body, got %s", resp.Body.String())
	}
}

func TestSaleRequiresIdempotencyKey(t *testing.T) {
	router := newTestRouter(testConfig())
	body := `{"event_key":"ek-1","member_id":"` + uuid.NewString() + `","amount":"100"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key got %d", resp.Code)
	}
}

func TestMemberGetRejectsMalformedID(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/not-a-uuid", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMemberGetRoutes(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/"+uuid.NewString(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
