package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/chuanlbx-ui/zhongdao-core/internal/ledger"
	"github.com/chuanlbx-ui/zhongdao-core/internal/members"
	"github.com/chuanlbx-ui/zhongdao-core/internal/tiers"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/config"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/db"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/enums"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/locks"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/logger"
)

// Seeds the first members of a fresh deployment: a root plus an optional
// signup bonus so the shop purchase flow can be exercised right away.
func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "seed"})

	_ = godotenv.Load()

	nickname := flag.String("nickname", "root", "nickname for the seeded member")
	parent := flag.String("parent", "", "optional referrer id; empty seeds a root")
	bonus := flag.String("bonus", "0", "signup bonus points credited to the member")
	flag.Parse()

	cfg, err := config.Load()
	fatalOn(ctx, logg, "load config", err)

	logg = logger.New(logger.Options{
		ServiceName: "seed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	// The catalog is validated here so a broken override file fails the
	// bootstrap rather than the first purchase.
	_, err = tiers.Load(cfg.Catalog.Path)
	fatalOn(ctx, logg, "load tier catalog", err)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	fatalOn(ctx, logg, "bootstrap database", err)
	defer dbClient.Close()

	membersService, err := members.NewService(members.NewRepository(dbClient.DB()), cfg.Aggregation.MaxDepth)
	fatalOn(ctx, logg, "create members service", err)

	input := members.AddMemberInput{Nickname: *nickname}
	if *parent != "" {
		parentID, err := uuid.Parse(*parent)
		fatalOn(ctx, logg, "parse parent id", err)
		input.ParentID = &parentID
	}

	member, err := membersService.AddMember(ctx, input)
	fatalOn(ctx, logg, "seed member", err)

	amount, err := decimal.NewFromString(*bonus)
	fatalOn(ctx, logg, "parse bonus", err)
	if amount.IsPositive() {
		ledgerService, err := ledger.NewService(
			ledger.NewRepository(dbClient.DB()),
			dbClient,
			locks.NewTable(5*time.Second),
			nil,
		)
		fatalOn(ctx, logg, "create ledger service", err)

		_, err = ledgerService.Post(ctx, ledger.PostInput{
			MemberID: member.ID,
			Delta:    amount,
			Reason:   enums.LedgerReasonSignupBonus,
		})
		fatalOn(ctx, logg, "credit signup bonus", err)
	}

	fmt.Println("seeded member:", member.ID)
}

func fatalOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, step, err)
	os.Exit(1)
}
