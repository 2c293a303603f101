package members

import (
	"context"
	"testing"
	"time"

	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupMembersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS members (
  id TEXT PRIMARY KEY,
  parent_id TEXT,
  nickname TEXT NOT NULL,
  tier INTEGER NOT NULL DEFAULT 1,
  team_path TEXT NOT NULL,
  depth INTEGER NOT NULL,
  direct_sales TEXT NOT NULL,
  team_sales TEXT NOT NULL,
  direct_count INTEGER NOT NULL DEFAULT 0,
  team_count INTEGER NOT NULL DEFAULT 0,
  points_balance TEXT NOT NULL,
  points_frozen TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(ddl).Error)
	require.NoError(t, db.Exec("DELETE FROM members").Error)
	return db
}

func newTestMember(nickname string, parent *models.Member) *models.Member {
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

func TestRepositoryCreateAndFind(t *testing.T) {
	db := setupMembersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	root := newTestMember("root", nil)
	_, err := repo.Create(ctx, root)
	require.NoError(t, err)

	child := newTestMember("child", root)
	_, err = repo.Create(ctx, child)
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, child.ID, found.ID)
	require.NotNil(t, found.ParentID)
	assert.Equal(t, root.ID, *found.ParentID)
	require.Len(t, found.TeamPath, 1)
	assert.Equal(t, root.ID, found.TeamPath[0])
	assert.Equal(t, 2, found.Depth)
}

func TestRepositoryCreateDuplicateID(t *testing.T) {
	db := setupMembersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	member := newTestMember("first", nil)
	_, err := repo.Create(ctx, member)
	require.NoError(t, err)

	dup := newTestMember("second", nil)
	dup.ID = member.ID
	_, err = repo.Create(ctx, dup)
	require.Error(t, err)
}

func TestRepositoryFindByIDsAndExists(t *testing.T) {
	db := setupMembersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	a := newTestMember("a", nil)
	b := newTestMember("b", nil)
	for _, m := range []*models.Member{a, b} {
		_, err := repo.Create(ctx, m)
		require.NoError(t, err)
	}

	rows, err := repo.FindByIDs(ctx, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	ok, err := repo.Exists(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryListChildrenPagination(t *testing.T) {
	db := setupMembersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	root := newTestMember("root", nil)
	_, err := repo.Create(ctx, root)
	require.NoError(t, err)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		child := newTestMember("child", root)
		child.CreatedAt = base.Add(time.Duration(i) * time.Second)
		child.UpdatedAt = child.CreatedAt
		_, err := repo.Create(ctx, child)
		require.NoError(t, err)
	}

	first, err := repo.ListChildren(ctx, root.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Members, 2)
	require.NotNil(t, first.NextCursor)

	second, err := repo.ListChildren(ctx, root.ID, pagination.Params{Limit: 2, Cursor: *first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Members, 1)
	assert.Nil(t, second.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, m := range append(first.Members, second.Members...) {
		seen[m.ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestRepositoryFindChildrenOrdering(t *testing.T) {
	db := setupMembersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	root := newTestMember("root", nil)
	_, err := repo.Create(ctx, root)
	require.NoError(t, err)

	base := time.Now().UTC().Truncate(time.Second)
	older := newTestMember("older", root)
	older.CreatedAt = base
	newer := newTestMember("newer", root)
	newer.CreatedAt = base.Add(time.Second)
	for _, m := range []*models.Member{newer, older} {
		_, err := repo.Create(ctx, m)
		require.NoError(t, err)
	}

	rows, err := repo.FindChildren(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "older", rows[0].Nickname)
	assert.Equal(t, "newer", rows[1].Nickname)
}
