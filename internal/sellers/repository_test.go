package sellers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/pkg/db/models"
)

func setupSellerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.SellerAccount{}))
	return conn
}

func seedSeller(t *testing.T, conn *gorm.DB) *models.SellerAccount {
	t.Helper()
	account := &models.SellerAccount{
		Email:       "seller@example.ch",
		DisplayName: "Testverkäufer",
	}
	repo, err := NewRepository(conn)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), account))
	return account
}

func TestCreateAssignsIDWhenMissing(t *testing.T) {
	conn := setupSellerTestDB(t)
	repo, err := NewRepository(conn)
	require.NoError(t, err)
	ctx := context.Background()

	account := &models.SellerAccount{
		Email:       "neu@example.ch",
		DisplayName: "Neuer Verkäufer",
	}
	require.NoError(t, repo.Create(ctx, account))
	assert.NotEqual(t, uuid.Nil, account.ID)

	found, err := repo.ByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "neu@example.ch", found.Email)
}

func TestSyncOnboardingMakesSellerPayoutReady(t *testing.T) {
	conn := setupSellerTestDB(t)
	repo, err := NewRepository(conn)
	require.NoError(t, err)
	ctx := context.Background()

	account := seedSeller(t, conn)
	assert.False(t, account.PayoutReady())

	updated, err := repo.SyncOnboarding(ctx, account.ID, "acct_123", true, true)
	require.NoError(t, err)
	assert.True(t, updated.PayoutReady())
	require.NotNil(t, updated.PayoutAccountRef)
	assert.Equal(t, "acct_123", *updated.PayoutAccountRef)

	found, err := repo.ByPayoutAccountRef(ctx, "acct_123")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
}

func TestSyncOnboardingKeepsExistingRefWhenEmpty(t *testing.T) {
	conn := setupSellerTestDB(t)
	repo, err := NewRepository(conn)
	require.NoError(t, err)
	ctx := context.Background()

	account := seedSeller(t, conn)
	_, err = repo.SyncOnboarding(ctx, account.ID, "acct_123", false, false)
	require.NoError(t, err)

	updated, err := repo.SyncOnboarding(ctx, account.ID, "", true, true)
	require.NoError(t, err)
	require.NotNil(t, updated.PayoutAccountRef)
	assert.Equal(t, "acct_123", *updated.PayoutAccountRef)
}

func TestBlockIsAppliedOnce(t *testing.T) {
	conn := setupSellerTestDB(t)
	repo, err := NewRepository(conn)
	require.NoError(t, err)
	ctx := context.Background()

	account := seedSeller(t, conn)
	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	changed, err := repo.Block(ctx, account.ID, "unpaid invoices", at)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Block(ctx, account.ID, "unpaid invoices", at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	found, err := repo.ByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, found.Blocked)
	require.NotNil(t, found.BlockedReason)
	assert.Equal(t, "unpaid invoices", *found.BlockedReason)
	require.NotNil(t, found.BlockedAt)
	assert.Equal(t, at, found.BlockedAt.UTC())
}

func TestUnblockClearsBlockState(t *testing.T) {
	conn := setupSellerTestDB(t)
	repo, err := NewRepository(conn)
	require.NoError(t, err)
	ctx := context.Background()

	account := seedSeller(t, conn)

	// Unblocking an unblocked seller changes nothing.
	changed, err := repo.Unblock(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = repo.Block(ctx, account.ID, "unpaid invoices", time.Now())
	require.NoError(t, err)

	changed, err = repo.Unblock(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	found, err := repo.ByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, found.Blocked)
	assert.Nil(t, found.BlockedReason)
	assert.Nil(t, found.BlockedAt)
}
