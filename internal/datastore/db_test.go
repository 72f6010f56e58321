package datastore

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: "file::memory:?cache=shared", Profile: ProfileStandard, Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestWalletRepoUpsertAndList(t *testing.T) {
	db := newTestDB(t)
	repo := NewWalletRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, domain.Wallet{Address: "5Wallet1", Label: "treasury", Active: true}))
	require.NoError(t, repo.Upsert(ctx, domain.Wallet{Address: "5Wallet1", Label: "treasury-renamed", Active: true}))

	got, err := repo.Get(ctx, "5Wallet1")
	require.NoError(t, err)
	require.Equal(t, "treasury-renamed", got.Label)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestWalletRepoActiveFiltersInactive(t *testing.T) {
	db := newTestDB(t)
	repo := NewWalletRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, domain.Wallet{Address: "5Active", Active: true}))
	require.NoError(t, repo.Upsert(ctx, domain.Wallet{Address: "5Inactive", Active: false}))

	active, err := repo.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "5Active", active[0].Address)
}

func TestSubnetRepoUpsertRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubnetRepo(db)
	ctx := context.Background()

	s := domain.Subnet{
		NetUID:           3,
		PoolTAOReserve:   money.NewTAO(1200.5),
		PoolAlphaReserve: 50000,
		AlphaPriceTAO:    money.NewTAO(0.024),
		EmissionShare:    money.NewPercent(0.012),
		OwnerTake:        money.NewPercent(0.18),
		HolderCount:      420,
		Flows:            domain.Flows{F1d: -0.05, F7d: 0.1},
		FlowRegime:       domain.RegimeNeutral,
		ViabilityTier:    domain.TierTwo,
	}
	require.NoError(t, repo.Upsert(ctx, s))

	got, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, 0, got.PoolTAOReserve.Cmp(money.NewTAO(1200.5)))
	require.Equal(t, domain.TierTwo, got.ViabilityTier)
	require.Equal(t, 420, got.HolderCount)
	require.False(t, got.IsRoot())
}

func TestSubnetRepoSnapshotIdempotentOnConflict(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubnetRepo(db)
	ctx := context.Background()

	snap := domain.SubnetSnapshot{NetUID: 1, PoolTAOReserve: money.NewTAO(10)}
	require.NoError(t, repo.InsertSnapshot(ctx, snap))
	require.NoError(t, repo.InsertSnapshot(ctx, snap)) // duplicate (netuid, timestamp) swallowed
}

func TestPositionRepoUpsertAndIsActive(t *testing.T) {
	db := newTestDB(t)
	repo := NewPositionRepo(db)
	ctx := context.Background()

	p := domain.Position{
		Wallet:          "5Wallet1",
		NetUID:          3,
		AlphaBalance:    120,
		TAOValueMid:     money.NewTAO(48.2),
		CostBasisTAO:    money.NewTAO(40),
		RecommendedAction: domain.ActionHold,
	}
	require.NoError(t, repo.Upsert(ctx, p))

	got, err := repo.Get(ctx, "5Wallet1", 3)
	require.NoError(t, err)
	require.True(t, got.IsActive())
	require.Equal(t, domain.ActionHold, got.RecommendedAction)

	p.AlphaBalance = 0
	require.NoError(t, repo.Upsert(ctx, p))
	got, err = repo.Get(ctx, "5Wallet1", 3)
	require.NoError(t, err)
	require.False(t, got.IsActive(), "zero-balance position must be retained, not deleted")
}

func TestStakeTransactionRepoInsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewStakeTransactionRepo(db)
	ctx := context.Background()

	limit := money.NewTAO(0.02)
	tx := domain.StakeTransaction{
		ExtrinsicID: "0xabc",
		BlockNumber: 100,
		Wallet:      "5Wallet1",
		NetUID:      3,
		Type:        domain.TxStake,
		AmountRao:   2_000_000_000,
		AmountTAO:   money.NewTAO(2),
		LimitPrice:  &limit,
		Success:     true,
	}
	require.NoError(t, repo.Insert(ctx, tx))
	require.NoError(t, repo.Insert(ctx, tx)) // duplicate extrinsic id, already-applied

	list, err := repo.ListByPosition(ctx, "5Wallet1", 3)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(100), list[0].BlockNumber)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	wallets := NewWalletRepo(db)
	require.NoError(t, wallets.Upsert(ctx, domain.Wallet{Address: "5Existing", Active: true}))

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := upsertWalletTx(tx, domain.Wallet{Address: "5ShouldNotPersist", Active: true}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := wallets.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "failed transaction must not leave a partial write behind")
}
