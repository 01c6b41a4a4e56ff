package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/pulkyeet/flasharb/internal/whitelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "flasharb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWhitelistStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := db.Whitelist()

	usdt := common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	entry := whitelist.Entry{
		Token:         usdt,
		MinimumProfit: uint256.MustFromDecimal("500000000000000000"),
		UpdatedAt:     time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, store.Save(entry))

	// replace, not duplicate
	entry.MinimumProfit = uint256.MustFromDecimal("600000000000000000")
	require.NoError(t, store.Save(entry))

	got, err := store.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, usdt, got[0].Token)
	assert.Equal(t, "600000000000000000", got[0].MinimumProfit.Dec())
	assert.Equal(t, entry.UpdatedAt, got[0].UpdatedAt)
}

func TestRegistryPersistsThroughRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wl.db")
	admin := common.HexToAddress("0xad")
	busd := common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56")

	db, err := Open(path)
	require.NoError(t, err)
	reg, err := whitelist.NewRegistry(admin, db.Whitelist(), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, reg.AddBaseToken(admin, busd, uint256.NewInt(77)))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	reg, err = whitelist.NewRegistry(admin, db.Whitelist(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, reg.IsApproved(busd))
	assert.Equal(t, uint64(77), reg.MinimumProfit(busd).Uint64())
}

func TestReserveCache(t *testing.T) {
	db := openTestDB(t)
	pool := common.HexToAddress("0x16b9a82891338f9bA80E2D6970FddA79D1eb0daE")

	_, ok, err := db.GetReserves(10, pool)
	require.NoError(t, err)
	assert.False(t, ok)

	r := amm.NewReserves(uint256.MustFromDecimal("7125266306543071511642537"), uint256.NewInt(5), 10)
	require.NoError(t, db.SetReserves(pool, r))

	got, ok, err := db.GetReserves(10, pool)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r, got)

	other := amm.Pool{Address: common.HexToAddress("0x01"), Reserves: amm.NewReserves(uint256.NewInt(1), uint256.NewInt(2), 11)}
	require.NoError(t, db.BatchSetReserves([]amm.Pool{other, {Address: pool, Reserves: amm.NewReserves(uint256.NewInt(3), uint256.NewInt(4), 11)}}))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats["reserve_entries"])
	assert.Equal(t, int64(0), stats["base_tokens"])
}
