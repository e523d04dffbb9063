package main

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"powerperp/config"
	"powerperp/core/state"
	"powerperp/native/crab"
	"powerperp/native/fixedpoint"
	"powerperp/native/swap"
	"powerperp/storage"
)

var testVenue = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestNode(t *testing.T, withVenue bool) (*node, *simClock) {
	t.Helper()
	cfg := config.Default()
	cfg.Storage = config.Storage{Backend: "mem"}
	if withVenue {
		cfg.Venue.Address = testVenue.Hex()
	}
	require.NoError(t, cfg.Validate())
	clock := newSimClock(time.Unix(1_700_000_000, 0))
	n, err := newNode(cfg, storage.NewMemDB(), clock.Now, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n, clock
}

func TestScenarioWithVenue(t *testing.T) {
	n, clock := newTestNode(t, true)
	report, err := runScenario(context.Background(), n, clock)
	require.NoError(t, err)

	require.Equal(t, fixedpoint.MustParse("60"), report.Shares)
	require.NotNil(t, report.Hedge)
	require.Equal(t, crab.PathVenue, report.Hedge.Path)
	require.Equal(t, crab.DirectionBuy, report.Hedge.Direction)
	require.Positive(t, report.Hedge.Surplus.Sign())

	require.Equal(t, fixedpoint.MustParse("50"), report.Liquidation.DebtRepaid)
	require.Equal(t, fixedpoint.MustParse("20.9"), report.Liquidation.CollateralPaid)
	require.False(t, report.Liquidation.Saved)

	require.Equal(t, fixedpoint.One(), report.FinalNF)
	require.Positive(t, report.Withdrawn.Sign())
	require.Negative(t, report.StrategyVault.ShortAmount.Cmp(fixedpoint.MustParse("50")))

	trader, err := n.ctrl.Vault(report.TraderVault)
	require.NoError(t, err)
	require.Equal(t, fixedpoint.MustParse("50"), trader.ShortAmount)
	require.Equal(t, fixedpoint.MustParse("24.2"), trader.CollateralAmount)

	hedged, err := n.keeperTick(context.Background())
	require.NoError(t, err)
	require.False(t, hedged, "hedge already executed this window")
}

func TestKeeperHedgesWhenVenueAttached(t *testing.T) {
	n, clock := newTestNode(t, false)
	report, err := runScenario(context.Background(), n, clock)
	require.NoError(t, err)
	require.Nil(t, report.Hedge)
	require.Equal(t, fixedpoint.MustParse("50"), report.StrategyVault.ShortAmount)
	require.Equal(t, fixedpoint.MustParse("30"), report.StrategyVault.CollateralAmount)

	hedged, err := n.keeperTick(context.Background())
	require.NoError(t, err)
	require.False(t, hedged)

	venue, err := swap.NewOracleVenue(testVenue, n.ctrl.Params().PowerPerpPool, n.recorder, 0)
	require.NoError(t, err)
	n.strategy.SetVenue(venue)
	n.venue = venue
	n.keeper = common.HexToAddress("0x0000000000000000000000000000000000000cee")
	require.NoError(t, n.mgr.Update(func(tx *state.Tx) error {
		return n.ctrl.DebtLedger().Transfer(tx, scenarioLiquidator, testVenue, fixedpoint.MustParse("300"))
	}))

	hedged, err = n.keeperTick(context.Background())
	require.NoError(t, err)
	require.True(t, hedged)

	st, err := n.strategy.State()
	require.NoError(t, err)
	require.Equal(t, uint64(clock.Now().Unix()), st.TimeAtLastHedge)
	vault, err := n.ctrl.Vault(st.VaultID)
	require.NoError(t, err)
	require.Negative(t, vault.ShortAmount.Cmp(fixedpoint.MustParse("50")))

	var surplus *big.Int
	require.NoError(t, n.mgr.View(func(tx *state.Tx) error {
		var err error
		surplus, err = n.ctrl.DebtLedger().BalanceOf(tx, n.keeper)
		return err
	}))
	require.Positive(t, surplus.Sign())
}

func TestOpenDatabaseBackends(t *testing.T) {
	dir := t.TempDir()
	for _, cfg := range []config.Storage{
		{Backend: "mem"},
		{Backend: "leveldb", Path: dir + "/level"},
		{Backend: "bolt", Path: dir + "/state.bolt"},
	} {
		db, err := openDatabase(cfg)
		require.NoError(t, err, cfg.Backend)
		require.NoError(t, db.Put([]byte("k"), []byte("v")))
		require.NoError(t, db.Close())
	}
	_, err := openDatabase(config.Storage{Backend: "redis"})
	require.Error(t, err)
}

func TestSeedLookbackCoversHedgeWindows(t *testing.T) {
	cfg := config.Default()
	want := time.Duration(cfg.Strategy.HedgeTimeThreshold+cfg.Strategy.AuctionTime+cfg.Strategy.TwapPeriod) * time.Second
	require.Equal(t, want, seedLookback(cfg))

	n, err := newNode(cfg, storage.NewMemDB(), time.Now, quietLogger())
	require.NoError(t, err)
	defer n.Close()
	require.NoError(t, n.seedPrices(cfg, time.Now().Add(-seedLookback(cfg))))
	nf, err := n.ctrl.RefreshFunding(context.Background())
	require.NoError(t, err)
	require.Equal(t, fixedpoint.One(), nf)
}

func TestKeeperPriceHedge(t *testing.T) {
	n, clock := newTestNode(t, true)
	_, err := runScenario(context.Background(), n, clock)
	require.NoError(t, err)
	n.keeper = common.HexToAddress("0x0000000000000000000000000000000000000cee")

	before, err := n.strategy.State()
	require.NoError(t, err)
	short := func() *big.Int {
		vault, err := n.ctrl.Vault(before.VaultID)
		require.NoError(t, err)
		return vault.ShortAmount
	}
	shortBefore := short()

	// Back to 3000 well inside the time threshold; the move from the last
	// hedge price exceeds the price threshold.
	params := n.ctrl.Params()
	fund := n.funding.Params()
	clock.Advance(100 * time.Second)
	require.NoError(t, n.recorder.Record(fund.EthQuotePool, params.NativeSymbol, fund.QuoteSymbol, fixedpoint.MustParse("3000"), clock.Now()))
	require.NoError(t, n.recorder.Record(params.PowerPerpPool, params.DebtSymbol, params.NativeSymbol, fixedpoint.MustParse("0.3"), clock.Now()))
	clock.Advance(time.Duration(n.strategy.Params().AuctionTime+500) * time.Second)

	due, err := n.strategy.CheckTimeHedge(context.Background())
	require.NoError(t, err)
	require.False(t, due)

	hedged, err := n.keeperTick(context.Background())
	require.NoError(t, err)
	require.True(t, hedged)

	after, err := n.strategy.State()
	require.NoError(t, err)
	require.Equal(t, uint64(clock.Now().Unix()), after.TimeAtLastHedge)
	require.Positive(t, short().Cmp(shortBefore), "a falling price makes the strategy sell debt")

	var surplus *big.Int
	require.NoError(t, n.mgr.View(func(tx *state.Tx) error {
		var err error
		surplus, err = n.ctrl.NativeLedger().BalanceOf(tx, n.keeper)
		return err
	}))
	require.Positive(t, surplus.Sign())

	hedged, err = n.keeperTick(context.Background())
	require.NoError(t, err)
	require.False(t, hedged)
}
