package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"powerperp/core/state"
	"powerperp/native/controller"
	"powerperp/native/crab"
	"powerperp/native/fixedpoint"
)

// simClock is a manually advanced clock shared by the engines and the oracle
// recorder while a scenario runs.
type simClock struct {
	mu sync.Mutex
	t  time.Time
}

func newSimClock(start time.Time) *simClock { return &simClock{t: start} }

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *simClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var (
	scenarioTrader     = common.HexToAddress("0x00000000000000000000000000000000000a0001")
	scenarioDepositor  = common.HexToAddress("0x00000000000000000000000000000000000a0002")
	scenarioLiquidator = common.HexToAddress("0x00000000000000000000000000000000000a0003")
)

// scenarioReport summarises one scenario run.
type scenarioReport struct {
	TraderVault   uint64
	Shares        *big.Int
	Hedge         *crab.HedgeResult
	Liquidation   *controller.LiquidationResult
	Withdrawn     *big.Int
	FinalNF       *big.Int
	StrategyVault *state.Vault
}

type scenarioStep struct {
	name string
	run  func(ctx context.Context) error
}

// runScenario walks a vault, a strategy deposit, a price move with its hedge
// and a liquidation through the engines at prices kept at funding parity.
// The node must run on clock and hold no state yet.
func runScenario(ctx context.Context, n *node, clock *simClock) (*scenarioReport, error) {
	params := n.ctrl.Params()
	strat := n.strategy.Params()
	report := &scenarioReport{}
	pool, ethPool := params.PowerPerpPool, n.funding.Params().EthQuotePool
	native, debt := params.NativeSymbol, params.DebtSymbol
	quote := n.funding.Params().QuoteSymbol
	var liquidityVenue common.Address
	if n.venue != nil {
		liquidityVenue = n.venue.Address()
	}

	setPrices := func(eth string) error {
		ethPrice := fixedpoint.MustParse(eth)
		perp, err := fixedpoint.Div(ethPrice, new(big.Int).Mul(fixedpoint.One(), new(big.Int).SetUint64(params.IndexScale)))
		if err != nil {
			return err
		}
		at := clock.Now()
		if err := n.recorder.Record(ethPool, native, quote, ethPrice, at); err != nil {
			return err
		}
		return n.recorder.Record(pool, debt, native, perp, at)
	}
	faucet := func(to common.Address, amount string) error {
		return n.mgr.Update(func(tx *state.Tx) error {
			return n.ctrl.NativeLedger().Mint(tx, to, fixedpoint.MustParse(amount))
		})
	}

	var lpVault uint64
	steps := []scenarioStep{
		{"seed prices", func(context.Context) error {
			if err := setPrices("3000"); err != nil {
				return err
			}
			clock.Advance(time.Duration(strat.AuctionTime) * time.Second)
			return nil
		}},
		{"fund accounts", func(context.Context) error {
			for addr, amount := range map[common.Address]string{
				scenarioTrader:     "100",
				scenarioDepositor:  "60",
				scenarioLiquidator: "1000",
			} {
				if err := faucet(addr, amount); err != nil {
					return err
				}
			}
			if liquidityVenue == (common.Address{}) {
				return nil
			}
			return faucet(liquidityVenue, "200")
		}},
		{"open trader vault", func(ctx context.Context) error {
			id, err := n.ctrl.Open(ctx, scenarioTrader)
			if err != nil {
				return err
			}
			report.TraderVault = id
			return n.ctrl.Mint(ctx, scenarioTrader, id, fixedpoint.MustParse("100"), fixedpoint.MustParse("45.1"))
		}},
		{"provide venue liquidity", func(ctx context.Context) error {
			id, err := n.ctrl.Open(ctx, scenarioLiquidator)
			if err != nil {
				return err
			}
			lpVault = id
			if err := n.ctrl.Mint(ctx, scenarioLiquidator, id, fixedpoint.MustParse("400"), fixedpoint.MustParse("400")); err != nil {
				return err
			}
			if liquidityVenue == (common.Address{}) {
				return nil
			}
			return n.mgr.Update(func(tx *state.Tx) error {
				return n.ctrl.DebtLedger().Transfer(tx, scenarioLiquidator, liquidityVenue, fixedpoint.MustParse("300"))
			})
		}},
		{"strategy deposit", func(ctx context.Context) error {
			shares, err := n.strategy.Deposit(ctx, scenarioDepositor, fixedpoint.MustParse("60"))
			report.Shares = shares
			return err
		}},
		{"price move", func(context.Context) error {
			clock.Advance(time.Duration(strat.HedgeTimeThreshold) * time.Second)
			if err := setPrices("3800"); err != nil {
				return err
			}
			clock.Advance(time.Duration(strat.AuctionTime) * time.Second)
			return nil
		}},
		{"time hedge", func(ctx context.Context) error {
			if n.venue == nil {
				n.logger.Info("scenario: skipping venue hedge, no venue configured")
				return nil
			}
			due, err := n.strategy.CheckTimeHedge(ctx)
			if err != nil {
				return err
			}
			if !due {
				return fmt.Errorf("expected a time hedge to be due")
			}
			report.Hedge, err = n.strategy.TimeHedgeOnVenue(ctx, scenarioLiquidator)
			return err
		}},
		{"liquidate trader", func(ctx context.Context) error {
			var err error
			report.Liquidation, err = n.ctrl.Liquidate(ctx, scenarioLiquidator, report.TraderVault, fixedpoint.MustParse("100"))
			return err
		}},
		{"strategy withdrawal", func(ctx context.Context) error {
			half := new(big.Int).Rsh(report.Shares, 1)
			var err error
			report.Withdrawn, err = n.strategy.Withdraw(ctx, scenarioDepositor, half)
			return err
		}},
		{"summarise", func(ctx context.Context) error {
			var err error
			if report.FinalNF, err = n.ctrl.RefreshFunding(ctx); err != nil {
				return err
			}
			st, err := n.strategy.State()
			if err != nil {
				return err
			}
			report.StrategyVault, err = n.ctrl.Vault(st.VaultID)
			return err
		}},
	}

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			return report, fmt.Errorf("scenario step %q: %w", step.name, err)
		}
		n.logger.Info("scenario step complete", slog.String("step", step.name))
	}
	n.logger.Info("scenario finished",
		slog.Uint64("liquidity_vault", lpVault),
		slog.String("normalization_factor", fixedpoint.Format(report.FinalNF)),
		slog.String("liquidation_paid", fixedpoint.Format(report.Liquidation.CollateralPaid)),
		slog.String("withdrawn", fixedpoint.Format(report.Withdrawn)))
	return report, nil
}
