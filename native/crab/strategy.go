// Package crab runs a delta-neutral strategy on top of a single short vault.
// Depositors receive strategy shares plus the debt minted against their
// collateral; the strategy keeps 2*debt*price close to its collateral by
// auctioning debt to keepers, routing through a swap venue, or matching
// signed orders.
package crab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"powerperp/core/state"
	"powerperp/crypto"
	nativecommon "powerperp/native/common"
	"powerperp/native/controller"
	"powerperp/native/fixedpoint"
	"powerperp/native/oracle"
	"powerperp/native/swap"
	"powerperp/native/token"
	"powerperp/observability"
	powerotel "powerperp/observability/otel"
)

const moduleName = "crab"

type Strategy struct {
	ctrl     *controller.Controller
	oracle   oracle.Oracle
	venue    swap.Venue
	verifier crypto.SignatureVerifier
	params   Params
	shares   *token.Ledger
	pauses   nativecommon.PauseView
	logger   *slog.Logger
	metrics  *observability.PowerPerpMetrics
	tracer   trace.Tracer
	now      func() time.Time
}

func NewStrategy(ctrl *controller.Controller, feed oracle.Oracle, params Params) (*Strategy, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("crab: controller required")
	}
	if feed == nil {
		return nil, fmt.Errorf("crab: oracle required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Address == ctrl.Params().Address {
		return nil, fmt.Errorf("crab: strategy address collides with controller custody")
	}
	return &Strategy{
		ctrl:     ctrl,
		oracle:   feed,
		verifier: crypto.Secp256k1Verifier{},
		params:   params,
		shares:   token.NewLedger(params.ShareSymbol),
		logger:   slog.Default(),
		tracer:   powerotel.Tracer(),
		now:      time.Now,
	}, nil
}

// SetVenue enables the venue hedge paths.
func (s *Strategy) SetVenue(v swap.Venue) {
	if s == nil {
		return
	}
	s.venue = v
}

func (s *Strategy) SetVerifier(v crypto.SignatureVerifier) {
	if s == nil || v == nil {
		return
	}
	s.verifier = v
}

func (s *Strategy) SetPauses(p nativecommon.PauseView) {
	if s == nil {
		return
	}
	s.pauses = p
}

func (s *Strategy) SetLogger(logger *slog.Logger) {
	if s == nil || logger == nil {
		return
	}
	s.logger = logger
}

func (s *Strategy) SetMetrics(m *observability.PowerPerpMetrics) {
	if s == nil {
		return
	}
	s.metrics = m
}

func (s *Strategy) SetClock(now func() time.Time) {
	if s == nil || now == nil {
		return
	}
	s.now = now
}

func (s *Strategy) Params() Params { return s.params }

func (s *Strategy) ShareLedger() *token.Ledger { return s.shares }

func (s *Strategy) unix() uint64 { return uint64(s.now().Unix()) }

func (s *Strategy) guard() error {
	return nativecommon.Guard(s.pauses, moduleName)
}

func (s *Strategy) update(fn func(tx *state.Tx) error) error {
	return s.ctrl.Manager().Update(fn)
}

func (s *Strategy) view(fn func(tx *state.Tx) error) error {
	return s.ctrl.Manager().View(fn)
}

// State returns the persisted hedge bookkeeping.
func (s *Strategy) State() (*state.StrategyState, error) {
	var st *state.StrategyState
	err := s.view(func(tx *state.Tx) error {
		var err error
		st, err = s.loadState(tx)
		return err
	})
	return st, err
}

func (s *Strategy) loadState(tx *state.Tx) (*state.StrategyState, error) {
	st, ok, err := tx.StrategyState(s.params.Address)
	if err != nil {
		return nil, err
	}
	if !ok || !st.Initialized {
		return nil, ErrNotInitialized
	}
	return st, nil
}

// twap is the debt token price in native over the strategy's window.
func (s *Strategy) twap(ctx context.Context) (*big.Int, error) {
	p := s.ctrl.Params()
	price, err := s.oracle.GetTwap(ctx, p.PowerPerpPool, p.DebtSymbol, p.NativeSymbol, s.params.TwapPeriod)
	if err != nil {
		return nil, fmt.Errorf("crab: twap: %w", err)
	}
	return price, nil
}

// twapAt is the TWAP window ending at triggerTime.
func (s *Strategy) twapAt(ctx context.Context, triggerTime, now uint64) (*big.Int, error) {
	p := s.ctrl.Params()
	ago := now - triggerTime
	price, err := s.oracle.GetHistoricalTwap(ctx, p.PowerPerpPool, p.DebtSymbol, p.NativeSymbol, ago+s.params.TwapPeriod, ago)
	if err != nil {
		return nil, fmt.Errorf("crab: twap at trigger: %w", err)
	}
	return price, nil
}

// Deposit takes native collateral from caller, mints debt against it into the
// strategy vault, hands the debt to caller and issues shares pro rata. The
// first deposit sizes the debt so that 2*debt*price == collateral.
func (s *Strategy) Deposit(ctx context.Context, caller common.Address, amount *big.Int) (*big.Int, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	var minted, debtMinted *big.Int
	err := s.update(func(tx *state.Tx) error {
		sess := s.ctrl.Session(tx)
		addr := s.params.Address
		st, ok, err := tx.StrategyState(addr)
		if err != nil {
			return err
		}
		if !ok || !st.Initialized {
			id, err := sess.Open(addr)
			if err != nil {
				return err
			}
			st = &state.StrategyState{VaultID: id, Initialized: true}
		}
		vault, err := sess.Vault(st.VaultID)
		if err != nil {
			return err
		}
		supply, err := s.shares.TotalSupply(tx)
		if err != nil {
			return err
		}
		if supply.Sign() == 0 {
			price, err := s.twap(ctx)
			if err != nil {
				return err
			}
			if debtMinted, err = fixedpoint.Div(amount, new(big.Int).Lsh(price, 1)); err != nil {
				return err
			}
			minted = new(big.Int).Set(amount)
			st.TimeAtLastHedge = s.unix()
			st.PriceAtLastHedge = price
		} else {
			if vault.CollateralAmount.Sign() == 0 {
				return fmt.Errorf("crab: strategy vault holds no collateral")
			}
			if debtMinted, err = fixedpoint.MulDiv(vault.ShortAmount, amount, vault.CollateralAmount); err != nil {
				return err
			}
			if minted, err = fixedpoint.MulDiv(supply, amount, vault.CollateralAmount); err != nil {
				return err
			}
		}
		if err := s.ctrl.NativeLedger().Transfer(tx, caller, addr, amount); err != nil {
			return err
		}
		if err := sess.Mint(ctx, addr, st.VaultID, debtMinted, amount); err != nil {
			return err
		}
		if err := s.ctrl.DebtLedger().Transfer(tx, addr, caller, debtMinted); err != nil {
			return err
		}
		if err := s.shares.Mint(tx, caller, minted); err != nil {
			return err
		}
		return tx.PutStrategyState(addr, st)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("strategy deposit",
		slog.String("event_id", uuid.NewString()),
		slog.String("depositor", caller.Hex()),
		slog.String("collateral", fixedpoint.Format(amount)),
		slog.String("debt", fixedpoint.Format(debtMinted)),
		slog.String("shares", fixedpoint.Format(minted)))
	return minted, nil
}

// Withdraw redeems shares. The caller returns the proportional debt and
// receives the proportional collateral, which is returned.
func (s *Strategy) Withdraw(ctx context.Context, caller common.Address, shares *big.Int) (*big.Int, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	var collateral *big.Int
	err := s.update(func(tx *state.Tx) error {
		sess := s.ctrl.Session(tx)
		addr := s.params.Address
		st, err := s.loadState(tx)
		if err != nil {
			return err
		}
		supply, err := s.shares.TotalSupply(tx)
		if err != nil {
			return err
		}
		if err := s.shares.Burn(tx, caller, shares); err != nil {
			return err
		}
		vault, err := sess.Vault(st.VaultID)
		if err != nil {
			return err
		}
		debt := new(big.Int).Set(vault.ShortAmount)
		collateral = new(big.Int).Set(vault.CollateralAmount)
		if shares.Cmp(supply) < 0 {
			if debt, err = fixedpoint.MulDiv(vault.ShortAmount, shares, supply); err != nil {
				return err
			}
			if collateral, err = fixedpoint.MulDiv(vault.CollateralAmount, shares, supply); err != nil {
				return err
			}
		}
		if debt.Sign() == 0 && collateral.Sign() == 0 {
			return nil
		}
		if err := s.ctrl.DebtLedger().Transfer(tx, caller, addr, debt); err != nil {
			return err
		}
		if err := sess.Burn(ctx, addr, st.VaultID, debt, collateral); err != nil {
			return err
		}
		return s.ctrl.NativeLedger().Transfer(tx, addr, caller, collateral)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("strategy withdrawal",
		slog.String("event_id", uuid.NewString()),
		slog.String("owner", caller.Hex()),
		slog.String("shares", fixedpoint.Format(shares)),
		slog.String("collateral", fixedpoint.Format(collateral)))
	return collateral, nil
}

// CheckTimeHedge reports whether a time hedge could run now.
func (s *Strategy) CheckTimeHedge(ctx context.Context) (bool, error) {
	var ok bool
	err := s.view(func(tx *state.Tx) error {
		st, err := s.loadState(tx)
		if err != nil {
			if errors.Is(err, ErrNotInitialized) {
				return nil
			}
			return err
		}
		if s.unix() < s.timeTrigger(st) {
			return nil
		}
		ok, err = s.needsHedge(ctx, tx, st)
		return err
	})
	return ok, err
}

// CheckPriceHedge reports whether a price hedge triggered at triggerTime
// could run now.
func (s *Strategy) CheckPriceHedge(ctx context.Context, triggerTime uint64) (bool, error) {
	var ok bool
	err := s.view(func(tx *state.Tx) error {
		st, err := s.loadState(tx)
		if err != nil {
			if errors.Is(err, ErrNotInitialized) {
				return nil
			}
			return err
		}
		deviated, err := s.priceTriggered(ctx, st, triggerTime, s.unix())
		if err != nil {
			if nativecommon.Classify(err) == nativecommon.ClassPrecondition {
				return nil
			}
			return err
		}
		if !deviated {
			return nil
		}
		ok, err = s.needsHedge(ctx, tx, st)
		return err
	})
	return ok, err
}

func (s *Strategy) timeTrigger(st *state.StrategyState) uint64 {
	return st.TimeAtLastHedge + s.params.HedgeTimeThreshold
}

// priceTriggered evaluates the deviation at the TWAP ending at triggerTime.
func (s *Strategy) priceTriggered(ctx context.Context, st *state.StrategyState, triggerTime, now uint64) (bool, error) {
	if triggerTime <= st.TimeAtLastHedge || triggerTime > now {
		return false, fmt.Errorf("%w: %d outside (%d, %d]", ErrInvalidTriggerTime, triggerTime, st.TimeAtLastHedge, now)
	}
	price, err := s.twapAt(ctx, triggerTime, now)
	if err != nil {
		return false, err
	}
	return priceDeviated(price, st.PriceAtLastHedge, s.params.HedgePriceThreshold)
}

func (s *Strategy) needsHedge(ctx context.Context, tx *state.Tx, st *state.StrategyState) (bool, error) {
	vault, err := s.ctrl.Session(tx).Vault(st.VaultID)
	if err != nil {
		return false, err
	}
	price, err := s.twap(ctx)
	if err != nil {
		return false, err
	}
	direction, _, err := TargetHedge(vault.ShortAmount, vault.CollateralAmount, price)
	if err != nil {
		return false, err
	}
	return direction != DirectionNone, nil
}

// Quote previews the auction a keeper would face now. A zero triggerTime
// prices the time-hedge auction. Eligibility is not checked.
func (s *Strategy) Quote(ctx context.Context, triggerTime uint64) (*AuctionPlan, error) {
	var plan *AuctionPlan
	err := s.view(func(tx *state.Tx) error {
		st, err := s.loadState(tx)
		if err != nil {
			return err
		}
		if triggerTime == 0 {
			triggerTime = s.timeTrigger(st)
		}
		vault, err := s.ctrl.Session(tx).Vault(st.VaultID)
		if err != nil {
			return err
		}
		price, err := s.twap(ctx)
		if err != nil {
			return err
		}
		plan, err = PlanAuction(vault.ShortAmount, vault.CollateralAmount, price, s.unix(), triggerTime, s.params)
		return err
	})
	return plan, err
}
