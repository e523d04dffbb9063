package crab

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"powerperp/core/state"
	"powerperp/native/controller"
	"powerperp/native/fixedpoint"
)

const (
	PathKeeper = "keeper"
	PathVenue  = "venue"
	PathOTC    = "otc"
)

type triggerKind uint8

const (
	triggerOnTime triggerKind = iota
	triggerOnPrice
)

func (k triggerKind) String() string {
	if k == triggerOnPrice {
		return "price"
	}
	return "time"
}

// HedgeResult summarises an executed hedge. Native is the collateral that
// entered or left the vault and Surplus what the caller kept on top.
type HedgeResult struct {
	Path      string
	Direction Direction
	Amount    *big.Int
	Price     *big.Int
	Native    *big.Int
	Surplus   *big.Int
}

// TimeHedge lets keeper take the time-triggered auction. isSelling states the
// strategy side the keeper expects; payment caps the native the keeper pays
// into a sell auction and only the exact proceeds are taken.
func (s *Strategy) TimeHedge(ctx context.Context, keeper common.Address, isSelling bool, limitPrice, payment *big.Int) (*HedgeResult, error) {
	return s.keeperHedge(ctx, keeper, triggerOnTime, 0, isSelling, limitPrice, payment)
}

// PriceHedge is TimeHedge for an auction opened by a price deviation observed
// at time at.
func (s *Strategy) PriceHedge(ctx context.Context, keeper common.Address, at uint64, isSelling bool, limitPrice, payment *big.Int) (*HedgeResult, error) {
	return s.keeperHedge(ctx, keeper, triggerOnPrice, at, isSelling, limitPrice, payment)
}

// TimeHedgeOnVenue executes the time auction against the configured venue at
// the auction price. Whatever the venue pays beyond that goes to caller.
func (s *Strategy) TimeHedgeOnVenue(ctx context.Context, caller common.Address) (*HedgeResult, error) {
	return s.venueHedge(ctx, caller, triggerOnTime, 0)
}

func (s *Strategy) PriceHedgeOnVenue(ctx context.Context, caller common.Address, at uint64) (*HedgeResult, error) {
	return s.venueHedge(ctx, caller, triggerOnPrice, at)
}

// prepare checks eligibility for the trigger and prices the auction.
func (s *Strategy) prepare(ctx context.Context, tx *state.Tx, kind triggerKind, at uint64) (*state.StrategyState, *AuctionPlan, error) {
	st, err := s.loadState(tx)
	if err != nil {
		return nil, nil, err
	}
	now := s.unix()
	switch kind {
	case triggerOnPrice:
		deviated, err := s.priceTriggered(ctx, st, at, now)
		if err != nil {
			return nil, nil, err
		}
		if !deviated {
			return nil, nil, fmt.Errorf("%w: price within threshold", ErrHedgeNotEligible)
		}
	default:
		at = s.timeTrigger(st)
		if now < at {
			return nil, nil, fmt.Errorf("%w: next time hedge at %d", ErrHedgeNotEligible, at)
		}
	}
	vault, err := s.ctrl.Session(tx).Vault(st.VaultID)
	if err != nil {
		return nil, nil, err
	}
	price, err := s.twap(ctx)
	if err != nil {
		return nil, nil, err
	}
	plan, err := PlanAuction(vault.ShortAmount, vault.CollateralAmount, price, now, at, s.params)
	if err != nil {
		return nil, nil, err
	}
	return st, plan, nil
}

func (s *Strategy) recordHedge(tx *state.Tx, st *state.StrategyState, price *big.Int) error {
	st.TimeAtLastHedge = s.unix()
	st.PriceAtLastHedge = new(big.Int).Set(price)
	return tx.PutStrategyState(s.params.Address, st)
}

func (s *Strategy) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("strategy", s.params.Address.Hex())))
}

func (s *Strategy) finish(span trace.Span, caller common.Address, trigger string, result *HedgeResult, err error) (*HedgeResult, error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.metrics.RecordHedge(result.Path, result.Direction.String())
	span.SetAttributes(
		attribute.String("hedge.path", result.Path),
		attribute.String("hedge.direction", result.Direction.String()))
	span.SetStatus(codes.Ok, "hedged")
	s.logger.Info("hedge executed",
		slog.String("event_id", uuid.NewString()),
		slog.String("path", result.Path),
		slog.String("trigger", trigger),
		slog.String("direction", result.Direction.String()),
		slog.String("caller", caller.Hex()),
		slog.String("amount", fixedpoint.Format(result.Amount)),
		slog.String("price", fixedpoint.Format(result.Price)),
		slog.String("native", fixedpoint.Format(result.Native)),
		slog.String("surplus", fixedpoint.Format(result.Surplus)))
	return result, nil
}

func (s *Strategy) keeperHedge(ctx context.Context, keeper common.Address, kind triggerKind, at uint64, isSelling bool, limitPrice, payment *big.Int) (*HedgeResult, error) {
	ctx, span := s.startSpan(ctx, "crab."+kind.String()+"_hedge")
	defer span.End()
	if err := s.guard(); err != nil {
		return s.finish(span, keeper, kind.String(), nil, err)
	}

	var result *HedgeResult
	err := s.update(func(tx *state.Tx) error {
		st, plan, err := s.prepare(ctx, tx, kind, at)
		if err != nil {
			return err
		}
		if directionFromSelling(isSelling) != plan.Direction {
			return fmt.Errorf("%w: auction is %s", ErrWrongAuctionType, plan.Direction)
		}
		sess := s.ctrl.Session(tx)
		addr := s.params.Address
		native, debt := s.ctrl.NativeLedger(), s.ctrl.DebtLedger()
		hasLimit := limitPrice != nil && limitPrice.Sign() > 0

		switch plan.Direction {
		case DirectionSell:
			if hasLimit && plan.AuctionPrice.Cmp(limitPrice) > 0 {
				return fmt.Errorf("%w: auction price %s above %s", ErrLimitPriceBreached, fixedpoint.Format(plan.AuctionPrice), fixedpoint.Format(limitPrice))
			}
			if payment == nil || payment.Cmp(plan.Proceeds) < 0 {
				return fmt.Errorf("%w: need %s", ErrInsufficientPayment, fixedpoint.Format(plan.Proceeds))
			}
			if err := native.Transfer(tx, keeper, addr, plan.Proceeds); err != nil {
				return err
			}
			if err := sess.Mint(ctx, addr, st.VaultID, plan.Amount, plan.Proceeds); err != nil {
				return err
			}
			if err := debt.Transfer(tx, addr, keeper, plan.Amount); err != nil {
				return err
			}
		case DirectionBuy:
			if payment != nil && payment.Sign() != 0 {
				return ErrUnexpectedPayment
			}
			if hasLimit && plan.AuctionPrice.Cmp(limitPrice) < 0 {
				return fmt.Errorf("%w: auction price %s below %s", ErrLimitPriceBreached, fixedpoint.Format(plan.AuctionPrice), fixedpoint.Format(limitPrice))
			}
			if err := debt.Transfer(tx, keeper, addr, plan.Amount); err != nil {
				return err
			}
			if err := sess.Burn(ctx, addr, st.VaultID, plan.Amount, plan.Proceeds); err != nil {
				return err
			}
			if err := native.Transfer(tx, addr, keeper, plan.Proceeds); err != nil {
				return err
			}
		}
		result = &HedgeResult{
			Path:      PathKeeper,
			Direction: plan.Direction,
			Amount:    plan.Amount,
			Price:     plan.AuctionPrice,
			Native:    plan.Proceeds,
			Surplus:   big.NewInt(0),
		}
		return s.recordHedge(tx, st, plan.AuctionPrice)
	})
	return s.finish(span, keeper, kind.String(), result, err)
}

func (s *Strategy) venueHedge(ctx context.Context, caller common.Address, kind triggerKind, at uint64) (*HedgeResult, error) {
	ctx, span := s.startSpan(ctx, "crab."+kind.String()+"_hedge_on_venue")
	defer span.End()
	if err := s.guard(); err != nil {
		return s.finish(span, caller, kind.String(), nil, err)
	}
	if s.venue == nil {
		return s.finish(span, caller, kind.String(), nil, ErrNoVenue)
	}

	var result *HedgeResult
	err := s.update(func(tx *state.Tx) error {
		st, plan, err := s.prepare(ctx, tx, kind, at)
		if err != nil {
			return err
		}
		sess := s.ctrl.Session(tx)
		addr := s.params.Address
		pool := s.venue.Address()
		native, debt := s.ctrl.NativeLedger(), s.ctrl.DebtLedger()
		var surplus *big.Int

		// The venue quotes before any token moves; the legs are settled
		// afterwards inside the same transaction.
		switch plan.Direction {
		case DirectionSell:
			out, err := s.venue.Swap(ctx, debt.Symbol(), native.Symbol(), plan.Amount, plan.AuctionPrice)
			if err != nil {
				return err
			}
			if out.Cmp(plan.Proceeds) < 0 {
				return fmt.Errorf("%w: venue paid %s", ErrLimitPriceBreached, fixedpoint.Format(out))
			}
			if err := native.Transfer(tx, pool, addr, out); err != nil {
				return err
			}
			if err := sess.Mint(ctx, addr, st.VaultID, plan.Amount, plan.Proceeds); err != nil {
				return err
			}
			if err := debt.Transfer(tx, addr, pool, plan.Amount); err != nil {
				return err
			}
			surplus = new(big.Int).Sub(out, plan.Proceeds)
			if err := native.Transfer(tx, addr, caller, surplus); err != nil {
				return err
			}
		case DirectionBuy:
			limit, err := fixedpoint.Div(fixedpoint.One(), plan.AuctionPrice)
			if err != nil {
				return err
			}
			out, err := s.venue.Swap(ctx, native.Symbol(), debt.Symbol(), plan.Proceeds, limit)
			if err != nil {
				return err
			}
			if out.Cmp(plan.Amount) < 0 {
				return fmt.Errorf("%w: venue returned %s debt", ErrLimitPriceBreached, fixedpoint.Format(out))
			}
			if err := debt.Transfer(tx, pool, addr, out); err != nil {
				return err
			}
			if err := sess.Burn(ctx, addr, st.VaultID, plan.Amount, plan.Proceeds); err != nil {
				return err
			}
			if err := native.Transfer(tx, addr, pool, plan.Proceeds); err != nil {
				return err
			}
			surplus = new(big.Int).Sub(out, plan.Amount)
			if err := debt.Transfer(tx, addr, caller, surplus); err != nil {
				return err
			}
		}
		result = &HedgeResult{
			Path:      PathVenue,
			Direction: plan.Direction,
			Amount:    plan.Amount,
			Price:     plan.AuctionPrice,
			Native:    plan.Proceeds,
			Surplus:   surplus,
		}
		return s.recordHedge(tx, st, plan.AuctionPrice)
	})
	return s.finish(span, caller, kind.String(), result, err)
}

// HedgeOTC fills quantity of the current target hedge against signed orders
// at each order's own price. Only the strategy owner may call it. Orders are
// consumed in sequence and any failing order aborts the whole batch.
func (s *Strategy) HedgeOTC(ctx context.Context, caller common.Address, quantity, limitPrice *big.Int, isBuying bool, orders []*Order) (*HedgeResult, error) {
	ctx, span := s.startSpan(ctx, "crab.otc_hedge")
	defer span.End()
	if err := s.guard(); err != nil {
		return s.finish(span, caller, PathOTC, nil, err)
	}
	if caller != s.params.Owner || caller == (common.Address{}) {
		return s.finish(span, caller, PathOTC, nil, fmt.Errorf("%w: otc hedges are owner-only", ErrNotAuthorized))
	}
	if quantity == nil || quantity.Sign() <= 0 || limitPrice == nil || limitPrice.Sign() <= 0 {
		return s.finish(span, caller, PathOTC, nil, ErrInvalidAmount)
	}

	var result *HedgeResult
	err := s.update(func(tx *state.Tx) error {
		st, err := s.loadState(tx)
		if err != nil {
			return err
		}
		now := s.unix()
		price, err := s.twap(ctx)
		if err != nil {
			return err
		}
		eligible := now >= s.timeTrigger(st)
		if !eligible {
			if eligible, err = priceDeviated(price, st.PriceAtLastHedge, s.params.HedgePriceThreshold); err != nil {
				return err
			}
		}
		if !eligible {
			return ErrHedgeNotEligible
		}
		sess := s.ctrl.Session(tx)
		vault, err := sess.Vault(st.VaultID)
		if err != nil {
			return err
		}
		direction, target, err := TargetHedge(vault.ShortAmount, vault.CollateralAmount, price)
		if err != nil {
			return err
		}
		if direction == DirectionNone {
			return ErrAlreadyNeutral
		}
		if directionFromSelling(!isBuying) != direction {
			return fmt.Errorf("%w: target hedge is %s", ErrWrongAuctionType, direction)
		}
		if quantity.Cmp(target) > 0 {
			return fmt.Errorf("%w: %s > %s", ErrQuantityExceedsTarget, fixedpoint.Format(quantity), fixedpoint.Format(target))
		}
		if err := s.checkTolerance(limitPrice, price, direction); err != nil {
			return err
		}

		remaining := new(big.Int).Set(quantity)
		total := big.NewInt(0)
		for i, order := range orders {
			if remaining.Sign() == 0 {
				break
			}
			if err := s.verifyOrder(tx, order, direction, now); err != nil {
				return fmt.Errorf("order %d: %w", i, err)
			}
			if (direction == DirectionSell && order.Price.Cmp(limitPrice) < 0) || (direction == DirectionBuy && order.Price.Cmp(limitPrice) > 0) {
				return fmt.Errorf("order %d: %w: price %s", i, ErrLimitPriceBreached, fixedpoint.Format(order.Price))
			}
			fill := fixedpoint.Min(remaining, order.Quantity)
			value, err := s.settleOrder(ctx, tx, sess, st.VaultID, order, direction, fill)
			if err != nil {
				return fmt.Errorf("order %d: %w", i, err)
			}
			remaining.Sub(remaining, fill)
			total.Add(total, value)
		}
		if remaining.Sign() > 0 {
			return fmt.Errorf("%w: %s unfilled", ErrInsufficientOrderQuantity, fixedpoint.Format(remaining))
		}
		result = &HedgeResult{
			Path:      PathOTC,
			Direction: direction,
			Amount:    new(big.Int).Set(quantity),
			Price:     new(big.Int).Set(limitPrice),
			Native:    total,
			Surplus:   big.NewInt(0),
		}
		return s.recordHedge(tx, st, limitPrice)
	})
	return s.finish(span, caller, PathOTC, result, err)
}

// checkTolerance keeps the clearing price within the configured band around
// the TWAP on the side that would hurt the strategy.
func (s *Strategy) checkTolerance(limitPrice, twap *big.Int, direction Direction) error {
	switch direction {
	case DirectionSell:
		floorMul, err := fixedpoint.Sub(fixedpoint.One(), s.params.OTCPriceTolerance)
		if err != nil {
			return err
		}
		floor, err := fixedpoint.Mul(twap, floorMul)
		if err != nil {
			return err
		}
		if limitPrice.Cmp(floor) < 0 {
			return fmt.Errorf("%w: %s below %s", ErrPriceOutOfTolerance, fixedpoint.Format(limitPrice), fixedpoint.Format(floor))
		}
	case DirectionBuy:
		ceilMul, err := fixedpoint.Add(fixedpoint.One(), s.params.OTCPriceTolerance)
		if err != nil {
			return err
		}
		ceil, err := fixedpoint.Mul(twap, ceilMul)
		if err != nil {
			return err
		}
		if limitPrice.Cmp(ceil) > 0 {
			return fmt.Errorf("%w: %s above %s", ErrPriceOutOfTolerance, fixedpoint.Format(limitPrice), fixedpoint.Format(ceil))
		}
	}
	return nil
}

// settleOrder books one fill. A selling strategy mints the debt it hands to a
// buying trader; a buying strategy burns the debt it pulls from the trader.
// Counter-party legs move through allowances granted to the strategy.
func (s *Strategy) settleOrder(ctx context.Context, tx *state.Tx, sess *controller.Session, vaultID uint64, order *Order, direction Direction, fill *big.Int) (*big.Int, error) {
	addr := s.params.Address
	native, debt := s.ctrl.NativeLedger(), s.ctrl.DebtLedger()
	value, err := fixedpoint.Mul(fill, order.Price)
	if err != nil {
		return nil, err
	}
	if direction == DirectionSell {
		if err := native.TransferFrom(tx, addr, order.Trader, addr, value); err != nil {
			return nil, err
		}
		if err := sess.Mint(ctx, addr, vaultID, fill, value); err != nil {
			return nil, err
		}
		if err := debt.Transfer(tx, addr, order.Trader, fill); err != nil {
			return nil, err
		}
		return value, nil
	}
	if err := debt.TransferFrom(tx, addr, order.Trader, addr, fill); err != nil {
		return nil, err
	}
	if err := sess.Burn(ctx, addr, vaultID, fill, value); err != nil {
		return nil, err
	}
	if err := native.Transfer(tx, addr, order.Trader, value); err != nil {
		return nil, err
	}
	return value, nil
}
