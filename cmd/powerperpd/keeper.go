package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "powerperp/native/common"
	"powerperp/native/crab"
	"powerperp/native/fixedpoint"
	"powerperp/native/swap"
)

// keeperTick refreshes funding and runs a venue hedge when one is due. A
// due time hedge takes precedence over a price hedge. It reports whether a
// hedge executed.
func (n *node) keeperTick(ctx context.Context) (bool, error) {
	nf, err := n.ctrl.RefreshFunding(ctx)
	if err != nil {
		return false, err
	}
	n.logger.Debug("funding refreshed", slog.String("normalization_factor", fixedpoint.Format(nf)))

	trigger := "time"
	due, err := n.strategy.CheckTimeHedge(ctx)
	if err != nil {
		return false, err
	}
	var at uint64
	if !due {
		if at, due, err = n.priceTrigger(ctx); err != nil || !due {
			return false, err
		}
		trigger = "price"
	}
	if n.venue == nil || n.keeper == (common.Address{}) {
		n.logger.Info("hedge due, venue hedging not configured", slog.String("trigger", trigger))
		return false, nil
	}

	var result *crab.HedgeResult
	if trigger == "time" {
		result, err = n.strategy.TimeHedgeOnVenue(ctx, n.keeper)
	} else {
		result, err = n.strategy.PriceHedgeOnVenue(ctx, n.keeper, at)
	}
	if err != nil {
		// The auction may flip direction or not yet clear at the venue
		// price; both resolve on a later tick.
		if errors.Is(err, crab.ErrAuctionTypeChanged) || errors.Is(err, swap.ErrSlippageExceeded) || errors.Is(err, crab.ErrLimitPriceBreached) {
			n.logger.Debug("keeper hedge deferred", slog.String("trigger", trigger), slog.Any("error", err))
			return false, nil
		}
		return false, err
	}
	n.logger.Info("keeper hedge",
		slog.String("trigger", trigger),
		slog.String("direction", result.Direction.String()),
		slog.String("amount", fixedpoint.Format(result.Amount)))
	return true, nil
}

// priceTrigger picks the trigger time for a price hedge. The earliest
// candidate gives the furthest-progressed auction; the later one only needs
// the last TWAP window to have moved.
func (n *node) priceTrigger(ctx context.Context) (uint64, bool, error) {
	params := n.strategy.Params()
	now := uint64(n.now().Unix())
	for _, back := range []uint64{params.AuctionTime, params.TwapPeriod} {
		if back >= now {
			continue
		}
		at := now - back
		due, err := n.strategy.CheckPriceHedge(ctx, at)
		if err != nil {
			return 0, false, err
		}
		if due {
			return at, true, nil
		}
	}
	return 0, false, nil
}

func (n *node) runKeeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := n.keeperTick(ctx); err != nil {
				level := slog.LevelWarn
				if nativecommon.Retryable(err) {
					level = slog.LevelInfo
				}
				n.logger.Log(ctx, level, "keeper tick failed",
					slog.String("class", nativecommon.Classify(err).String()),
					slog.Any("error", err))
			}
		}
	}
}
