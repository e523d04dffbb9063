package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"powerperp/config"
	"powerperp/core/state"
	nativecommon "powerperp/native/common"
	"powerperp/native/controller"
	"powerperp/native/crab"
	"powerperp/native/funding"
	"powerperp/native/oracle"
	"powerperp/native/swap"
	"powerperp/observability"
	"powerperp/storage"
)

// node bundles the engines sharing one state manager.
type node struct {
	db       storage.Database
	mgr      *state.Manager
	recorder *oracle.Recorder
	funding  *funding.Engine
	ctrl     *controller.Controller
	strategy *crab.Strategy
	venue    *swap.OracleVenue
	keeper   common.Address
	pauses   *nativecommon.Pauses
	now      func() time.Time
	logger   *slog.Logger
}

func openDatabase(cfg config.Storage) (storage.Database, error) {
	switch cfg.Backend {
	case "", "mem":
		return storage.NewMemDB(), nil
	case "leveldb":
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "bolt":
		db, err := storage.NewBoltDB(cfg.Path, nil)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newNode wires the engines over db. now drives every engine clock and the
// oracle recorder.
func newNode(cfg *config.Config, db storage.Database, now func() time.Time, logger *slog.Logger) (*node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctrlParams, err := cfg.ControllerParams()
	if err != nil {
		return nil, err
	}
	stratParams, err := cfg.StrategyParams()
	if err != nil {
		return nil, err
	}
	keeper, err := cfg.KeeperAddress()
	if err != nil {
		return nil, err
	}
	metrics := observability.PowerPerp()
	pauses := nativecommon.NewPauses(cfg.Pauses.Modules())

	recorder := oracle.NewRecorder(now)
	if cfg.Oracle.SampleCap > 0 {
		recorder.SetSampleCap(cfg.Oracle.SampleCap)
	}

	engine, err := funding.NewEngine(cfg.FundingParams(), recorder)
	if err != nil {
		return nil, err
	}
	engine.SetLogger(logger.With(slog.String("module", "funding")))
	engine.SetMetrics(metrics)

	mgr := state.NewManager(db)
	ctrl, err := controller.NewController(mgr, engine, recorder, ctrlParams)
	if err != nil {
		return nil, err
	}
	ctrl.SetClock(now)
	ctrl.SetPauses(pauses)
	ctrl.SetLogger(logger.With(slog.String("module", "controller")))
	ctrl.SetMetrics(metrics)

	strategy, err := crab.NewStrategy(ctrl, recorder, stratParams)
	if err != nil {
		return nil, err
	}
	strategy.SetClock(now)
	strategy.SetPauses(pauses)
	strategy.SetLogger(logger.With(slog.String("module", "crab")))
	strategy.SetMetrics(metrics)

	n := &node{
		db:       db,
		mgr:      mgr,
		recorder: recorder,
		funding:  engine,
		ctrl:     ctrl,
		strategy: strategy,
		keeper:   keeper,
		pauses:   pauses,
		now:      now,
		logger:   logger,
	}
	venueAddr, ok, err := cfg.VenueAddress()
	if err != nil {
		return nil, err
	}
	if ok {
		venue, err := swap.NewOracleVenue(venueAddr, cfg.Oracle.PowerPerpPool, recorder, cfg.Venue.FeeBps)
		if err != nil {
			return nil, err
		}
		strategy.SetVenue(venue)
		n.venue = venue
	}
	return n, nil
}

// seedPrices records the configured prices at the supplied instant.
func (n *node) seedPrices(cfg *config.Config, at time.Time) error {
	pairs, prices, err := cfg.SeedPrices()
	if err != nil {
		return err
	}
	for i, p := range pairs {
		if err := n.recorder.Record(p.Pool, p.Base, p.Quote, prices[i], at); err != nil {
			return fmt.Errorf("seed %s %s/%s: %w", p.Pool, p.Base, p.Quote, err)
		}
	}
	return nil
}

// seedLookback is how far back startup prices are recorded so that every
// TWAP window the engines read is covered immediately.
func seedLookback(cfg *config.Config) time.Duration {
	window := cfg.Strategy.HedgeTimeThreshold + cfg.Strategy.AuctionTime
	for _, p := range []uint64{cfg.Controller.TwapPeriod, cfg.Funding.TwapPeriod, cfg.Strategy.TwapPeriod} {
		if p > window {
			window = p
		}
	}
	return time.Duration(window+cfg.Strategy.TwapPeriod) * time.Second
}

func (n *node) Close() error {
	if n == nil || n.db == nil {
		return nil
	}
	return n.db.Close()
}
