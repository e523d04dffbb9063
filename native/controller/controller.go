// Package controller manages collateralized vaults that mint the power
// perpetual debt token against native collateral.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"powerperp/core/state"
	nativecommon "powerperp/native/common"
	"powerperp/native/fixedpoint"
	"powerperp/native/funding"
	"powerperp/native/oracle"
	"powerperp/native/token"
	"powerperp/observability"
	powerotel "powerperp/observability/otel"
)

const moduleName = "controller"

// Controller wraps every vault operation in its own state transaction.
// Strategies that need several operations to commit together use Session.
type Controller struct {
	mgr     *state.Manager
	funding *funding.Engine
	oracle  oracle.Oracle
	native  *token.Ledger
	debt    *token.Ledger
	params  Params
	pauses  nativecommon.PauseView
	logger  *slog.Logger
	metrics *observability.PowerPerpMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

func NewController(mgr *state.Manager, engine *funding.Engine, feed oracle.Oracle, params Params) (*Controller, error) {
	if mgr == nil {
		return nil, fmt.Errorf("controller: state manager required")
	}
	if engine == nil {
		return nil, fmt.Errorf("controller: funding engine required")
	}
	if feed == nil {
		return nil, fmt.Errorf("controller: oracle required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		mgr:     mgr,
		funding: engine,
		oracle:  feed,
		native:  token.NewLedger(params.NativeSymbol),
		debt:    token.NewLedger(params.DebtSymbol),
		params:  params,
		logger:  slog.Default(),
		tracer:  powerotel.Tracer(),
		now:     time.Now,
	}, nil
}

func (c *Controller) SetPauses(p nativecommon.PauseView) {
	if c == nil {
		return
	}
	c.pauses = p
}

func (c *Controller) SetLogger(logger *slog.Logger) {
	if c == nil || logger == nil {
		return
	}
	c.logger = logger
}

func (c *Controller) SetMetrics(m *observability.PowerPerpMetrics) {
	if c == nil {
		return
	}
	c.metrics = m
}

// SetClock overrides the wall clock used for funding accrual.
func (c *Controller) SetClock(now func() time.Time) {
	if c == nil || now == nil {
		return
	}
	c.now = now
}

func (c *Controller) Params() Params { return c.params }

func (c *Controller) NativeLedger() *token.Ledger { return c.native }

func (c *Controller) DebtLedger() *token.Ledger { return c.debt }

func (c *Controller) Manager() *state.Manager { return c.mgr }

func (c *Controller) Funding() *funding.Engine { return c.funding }

// Session binds the controller to an open transaction.
func (c *Controller) Session(tx *state.Tx) *Session {
	return &Session{c: c, tx: tx}
}

func (c *Controller) guard() error {
	return nativecommon.Guard(c.pauses, moduleName)
}

func (c *Controller) update(op string, fn func(s *Session) error) error {
	err := c.mgr.Update(func(tx *state.Tx) error {
		return fn(c.Session(tx))
	})
	c.metrics.RecordVaultOp(op, err)
	return err
}

func (c *Controller) view(fn func(s *Session) error) error {
	return c.mgr.View(func(tx *state.Tx) error {
		return fn(c.Session(tx))
	})
}

func (c *Controller) Open(ctx context.Context, caller common.Address) (uint64, error) {
	var id uint64
	err := c.update("open", func(s *Session) error {
		var err error
		id, err = s.Open(caller)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.logger.Info("vault opened",
		slog.String("event_id", uuid.NewString()),
		slog.Uint64("vault_id", id),
		slog.String("owner", caller.Hex()))
	return id, nil
}

func (c *Controller) Mint(ctx context.Context, caller common.Address, id uint64, rawDebt, collateral *big.Int) error {
	err := c.update("mint", func(s *Session) error {
		return s.Mint(ctx, caller, id, rawDebt, collateral)
	})
	if err != nil {
		return err
	}
	c.logger.Info("vault minted",
		slog.String("event_id", uuid.NewString()),
		slog.Uint64("vault_id", id),
		slog.String("debt", fixedpoint.Format(copyOrZero(rawDebt))),
		slog.String("collateral", fixedpoint.Format(copyOrZero(collateral))))
	return nil
}

func (c *Controller) Burn(ctx context.Context, caller common.Address, id uint64, rawDebt, collateral *big.Int) error {
	err := c.update("burn", func(s *Session) error {
		return s.Burn(ctx, caller, id, rawDebt, collateral)
	})
	if err != nil {
		return err
	}
	c.logger.Info("vault burned",
		slog.String("event_id", uuid.NewString()),
		slog.Uint64("vault_id", id),
		slog.String("debt", fixedpoint.Format(copyOrZero(rawDebt))),
		slog.String("collateral", fixedpoint.Format(copyOrZero(collateral))))
	return nil
}

func (c *Controller) Deposit(ctx context.Context, caller common.Address, id uint64, collateral *big.Int) error {
	return c.update("deposit", func(s *Session) error {
		return s.Deposit(ctx, caller, id, collateral)
	})
}

func (c *Controller) DepositPosition(ctx context.Context, caller common.Address, id uint64, pos Position) error {
	return c.update("deposit_position", func(s *Session) error {
		return s.DepositPosition(ctx, caller, id, pos)
	})
}

func (c *Controller) WithdrawPosition(ctx context.Context, caller common.Address, id uint64) (Position, error) {
	var pos Position
	err := c.update("withdraw_position", func(s *Session) error {
		var err error
		pos, err = s.WithdrawPosition(ctx, caller, id)
		return err
	})
	return pos, err
}

func (c *Controller) SetOperator(ctx context.Context, caller common.Address, id uint64, operator common.Address) error {
	return c.update("set_operator", func(s *Session) error {
		return s.SetOperator(caller, id, operator)
	})
}

// Liquidate runs a liquidation in its own transaction. Any failure leaves
// balances and the vault untouched.
func (c *Controller) Liquidate(ctx context.Context, caller common.Address, id uint64, requested *big.Int) (*LiquidationResult, error) {
	ctx, span := c.tracer.Start(ctx, "controller.liquidate",
		trace.WithAttributes(attribute.Int64("vault.id", int64(id))))
	defer span.End()

	var result *LiquidationResult
	err := c.update("liquidate", func(s *Session) error {
		var err error
		result, err = s.Liquidate(ctx, caller, id, requested)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	kind := "liquidated"
	if result.Saved {
		kind = "saved"
	}
	paid, _ := fixedpoint.Add(result.CollateralPaid, result.SaveBounty)
	c.metrics.RecordLiquidation(kind, paid)
	span.SetAttributes(attribute.String("liquidation.kind", kind))
	span.SetStatus(codes.Ok, kind)
	c.logger.Info("vault liquidated",
		slog.String("event_id", uuid.NewString()),
		slog.Uint64("vault_id", id),
		slog.String("kind", kind),
		slog.String("liquidator", caller.Hex()),
		slog.String("debt_repaid", fixedpoint.Format(result.DebtRepaid)),
		slog.String("collateral_paid", fixedpoint.Format(result.CollateralPaid)),
		slog.String("save_bounty", fixedpoint.Format(result.SaveBounty)))
	return result, nil
}

func (c *Controller) Liquidatable(ctx context.Context, id uint64) (*big.Int, error) {
	var amount *big.Int
	err := c.view(func(s *Session) error {
		var err error
		amount, err = s.Liquidatable(ctx, id)
		return err
	})
	return amount, err
}

func (c *Controller) IsSafe(ctx context.Context, id uint64) (bool, error) {
	var ok bool
	err := c.view(func(s *Session) error {
		var err error
		ok, err = s.IsSafe(ctx, id)
		return err
	})
	return ok, err
}

// Vault returns a snapshot of the vault.
func (c *Controller) Vault(id uint64) (*state.Vault, error) {
	var vault *state.Vault
	err := c.view(func(s *Session) error {
		var err error
		vault, err = s.Vault(id)
		return err
	})
	return vault, err
}

// NormalizationFactor returns the stored factor.
func (c *Controller) NormalizationFactor() (*big.Int, error) {
	var nf *big.Int
	err := c.view(func(s *Session) error {
		var err error
		nf, err = s.NormalizationFactor()
		return err
	})
	return nf, err
}

// RefreshFunding persists the funding accrued up to now.
func (c *Controller) RefreshFunding(ctx context.Context) (*big.Int, error) {
	var nf *big.Int
	err := c.update("refresh_funding", func(s *Session) error {
		var err error
		nf, err = s.Refresh(ctx)
		return err
	})
	return nf, err
}
