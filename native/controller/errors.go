package controller

import "powerperp/native/common"

var (
	ErrVaultNotFound          = common.NewError(common.ClassPrecondition, "controller: vault not found")
	ErrInvalidAmount          = common.NewError(common.ClassPrecondition, "controller: invalid amount")
	ErrInsufficientCollateral = common.NewError(common.ClassPrecondition, "controller: vault below minimum collateralization")
	ErrBelowMinCollateral     = common.NewError(common.ClassPrecondition, "controller: vault collateral below dust floor")
	ErrDebtUnderflow          = common.NewError(common.ClassPrecondition, "controller: burn exceeds vault debt")
	ErrCollateralUnderflow    = common.NewError(common.ClassPrecondition, "controller: withdrawal exceeds vault collateral")
	ErrVaultSafe              = common.NewError(common.ClassPrecondition, "controller: vault is safe")
	ErrNothingToLiquidate     = common.NewError(common.ClassPrecondition, "controller: nothing to liquidate")
	ErrPositionAttached       = common.NewError(common.ClassPrecondition, "controller: vault already holds a position")
	ErrNoPosition             = common.NewError(common.ClassPrecondition, "controller: vault holds no position")
	ErrInvalidPosition        = common.NewError(common.ClassPrecondition, "controller: invalid position")
	ErrNotAuthorized          = common.NewError(common.ClassAuthorization, "controller: caller not authorized for vault")
)
