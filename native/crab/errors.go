package crab

import "powerperp/native/common"

var (
	ErrNotInitialized      = common.NewError(common.ClassPrecondition, "crab: strategy holds no deposits")
	ErrInvalidAmount       = common.NewError(common.ClassPrecondition, "crab: invalid amount")
	ErrHedgeNotEligible    = common.NewError(common.ClassPrecondition, "crab: hedge not eligible")
	ErrAlreadyNeutral      = common.NewError(common.ClassPrecondition, "crab: strategy already delta neutral")
	ErrWrongAuctionType    = common.NewError(common.ClassPrecondition, "crab: wrong auction type")
	ErrAuctionTypeChanged  = common.NewError(common.ClassPrecondition, "crab: auction direction changed")
	ErrInvalidTriggerTime  = common.NewError(common.ClassPrecondition, "crab: invalid auction trigger time")
	ErrUnexpectedPayment   = common.NewError(common.ClassPrecondition, "crab: payment attached to buy auction")
	ErrInsufficientPayment = common.NewError(common.ClassPrecondition, "crab: payment below auction proceeds")
	ErrLimitPriceBreached  = common.NewError(common.ClassPrecondition, "crab: limit price breached")
	ErrPriceOutOfTolerance = common.NewError(common.ClassPrecondition, "crab: clearing price outside twap tolerance")
	ErrNoVenue             = common.NewError(common.ClassPrecondition, "crab: no swap venue configured")

	ErrQuantityExceedsTarget     = common.NewError(common.ClassPrecondition, "crab: quantity exceeds target hedge")
	ErrInvalidSignature          = common.NewError(common.ClassOrderValidation, "crab: invalid order signature")
	ErrOrderExpired              = common.NewError(common.ClassOrderValidation, "crab: order expired")
	ErrNonceReused               = common.NewError(common.ClassOrderValidation, "crab: order nonce already used")
	ErrWrongOrderSide            = common.NewError(common.ClassOrderValidation, "crab: order on wrong side of hedge")
	ErrInsufficientOrderQuantity = common.NewError(common.ClassOrderValidation, "crab: orders do not cover quantity")

	ErrNotAuthorized = common.NewError(common.ClassAuthorization, "crab: caller not authorized")
)
