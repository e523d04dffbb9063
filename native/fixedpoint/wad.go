// Package fixedpoint implements non-negative 18-decimal fixed-point
// arithmetic on math/big integers bounded to the 256-bit range.
//
// Every operation truncates toward zero and multiplies before it divides.
// Results and intermediate products that leave [0, 2^256-1] fail instead of
// wrapping.
package fixedpoint

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"powerperp/native/common"
)

var (
	ErrOverflow       = common.NewError(common.ClassArithmetic, "fixedpoint: overflow")
	ErrUnderflow      = common.NewError(common.ClassArithmetic, "fixedpoint: underflow")
	ErrDivisionByZero = common.NewError(common.ClassArithmetic, "fixedpoint: division by zero")
	ErrInvalidDecimal = common.NewError(common.ClassArithmetic, "fixedpoint: invalid decimal")
)

// Decimals is the number of fractional digits carried by a WAD.
const Decimals = 18

var (
	wad   = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	wadU  = uint256.MustFromBig(wad)
	maxU  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	zeroU = new(uint256.Int)
)

// One returns a fresh copy of 1.0 (1e18).
func One() *big.Int {
	return new(big.Int).Set(wad)
}

// Max256 returns 2^256-1.
func Max256() *big.Int {
	return new(big.Int).Set(maxU)
}

// FromUint scales an integer amount to WAD.
func FromUint(v uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(v), wad)
}

func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrUnderflow
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrOverflow
	}
	return u, nil
}

// Check reports whether v is a representable value.
func Check(v *big.Int) error {
	_, err := toU256(v)
	return err
}

// Add returns a + b.
func Add(a, b *big.Int) (*big.Int, error) {
	ua, err := toU256(a)
	if err != nil {
		return nil, err
	}
	ub, err := toU256(b)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(ua, ub)
	if overflow {
		return nil, ErrOverflow
	}
	return sum.ToBig(), nil
}

// Sub returns a - b and fails with ErrUnderflow when b > a.
func Sub(a, b *big.Int) (*big.Int, error) {
	ua, err := toU256(a)
	if err != nil {
		return nil, err
	}
	ub, err := toU256(b)
	if err != nil {
		return nil, err
	}
	diff, underflow := new(uint256.Int).SubOverflow(ua, ub)
	if underflow {
		return nil, ErrUnderflow
	}
	return diff.ToBig(), nil
}

// MulDiv returns a*b/d. The product a*b must itself fit in 256 bits.
func MulDiv(a, b, d *big.Int) (*big.Int, error) {
	ua, err := toU256(a)
	if err != nil {
		return nil, err
	}
	ub, err := toU256(b)
	if err != nil {
		return nil, err
	}
	ud, err := toU256(d)
	if err != nil {
		return nil, err
	}
	if ud.Eq(zeroU) {
		return nil, ErrDivisionByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(ua, ub)
	if overflow {
		return nil, ErrOverflow
	}
	return new(uint256.Int).Div(product, ud).ToBig(), nil
}

// Mul returns a*b/1e18.
func Mul(a, b *big.Int) (*big.Int, error) {
	return MulDiv(a, b, wad)
}

// Div returns a*1e18/b.
func Div(a, b *big.Int) (*big.Int, error) {
	return MulDiv(a, wad, b)
}

// MulInt multiplies a WAD by a plain integer.
func MulInt(a *big.Int, n uint64) (*big.Int, error) {
	return MulDiv(a, new(big.Int).SetUint64(n), big.NewInt(1))
}

// Sqrt returns the WAD square root of a WAD value, sqrt(a*1e18).
func Sqrt(a *big.Int) (*big.Int, error) {
	ua, err := toU256(a)
	if err != nil {
		return nil, err
	}
	scaled, overflow := new(uint256.Int).MulOverflow(ua, wadU)
	if overflow {
		return nil, ErrOverflow
	}
	return new(uint256.Int).Sqrt(scaled).ToBig(), nil
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns a copy of the larger of a and b.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Clamp bounds v to [lo, hi]. lo must not exceed hi.
func Clamp(v, lo, hi *big.Int) *big.Int {
	if v.Cmp(lo) < 0 {
		return new(big.Int).Set(lo)
	}
	if v.Cmp(hi) > 0 {
		return new(big.Int).Set(hi)
	}
	return new(big.Int).Set(v)
}

// AbsDiff returns |a-b|.
func AbsDiff(a, b *big.Int) *big.Int {
	d := new(big.Int).Sub(a, b)
	return d.Abs(d)
}

// Parse converts a decimal string such as "45.1" into WAD, truncating digits
// beyond the 18th decimal place.
func Parse(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidDecimal)
	}
	r, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidDecimal, s)
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(wad))
	out := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	if err := Check(out); err != nil {
		return nil, err
	}
	return out, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders a WAD as a decimal string without trailing zeros.
func Format(v *big.Int) string {
	if v == nil {
		return "0"
	}
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	intPart, frac := new(big.Int).QuoRem(abs, wad, new(big.Int))
	out := intPart.String()
	if frac.Sign() != 0 {
		digits := frac.String()
		digits = strings.Repeat("0", Decimals-len(digits)) + digits
		out += "." + strings.TrimRight(digits, "0")
	}
	if neg {
		return "-" + out
	}
	return out
}
