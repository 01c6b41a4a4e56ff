package amm

import "fmt"

// Fee is the fraction of the input that actually enters the pool, Numerator/Denominator.
// A 0.3% fee is 997/1000.
type Fee struct {
	Numerator   uint64
	Denominator uint64
}

var (
	UniswapV2Fee = Fee{Numerator: 997, Denominator: 1000}
	PancakeV2Fee = Fee{Numerator: 9975, Denominator: 10000}
	ApeSwapFee   = Fee{Numerator: 998, Denominator: 1000}
)

// DefaultFee is used when a pool doesn't carry its own fee.
var DefaultFee = UniswapV2Fee

func (f Fee) Validate() error {
	if f.Denominator == 0 {
		return fmt.Errorf("%w: fee denominator is zero", ErrInvalidPool)
	}
	if f.Numerator == 0 || f.Numerator > f.Denominator {
		return fmt.Errorf("%w: fee %d/%d out of range", ErrInvalidPool, f.Numerator, f.Denominator)
	}
	return nil
}

func (f Fee) IsZero() bool {
	return f.Numerator == 0 && f.Denominator == 0
}

// returns fee charged in basis points, rounded down
func (f Fee) Bps() uint64 {
	if f.Denominator == 0 {
		return 0
	}
	return (f.Denominator - f.Numerator) * 10000 / f.Denominator
}

func (f Fee) String() string {
	return fmt.Sprintf("%d/%d", f.Numerator, f.Denominator)
}
