package trading

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

// slippageExponent is the resolution of drawn slippage fractions (1e-10)
const slippageExponent = -10

// bpsToUnits converts basis points to slippage units (1 bp = 1e6 units)
const bpsToUnits = 1_000_000

// RandomSource draws uniform integers in [0, n)
type RandomSource interface {
	Int64N(n int64) int64
}

type globalRand struct{}

func (globalRand) Int64N(n int64) int64 { return rand.Int64N(n) }

// drawSlippage returns a uniform fraction in [0, maxBps/10000)
func drawSlippage(rnd RandomSource, maxBps int64) decimal.Decimal {
	if maxBps <= 0 {
		return decimal.Zero
	}
	return decimal.New(rnd.Int64N(maxBps*bpsToUnits), slippageExponent)
}
