package overlay

import (
	"math"

	"github.com/shopspring/decimal"
)

// Price is the numeric type used for the price axis of data-space points.
// Conversions go through its methods so the underlying representation can
// change without touching the coordinate contract.
type Price float64

// PriceFromDecimal converts a decimal value to a Price.
func PriceFromDecimal(d decimal.Decimal) Price {
	f, _ := d.Float64()
	return Price(f)
}

// Float returns the price as a float64 for pixel math.
func (p Price) Float() float64 { return float64(p) }

// Decimal returns the exact decimal form of the price.
func (p Price) Decimal() decimal.Decimal { return decimal.NewFromFloat(float64(p)) }

// Round rounds the price to the given number of decimal places.
// A negative precision leaves the price untouched.
func (p Price) Round(places int32) Price {
	if places < 0 || !p.IsFinite() {
		return p
	}
	return PriceFromDecimal(p.Decimal().Round(places))
}

// IsFinite reports whether the price is neither NaN nor infinite.
func (p Price) IsFinite() bool {
	f := float64(p)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// IsValid reports whether the price can anchor a point: finite and positive.
func (p Price) IsValid() bool { return p.IsFinite() && p > 0 }

func (p Price) String() string { return p.Decimal().String() }
