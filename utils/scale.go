package utils

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/stellarlend/oracle-go/models"
)

var scaleFactor = decimal.NewFromInt(models.PriceScale)

// MaxScalablePrice is the largest real price whose scaled form still fits a
// signed 64-bit integer. Configured price bounds above this are rejected at
// startup.
const MaxScalablePrice = float64(math.MaxInt64 / models.PriceScale)

// ScalePrice converts a real price to its fixed-point integer form,
// round-half-away-from-zero on the sixth fractional digit.
func ScalePrice(price float64) (int64, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("price %v is not a finite number", price)
	}
	if math.Abs(price) > MaxScalablePrice {
		return 0, fmt.Errorf("price %v overflows the scaled representation", price)
	}
	return decimal.NewFromFloat(price).Mul(scaleFactor).Round(0).IntPart(), nil
}

// UnscalePrice converts a scaled integer price back to its real value.
func UnscalePrice(scaled int64) float64 {
	f, _ := decimal.NewFromInt(scaled).Div(scaleFactor).Float64()
	return f
}
