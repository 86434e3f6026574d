// Package settlement converts weight lines into monetary settlement figures
// and aggregates them across an expedition.
package settlement

import "github.com/shopspring/decimal"

var perMille = decimal.NewFromInt(1000)

// Fino returns the refined weight of a line: bruto * ley / 1000, truncated toward
// zero to 2 decimals. Truncation never over-credits fine weight.
func Fino(bruto, ley decimal.Decimal) decimal.Decimal {
	return bruto.Mul(ley).Div(perMille).Truncate(2)
}

// FinoFloat is Fino for float inputs
func FinoFloat(bruto, ley float64) float64 {
	f, _ := Fino(decimal.NewFromFloat(bruto), decimal.NewFromFloat(ley)).Float64()
	return f
}
