package settlement

import (
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// InputsChanged compares the fields Calculate reads from a package: discount,
// tax, own unit price and the line set. Number, status, comments, invoice file
// and the counterparty close price are not inputs of the client invoice total.
func InputsChanged(before, after *entity.Package) (changed, linesChanged bool) {
	linesChanged = !sameLines(before.Lines, after.Lines)
	changed = linesChanged ||
		!before.DiscountPercent.Equal(after.DiscountPercent) ||
		!before.TaxPercent.Equal(after.TaxPercent) ||
		!sameOptional(before.UnitPriceFine, after.UnitPriceFine)
	return changed, linesChanged
}

func sameLines(a, b []entity.Line) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].Bruto.Equal(b[i].Bruto) || !a[i].Ley.Equal(b[i].Ley) {
			return false
		}
	}
	return true
}

func sameOptional(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
