package settlement

import (
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// CounterpartySpread is subtracted from the effective price when the package
// has no explicit counterparty close price.
var CounterpartySpread = decimal.RequireFromString("0.25")

var hundred = decimal.NewFromInt(100)

// Result holds the settlement of one package.
// When Priced is false only the weight fields are meaningful and every monetary
// field is zero.
type Result struct {
	WeightGross  decimal.Decimal `json:"weight_gross"`
	WeightFine   decimal.Decimal `json:"weight_fine"`   // for reporting
	MonetaryFine decimal.Decimal `json:"monetary_fine"` // for every € figure

	Priced         bool            `json:"priced"`
	IsEstimated    bool            `json:"is_estimated"`
	EffectivePrice decimal.Decimal `json:"effective_price"`

	Base                decimal.Decimal `json:"base"`
	Discount            decimal.Decimal `json:"discount"`
	ClientBase          decimal.Decimal `json:"client_base"`
	Tax                 decimal.Decimal `json:"tax"`
	InvoiceTotal        decimal.Decimal `json:"invoice_total"`
	CounterpartyClose   decimal.Decimal `json:"counterparty_close"`
	CounterpartyInvoice decimal.Decimal `json:"counterparty_invoice"`
	Margin              decimal.Decimal `json:"margin"`
}

// EffectivePrice resolves the unit price of fine weight for a package: its own
// price if set, else the expedition default. estimated is true when the
// fallback was used.
func EffectivePrice(pkg *entity.Package, exp *entity.Expedition) (price decimal.Decimal, estimated, ok bool) {
	if pkg.UnitPriceFine != nil {
		return *pkg.UnitPriceFine, false, true
	}
	if exp != nil && exp.DefaultUnitPrice != nil {
		return *exp.DefaultUnitPrice, true, true
	}
	return decimal.Zero, false, false
}

// Weights returns gross weight, reporting fine weight and monetary fine weight.
func Weights(lines []entity.Line, policy entity.ClientPolicy) (gross, fine, monetary decimal.Decimal) {
	for _, l := range lines {
		f := Fino(l.Bruto, l.Ley)
		monetary = monetary.Add(f)
		if policy.NegativeLinesExcludedFromWeight && l.Bruto.IsNegative() {
			continue
		}
		gross = gross.Add(l.Bruto)
		fine = fine.Add(f)
	}
	return gross, fine, monetary
}

// Calculate computes the settlement of a package. It is a pure function of its
// inputs. A missing price is not an error: the result comes back with
// Priced=false and weights only.
func Calculate(pkg *entity.Package, policy entity.ClientPolicy, exp *entity.Expedition) Result {
	var r Result
	r.WeightGross, r.WeightFine, r.MonetaryFine = Weights(pkg.Lines, policy)

	price, estimated, ok := EffectivePrice(pkg, exp)
	if !ok {
		return r
	}
	r.Priced = true
	r.IsEstimated = estimated
	r.EffectivePrice = price

	r.Base = r.MonetaryFine.Mul(price)
	r.Discount = r.Base.Mul(pkg.DiscountPercent).Div(hundred)
	r.ClientBase = r.Base.Sub(r.Discount)
	r.Tax = r.ClientBase.Mul(pkg.TaxPercent).Div(hundred)
	r.InvoiceTotal = r.ClientBase.Add(r.Tax)

	if pkg.CounterpartyClosePrice != nil {
		r.CounterpartyClose = *pkg.CounterpartyClosePrice
	} else {
		r.CounterpartyClose = price.Sub(CounterpartySpread)
	}
	r.CounterpartyInvoice = r.CounterpartyClose.Mul(r.MonetaryFine)
	r.Margin = r.CounterpartyInvoice.Sub(r.ClientBase)

	return r
}
