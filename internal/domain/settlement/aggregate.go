package settlement

import (
	"sort"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Bucket accumulates totals for one category or one client
type Bucket struct {
	Key          string          `json:"key"`
	Label        string          `json:"label"`
	PackageCount int             `json:"package_count"`
	WeightGross  decimal.Decimal `json:"weight_gross"`
	WeightFine   decimal.Decimal `json:"weight_fine"`
	InvoiceTotal decimal.Decimal `json:"invoice_total"`
}

// AvgPricePerGram is invoice total over gross weight, zero when there is no weight
func (b Bucket) AvgPricePerGram() decimal.Decimal {
	if b.WeightGross.IsZero() {
		return decimal.Zero
	}
	return b.InvoiceTotal.Div(b.WeightGross)
}

// PackageSettlement pairs a package with its computed result
type PackageSettlement struct {
	Package *entity.Package `json:"package"`
	Result  Result          `json:"result"`
}

// Summary is the folded settlement of an expedition.
// EstimatedInvoiceTotal is the part of InvoiceTotal computed from a fallback
// price; ConfirmedInvoiceTotal is the rest.
type Summary struct {
	ExpeditionID string `json:"expedition_id"`
	PackageCount int    `json:"package_count"`
	PricedCount  int    `json:"priced_count"`

	WeightGross           decimal.Decimal `json:"weight_gross"`
	WeightFine            decimal.Decimal `json:"weight_fine"`
	InvoiceTotal          decimal.Decimal `json:"invoice_total"`
	ConfirmedInvoiceTotal decimal.Decimal `json:"confirmed_invoice_total"`
	EstimatedInvoiceTotal decimal.Decimal `json:"estimated_invoice_total"`
	CounterpartyTotal     decimal.Decimal `json:"counterparty_total"`
	MarginTotal           decimal.Decimal `json:"margin_total"`

	// InsuranceRatio is CounterpartyTotal / InsuranceLimit; nil without a limit
	InsuranceRatio *decimal.Decimal `json:"insurance_ratio,omitempty"`

	ByCategory []Bucket            `json:"by_category"`
	ByClient   []Bucket            `json:"by_client"`
	Packages   []PackageSettlement `json:"packages"`
}

// HasEstimates reports whether any figure in the summary is provisional
func (s *Summary) HasEstimates() bool {
	return !s.EstimatedInvoiceTotal.IsZero()
}

// Aggregate folds the settlement of every package of an expedition.
// clients and categories are lookups by id; missing entries fall back to the
// default policy and the raw id as label.
func Aggregate(exp *entity.Expedition, packages []*entity.Package, clients map[string]*entity.Client, categories map[string]*entity.Category) Summary {
	s := Summary{ExpeditionID: exp.ID}
	byCategory := map[string]*Bucket{}
	byClient := map[string]*Bucket{}

	for _, pkg := range packages {
		policy := entity.DefaultClientPolicy()
		clientLabel := pkg.ClientID
		if c, ok := clients[pkg.ClientID]; ok && c != nil {
			policy = c.Policy
			clientLabel = c.Name
		}
		categoryLabel := pkg.CategoryID
		if c, ok := categories[pkg.CategoryID]; ok && c != nil {
			categoryLabel = c.Name
		}

		r := Calculate(pkg, policy, exp)
		s.Packages = append(s.Packages, PackageSettlement{Package: pkg, Result: r})
		s.PackageCount++

		s.WeightGross = s.WeightGross.Add(r.WeightGross)
		s.WeightFine = s.WeightFine.Add(r.WeightFine)
		if r.Priced {
			s.PricedCount++
			s.InvoiceTotal = s.InvoiceTotal.Add(r.InvoiceTotal)
			s.CounterpartyTotal = s.CounterpartyTotal.Add(r.CounterpartyInvoice)
			s.MarginTotal = s.MarginTotal.Add(r.Margin)
			if r.IsEstimated {
				s.EstimatedInvoiceTotal = s.EstimatedInvoiceTotal.Add(r.InvoiceTotal)
			} else {
				s.ConfirmedInvoiceTotal = s.ConfirmedInvoiceTotal.Add(r.InvoiceTotal)
			}
		}

		addToBucket(byCategory, categoryLabel, categoryLabel, r)
		addToBucket(byClient, pkg.ClientID, clientLabel, r)
	}

	if exp.InsuranceLimit != nil && !exp.InsuranceLimit.IsZero() {
		ratio := s.CounterpartyTotal.Div(*exp.InsuranceLimit)
		s.InsuranceRatio = &ratio
	}

	s.ByCategory = sortedBuckets(byCategory)
	s.ByClient = sortedBuckets(byClient)
	return s
}

func addToBucket(buckets map[string]*Bucket, key, label string, r Result) {
	b, ok := buckets[key]
	if !ok {
		b = &Bucket{Key: key, Label: label}
		buckets[key] = b
	}
	b.PackageCount++
	b.WeightGross = b.WeightGross.Add(r.WeightGross)
	b.WeightFine = b.WeightFine.Add(r.WeightFine)
	if r.Priced {
		b.InvoiceTotal = b.InvoiceTotal.Add(r.InvoiceTotal)
	}
}

func sortedBuckets(m map[string]*Bucket) []Bucket {
	out := make([]Bucket, 0, len(m))
	for _, b := range m {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ReferencePrice returns the unit price of the most recently created package
// that has one. IDs are time-ordered, so the greatest ID wins. ok is false when
// no package has a price.
func ReferencePrice(packages []*entity.Package) (price decimal.Decimal, packageID string, ok bool) {
	for _, p := range packages {
		if p.UnitPriceFine == nil {
			continue
		}
		if !ok || p.ID > packageID {
			price, packageID, ok = *p.UnitPriceFine, p.ID, true
		}
	}
	return price, packageID, ok
}
