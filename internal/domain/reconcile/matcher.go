// Package reconcile compares a package against the data extracted from its
// scanned invoice.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/shopspring/decimal"
)

var (
	// WeightTolerance is the absolute gram tolerance when matching lines
	WeightTolerance = decimal.RequireFromString("0.5")

	// LeyTolerance is the absolute per-mille tolerance when the invoice states a purity
	LeyTolerance = decimal.NewFromInt(5)
)

// DiscrepancyKind tells which side a discrepancy line comes from
type DiscrepancyKind string

const (
	MissingFromInvoice DiscrepancyKind = "MISSING_FROM_INVOICE"
	ExtraInInvoice     DiscrepancyKind = "EXTRA_IN_INVOICE"
)

// Discrepancy is a line that could not be paired
type Discrepancy struct {
	Kind  DiscrepancyKind
	Bruto decimal.Decimal
	Ley   *decimal.Decimal
}

// String renders the discrepancy the way it is shown to users
func (d Discrepancy) String() string {
	if d.Kind == ExtraInInvoice {
		return fmt.Sprintf("line %s g found in invoice but not in package", d.Bruto.String())
	}
	ley := "?"
	if d.Ley != nil {
		ley = d.Ley.String()
	}
	return fmt.Sprintf("line %s g × %s purity not found in invoice", d.Bruto.String(), ley)
}

// MatchResult is the outcome of matching package lines against invoice lines
type MatchResult struct {
	WeightsMatch  bool
	Discrepancies []Discrepancy
}

// Messages returns the discrepancies as display strings
func (m MatchResult) Messages() []string {
	out := make([]string, len(m.Discrepancies))
	for i, d := range m.Discrepancies {
		out[i] = d.String()
	}
	return out
}

// Notes summarises the match in one line
func (m MatchResult) Notes() string {
	if m.WeightsMatch {
		return "all lines match the invoice"
	}
	return strings.Join(m.Messages(), "; ")
}

// MatchLines pairs package lines with extracted invoice lines greedily.
// Each package line, in order, consumes the first candidate whose weight
// magnitude is within WeightTolerance and, when the candidate states a purity,
// whose purity is within LeyTolerance. Signs are ignored. Candidates left over
// are reported as extra invoice lines.
func MatchLines(lines []entity.Line, candidates []entity.ExtractedLine) MatchResult {
	pool := append([]entity.ExtractedLine(nil), candidates...)
	var result MatchResult

	for _, l := range lines {
		idx := -1
		for i, c := range pool {
			if matches(l, c) {
				idx = i
				break
			}
		}
		if idx < 0 {
			ley := l.Ley
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Kind:  MissingFromInvoice,
				Bruto: l.Bruto,
				Ley:   &ley,
			})
			continue
		}
		pool = append(pool[:idx], pool[idx+1:]...)
	}

	for _, c := range pool {
		result.Discrepancies = append(result.Discrepancies, Discrepancy{
			Kind:  ExtraInInvoice,
			Bruto: c.Bruto,
			Ley:   c.Ley,
		})
	}

	result.WeightsMatch = len(result.Discrepancies) == 0
	return result
}

func matches(l entity.Line, c entity.ExtractedLine) bool {
	if l.Bruto.Abs().Sub(c.Bruto.Abs()).Abs().GreaterThan(WeightTolerance) {
		return false
	}
	if c.Ley != nil && l.Ley.Sub(*c.Ley).Abs().GreaterThan(LeyTolerance) {
		return false
	}
	return true
}

// Delta is the document total minus the computed total. Positive means the
// document charges more than computed.
func Delta(documentTotal, computedTotal decimal.Decimal) decimal.Decimal {
	return documentTotal.Sub(computedTotal)
}
