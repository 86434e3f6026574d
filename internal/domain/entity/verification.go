package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExtractedLine is a weight line read from an invoice by the AI extraction.
// Ley is nil when the document does not state a purity.
type ExtractedLine struct {
	Bruto decimal.Decimal  `json:"bruto"`
	Ley   *decimal.Decimal `json:"ley,omitempty"`
}

// VerificationRecord compares an AI-extracted invoice to the computed package totals.
// Validated is a human acknowledgement; it is reset whenever an input changes.
// Unpriced marks a record whose package lost its effective price: ComputedTotal
// and Delta are then unavailable and left at zero.
type VerificationRecord struct {
	InvoiceTotal    *decimal.Decimal `json:"invoice_total"`
	ComputedTotal   decimal.Decimal  `json:"computed_total"`
	Delta           decimal.Decimal  `json:"delta"`
	Unpriced        bool             `json:"unpriced,omitempty"`
	ExtractedLines  []ExtractedLine  `json:"extracted_lines"`
	WeightsMatch    bool             `json:"weights_match"`
	Discrepancies   []string         `json:"discrepancies"`
	ExtractionNotes string           `json:"extraction_notes,omitempty"`
	Notes           string           `json:"notes"`
	Validated       bool             `json:"validated"`
	ValidatedBy     string           `json:"validated_by,omitempty"`
	SourceFileID    string           `json:"source_file_id"`
	VerifiedAt      time.Time        `json:"verified_at"`
}

// Clone returns a deep copy of the record
func (v *VerificationRecord) Clone() *VerificationRecord {
	if v == nil {
		return nil
	}
	c := *v
	c.InvoiceTotal = cloneDecimal(v.InvoiceTotal)
	c.ExtractedLines = make([]ExtractedLine, len(v.ExtractedLines))
	for i, l := range v.ExtractedLines {
		c.ExtractedLines[i] = ExtractedLine{Bruto: l.Bruto, Ley: cloneDecimal(l.Ley)}
	}
	c.Discrepancies = append([]string(nil), v.Discrepancies...)
	return &c
}

// HasInvoiceTotal reports whether the record carries a document total,
// which is what makes it subject to recalculation.
func (v *VerificationRecord) HasInvoiceTotal() bool {
	return v != nil && v.InvoiceTotal != nil
}
