package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Line is a single weighed entry of a package.
// A negative Bruto is a correction or return entry.
type Line struct {
	ID        string          `json:"id"`
	Bruto     decimal.Decimal `json:"bruto"` // grams
	Ley       decimal.Decimal `json:"ley"`   // fineness per 1000
	CreatedAt time.Time       `json:"created_at"`
}

// Comment is a free-text note attached to a package
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Package is a settlement unit within an expedition: one client, one category,
// one set of weight lines.
type Package struct {
	ID           string `json:"id"`
	ExpeditionID string `json:"expedition_id"`
	ClientID     string `json:"client_id"`
	CategoryID   string `json:"category_id"`
	Number       string `json:"number"`

	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"` // IGI

	UnitPriceFine          *decimal.Decimal `json:"unit_price_fine,omitempty"`
	CounterpartyClosePrice *decimal.Decimal `json:"counterparty_close_price,omitempty"`

	Lines    []Line    `json:"lines"`
	Comments []Comment `json:"comments"`

	InvoiceFileID string              `json:"invoice_file_id,omitempty"`
	Verification  *VerificationRecord `json:"verification,omitempty"`

	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`

	// Version is bumped on every write. It is informational only: writes are last-write-wins.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FindLine returns the index of the line with the given id, or -1
func (p *Package) FindLine(id string) int {
	for i := range p.Lines {
		if p.Lines[i].ID == id {
			return i
		}
	}
	return -1
}

// FindComment returns the index of the comment with the given id, or -1
func (p *Package) FindComment(id string) int {
	for i := range p.Comments {
		if p.Comments[i].ID == id {
			return i
		}
	}
	return -1
}

// HasInvoice reports whether an invoice file is attached
func (p *Package) HasInvoice() bool {
	return p.InvoiceFileID != ""
}

// Clone returns a deep copy so callers can diff before and after a mutation.
func (p *Package) Clone() *Package {
	if p == nil {
		return nil
	}
	c := *p
	c.Lines = append([]Line(nil), p.Lines...)
	c.Comments = append([]Comment(nil), p.Comments...)
	c.UnitPriceFine = cloneDecimal(p.UnitPriceFine)
	c.CounterpartyClosePrice = cloneDecimal(p.CounterpartyClosePrice)
	if p.Verification != nil {
		v := p.Verification.Clone()
		c.Verification = v
	}
	return &c
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
