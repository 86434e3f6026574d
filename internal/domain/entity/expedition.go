package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expedition is a shipment batch. It owns its packages by reference
// (Package.ExpeditionID), never by embedding.
type Expedition struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	DefaultUnitPrice *decimal.Decimal `json:"default_unit_price,omitempty"`
	InsuranceLimit   *decimal.Decimal `json:"insurance_limit,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ClientPolicy holds the client-specific settlement rules.
// Settlement only reads it.
type ClientPolicy struct {
	DiscountStandard                decimal.Decimal `json:"discount_standard" yaml:"discount_standard"`
	DiscountFine                    decimal.Decimal `json:"discount_fine" yaml:"discount_fine"`
	NegativeLinesExcludedFromWeight bool            `json:"negative_lines_excluded_from_weight" yaml:"negative_lines_excluded_from_weight"`
}

// DefaultClientPolicy is used when a client has no explicit policy
func DefaultClientPolicy() ClientPolicy {
	return ClientPolicy{NegativeLinesExcludedFromWeight: true}
}

// Client is the party whose scrap is settled
type Client struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Policy       ClientPolicy `json:"policy"`
	NotifyChatID string       `json:"notify_chat_id,omitempty"` // Lark chat for discrepancy alerts
	CreatedAt    time.Time    `json:"created_at"`
}

// Category groups packages by material type (e.g. "Oro 18k", "Plata")
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
