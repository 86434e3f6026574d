package port

import (
	"context"
	"time"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/domain/reconcile"
)

// InvoiceExtractor reads totals and weight lines from an invoice document.
// A result with a nil Total means the document could not be read.
type InvoiceExtractor interface {
	ExtractInvoice(ctx context.Context, file []byte, mimeType string) (*reconcile.Extraction, error)
}

// DiscrepancyNotifier alerts a client channel when a verification finds differences
type DiscrepancyNotifier interface {
	NotifyDiscrepancy(ctx context.Context, client *entity.Client, pkg *entity.Package) error
}

// Clock supplies timestamps for mutations
type Clock interface {
	Now() time.Time
}

// IDGenerator returns new identifiers that sort in creation order
type IDGenerator interface {
	NewID() string
}
