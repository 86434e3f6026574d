package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/domain/reconcile"
	"github.com/garyjia/expedition-settlement/internal/domain/settlement"
	"github.com/garyjia/expedition-settlement/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

var (
	maxLey = decimal.NewFromInt(1000)
	maxPct = decimal.NewFromInt(100)
)

func lineDetails(l entity.Line) map[string]interface{} {
	return map[string]interface{}{
		"line_id": l.ID,
		"bruto":   l.Bruto.String(),
		"ley":     l.Ley.String(),
	}
}

func optDecimal(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func sameOptDecimal(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func validPercent(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(maxPct)
}

// AddLine appends a weight line to a package
func (s *packageServiceImpl) AddLine(ctx context.Context, actor, packageID string, bruto, ley decimal.Decimal) (*entity.Package, error) {
	if bruto.IsZero() {
		return nil, fmt.Errorf("%w: bruto must be non-zero", entity.ErrInvalidInput)
	}
	if ley.IsNegative() || ley.GreaterThan(maxLey) {
		return nil, fmt.Errorf("%w: ley must be between 0 and 1000", entity.ErrInvalidInput)
	}

	return s.apply(ctx, actor, packageID, workflow.TriggerAddLine, entity.LogAddLine, func(snap *snapshot) (map[string]interface{}, error) {
		line := entity.Line{ID: s.ids.NewID(), Bruto: bruto, Ley: ley, CreatedAt: s.clock.Now()}
		snap.pkg.Lines = append(snap.pkg.Lines, line)
		return lineDetails(line), nil
	})
}

// RemoveLine deletes a line; the log entry keeps its content
func (s *packageServiceImpl) RemoveLine(ctx context.Context, actor, packageID, lineID string) (*entity.Package, error) {
	return s.apply(ctx, actor, packageID, workflow.TriggerRemoveLine, entity.LogRemoveLine, func(snap *snapshot) (map[string]interface{}, error) {
		idx := snap.pkg.FindLine(lineID)
		if idx < 0 {
			return nil, fmt.Errorf("line %s: %w", lineID, entity.ErrNotFound)
		}
		removed := snap.pkg.Lines[idx]
		snap.pkg.Lines = append(snap.pkg.Lines[:idx:idx], snap.pkg.Lines[idx+1:]...)
		return lineDetails(removed), nil
	})
}

// EditData changes discount, tax or number. Only fields that differ are
// recorded; an edit that changes nothing is a no-op.
func (s *packageServiceImpl) EditData(ctx context.Context, actor, packageID string, in EditDataInput) (*entity.Package, error) {
	if in.DiscountPercent != nil && !validPercent(*in.DiscountPercent) {
		return nil, fmt.Errorf("%w: discount must be between 0 and 100", entity.ErrInvalidInput)
	}
	if in.TaxPercent != nil && !validPercent(*in.TaxPercent) {
		return nil, fmt.Errorf("%w: tax must be between 0 and 100", entity.ErrInvalidInput)
	}

	return s.apply(ctx, actor, packageID, workflow.TriggerEditData, entity.LogEditData, func(snap *snapshot) (map[string]interface{}, error) {
		var changes []string
		pkg := snap.pkg
		if in.DiscountPercent != nil && !in.DiscountPercent.Equal(pkg.DiscountPercent) {
			changes = append(changes, fmt.Sprintf("descuento: %s → %s", pkg.DiscountPercent, in.DiscountPercent))
			pkg.DiscountPercent = *in.DiscountPercent
		}
		if in.TaxPercent != nil && !in.TaxPercent.Equal(pkg.TaxPercent) {
			changes = append(changes, fmt.Sprintf("igi: %s → %s", pkg.TaxPercent, in.TaxPercent))
			pkg.TaxPercent = *in.TaxPercent
		}
		if in.Number != nil && strings.TrimSpace(*in.Number) != pkg.Number {
			number := strings.TrimSpace(*in.Number)
			changes = append(changes, fmt.Sprintf("numero: %s → %s", pkg.Number, number))
			pkg.Number = number
		}
		if len(changes) == 0 {
			return nil, nil
		}
		return map[string]interface{}{"changes": changes}, nil
	})
}

// SetUnitPrice sets or clears the package's own price per fine gram
func (s *packageServiceImpl) SetUnitPrice(ctx context.Context, actor, packageID string, price *decimal.Decimal) (*entity.Package, error) {
	if price != nil && !price.IsPositive() {
		return nil, fmt.Errorf("%w: unit price must be positive", entity.ErrInvalidInput)
	}
	return s.apply(ctx, actor, packageID, workflow.TriggerSetPrice, entity.LogChangePrice, func(snap *snapshot) (map[string]interface{}, error) {
		if sameOptDecimal(snap.pkg.UnitPriceFine, price) {
			return nil, nil
		}
		details := map[string]interface{}{"before": optDecimal(snap.pkg.UnitPriceFine), "after": optDecimal(price)}
		snap.pkg.UnitPriceFine = cloneDecimal(price)
		return details, nil
	})
}

// SetCounterpartyClose sets or clears the counterparty closing price
func (s *packageServiceImpl) SetCounterpartyClose(ctx context.Context, actor, packageID string, price *decimal.Decimal) (*entity.Package, error) {
	if price != nil && !price.IsPositive() {
		return nil, fmt.Errorf("%w: closing price must be positive", entity.ErrInvalidInput)
	}
	return s.apply(ctx, actor, packageID, workflow.TriggerSetClose, entity.LogChangeClose, func(snap *snapshot) (map[string]interface{}, error) {
		if sameOptDecimal(snap.pkg.CounterpartyClosePrice, price) {
			return nil, nil
		}
		details := map[string]interface{}{"before": optDecimal(snap.pkg.CounterpartyClosePrice), "after": optDecimal(price)}
		snap.pkg.CounterpartyClosePrice = cloneDecimal(price)
		return details, nil
	})
}

// AttachInvoice sets the invoice file. A verification computed from another
// file stays visible but loses its validation.
func (s *packageServiceImpl) AttachInvoice(ctx context.Context, actor, packageID, fileID string) (*entity.Package, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, fmt.Errorf("%w: file id is required", entity.ErrInvalidInput)
	}
	return s.apply(ctx, actor, packageID, workflow.TriggerAttachInvoice, entity.LogAttachInvoice, func(snap *snapshot) (map[string]interface{}, error) {
		if snap.pkg.InvoiceFileID == fileID {
			return nil, nil
		}
		details := map[string]interface{}{"before": snap.pkg.InvoiceFileID, "after": fileID}
		snap.pkg.InvoiceFileID = fileID
		unvalidate(snap.pkg)
		return details, nil
	})
}

// RemoveInvoice detaches the invoice file. Without an attached file it is a
// no-op.
func (s *packageServiceImpl) RemoveInvoice(ctx context.Context, actor, packageID string) (*entity.Package, error) {
	noInvoice := func(snap *snapshot) bool { return snap.pkg.InvoiceFileID == "" }
	return s.run(ctx, actor, packageID, workflow.TriggerRemoveInvoice, entity.LogRemoveInvoice, noInvoice, func(snap *snapshot) (map[string]interface{}, error) {
		details := map[string]interface{}{"file_id": snap.pkg.InvoiceFileID}
		snap.pkg.InvoiceFileID = ""
		unvalidate(snap.pkg)
		return details, nil
	})
}

func unvalidate(pkg *entity.Package) {
	if pkg.Verification != nil && pkg.Verification.Validated {
		pkg.Verification.Validated = false
		pkg.Verification.ValidatedBy = ""
	}
}

// StoreVerification builds a verification record from an extraction and
// replaces any existing one. sourceFileID must still be the attached invoice.
func (s *packageServiceImpl) StoreVerification(ctx context.Context, actor, packageID, sourceFileID string, ex *reconcile.Extraction) (*entity.Package, error) {
	return s.apply(ctx, actor, packageID, workflow.TriggerVerify, entity.LogStoreVerification, func(snap *snapshot) (map[string]interface{}, error) {
		if snap.pkg.InvoiceFileID != sourceFileID {
			return nil, fmt.Errorf("%w: invoice changed during extraction", entity.ErrStaleVerification)
		}
		r := snap.settle()
		if !r.Priced {
			return nil, fmt.Errorf("%w: package has no unit price", entity.ErrInvalidInput)
		}

		rec, err := reconcile.BuildRecord(snap.pkg.Lines, r.InvoiceTotal, ex, sourceFileID, s.clock.Now())
		if err != nil {
			return nil, err
		}
		snap.pkg.Verification = rec

		return map[string]interface{}{
			"invoice_total":  rec.InvoiceTotal.String(),
			"computed_total": rec.ComputedTotal.String(),
			"delta":          rec.Delta.String(),
			"weights_match":  rec.WeightsMatch,
			"discrepancies":  rec.Discrepancies,
			"source_file_id": rec.SourceFileID,
		}, nil
	})
}

// ClearVerification removes the verification record
func (s *packageServiceImpl) ClearVerification(ctx context.Context, actor, packageID string) (*entity.Package, error) {
	return s.apply(ctx, actor, packageID, workflow.TriggerClearVerification, entity.LogClearVerification, func(snap *snapshot) (map[string]interface{}, error) {
		rec := snap.pkg.Verification
		details := map[string]interface{}{
			"invoice_total": optDecimal(rec.InvoiceTotal),
			"delta":         rec.Delta.String(),
			"validated":     rec.Validated,
		}
		snap.pkg.Verification = nil
		return details, nil
	})
}

// Validate marks the verification as acknowledged by actor. Validating an
// already validated package succeeds without a log entry.
func (s *packageServiceImpl) Validate(ctx context.Context, actor, packageID string) (*entity.Package, error) {
	alreadyValidated := func(snap *snapshot) bool {
		return snap.pkg.Verification != nil && snap.pkg.Verification.Validated && workflow.SourceFileMatches(snap.pkg)
	}
	return s.run(ctx, actor, packageID, workflow.TriggerValidate, entity.LogValidate, alreadyValidated, func(snap *snapshot) (map[string]interface{}, error) {
		snap.pkg.Verification.Validated = true
		snap.pkg.Verification.ValidatedBy = actor
		return map[string]interface{}{
			"delta":          snap.pkg.Verification.Delta.String(),
			"source_file_id": snap.pkg.Verification.SourceFileID,
		}, nil
	})
}

// SetStatus changes the location status
func (s *packageServiceImpl) SetStatus(ctx context.Context, actor, packageID, status string) (*entity.Package, error) {
	if !entity.IsValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrInvalidInput, status)
	}
	return s.apply(ctx, actor, packageID, workflow.TriggerChangeStatus, entity.LogChangeStatus, func(snap *snapshot) (map[string]interface{}, error) {
		if snap.pkg.Status == status {
			return nil, nil
		}
		details := map[string]interface{}{"before": snap.pkg.Status, "after": status}
		snap.pkg.Status = status
		return details, nil
	})
}

// SetPaymentStatus changes the payment status
func (s *packageServiceImpl) SetPaymentStatus(ctx context.Context, actor, packageID, status string) (*entity.Package, error) {
	if !entity.IsValidPaymentStatus(status) {
		return nil, fmt.Errorf("%w: unknown payment status %q", entity.ErrInvalidInput, status)
	}
	return s.apply(ctx, actor, packageID, workflow.TriggerChangePayment, entity.LogChangePayment, func(snap *snapshot) (map[string]interface{}, error) {
		if snap.pkg.PaymentStatus == status {
			return nil, nil
		}
		details := map[string]interface{}{"before": snap.pkg.PaymentStatus, "after": status}
		snap.pkg.PaymentStatus = status
		return details, nil
	})
}

// AddComment appends a comment
func (s *packageServiceImpl) AddComment(ctx context.Context, actor, packageID, text string) (*entity.Package, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: comment is empty", entity.ErrInvalidInput)
	}
	return s.apply(ctx, actor, packageID, workflow.TriggerComment, entity.LogAddComment, func(snap *snapshot) (map[string]interface{}, error) {
		c := entity.Comment{ID: s.ids.NewID(), Author: actor, Text: text, CreatedAt: s.clock.Now()}
		snap.pkg.Comments = append(snap.pkg.Comments, c)
		return map[string]interface{}{"comment_id": c.ID, "text": c.Text}, nil
	})
}

// RemoveComment deletes a comment; the log entry keeps its text
func (s *packageServiceImpl) RemoveComment(ctx context.Context, actor, packageID, commentID string) (*entity.Package, error) {
	return s.apply(ctx, actor, packageID, workflow.TriggerComment, entity.LogRemoveComment, func(snap *snapshot) (map[string]interface{}, error) {
		i := snap.pkg.FindComment(commentID)
		if i < 0 {
			return nil, fmt.Errorf("comment %s: %w", commentID, entity.ErrNotFound)
		}
		c := snap.pkg.Comments[i]
		snap.pkg.Comments = append(snap.pkg.Comments[:i:i], snap.pkg.Comments[i+1:]...)
		return map[string]interface{}{"comment_id": c.ID, "author": c.Author, "text": c.Text}, nil
	})
}

// Reprice runs the cascade on packages that take their price from the
// expedition default. All packages are repriced in one transaction, joining
// the caller's when there is one.
func (s *packageServiceImpl) Reprice(ctx context.Context, actor, expeditionID string) (int, error) {
	count := 0
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		count = 0
		pkgs, err := s.packageRepo.ListByExpedition(ctx, expeditionID)
		if err != nil {
			return fmt.Errorf("list packages: %w", err)
		}

		for _, p := range pkgs {
			if p.UnitPriceFine != nil || !p.Verification.HasInvoiceTotal() {
				continue
			}
			changed := false
			if _, err := s.apply(ctx, actor, p.ID, workflow.TriggerSetPrice, entity.LogChangePrice, func(snap *snapshot) (map[string]interface{}, error) {
				if snap.pkg.UnitPriceFine != nil || recordCurrent(snap.pkg.Verification, snap.settle()) {
					return nil, nil
				}
				after := "-"
				if price, _, ok := settlement.EffectivePrice(snap.pkg, snap.expedition); ok {
					after = price.String()
				}
				snap.repriced = true
				changed = true
				return map[string]interface{}{"source": "expedition_default", "after": after}, nil
			}); err != nil {
				return err
			}
			if changed {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// recordCurrent reports whether rec already reflects the settlement r
func recordCurrent(rec *entity.VerificationRecord, r settlement.Result) bool {
	if !r.Priced {
		return rec.Unpriced
	}
	return !rec.Unpriced && rec.ComputedTotal.Equal(r.InvoiceTotal)
}
