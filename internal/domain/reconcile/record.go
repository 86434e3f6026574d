package reconcile

import (
	"time"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Extraction is what the AI pass read from an invoice document.
// A nil Total means the extraction failed.
type Extraction struct {
	Total *decimal.Decimal
	Lines []entity.ExtractedLine
	Notes string
}

// BuildRecord creates a verification record for a package from an extraction.
// computedTotal is the package invoice total as computed by settlement.
func BuildRecord(lines []entity.Line, computedTotal decimal.Decimal, ex *Extraction, sourceFileID string, now time.Time) (*entity.VerificationRecord, error) {
	if ex == nil || ex.Total == nil {
		return nil, entity.ErrExtractionFailed
	}

	match := MatchLines(lines, ex.Lines)
	total := *ex.Total

	return &entity.VerificationRecord{
		InvoiceTotal:    &total,
		ComputedTotal:   computedTotal,
		Delta:           Delta(total, computedTotal),
		ExtractedLines:  append([]entity.ExtractedLine(nil), ex.Lines...),
		WeightsMatch:    match.WeightsMatch,
		Discrepancies:   match.Messages(),
		ExtractionNotes: ex.Notes,
		Notes:           joinNotes(ex.Notes, match.Notes()),
		Validated:       false,
		SourceFileID:    sourceFileID,
		VerifiedAt:      now,
	}, nil
}

func joinNotes(extraction, matching string) string {
	if extraction == "" {
		return matching
	}
	return extraction + " | " + matching
}

// Recalculate refreshes a record after an input of the package changed.
// A nil computedTotal means the package has no effective price any more: the
// record is marked Unpriced and its totals cleared. Line matching is redone
// only when linesChanged. The returned record is never validated.
func Recalculate(rec *entity.VerificationRecord, lines []entity.Line, computedTotal *decimal.Decimal, linesChanged bool) *entity.VerificationRecord {
	out := rec.Clone()
	if computedTotal == nil {
		out.Unpriced = true
		out.ComputedTotal = decimal.Zero
		out.Delta = decimal.Zero
	} else {
		out.Unpriced = false
		out.ComputedTotal = *computedTotal
		if out.InvoiceTotal != nil {
			out.Delta = Delta(*out.InvoiceTotal, *computedTotal)
		}
	}
	if linesChanged {
		match := MatchLines(lines, out.ExtractedLines)
		out.WeightsMatch = match.WeightsMatch
		out.Discrepancies = match.Messages()
		out.Notes = joinNotes(out.ExtractionNotes, match.Notes())
	}
	out.Validated = false
	out.ValidatedBy = ""
	return out
}
