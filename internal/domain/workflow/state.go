package workflow

import "github.com/garyjia/expedition-settlement/internal/domain/entity"

// State is the settlement state of a package. It is never stored: it is
// derived from which fields of the package are present.
type State string

const (
	StateDraft           State = "DRAFT"            // no lines
	StateOpen            State = "OPEN"             // lines, no price
	StatePriced          State = "PRICED"           // effective price known
	StateInvoiceAttached State = "INVOICE_ATTACHED" // invoice file uploaded, not verified
	StateVerified        State = "VERIFIED"         // verification record present
	StateValidated       State = "VALIDATED"        // verification acknowledged by a person
)

var validStates = map[State]bool{
	StateDraft:           true,
	StateOpen:            true,
	StatePriced:          true,
	StateInvoiceAttached: true,
	StateVerified:        true,
	StateValidated:       true,
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known settlement state
func (s State) IsValid() bool {
	return validStates[s]
}

// HasVerification reports whether packages in this state carry a verification record
func (s State) HasVerification() bool {
	return s == StateVerified || s == StateValidated
}

// Derive computes the state of a package. priced tells whether an effective
// unit price (own or expedition fallback) is known.
func Derive(pkg *entity.Package, priced bool) State {
	switch {
	case pkg.Verification != nil && pkg.Verification.Validated:
		return StateValidated
	case pkg.Verification != nil:
		return StateVerified
	case pkg.HasInvoice():
		return StateInvoiceAttached
	case priced:
		return StatePriced
	case len(pkg.Lines) > 0:
		return StateOpen
	default:
		return StateDraft
	}
}
