package workflow

import (
	"fmt"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
)

// GuardFunc decides whether a permitted trigger may fire for a given package
type GuardFunc func(pkg *entity.Package) bool

// Machine holds the triggers permitted from each settlement state
type Machine struct {
	permitted map[State]map[Trigger]GuardFunc
}

// Builder configures a Machine
type Builder struct {
	permitted map[State]map[Trigger]GuardFunc
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{permitted: make(map[State]map[Trigger]GuardFunc)}
}

// Permit allows trigger from every listed state
func (b *Builder) Permit(trigger Trigger, from ...State) *Builder {
	return b.PermitIf(trigger, nil, from...)
}

// PermitIf allows trigger from every listed state when guard passes
func (b *Builder) PermitIf(trigger Trigger, guard GuardFunc, from ...State) *Builder {
	for _, s := range from {
		if !s.IsValid() {
			panic(fmt.Sprintf("invalid state: %s", s))
		}
		if b.permitted[s] == nil {
			b.permitted[s] = make(map[Trigger]GuardFunc)
		}
		b.permitted[s][trigger] = guard
	}
	return b
}

// Build returns an immutable machine
func (b *Builder) Build() *Machine {
	m := &Machine{permitted: make(map[State]map[Trigger]GuardFunc, len(b.permitted))}
	for s, triggers := range b.permitted {
		c := make(map[Trigger]GuardFunc, len(triggers))
		for t, g := range triggers {
			c[t] = g
		}
		m.permitted[s] = c
	}
	return m
}

// CanFire returns true if the trigger is permitted from state, ignoring guards
func (m *Machine) CanFire(state State, trigger Trigger) bool {
	_, ok := m.permitted[state][trigger]
	return ok
}

// Check returns nil when trigger may fire for pkg in state
func (m *Machine) Check(state State, trigger Trigger, pkg *entity.Package) error {
	guard, ok := m.permitted[state][trigger]
	if !ok {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, state)
	}
	if guard != nil && !guard(pkg) {
		return fmt.Errorf("%w: %s from %s", ErrGuardFailed, trigger, state)
	}
	return nil
}

// SourceFileMatches is the guard on validation: the verification must have been
// computed from the invoice currently attached.
func SourceFileMatches(pkg *entity.Package) bool {
	return pkg.Verification != nil && pkg.HasInvoice() && pkg.Verification.SourceFileID == pkg.InvoiceFileID
}

var allStates = []State{StateDraft, StateOpen, StatePriced, StateInvoiceAttached, StateVerified, StateValidated}

// NewSettlementMachine returns the package settlement lifecycle
func NewSettlementMachine() *Machine {
	withInvoice := []State{StateInvoiceAttached, StateVerified, StateValidated}

	return NewBuilder().
		Permit(TriggerAddLine, allStates...).
		Permit(TriggerRemoveLine, StateOpen, StatePriced, StateInvoiceAttached, StateVerified, StateValidated).
		Permit(TriggerEditData, allStates...).
		Permit(TriggerSetPrice, allStates...).
		Permit(TriggerSetClose, allStates...).
		Permit(TriggerAttachInvoice, allStates...).
		Permit(TriggerChangeStatus, allStates...).
		Permit(TriggerChangePayment, allStates...).
		Permit(TriggerComment, allStates...).
		Permit(TriggerRemoveInvoice, withInvoice...).
		PermitIf(TriggerVerify, func(p *entity.Package) bool { return p.HasInvoice() }, withInvoice...).
		Permit(TriggerClearVerification, StateVerified, StateValidated).
		PermitIf(TriggerValidate, SourceFileMatches, StateVerified).
		Build()
}
