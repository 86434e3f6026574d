package workflow

// Trigger is a package mutation
type Trigger string

const (
	TriggerAddLine           Trigger = "ADD_LINE"
	TriggerRemoveLine        Trigger = "REMOVE_LINE"
	TriggerEditData          Trigger = "EDIT_DATA"
	TriggerSetPrice          Trigger = "SET_PRICE"
	TriggerSetClose          Trigger = "SET_CLOSE"
	TriggerAttachInvoice     Trigger = "ATTACH_INVOICE"
	TriggerRemoveInvoice     Trigger = "REMOVE_INVOICE"
	TriggerVerify            Trigger = "VERIFY"
	TriggerClearVerification Trigger = "CLEAR_VERIFICATION"
	TriggerValidate          Trigger = "VALIDATE"
	TriggerChangeStatus      Trigger = "CHANGE_STATUS"
	TriggerChangePayment     Trigger = "CHANGE_PAYMENT"
	TriggerComment           Trigger = "COMMENT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// Invalidates reports whether the trigger can change an input the verification
// record was computed from (discount, tax, price or line set). Whether it did is
// decided per mutation by comparing the package before and after.
func (t Trigger) Invalidates() bool {
	switch t {
	case TriggerAddLine, TriggerRemoveLine, TriggerEditData, TriggerSetPrice:
		return true
	}
	return false
}
