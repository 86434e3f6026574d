package entity

// Location workflow status of a package. Orthogonal to the settlement state.
const (
	StatusInTransit = "EN_TRANSITO"
	StatusReceived  = "RECIBIDO"
	StatusInFoundry = "EN_FUNDICION"
	StatusClosed    = "CERRADO"
)

// Payment status of a package
const (
	PaymentPending = "PENDIENTE"
	PaymentPartial = "PARCIAL"
	PaymentPaid    = "PAGADO"
)

var validStatuses = map[string]bool{
	StatusInTransit: true,
	StatusReceived:  true,
	StatusInFoundry: true,
	StatusClosed:    true,
}

var validPaymentStatuses = map[string]bool{
	PaymentPending: true,
	PaymentPartial: true,
	PaymentPaid:    true,
}

// IsValidStatus reports whether s is a known location status
func IsValidStatus(s string) bool {
	return validStatuses[s]
}

// IsValidPaymentStatus reports whether s is a known payment status
func IsValidPaymentStatus(s string) bool {
	return validPaymentStatuses[s]
}
