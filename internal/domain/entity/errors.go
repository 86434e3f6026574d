package entity

import "errors"

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when caller-supplied values are rejected
	ErrInvalidInput = errors.New("invalid input")

	// ErrExtractionFailed is returned when the invoice extraction yields no usable total
	ErrExtractionFailed = errors.New("invoice extraction failed")

	// ErrStaleVerification is returned when validating a verification whose source
	// file no longer matches the attached invoice
	ErrStaleVerification = errors.New("verification does not match attached invoice")

	// ErrNotVerified is returned when validating a package without a verification record
	ErrNotVerified = errors.New("package has no verification")

	// ErrNoInvoice is returned when an operation needs an attached invoice file
	ErrNoInvoice = errors.New("package has no invoice attached")

	// ErrCascadeFailed is returned when an expedition cascade delete could not complete
	ErrCascadeFailed = errors.New("cascade delete failed")
)
