package codes

import "errors"

var (
	// ErrMissingCode is returned when neither the requested code nor its
	// configured fallback exists in the table.
	ErrMissingCode = errors.New("codes: no code for requested state")

	// ErrInvalidPseudoMode is returned when a temperature entry names a
	// pseudo-mode other than heat, cool or auto.
	ErrInvalidPseudoMode = errors.New("codes: pseudo-mode must be heat, cool or auto")
)
