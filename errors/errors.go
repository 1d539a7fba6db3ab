// Package errors defines the sentinel errors callers branch on.
package errors

import "fmt"

var (
	ErrInvalidEmailSyntax = fmt.Errorf("invalid email syntax")
	ErrInvalidName        = fmt.Errorf("invalid name")
	ErrDuplicateEmail     = fmt.Errorf("email already registered")
	ErrInvalidPair        = fmt.Errorf("conversations require exactly one customer and one seller")
	ErrUnknownUser        = fmt.Errorf("no such user")
	ErrNotText            = fmt.Errorf("payload is not text")
)
