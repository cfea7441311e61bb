package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrAmountMismatch      = errors.New("amount mismatch")
	ErrInsufficientBalance = errors.New("insufficient account balance")
	ErrUnexpectedState     = errors.New("record in unexpected state")
	ErrTransactionSettled  = errors.New("transaction already settled")
)

// TransitionError reports an event fired from a state outside its declared
// source set. This is a programming or data error, never coerced silently.
type TransitionError struct {
	Event Event
	From  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q not allowed from state %q", e.Event, e.From)
}
