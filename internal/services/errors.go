package services

import "errors"

var (
	// ErrWalletNotFound is returned when no wallet exists for the user.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrInsufficientBalance is returned when a debit would overdraw the
	// wallet. No mutation is performed.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrWithdrawalNotFound is returned when a withdrawal does not exist or
	// belongs to a different user.
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	// ErrInvalidState is returned when a terminal withdrawal is asked to
	// transition again. The losing side of a concurrent cancel/evaluate
	// race sees this; it is a business fact, not a transient failure.
	ErrInvalidState = errors.New("withdrawal already processed")
	// ErrValidation is wrapped by synchronous request validation failures.
	ErrValidation = errors.New("validation failed")
)
