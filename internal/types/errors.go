package types

import "errors"

var (
	// ErrUnauthorized is returned when the caller is neither the ledger
	// owner, the hook orchestrator, nor a registered module.
	ErrUnauthorized = errors.New("caller is not authorized")

	// ErrInvalidInput is returned when a numeric parameter is outside its
	// declared range.
	ErrInvalidInput = errors.New("invalid input")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientSavings = errors.New("insufficient savings")

	ErrIndexOutOfBounds = errors.New("index out of bounds")

	ErrAlreadyInitialized = errors.New("already initialized")
	ErrModuleNotFound     = errors.New("module not found")

	ErrTransferFailed   = errors.New("transfer failed")
	ErrWithdrawalFailed = errors.New("withdrawal failed")

	// ErrReentrantCall rejects a nested call into an operation that is
	// already on the stack.
	ErrReentrantCall = errors.New("reentrant call")
)
