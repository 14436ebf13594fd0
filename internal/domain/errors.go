package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrFundNotFound      = fmt.Errorf("fund account %w", ErrNotFound)
	ErrNotPending        = errors.New("withdrawal is not pending")
	ErrAlreadyApproved   = errors.New("approver already approved this withdrawal")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidCredential = errors.New("invalid approval credential")
	ErrExternalTransfer  = errors.New("external transfer failed")
)
