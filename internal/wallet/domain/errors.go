package domain

import "errors"

var (
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrInvalidAmount          = errors.New("transaction amount must be positive")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInsufficientFunds      = errors.New("insufficient wallet funds")
	ErrHoldExceedsAvailable   = errors.New("hold exceeds usable funds")
	ErrHoldReleaseUnderflow   = errors.New("hold release exceeds held funds")
)
