package treasury

import (
	"errors"
	"fmt"

	nativecommon "flowcash/native/common"
)

var (
	ErrUnauthorized        = errors.New("treasury: not authorized collector")
	ErrNotOwner            = errors.New("treasury: caller is not the owner")
	ErrInvalidAmount       = errors.New("treasury: amount must be greater than 0")
	ErrInsufficientBalance = errors.New("treasury: insufficient balance")
	ErrBelowThreshold      = errors.New("treasury: below distribution threshold")
	ErrInvalidWalletKind   = errors.New("treasury: invalid wallet type")
	ErrInvalidAddress      = errors.New("treasury: invalid wallet address")
	ErrInvalidThreshold    = errors.New("treasury: threshold must be greater than 0")
	ErrPaused              = fmt.Errorf("treasury: %w", nativecommon.ErrModulePaused)
	ErrNilState            = errors.New("treasury: state not configured")
)
