package ledger

import (
	"errors"
	"fmt"

	nativecommon "flowcash/native/common"
)

var (
	ErrUnauthorized         = errors.New("ledger: not authorized processor")
	ErrNotOwner             = errors.New("ledger: caller is not the owner")
	ErrInvalidRecipient     = errors.New("ledger: invalid recipient")
	ErrInvalidUser          = errors.New("ledger: invalid user")
	ErrSelfTransfer         = errors.New("ledger: cannot send to self")
	ErrAmountTooLow         = errors.New("ledger: amount too low")
	ErrInvalidPaymentType   = errors.New("ledger: use SendETN for P2P transfers")
	ErrInvalidTransactionID = errors.New("ledger: invalid transaction id")
	ErrAlreadyProcessed     = errors.New("ledger: transaction already processed")
	ErrInvalidAddress       = errors.New("ledger: invalid address")
	ErrInvalidAmount        = errors.New("ledger: amount must be greater than 0")
	ErrPaused               = fmt.Errorf("ledger: %w", nativecommon.ErrModulePaused)
	ErrNilState             = errors.New("ledger: state not configured")
	ErrNilCollector         = errors.New("ledger: fee collector not configured")
)
