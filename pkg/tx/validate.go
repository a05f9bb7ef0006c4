package tx

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	ErrZeroAmount        = errors.New("transaction amount is zero")
	ErrInvalidTxType     = errors.New("invalid transaction type")
	ErrZeroTimestamp     = errors.New("transaction timestamp is zero")
	ErrInvalidSource     = errors.New("invalid source account")
	ErrInvalidDest       = errors.New("invalid destination account")
	ErrSelfTransfer      = errors.New("source and destination are the same account")
	ErrMissingSignature  = errors.New("transaction is missing a signature")
	ErrInvalidSignature  = errors.New("transaction signature does not verify")
	ErrAmountFeeOverflow = errors.New("amount plus fee overflows")
)

// Validate checks transaction structure and, for non-coinbase transactions,
// signature validity. It does not check account balances — that requires
// the chain store or mempool state and is performed by the caller.
func (t *Transaction) Validate() error {
	switch t.TxType {
	case TxTypeGenesis, TxTypeCoinbase, TxTypeStandard, TxTypeAssetCreation:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidTxType, t.TxType)
	}
	if t.Timestamp == 0 {
		return ErrZeroTimestamp
	}
	if t.TxType == TxTypeStandard && t.Amount == 0 {
		return ErrZeroAmount
	}
	if t.Amount > t.Amount+t.Fee {
		return ErrAmountFeeOverflow
	}
	if err := t.Destination.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDest, err)
	}

	if t.IsCoinbase() {
		return nil
	}

	if err := t.Source.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if t.Source == t.Destination {
		return ErrSelfTransfer
	}
	if t.Signature == "" {
		return ErrMissingSignature
	}
	if !t.VerifySignature() {
		return ErrInvalidSignature
	}
	return nil
}
