// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"errors"
	"fmt"
)

// DustLimit defines the smallest economically spendable P2TR output value in satoshi.
// Outputs below this value are rejected by policy as uneconomical.
const DustLimit int64 = 546

// ErrInsufficientFunds defines that available UTXOs can not cover amount plus fee.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInvalidUTXOAmount defines that provided UTXO set is invalid for selection.
var ErrInvalidUTXOAmount = errors.New("invalid utxo amount")

// UTXO describes unspent transaction output data.
type UTXO struct {
	TxHash  string
	Index   uint32 // output index in transaction outputs.
	Amount  int64  // in Satoshi.
	Script  []byte // ScriptPubKey.
	Address string // output recipient address.
}

// InsufficientFundsError is the error type to describe insufficient balance errors with details.
type InsufficientFundsError struct {
	Need int64
	Have int64
}

// NewInsufficientFundsError is a constructor for InsufficientFundsError.
func NewInsufficientFundsError(need, have int64) *InsufficientFundsError {
	return &InsufficientFundsError{Need: need, Have: have}
}

// Error returns error description.
func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %d sat, have %d sat", e.Need, e.Have)
}

// Unwrap implements matching against ErrInsufficientFunds for [errors] package.
func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}
