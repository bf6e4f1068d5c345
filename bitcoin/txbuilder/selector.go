// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"sort"

	"inscriber/bitcoin"
)

// SelectParams describes data needed to pick UTXOs covering a spend amount plus fee.
type SelectParams struct {
	AvailableUTXOs  []bitcoin.UTXO
	RecipientAmount int64 // in Satoshi.
	FeeRate         int64 // in Satoshi per vByte.
	NumOutputs      int   // outputs besides the change output.
	// EnvelopeScriptLen adds one taproot script-path input of the given leaf
	// script length to the size estimate when positive. Used when the selected
	// funds also cover an inscription reveal spend.
	EnvelopeScriptLen int
}

// Selection describes the picked UTXO set with fee and change accounting.
type Selection struct {
	UTXOs       []bitcoin.UTXO
	TotalInput  int64 // in Satoshi.
	Fee         int64 // in Satoshi.
	Change      int64 // in Satoshi, zero unless NeedsChange.
	NeedsChange bool
	VBytes      int
}

// SelectUTXOs picks a covering UTXO set for the requested amount at the given
// fee rate, greedy largest-first. Returns nil if available UTXOs can not cover
// amount plus fee: insufficient funds is an expected outcome here, not an error.
//
// While accumulating, the fee is computed assuming a change output is present.
// Once covered, change below the dust limit is absorbed into the fee and the
// change output is dropped; the exact-amount case follows the same path.
func SelectUTXOs(params SelectParams) *Selection {
	candidates := make([]bitcoin.UTXO, len(params.AvailableUTXOs))
	copy(candidates, params.AvailableUTXOs)
	// Stable: equal-value candidates keep their original order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Amount > candidates[j].Amount
	})

	scriptPathInputs := 0
	if params.EnvelopeScriptLen > 0 {
		scriptPathInputs = 1
	}

	var (
		selected      []bitcoin.UTXO
		totalInput    int64
		feeWithChange int64
		vbWithChange  int
		covered       bool
	)
	for _, utxo := range candidates {
		selected = append(selected, utxo)
		totalInput += utxo.Amount

		vbWithChange = EstimateTxVBytes(
			len(selected), scriptPathInputs, params.EnvelopeScriptLen, params.NumOutputs+1)
		feeWithChange = int64(vbWithChange) * params.FeeRate

		if totalInput >= params.RecipientAmount+feeWithChange {
			covered = true
			break
		}
	}
	if !covered {
		return nil
	}

	potentialChange := totalInput - params.RecipientAmount - feeWithChange
	if potentialChange < bitcoin.DustLimit {
		vbytes := EstimateTxVBytes(
			len(selected), scriptPathInputs, params.EnvelopeScriptLen, params.NumOutputs)

		return &Selection{
			UTXOs:       selected,
			TotalInput:  totalInput,
			Fee:         totalInput - params.RecipientAmount,
			NeedsChange: false,
			VBytes:      vbytes,
		}
	}

	return &Selection{
		UTXOs:       selected,
		TotalInput:  totalInput,
		Fee:         feeWithChange,
		Change:      potentialChange,
		NeedsChange: true,
		VBytes:      vbWithChange,
	}
}
