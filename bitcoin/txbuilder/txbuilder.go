// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"inscriber/bitcoin"
	"inscriber/bitcoin/inscriptions"
)

const (
	// txVersion defines transaction version for this builder.
	txVersion int32 = 2
	// signHashType defines signature hash type for taproot input signing.
	signHashType = txscript.SigHashDefault
	// defaultSequenceNum enables replace-by-fee on built inputs.
	defaultSequenceNum = wire.MaxTxInSequenceNum - 10
)

// InscriptionParams describes data needed to build the commit/reveal transaction pair.
type InscriptionParams struct {
	Content          inscriptions.Content
	FeeRate          int64 // in Satoshi per vByte.
	RecipientAddress string
	ChangeAddress    string
	UTXOs            []bitcoin.UTXO
	// Postage defines the amount delivered to the recipient with the
	// inscription. Values below the dust limit, including zero, are raised to it.
	Postage int64
	// RevealPrivateKey is the ephemeral reveal signing key. Generated when nil;
	// a caller retrying a prepared inscription must pass the original key so
	// that the commit address stays stable.
	RevealPrivateKey *btcec.PrivateKey
	// SenderPublicKey is the optional hex-encoded taproot public key of the
	// UTXO owner, attached to commit PSBT inputs for the external signer.
	SenderPublicKey string
}

// InscriptionTransactions describes the built unsigned commit/reveal pair with
// fee accounting and the derived commit artifacts.
type InscriptionTransactions struct {
	CommitPSBT        string // base64.
	RevealPSBT        string // base64, input outpoint unset until commit txid is known.
	RevealPrivateKey  *btcec.PrivateKey
	Prepared          *inscriptions.PreparedScripts
	CommitOutputValue int64 // in Satoshi.
	CommitFee         int64 // in Satoshi.
	RevealFee         int64 // in Satoshi.
	EstimatedVBytes   int   // commit and reveal transactions combined.
	SelectedUTXOs     []bitcoin.UTXO
	ChangeAmount      int64
	NeedsChange       bool
}

// TxBuilder provides inscription transaction building related logic.
type TxBuilder struct {
	networkParams *chaincfg.Params
}

// NewTxBuilder is a constructor for TxBuilder.
func NewTxBuilder(networkParams *chaincfg.Params) *TxBuilder {
	return &TxBuilder{
		networkParams: networkParams,
	}
}

// CreateInscriptionTransactions builds the unsigned commit PSBT funding the
// inscription envelope address and the unsigned reveal PSBT spending it to the
// recipient.
//
//	commit tx outputs:
//	┌───────┬───────────────┬─────────────────────────────────────────┐
//	│ index │     type      │              description                │
//	├=======┼===============┼=========================================┤
//	│     0 │ commit output │ P2TR envelope address, funds the reveal │
//	│       │               │ fee plus recipient postage.             │
//	├───────┼───────────────┼─────────────────────────────────────────┤
//	│     1 │ change output │ optional, only when change is above the │
//	│       │               │ dust limit.                             │
//	└───────┴───────────────┴─────────────────────────────────────────┘
//
// The reveal transaction has exactly one input (the commit output, outpoint
// patched in once the commit txid is known) and one output paying postage to
// the recipient.
func (b *TxBuilder) CreateInscriptionTransactions(params InscriptionParams) (*InscriptionTransactions, error) {
	for _, utxo := range params.UTXOs {
		if utxo.Amount <= 0 {
			return nil, fmt.Errorf("%w: %s:%d", bitcoin.ErrInvalidUTXOAmount, utxo.TxHash, utxo.Index)
		}
	}

	revealKey := params.RevealPrivateKey
	if revealKey == nil {
		var err error
		revealKey, err = btcec.NewPrivateKey()
		if err != nil {
			return nil, err
		}
	}

	prepared, err := inscriptions.BuildScripts(
		revealKey.PubKey().SerializeCompressed(), params.Content, b.networkParams)
	if err != nil {
		return nil, err
	}

	envelopeLen := len(prepared.EnvelopeScript)
	revealVBytes := EstimateTxVBytes(0, 1, envelopeLen, 1)
	revealFee := int64(revealVBytes) * params.FeeRate

	postage := params.Postage
	if postage < bitcoin.DustLimit {
		postage = bitcoin.DustLimit
	}
	commitOutputValue := revealFee + postage

	selection := SelectUTXOs(SelectParams{
		AvailableUTXOs:    params.UTXOs,
		RecipientAmount:   commitOutputValue,
		FeeRate:           params.FeeRate,
		NumOutputs:        1,
		EnvelopeScriptLen: envelopeLen,
	})
	if selection == nil {
		var have int64
		for _, utxo := range params.UTXOs {
			have += utxo.Amount
		}
		minFee := int64(EstimateTxVBytes(1, 1, envelopeLen, 1)) * params.FeeRate

		return nil, bitcoin.NewInsufficientFundsError(commitOutputValue+minFee, have)
	}

	commitPSBT, err := b.buildCommitPSBT(params, selection, prepared.CommitOutputScript, commitOutputValue)
	if err != nil {
		return nil, err
	}

	revealPSBT, err := b.buildRevealPSBT(params.RecipientAddress, prepared, commitOutputValue, postage)
	if err != nil {
		return nil, err
	}

	return &InscriptionTransactions{
		CommitPSBT:        commitPSBT,
		RevealPSBT:        revealPSBT,
		RevealPrivateKey:  revealKey,
		Prepared:          prepared,
		CommitOutputValue: commitOutputValue,
		CommitFee:         selection.Fee,
		RevealFee:         revealFee,
		EstimatedVBytes:   selection.VBytes + revealVBytes,
		SelectedUTXOs:     selection.UTXOs,
		ChangeAmount:      selection.Change,
		NeedsChange:       selection.NeedsChange,
	}, nil
}

// buildCommitPSBT builds the serialized unsigned commit transaction funding the
// envelope address, with witness data attached for the external signer.
func (b *TxBuilder) buildCommitPSBT(
	params InscriptionParams, selection *Selection, commitOutputScript []byte, commitOutputValue int64,
) (string, error) {
	tx := wire.NewMsgTx(txVersion)
	for _, utxo := range selection.UTXOs {
		utxoHash, err := chainhash.NewHashFromStr(utxo.TxHash)
		if err != nil {
			return "", err
		}

		in := wire.NewTxIn(wire.NewOutPoint(utxoHash, utxo.Index), nil, nil)
		in.Sequence = defaultSequenceNum
		tx.AddTxIn(in)
	}

	tx.AddTxOut(wire.NewTxOut(commitOutputValue, commitOutputScript))

	if selection.NeedsChange {
		if err := b.addOutput(tx, selection.Change, params.ChangeAddress); err != nil {
			return "", err
		}
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return "", err
	}

	senderPubKey, err := hex.DecodeString(params.SenderPublicKey)
	if err != nil {
		return "", err
	}
	if len(senderPubKey) == 33 {
		// PSBT taproot fields carry x-only keys.
		senderPubKey = senderPubKey[1:]
	}

	for i, utxo := range selection.UTXOs {
		packet.Inputs[i].WitnessUtxo = wire.NewTxOut(utxo.Amount, utxo.Script)
		packet.Inputs[i].SighashType = signHashType
		if len(senderPubKey) != 0 {
			packet.Inputs[i].TaprootInternalKey = senderPubKey
		}
	}

	return packet.B64Encode()
}

// buildRevealPSBT builds the serialized unsigned reveal transaction spending
// the commit output through the envelope script path. The input outpoint
// references the not-yet-known commit transaction and is patched by
// FinalizeRevealPSBT.
func (b *TxBuilder) buildRevealPSBT(
	recipientAddress string, prepared *inscriptions.PreparedScripts, commitOutputValue, postage int64,
) (string, error) {
	tx := wire.NewMsgTx(txVersion)

	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Sequence = defaultSequenceNum
	tx.AddTxIn(in)

	if err := b.addOutput(tx, postage, recipientAddress); err != nil {
		return "", err
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return "", err
	}

	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(commitOutputValue, prepared.CommitOutputScript)
	packet.Inputs[0].SighashType = signHashType
	packet.Inputs[0].TaprootInternalKey = prepared.InternalKey
	packet.Inputs[0].TaprootLeafScript = []*psbt.TaprootTapLeafScript{{
		ControlBlock: prepared.ControlBlock,
		Script:       prepared.EnvelopeScript,
		LeafVersion:  txscript.TapscriptLeafVersion(prepared.LeafVersion),
	}}

	return packet.B64Encode()
}

// addOutput decodes address and adds output with the amount to transaction.
func (b *TxBuilder) addOutput(tx *wire.MsgTx, amount int64, address string) error {
	recipientAddress, err := btcutil.DecodeAddress(address, b.networkParams)
	if err != nil {
		return err
	}

	outputScript, err := txscript.PayToAddrScript(recipientAddress)
	if err != nil {
		return err
	}

	tx.AddTxOut(wire.NewTxOut(amount, outputScript))

	return nil
}
