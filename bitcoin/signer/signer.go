// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ErrMissingLeafScript defines that input carries no taproot leaf script to spend.
var ErrMissingLeafScript = errors.New("input has no taproot leaf script")

// ErrInvalidInputIndex defines that input index is out of packet bounds.
var ErrInvalidInputIndex = errors.New("invalid input index")

// SignKeyPathParams defines parameters for SignKeyPath method.
type SignKeyPathParams struct {
	Packet     *psbt.Packet
	Inputs     []int // inputs indexes.
	PrivateKey *btcec.PrivateKey
}

// Signer provides taproot transaction signing related logic.
type Signer struct {
	networkParams *chaincfg.Params
}

// NewSigner is a constructor for Signer.
func NewSigner(networkParams *chaincfg.Params) *Signer {
	return &Signer{
		networkParams: networkParams,
	}
}

// SignKeyPath signs taproot key-path inputs by provided indexes, filling the
// taproot key spend signature of each.
func (signer *Signer) SignKeyPath(params SignKeyPathParams) error {
	fetcher := prevOutputFetcher(params.Packet)

	for _, input := range params.Inputs {
		if input < 0 || input >= len(params.Packet.Inputs) {
			return ErrInvalidInputIndex
		}

		in := &params.Packet.Inputs[input]
		sigHashes := txscript.NewTxSigHashes(params.Packet.UnsignedTx, fetcher)

		witness, err := txscript.TaprootWitnessSignature(
			params.Packet.UnsignedTx, sigHashes, input,
			in.WitnessUtxo.Value, in.WitnessUtxo.PkScript,
			in.SighashType, params.PrivateKey,
		)
		if err != nil {
			return err
		}

		in.TaprootKeySpendSig = witness[0]
	}

	return nil
}

// FinalizeScriptPathInput signs the input through its taproot leaf script and
// writes the final witness stack (signature, leaf script, control block) so the
// packet can be extracted into a broadcastable transaction.
func (signer *Signer) FinalizeScriptPathInput(packet *psbt.Packet, input int, privateKey *btcec.PrivateKey) error {
	if input < 0 || input >= len(packet.Inputs) {
		return ErrInvalidInputIndex
	}

	in := &packet.Inputs[input]
	if len(in.TaprootLeafScript) == 0 {
		return ErrMissingLeafScript
	}

	var (
		leafScript    = in.TaprootLeafScript[0]
		tapLeaf       = txscript.NewTapLeaf(leafScript.LeafVersion, leafScript.Script)
		tapScriptTree = txscript.AssembleTaprootScriptTree(tapLeaf)
		ctrlBlock     = tapScriptTree.LeafMerkleProofs[0].ToControlBlock(privateKey.PubKey())
		fetcher       = prevOutputFetcher(packet)
		sigHashes     = txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)
	)

	// BIP341 commits the parity of the tweaked output key into the control
	// block, so it is derived from the script tree here rather than taken
	// from the carried PSBT field.
	ctrlBlockBytes, err := ctrlBlock.ToBytes()
	if err != nil {
		return err
	}

	sig, err := txscript.RawTxInTapscriptSignature(
		packet.UnsignedTx, sigHashes, input,
		in.WitnessUtxo.Value, in.WitnessUtxo.PkScript,
		tapLeaf, in.SighashType, privateKey,
	)
	if err != nil {
		return err
	}

	witness := wire.TxWitness{sig, leafScript.Script, ctrlBlockBytes}
	in.FinalScriptWitness, err = serializeWitness(witness)
	if err != nil {
		return err
	}

	return nil
}

// prevOutputFetcher builds an output fetcher over every witness utxo of the packet.
func prevOutputFetcher(packet *psbt.Packet) txscript.PrevOutputFetcher {
	outputs := make(map[wire.OutPoint]*wire.TxOut, len(packet.Inputs))
	for idx, in := range packet.Inputs {
		outputs[packet.UnsignedTx.TxIn[idx].PreviousOutPoint] = in.WitnessUtxo
	}

	return txscript.NewMultiPrevOutFetcher(outputs)
}

// serializeWitness returns the witness stack in the wire encoding PSBT expects
// for the final witness field.
func serializeWitness(witness wire.TxWitness) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(witness))); err != nil {
		return nil, err
	}
	for _, item := range witness {
		if err := wire.WriteVarBytes(&buf, 0, item); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}
