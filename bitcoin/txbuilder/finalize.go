// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"inscriber/bitcoin/signer"
)

// FinalizeRevealParams describes data needed to complete the reveal transaction
// once the commit transaction id is known.
type FinalizeRevealParams struct {
	RevealPSBT       string // base64, produced by CreateInscriptionTransactions.
	CommitTxid       string
	CommitVout       uint32
	RevealPrivateKey *btcec.PrivateKey
	// SkipSigning leaves the witness empty, producing a structurally complete
	// but unsigned PSBT. Used in tests running without a signer.
	SkipSigning bool
}

// FinalizedReveal describes the completed reveal transaction.
type FinalizedReveal struct {
	PSBT     string // base64.
	RawTxHex string // empty when signing was skipped.
}

// FinalizeRevealPSBT patches the reveal input with the real commit outpoint and
// signs it through the envelope script path.
func (b *TxBuilder) FinalizeRevealPSBT(params FinalizeRevealParams) (*FinalizedReveal, error) {
	packet, err := psbt.NewFromRawBytes(strings.NewReader(params.RevealPSBT), true)
	if err != nil {
		return nil, err
	}

	commitHash, err := chainhash.NewHashFromStr(params.CommitTxid)
	if err != nil {
		return nil, err
	}
	packet.UnsignedTx.TxIn[0].PreviousOutPoint = wire.OutPoint{
		Hash:  *commitHash,
		Index: params.CommitVout,
	}

	if params.SkipSigning {
		encoded, err := packet.B64Encode()
		if err != nil {
			return nil, err
		}

		return &FinalizedReveal{PSBT: encoded}, nil
	}

	revealSigner := signer.NewSigner(b.networkParams)
	if err := revealSigner.FinalizeScriptPathInput(packet, 0, params.RevealPrivateKey); err != nil {
		return nil, err
	}

	finalTx, err := psbt.Extract(packet)
	if err != nil {
		return nil, err
	}

	var raw bytes.Buffer
	if err := finalTx.Serialize(&raw); err != nil {
		return nil, err
	}

	encoded, err := packet.B64Encode()
	if err != nil {
		return nil, err
	}

	return &FinalizedReveal{
		PSBT:     encoded,
		RawTxHex: hex.EncodeToString(raw.Bytes()),
	}, nil
}
