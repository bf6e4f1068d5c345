// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"github.com/btcsuite/btcd/txscript"

	"inscriber/bitcoin/inscriptions"
)

// Virtual-size constants for taproot transactions. Witness data is weighted at
// 1/4 per BIP-141; every fractional result is rounded up so that fees computed
// from these numbers are always sufficient.
const (
	// txOverheadVBytes defines tx header size in vBytes: version (4) +
	// locktime (4) + input count (1) + output count (1) + ceil of segwit
	// marker and flag (2 weight units).
	txOverheadVBytes = 11
	// p2trKeyPathInputVBytes defines size of a single-signature taproot
	// key-path spend input: outpoint (36) + script length (1) + sequence (4)
	// + ceil of 66 weight units of witness (item count + 65-byte signature push).
	p2trKeyPathInputVBytes = 58
	// p2trOutputVBytes defines size of a P2TR output: value (8) + script
	// length (1) + scriptPubKey (34).
	p2trOutputVBytes = 43
	// inputBaseVBytes defines non-witness part of any input: outpoint (36) +
	// script length (1) + sequence (4).
	inputBaseVBytes = 41
	// schnorrSignatureWitnessWeight defines weight of a pushed 64-byte
	// schnorr signature with its length prefix.
	schnorrSignatureWitnessWeight = 65
	// controlBlockBaseLen defines length of a control block for a single-leaf
	// script tree: leaf version|parity byte + 32-byte internal key.
	controlBlockBaseLen = 33
	// merkleBranchLen defines length of one merkle branch hash in a control block.
	merkleBranchLen = 32
)

// EstimateP2TRKeyPathInputVBytes returns size of a standard taproot key-path
// spend input in vBytes.
func EstimateP2TRKeyPathInputVBytes() int {
	return p2trKeyPathInputVBytes
}

// EstimateP2TROutputVBytes returns size of a P2TR output in vBytes.
func EstimateP2TROutputVBytes() int {
	return p2trOutputVBytes
}

// EstimateP2TRScriptPathInputVBytes returns size of a taproot script-path
// spend input in vBytes for the given leaf script length and control block
// leaf depth. The witness stack is signature, leaf script, control block.
func EstimateP2TRScriptPathInputVBytes(leafScriptLen, leafDepth int) int {
	witnessWeight := 1 + // witness item count.
		schnorrSignatureWitnessWeight +
		witnessElementOverhead(leafScriptLen) + leafScriptLen +
		1 + controlBlockBaseLen + leafDepth*merkleBranchLen

	return inputBaseVBytes + ceilDiv(witnessWeight, 4)
}

// EstimateTxVBytes returns total transaction size in vBytes for the given
// number of taproot key-path inputs, script-path inputs spending a leaf script
// of leafScriptLen bytes, and P2TR outputs.
func EstimateTxVBytes(keyPathInputs, scriptPathInputs, leafScriptLen, outputs int) int {
	return txOverheadVBytes +
		keyPathInputs*p2trKeyPathInputVBytes +
		scriptPathInputs*EstimateP2TRScriptPathInputVBytes(leafScriptLen, 0) +
		outputs*p2trOutputVBytes
}

// EstimateEnvelopeScriptSize returns the exact byte length of the inscription
// redeem script built for the given content dimensions. It mirrors the builder
// in bitcoin/inscriptions push for push.
func EstimateEnvelopeScriptSize(contentTypeLen, contentLen, metadataLen, metaprotocolLen int, hasParent bool) int {
	// <32-byte key push> OP_CHECKSIG.
	size := 1 + 32 + 1
	// OP_FALSE OP_IF <"ord" push>.
	size += 1 + 1 + 1 + len(protocolIDBytes)

	if hasParent {
		// Tag push pair: worst case txid (32) + 4-byte index.
		size += tagPushLen + dataPushOverhead(36) + 36
	}

	size += chunkedFieldSize(metadataLen)

	if metaprotocolLen > 0 {
		size += tagPushLen + dataPushOverhead(metaprotocolLen) + metaprotocolLen
	}

	if contentTypeLen > 0 {
		size += tagPushLen + dataPushOverhead(contentTypeLen) + contentTypeLen
	}

	if contentLen > 0 {
		size++ // OP_0 body marker.
		for start := 0; start < contentLen; start += inscriptions.MaxDataPushLen {
			chunk := contentLen - start
			if chunk > inscriptions.MaxDataPushLen {
				chunk = inscriptions.MaxDataPushLen
			}

			size += dataPushOverhead(chunk) + chunk
		}
	}

	// OP_ENDIF.
	return size + 1
}

// protocolIDBytes defines the "ord" protocol identifier push payload.
var protocolIDBytes = []byte("ord")

// tagPushLen defines encoded length of a field tag push: OP_DATA_1 + tag byte.
const tagPushLen = 2

// chunkedFieldSize returns encoded size of a tagged field split into pushes of
// at most MaxDataPushLen bytes, a tag push before every chunk.
func chunkedFieldSize(fieldLen int) int {
	size := 0
	for start := 0; start < fieldLen; start += inscriptions.MaxDataPushLen {
		chunk := fieldLen - start
		if chunk > inscriptions.MaxDataPushLen {
			chunk = inscriptions.MaxDataPushLen
		}

		size += tagPushLen + dataPushOverhead(chunk) + chunk
	}

	return size
}

// dataPushOverhead returns opcode and length-prefix bytes needed to push n
// bytes of data in a script: direct push below OP_PUSHDATA1, then the
// OP_PUSHDATA1/2/4 thresholds.
func dataPushOverhead(n int) int {
	switch {
	case n < txscript.OP_PUSHDATA1:
		return 1
	case n < 0x100:
		return 2
	case n < 0x10000:
		return 3
	default:
		return 5
	}
}

// witnessElementOverhead returns compact-size prefix length for a witness
// stack element of n bytes.
func witnessElementOverhead(n int) int {
	switch {
	case n < 0xfd:
		return 1
	case n < 0x10000:
		return 3
	default:
		return 5
	}
}

// ceilDiv returns a/b rounded up.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
