// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package inscriptions

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/ugorji/go/codec"
)

// ErrInvalidPublicKey defines that provided public key is not a 33-byte compressed key.
var ErrInvalidPublicKey = errors.New("public key must be a 33-byte compressed key")

// protocolID defines ord tag for inscription to disambiguate inscriptions from other uses of envelopes.
const protocolID string = "ord"

// MaxDataPushLen defines maximum size of a single data push for bitcoin scripts.
const MaxDataPushLen int = 520

// compressedPubKeyLen defines length of a serialized compressed public key.
const compressedPubKeyLen int = 33

// Content describes data to be inscribed on-chain.
type Content struct {
	ContentType  string
	Body         []byte
	Metadata     map[string]interface{} // CBOR-encoded into the envelope.
	Parent       *ID                    // optional parent inscription.
	Metaprotocol string                 // optional metaprotocol identifier.
}

// PreparedScripts describes derived taproot commit artifacts for an inscription.
// All fields are deterministic functions of the public key and content.
type PreparedScripts struct {
	CommitAddress      string
	CommitOutputScript []byte // P2TR scriptPubKey of the commit output.
	EnvelopeScript     []byte // full redeem (tap leaf) script.
	InternalKey        []byte // 32-byte x-only internal key.
	// ControlBlock is the leafVersion|parity byte followed by the internal
	// key, with parity taken from the compressed public key. The signer
	// rebuilds the control block from the script tree when it finalizes, so
	// this one is a persisted artifact, not the broadcast witness item.
	ControlBlock []byte
	LeafVersion        byte
}

// BuildScripts derives taproot commit artifacts for the given 33-byte compressed
// public key and content. The envelope script is committed as a single tap leaf;
// the internal key is the x-only suffix of the public key.
func BuildScripts(pubKey []byte, content Content, networkParams *chaincfg.Params) (*PreparedScripts, error) {
	if len(pubKey) != compressedPubKeyLen {
		return nil, ErrInvalidPublicKey
	}

	internalKey := pubKey[1:]
	envelopeScript, err := content.IntoScriptForWitness(internalKey)
	if err != nil {
		return nil, err
	}

	parsedPubKey, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPublicKey, err)
	}

	tapLeaf := txscript.NewBaseTapLeaf(envelopeScript)
	tapHash := tapLeaf.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(parsedPubKey, tapHash[:])

	commitAddress, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), networkParams)
	if err != nil {
		return nil, err
	}

	commitOutputScript, err := txscript.PayToAddrScript(commitAddress)
	if err != nil {
		return nil, err
	}

	controlBlock := make([]byte, 0, compressedPubKeyLen)
	controlBlock = append(controlBlock, byte(tapLeaf.LeafVersion)|pubKey[0]&1)
	controlBlock = append(controlBlock, internalKey...)

	return &PreparedScripts{
		CommitAddress:      commitAddress.EncodeAddress(),
		CommitOutputScript: commitOutputScript,
		EnvelopeScript:     envelopeScript,
		InternalKey:        internalKey,
		ControlBlock:       controlBlock,
		LeafVersion:        byte(tapLeaf.LeafVersion),
	}, nil
}

// IntoScript returns Content as an envelope script.
func (c *Content) IntoScript() ([]byte, error) {
	scriptBuilder := txscript.NewScriptBuilder()

	// inscription protocol start.
	scriptBuilder.AddOp(txscript.OP_FALSE)
	scriptBuilder.AddOp(txscript.OP_IF)
	scriptBuilder.AddData([]byte(protocolID))

	if c.Parent != nil {
		scriptBuilder.AddOps(TagParent.IntoDataPush())
		scriptBuilder.AddData(c.Parent.IntoDataPush())
	}

	if len(c.Metadata) != 0 {
		metadata, err := c.EncodeMetadata()
		if err != nil {
			return nil, err
		}

		for _, chunk := range chunkDataPushes(metadata) {
			scriptBuilder.AddOps(TagMetadata.IntoDataPush())
			scriptBuilder.AddData(chunk)
		}
	}

	if len(c.Metaprotocol) != 0 {
		scriptBuilder.AddOps(TagMetaprotocol.IntoDataPush())
		scriptBuilder.AddData([]byte(c.Metaprotocol))
	}

	if len(c.ContentType) != 0 {
		scriptBuilder.AddOps(TagContentType.IntoDataPush())
		scriptBuilder.AddData([]byte(c.ContentType))
	}

	if len(c.Body) != 0 {
		scriptBuilder.AddOp(txscript.OP_0)
		for _, chunk := range chunkDataPushes(c.Body) {
			// AddFullData skips the MaxScriptSize check, inscription
			// scripts may legitimately exceed it.
			scriptBuilder.AddFullData(chunk)
		}
	}

	script, err := scriptBuilder.Script()
	if err != nil {
		return nil, err
	}

	// inscription protocol end. Appended raw to bypass the script size
	// limit the builder enforces on AddOp.
	return append(script, txscript.OP_ENDIF), nil
}

// IntoScriptForWitness returns Content as an envelope script with pubKey verify
// at the beginning for witness data.
func (c *Content) IntoScriptForWitness(xOnlyPubKey []byte) ([]byte, error) {
	scriptBuilder := txscript.NewScriptBuilder()
	scriptBuilder.AddData(xOnlyPubKey)
	scriptBuilder.AddOp(txscript.OP_CHECKSIG)
	script, err := scriptBuilder.Script()
	if err != nil {
		return nil, err
	}

	envelope, err := c.IntoScript()
	if err != nil {
		return nil, err
	}

	return append(script, envelope...), nil
}

// EncodeMetadata returns Metadata in canonical CBOR encoding. Canonical mode
// keeps repeated builds byte-identical regardless of map iteration order.
func (c *Content) EncodeMetadata() ([]byte, error) {
	if len(c.Metadata) == 0 {
		return nil, nil
	}

	handle := new(codec.CborHandle)
	handle.Canonical = true

	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, handle).Encode(c.Metadata); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	return buf.Bytes(), nil
}

// chunkDataPushes splits data into pushes of MaxDataPushLen size at most.
func chunkDataPushes(data []byte) [][]byte {
	chunks := make([][]byte, 0, (len(data)/MaxDataPushLen)+1)
	for start := 0; start < len(data); start += MaxDataPushLen {
		end := start + MaxDataPushLen
		if end > len(data) {
			end = len(data)
		}

		chunks = append(chunks, data[start:end])
	}

	return chunks
}
