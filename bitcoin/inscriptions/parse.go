// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package inscriptions

import (
	"encoding/hex"
	"errors"
	"reflect"
	"strings"

	"github.com/btcsuite/btcd/txscript"
	"github.com/ugorji/go/codec"
)

// ErrMalformedEnvelope defines that envelope is malformed and failed to parse.
var ErrMalformedEnvelope = errors.New("inscription envelope is malformed")

// ErrRepeatedFieldData defines that already filled field met while parsing.
var ErrRepeatedFieldData = errors.New("field already filled")

// envelopeStartDisASM defines the start of the inscription script in disASM.
// OP_FALSE OP_IF OP_PUSH "ord" ...
const envelopeStartDisASM string = "0 OP_IF 6f7264"

// envelopeEndDisASM defines the end of the inscription script in disASM.
// ... OP_ENDIF.
const envelopeEndDisASM string = "OP_ENDIF"

// Parsed describes inscription fields recovered from witness data.
type Parsed struct {
	ContentType  string
	Body         []byte
	Metadata     map[string]interface{}
	Parent       *ID
	Metaprotocol string
}

// IsPossibleEnvelopeWitnessData returns true if witness data is possible to be parsed to an inscription.
func IsPossibleEnvelopeWitnessData(data []byte) bool {
	_, _, _, err := disasmWitnessDataWithBoundsIndexes(data)

	return err == nil
}

// disasmWitnessDataWithBoundsIndexes returns disassembled witness data with start and end indexes of inscription script.
func disasmWitnessDataWithBoundsIndexes(data []byte) (disasm string, start int, end int, err error) {
	disasm, err = txscript.DisasmString(data)
	if err != nil {
		return disasm, start, end, ErrMalformedEnvelope
	}

	start = strings.Index(disasm, envelopeStartDisASM)
	end = strings.Index(disasm, envelopeEndDisASM)
	if start == -1 || end == -1 || end <= start {
		return disasm, start, end, ErrMalformedEnvelope
	}

	return disasm, start, end, nil
}

// ParseFromWitness parses witness data into Parsed inscription fields.
func ParseFromWitness(data []byte) (*Parsed, error) {
	disasm, start, end, err := disasmWitnessDataWithBoundsIndexes(data)
	if err != nil {
		return nil, err
	}

	tokens := strings.Split(disasm[start:end+len(envelopeEndDisASM)], " ")
	// At least OP_FALSE OP_IF OP_PUSH "ord" OP_ENDIF.
	if len(tokens) < 4 {
		return nil, ErrMalformedEnvelope
	}

	var (
		parsed      = new(Parsed)
		rawMetadata []byte
	)
	// Skip OP_FALSE OP_IF OP_PUSH "ord" due to previous checks (envelopeStartDisASM).
	for idx := 3; idx < len(tokens); idx++ {
		tag := tokens[idx]
		switch tag {
		case envelopeEndDisASM:
			return parsed.withMetadata(rawMetadata)
		case "0": // OP_0, means that all next data pushes are body parts.
			idx, err = parsed.fillBody(tokens, idx+1)
			if err != nil {
				return nil, err
			}
		default:
			idx++
			if idx >= len(tokens) {
				return nil, ErrMalformedEnvelope
			}

			rawMetadata, err = parsed.fillFieldByTag(tag, tokens[idx], rawMetadata)
			if err != nil {
				return nil, err
			}
		}
	}

	return parsed.withMetadata(rawMetadata)
}

// fillBody fills Body with body data pushes starting at idx, returns index of the last consumed token.
func (p *Parsed) fillBody(tokens []string, idx int) (int, error) {
	var payload string
	for ; idx < len(tokens); idx++ {
		if tokens[idx] == envelopeEndDisASM {
			break
		}

		payload += tokens[idx]
	}

	body, err := hex.DecodeString(payload)
	if err != nil {
		return idx, ErrMalformedEnvelope
	}

	p.Body = body

	return idx - 1, nil
}

// fillFieldByTag fills Parsed fields by provided tag. Metadata pushes are
// accumulated raw and decoded once the whole envelope is consumed.
func (p *Parsed) fillFieldByTag(tag, value string, rawMetadata []byte) ([]byte, error) {
	valueBytes, err := hex.DecodeString(value)
	if err != nil {
		return rawMetadata, ErrMalformedEnvelope
	}

	switch tag {
	case TagContentType.HexString():
		if len(p.ContentType) != 0 {
			return rawMetadata, ErrRepeatedFieldData
		}

		p.ContentType = string(valueBytes)
	case TagParent.HexString():
		if p.Parent != nil {
			return rawMetadata, ErrRepeatedFieldData
		}

		p.Parent, err = NewIDFromDataPush(valueBytes)
		if err != nil {
			return rawMetadata, err
		}
	case TagMetadata.HexString():
		rawMetadata = append(rawMetadata, valueBytes...)
	case TagMetaprotocol.HexString():
		if len(p.Metaprotocol) != 0 {
			return rawMetadata, ErrRepeatedFieldData
		}

		p.Metaprotocol = string(valueBytes)
	default:
		return rawMetadata, ErrMalformedEnvelope
	}

	return rawMetadata, nil
}

// withMetadata decodes accumulated CBOR metadata pushes, if any, and returns the parsed inscription.
func (p *Parsed) withMetadata(rawMetadata []byte) (*Parsed, error) {
	if len(rawMetadata) == 0 {
		return p, nil
	}

	handle := new(codec.CborHandle)
	handle.MapType = reflect.TypeOf(map[string]interface{}(nil))

	metadata := make(map[string]interface{})
	if err := codec.NewDecoderBytes(rawMetadata, handle).Decode(&metadata); err != nil {
		return nil, ErrMalformedEnvelope
	}

	p.Metadata = metadata

	return p, nil
}
