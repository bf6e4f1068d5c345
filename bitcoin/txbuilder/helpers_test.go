// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"inscriber/bitcoin"
)

// privateKeyFromByte returns a deterministic private key for tests.
func privateKeyFromByte(b byte) *btcec.PrivateKey {
	raw := make([]byte, 32)
	raw[31] = b
	privateKey, _ := btcec.PrivKeyFromBytes(raw)

	return privateKey
}

// p2trAddress returns the key-path taproot address of the given key.
func p2trAddress(t *testing.T, privateKey *btcec.PrivateKey, networkParams *chaincfg.Params) string {
	t.Helper()

	outputKey := txscript.ComputeTaprootKeyNoScript(privateKey.PubKey())
	address, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), networkParams)
	require.NoError(t, err)

	return address.EncodeAddress()
}

// fundingUTXO returns a UTXO locked to the address with its real locking script.
func fundingUTXO(
	t *testing.T, txHash string, index uint32, amount int64,
	address string, networkParams *chaincfg.Params,
) bitcoin.UTXO {
	t.Helper()

	decoded, err := btcutil.DecodeAddress(address, networkParams)
	require.NoError(t, err)

	script, err := txscript.PayToAddrScript(decoded)
	require.NoError(t, err)

	return bitcoin.UTXO{
		TxHash:  txHash,
		Index:   index,
		Amount:  amount,
		Script:  script,
		Address: address,
	}
}
