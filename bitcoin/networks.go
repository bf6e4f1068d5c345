// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network identifiers accepted by NetworkParams.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
	NetworkSignet  = "signet"
	NetworkRegtest = "regtest"
)

// networks maps network identifier to its chain parameters. Built once,
// read-only afterwards.
var networks = map[string]*chaincfg.Params{
	NetworkMainnet: &chaincfg.MainNetParams,
	NetworkTestnet: &chaincfg.TestNet3Params,
	NetworkSignet:  &chaincfg.SigNetParams,
	NetworkRegtest: &chaincfg.RegressionNetParams,
}

// NetworkParams returns chain parameters for the given network identifier.
func NetworkParams(network string) (*chaincfg.Params, error) {
	params, ok := networks[network]
	if !ok {
		return nil, fmt.Errorf("unknown network: %q", network)
	}

	return params, nil
}
