// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package ports

import (
	"context"

	"inscriber/bitcoin"
	"inscriber/internal/core/domain"
)

// FeeRates holds recommended fee tiers in Satoshi per vByte.
type FeeRates struct {
	Low    int64
	Medium int64
	High   int64
}

// TxStatus describes the confirmation state of a broadcast transaction.
type TxStatus struct {
	Found       bool
	Confirmed   bool
	BlockHeight int64
}

// WalletService supplies spendable outputs for funding commit transactions.
type WalletService interface {
	// ListUnspent returns confirmed UTXOs locked to the given address.
	ListUnspent(ctx context.Context, address string) ([]bitcoin.UTXO, error)
}

// FeeOracle recommends current network fee rates. Used as a fallback when the
// caller does not pin a fee rate explicitly.
type FeeOracle interface {
	RecommendedFees(ctx context.Context) (FeeRates, error)
}

// Broadcaster submits raw transactions to the network and reports their status.
type Broadcaster interface {
	// Broadcast submits a raw hex-encoded transaction and returns its txid.
	Broadcast(ctx context.Context, rawTxHex string) (string, error)
	TxStatus(ctx context.Context, txid string) (TxStatus, error)
}

// IndexerService reads back inscription data already settled on chain.
type IndexerService interface {
	// InscriptionContent returns the body and content type of an inscription
	// by its "<txid>i<index>" id.
	InscriptionContent(ctx context.Context, inscriptionId string) ([]byte, string, error)
}

// RepoManager aggregates the persistent repositories of the service.
type RepoManager interface {
	Inscriptions() domain.InscriptionRepository
	Close()
}
