// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package domain

import (
	"context"
	"errors"
)

// Step errors of the inscription lifecycle. Rejections happen before any state
// mutation.
var (
	// ErrInvalidInput defines that request data is malformed or violates limits.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidState defines that operation is not permitted in the current status.
	ErrInvalidState = errors.New("operation not permitted in current state")
	// ErrNotFound defines that requested inscription does not exist.
	ErrNotFound = errors.New("inscription request not found")
)

// InscriptionStatus defines the lifecycle state of an inscription request.
type InscriptionStatus string

const (
	StatusPending    InscriptionStatus = "PENDING"
	StatusInProgress InscriptionStatus = "IN_PROGRESS"
	StatusCompleted  InscriptionStatus = "COMPLETED"
	StatusFailed     InscriptionStatus = "FAILED"
	StatusCancelled  InscriptionStatus = "CANCELLED"
)

// IsTerminal returns true once no further transitions are allowed.
func (s InscriptionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanCancel returns true while the request may still be cancelled by its requester.
func (s InscriptionStatus) CanCancel() bool {
	return s == StatusPending || s == StatusInProgress
}

// PreparedScript describes derived taproot commit artifacts persisted with the
// request. Script fields are hex-encoded.
type PreparedScript struct {
	CommitAddress      string
	CommitOutputScript string
	EnvelopeScript     string
	InternalKey        string
	ControlBlock       string
	LeafVersion        byte
}

// Fees describes the fee accounting of the commit/reveal pair, recomputed on
// every prepare.
type Fees struct {
	CommitFeeSats   int64
	RevealFeeSats   int64
	TotalFeeSats    int64
	EstimatedVBytes int
}

// Transactions holds externally broadcast transaction ids of the pair.
type Transactions struct {
	Commit string
	Reveal string
}

// InscriptionRequest is the long-lived inscription entity driven through the
// lifecycle by the application service. Records are replaced as a whole on
// update, never patched in place.
type InscriptionRequest struct {
	Id     string
	Status InscriptionStatus

	ContentType         string
	Content             []byte
	Metadata            map[string]interface{}
	ParentInscriptionId string
	SatTarget           uint64

	Network          string
	FeeRate          int64 // in Satoshi per vByte.
	RecipientAddress string
	ChangeAddress    string

	Prepared *PreparedScript
	// RevealPrivateKey is the hex-encoded ephemeral reveal signing key.
	// Write-once: regenerating it would invalidate the quoted commit address.
	RevealPrivateKey string
	CommitPSBT       string
	RevealPSBT       string

	Transactions  Transactions
	InscriptionId string
	Fees          Fees
	Error         string

	CreatedAt   int64
	UpdatedAt   int64
	CompletedAt int64
}

// InscriptionRepository stores inscription requests. Update serializes all
// mutations of one id: the closure runs inside the per-id critical section and
// returns the full replacement record.
type InscriptionRepository interface {
	Add(ctx context.Context, request InscriptionRequest) error
	Get(ctx context.Context, id string) (*InscriptionRequest, error)
	GetAll(ctx context.Context) ([]InscriptionRequest, error)
	Update(
		ctx context.Context, id string,
		updateFn func(InscriptionRequest) (*InscriptionRequest, error),
	) (*InscriptionRequest, error)
	Close()
}
