// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package application

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"inscriber/bitcoin"
	"inscriber/bitcoin/inscriptions"
	"inscriber/bitcoin/txbuilder"
	"inscriber/internal/core/domain"
	"inscriber/internal/core/ports"
)

// Config is the configuration for the inscription application service.
type Config struct {
	// MaxContentSize limits inscription body size in bytes.
	MaxContentSize int
	// Postage defines the amount delivered to the recipient with the
	// inscription, in Satoshi.
	Postage int64
}

// Service orchestrates the inscription lifecycle: request intake, commit/reveal
// preparation, external signing hand-off and settlement bookkeeping.
type Service struct {
	repoManager ports.RepoManager
	wallet      ports.WalletService
	feeOracle   ports.FeeOracle
	indexer     ports.IndexerService
	builders    map[string]*txbuilder.TxBuilder
	cfg         Config
	log         *logrus.Logger
}

// NewService is a constructor for inscription Service. Transaction builders for
// every supported network are constructed once here.
func NewService(
	repoManager ports.RepoManager,
	wallet ports.WalletService,
	feeOracle ports.FeeOracle,
	indexer ports.IndexerService,
	cfg Config,
	log *logrus.Logger,
) *Service {
	builders := make(map[string]*txbuilder.TxBuilder)
	for _, network := range []string{
		bitcoin.NetworkMainnet, bitcoin.NetworkTestnet,
		bitcoin.NetworkSignet, bitcoin.NetworkRegtest,
	} {
		params, err := bitcoin.NetworkParams(network)
		if err != nil {
			continue
		}
		builders[network] = txbuilder.NewTxBuilder(params)
	}

	if cfg.Postage < bitcoin.DustLimit {
		cfg.Postage = bitcoin.DustLimit
	}

	return &Service{
		repoManager: repoManager,
		wallet:      wallet,
		feeOracle:   feeOracle,
		indexer:     indexer,
		builders:    builders,
		cfg:         cfg,
		log:         log,
	}
}

// StartInscriptionParams holds request intake data.
type StartInscriptionParams struct {
	ContentType         string
	Content             []byte
	Metadata            map[string]interface{}
	ParentInscriptionId string
	// SatTarget is the satoshi ordinal number the inscription is aimed at.
	// Optional when a parent inscription id is provided instead.
	SatTarget uint64
}

// StartInscription validates intake data and registers a new pending request.
func (s *Service) StartInscription(ctx context.Context, params StartInscriptionParams) (*domain.InscriptionRequest, error) {
	if len(params.Content) == 0 {
		return nil, fmt.Errorf("%w: empty content", domain.ErrInvalidInput)
	}
	if params.ContentType == "" {
		return nil, fmt.Errorf("%w: empty content type", domain.ErrInvalidInput)
	}
	if s.cfg.MaxContentSize > 0 && len(params.Content) > s.cfg.MaxContentSize {
		return nil, fmt.Errorf(
			"%w: content size %d exceeds limit %d",
			domain.ErrInvalidInput, len(params.Content), s.cfg.MaxContentSize,
		)
	}
	if params.ParentInscriptionId != "" {
		if _, err := inscriptions.NewIDFromString(params.ParentInscriptionId); err != nil {
			return nil, fmt.Errorf("%w: malformed parent inscription id: %s", domain.ErrInvalidInput, err)
		}
	} else if params.SatTarget == 0 {
		return nil, fmt.Errorf("%w: either sat target or parent inscription id is required", domain.ErrInvalidInput)
	}

	now := time.Now().Unix()
	request := domain.InscriptionRequest{
		Id:                  uuid.NewString(),
		Status:              domain.StatusPending,
		ContentType:         params.ContentType,
		Content:             params.Content,
		Metadata:            params.Metadata,
		ParentInscriptionId: params.ParentInscriptionId,
		SatTarget:           params.SatTarget,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repoManager.Inscriptions().Add(ctx, request); err != nil {
		return nil, err
	}

	s.log.WithField("id", request.Id).Info("inscription request registered")

	return &request, nil
}

// PrepareParams holds funding and fee parameters of the prepare step.
type PrepareParams struct {
	// FeeRate in Satoshi per vByte. Zero falls back to the fee oracle.
	FeeRate          int64
	Network          string
	RecipientAddress string
	// FundingAddress owns the UTXOs spent by the commit transaction.
	FundingAddress string
	// ChangeAddress defaults to the funding address when empty.
	ChangeAddress string
}

// Prepare builds the unsigned commit and reveal transactions for a request and
// moves it to IN_PROGRESS. Retrying a prepared request reuses the stored reveal
// key, so the quoted commit address never changes for the same content.
func (s *Service) Prepare(ctx context.Context, id string, params PrepareParams) (*domain.InscriptionRequest, error) {
	builder, ok := s.builders[params.Network]
	if !ok {
		return nil, fmt.Errorf("%w: unknown network %q", domain.ErrInvalidInput, params.Network)
	}
	if params.RecipientAddress == "" || params.FundingAddress == "" {
		return nil, fmt.Errorf("%w: recipient and funding addresses are required", domain.ErrInvalidInput)
	}
	changeAddress := params.ChangeAddress
	if changeAddress == "" {
		changeAddress = params.FundingAddress
	}

	feeRate := params.FeeRate
	if feeRate <= 0 {
		rates, err := s.feeOracle.RecommendedFees(ctx)
		if err != nil {
			return nil, s.fail(ctx, id, fmt.Errorf("fee oracle: %w", err))
		}
		feeRate = rates.Medium
	}

	utxos, err := s.wallet.ListUnspent(ctx, params.FundingAddress)
	if err != nil {
		return nil, s.fail(ctx, id, fmt.Errorf("wallet: %w", err))
	}

	updated, err := s.repoManager.Inscriptions().Update(ctx, id,
		func(request domain.InscriptionRequest) (*domain.InscriptionRequest, error) {
			if request.Status != domain.StatusPending && request.Status != domain.StatusInProgress {
				return nil, fmt.Errorf("%w: prepare from %s", domain.ErrInvalidState, request.Status)
			}

			revealKey, err := revealKeyFromRecord(&request)
			if err != nil {
				return nil, err
			}

			content := inscriptions.Content{
				ContentType: request.ContentType,
				Body:        request.Content,
				Metadata:    request.Metadata,
			}
			if request.ParentInscriptionId != "" {
				parent, err := inscriptions.NewIDFromString(request.ParentInscriptionId)
				if err != nil {
					return nil, err
				}
				content.Parent = parent
			}

			transactions, err := builder.CreateInscriptionTransactions(txbuilder.InscriptionParams{
				Content:          content,
				FeeRate:          feeRate,
				RecipientAddress: params.RecipientAddress,
				ChangeAddress:    changeAddress,
				UTXOs:            utxos,
				Postage:          s.cfg.Postage,
				RevealPrivateKey: revealKey,
			})
			if err != nil {
				return nil, err
			}

			request.Status = domain.StatusInProgress
			request.Network = params.Network
			request.FeeRate = feeRate
			request.RecipientAddress = params.RecipientAddress
			request.ChangeAddress = changeAddress
			request.Prepared = &domain.PreparedScript{
				CommitAddress:      transactions.Prepared.CommitAddress,
				CommitOutputScript: hex.EncodeToString(transactions.Prepared.CommitOutputScript),
				EnvelopeScript:     hex.EncodeToString(transactions.Prepared.EnvelopeScript),
				InternalKey:        hex.EncodeToString(transactions.Prepared.InternalKey),
				ControlBlock:       hex.EncodeToString(transactions.Prepared.ControlBlock),
				LeafVersion:        transactions.Prepared.LeafVersion,
			}
			if request.RevealPrivateKey == "" {
				request.RevealPrivateKey = hex.EncodeToString(transactions.RevealPrivateKey.Serialize())
			}
			request.CommitPSBT = transactions.CommitPSBT
			request.RevealPSBT = transactions.RevealPSBT
			request.Fees = domain.Fees{
				CommitFeeSats:   transactions.CommitFee,
				RevealFeeSats:   transactions.RevealFee,
				TotalFeeSats:    transactions.CommitFee + transactions.RevealFee,
				EstimatedVBytes: transactions.EstimatedVBytes,
			}
			request.Error = ""
			request.UpdatedAt = time.Now().Unix()

			return &request, nil
		},
	)
	if err != nil {
		return nil, s.fail(ctx, id, err)
	}

	s.log.WithFields(logrus.Fields{
		"id":             id,
		"commit_address": updated.Prepared.CommitAddress,
		"total_fee":      updated.Fees.TotalFeeSats,
	}).Info("inscription prepared")

	return updated, nil
}

// AcceptCommit records the externally broadcast commit txid.
func (s *Service) AcceptCommit(ctx context.Context, id, commitTxid string) (*domain.InscriptionRequest, error) {
	if commitTxid == "" {
		return nil, fmt.Errorf("%w: empty commit txid", domain.ErrInvalidInput)
	}

	updated, err := s.repoManager.Inscriptions().Update(ctx, id,
		func(request domain.InscriptionRequest) (*domain.InscriptionRequest, error) {
			if request.Status != domain.StatusInProgress {
				return nil, fmt.Errorf("%w: accept commit from %s", domain.ErrInvalidState, request.Status)
			}

			request.Transactions.Commit = commitTxid
			request.UpdatedAt = time.Now().Unix()

			return &request, nil
		},
	)
	if err != nil {
		return nil, s.fail(ctx, id, err)
	}

	s.log.WithFields(logrus.Fields{"id": id, "commit_txid": commitTxid}).Info("commit transaction accepted")

	return updated, nil
}

// FinalizeReveal records the externally broadcast reveal txid, derives the
// inscription id and completes the request.
func (s *Service) FinalizeReveal(ctx context.Context, id, revealTxid string) (*domain.InscriptionRequest, error) {
	// the inscription is carried by the first output of the reveal tx.
	inscriptionID, err := inscriptions.NewID(revealTxid, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
	}

	updated, err := s.repoManager.Inscriptions().Update(ctx, id,
		func(request domain.InscriptionRequest) (*domain.InscriptionRequest, error) {
			if request.Status != domain.StatusInProgress {
				return nil, fmt.Errorf("%w: finalize reveal from %s", domain.ErrInvalidState, request.Status)
			}
			if request.Transactions.Commit == "" {
				return nil, fmt.Errorf("%w: reveal finalized before commit txid recorded", domain.ErrInvalidState)
			}

			now := time.Now().Unix()
			request.Transactions.Reveal = revealTxid
			request.InscriptionId = inscriptionID.String()
			// the ephemeral reveal key is useless once the reveal is on chain,
			// keeping it around only widens the exposure window.
			request.RevealPrivateKey = ""
			request.Status = domain.StatusCompleted
			request.UpdatedAt = now
			request.CompletedAt = now

			return &request, nil
		},
	)
	if err != nil {
		return nil, s.fail(ctx, id, err)
	}

	s.log.WithFields(logrus.Fields{"id": id, "inscription_id": updated.InscriptionId}).
		Info("inscription completed")

	return updated, nil
}

// Cancel moves a pending or in-progress request to CANCELLED.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.InscriptionRequest, error) {
	return s.repoManager.Inscriptions().Update(ctx, id,
		func(request domain.InscriptionRequest) (*domain.InscriptionRequest, error) {
			if !request.Status.CanCancel() {
				return nil, fmt.Errorf("%w: cancel from %s", domain.ErrInvalidState, request.Status)
			}

			request.Status = domain.StatusCancelled
			request.UpdatedAt = time.Now().Unix()

			return &request, nil
		},
	)
}

// GetInscription returns the request by id.
func (s *Service) GetInscription(ctx context.Context, id string) (*domain.InscriptionRequest, error) {
	return s.repoManager.Inscriptions().Get(ctx, id)
}

// ListInscriptions returns all stored requests.
func (s *Service) ListInscriptions(ctx context.Context) ([]domain.InscriptionRequest, error) {
	return s.repoManager.Inscriptions().GetAll(ctx)
}

// FetchInscriptionContent reads back an already settled inscription from the
// indexer by its "<txid>i<index>" id.
func (s *Service) FetchInscriptionContent(ctx context.Context, inscriptionId string) ([]byte, string, error) {
	if _, err := inscriptions.NewIDFromString(inscriptionId); err != nil {
		return nil, "", fmt.Errorf("%w: malformed inscription id: %s", domain.ErrInvalidInput, err)
	}

	return s.indexer.InscriptionContent(ctx, inscriptionId)
}

// BatchItem describes one entry of a batch inscription run.
type BatchItem struct {
	Start   StartInscriptionParams
	Prepare PrepareParams
}

// BatchResult reports the outcome of one batch entry.
type BatchResult struct {
	Id      string
	Status  domain.InscriptionStatus
	Error   string
	Request *domain.InscriptionRequest
}

// ProcessBatch registers and prepares a batch of inscription requests. Failures
// are isolated per entry: one failed item never aborts the rest, its error is
// reported in the matching result slot instead.
func (s *Service) ProcessBatch(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		request, err := s.StartInscription(ctx, item.Start)
		if err != nil {
			s.log.WithError(err).WithField("item", i).Error("batch item intake failed")
			results[i] = BatchResult{Status: domain.StatusFailed, Error: err.Error()}
			continue
		}

		prepared, err := s.Prepare(ctx, request.Id, item.Prepare)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"item": i, "id": request.Id}).
				Error("batch item prepare failed")
			results[i] = BatchResult{Id: request.Id, Status: domain.StatusFailed, Error: err.Error()}
			continue
		}

		results[i] = BatchResult{Id: prepared.Id, Status: prepared.Status, Request: prepared}
	}

	return results
}

// fail moves the request to FAILED retaining the verbatim error message and
// returns the original error. Rejections (invalid input, invalid state, unknown
// id) pass through without mutating the record.
func (s *Service) fail(ctx context.Context, id string, stepErr error) error {
	if errors.Is(stepErr, domain.ErrInvalidInput) ||
		errors.Is(stepErr, domain.ErrInvalidState) ||
		errors.Is(stepErr, domain.ErrNotFound) {
		return stepErr
	}

	_, err := s.repoManager.Inscriptions().Update(ctx, id,
		func(request domain.InscriptionRequest) (*domain.InscriptionRequest, error) {
			if request.Status.IsTerminal() {
				return nil, fmt.Errorf("%w: fail from %s", domain.ErrInvalidState, request.Status)
			}

			request.Status = domain.StatusFailed
			request.Error = stepErr.Error()
			request.UpdatedAt = time.Now().Unix()

			return &request, nil
		},
	)
	if err != nil {
		s.log.WithError(err).WithField("id", id).Error("could not persist failure state")
	}

	return stepErr
}

func revealKeyFromRecord(request *domain.InscriptionRequest) (*btcec.PrivateKey, error) {
	if request.RevealPrivateKey == "" {
		return nil, nil
	}

	raw, err := hex.DecodeString(request.RevealPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("stored reveal key: %w", err)
	}
	key, _ := btcec.PrivKeyFromBytes(raw)

	return key, nil
}
