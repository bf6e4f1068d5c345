// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package esplora

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"inscriber/bitcoin"
	"inscriber/bitcoin/inscriptions"
	"inscriber/internal/core/ports"
)

// Service talks to an Esplora-compatible HTTP API. It backs the wallet, fee
// oracle, broadcaster and indexer ports of the application service.
type Service struct {
	baseURL       string
	networkParams *chaincfg.Params
	client        *http.Client
}

var (
	_ ports.WalletService  = (*Service)(nil)
	_ ports.FeeOracle      = (*Service)(nil)
	_ ports.Broadcaster    = (*Service)(nil)
	_ ports.IndexerService = (*Service)(nil)
)

// NewService is a constructor for esplora Service.
func NewService(baseURL string, networkParams *chaincfg.Params) *Service {
	return &Service{
		baseURL:       strings.TrimRight(baseURL, "/"),
		networkParams: networkParams,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

// ListUnspent returns confirmed UTXOs locked to the given address. The locking
// script is derived from the address itself, esplora does not return it.
func (s *Service) ListUnspent(ctx context.Context, address string) ([]bitcoin.UTXO, error) {
	decoded, err := btcutil.DecodeAddress(address, s.networkParams)
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	pkScript, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return nil, fmt.Errorf("address locking script: %w", err)
	}

	var raw []struct {
		Txid   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Value  int64  `json:"value"`
		Status struct {
			Confirmed bool `json:"confirmed"`
		} `json:"status"`
	}
	if err := s.getJSON(ctx, "/address/"+address+"/utxo", &raw); err != nil {
		return nil, fmt.Errorf("get address utxos: %w", err)
	}

	utxos := make([]bitcoin.UTXO, 0, len(raw))
	for _, u := range raw {
		if !u.Status.Confirmed {
			continue
		}
		utxos = append(utxos, bitcoin.UTXO{
			TxHash:  u.Txid,
			Index:   u.Vout,
			Amount:  u.Value,
			Script:  pkScript,
			Address: address,
		})
	}

	return utxos, nil
}

// RecommendedFees maps esplora confirmation-target estimates to fee tiers.
func (s *Service) RecommendedFees(ctx context.Context) (ports.FeeRates, error) {
	var estimates map[string]float64
	if err := s.getJSON(ctx, "/fee-estimates", &estimates); err != nil {
		return ports.FeeRates{}, fmt.Errorf("get fee estimates: %w", err)
	}

	rates := ports.FeeRates{
		High:   feeRateForTarget(estimates, "1", "2"),
		Medium: feeRateForTarget(estimates, "6", "3"),
		Low:    feeRateForTarget(estimates, "144", "25"),
	}
	if rates.High == 0 && rates.Medium == 0 && rates.Low == 0 {
		return ports.FeeRates{}, fmt.Errorf("no fee estimates available")
	}
	if rates.Medium == 0 {
		rates.Medium = rates.High
	}
	if rates.Low == 0 {
		rates.Low = rates.Medium
	}

	return rates, nil
}

// Broadcast submits a raw hex-encoded transaction and returns its txid.
func (s *Service) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, s.baseURL+"/tx", strings.NewReader(rawTxHex),
	)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("broadcast tx: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	return strings.TrimSpace(string(b)), nil
}

// TxStatus reports the confirmation state of a transaction.
func (s *Service) TxStatus(ctx context.Context, txid string) (ports.TxStatus, error) {
	var status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	}
	err := s.getJSON(ctx, "/tx/"+txid+"/status", &status)
	if err != nil {
		if isNotFound(err) {
			return ports.TxStatus{}, nil
		}
		return ports.TxStatus{}, fmt.Errorf("get tx status: %w", err)
	}

	return ports.TxStatus{
		Found:       true,
		Confirmed:   status.Confirmed,
		BlockHeight: status.BlockHeight,
	}, nil
}

// InscriptionContent reads the reveal transaction of an inscription and parses
// its witness envelope back into body and content type.
func (s *Service) InscriptionContent(ctx context.Context, inscriptionId string) ([]byte, string, error) {
	id, err := inscriptions.NewIDFromString(inscriptionId)
	if err != nil {
		return nil, "", fmt.Errorf("malformed inscription id: %w", err)
	}

	var tx struct {
		Vin []struct {
			Witness []string `json:"witness"`
		} `json:"vin"`
	}
	if err := s.getJSON(ctx, "/tx/"+id.TxID.String(), &tx); err != nil {
		return nil, "", fmt.Errorf("get reveal tx: %w", err)
	}

	for _, vin := range tx.Vin {
		for _, element := range vin.Witness {
			data, err := hex.DecodeString(element)
			if err != nil {
				continue
			}
			if !inscriptions.IsPossibleEnvelopeWitnessData(data) {
				continue
			}

			parsed, err := inscriptions.ParseFromWitness(data)
			if err != nil {
				return nil, "", fmt.Errorf("parse envelope: %w", err)
			}
			return parsed.Body, parsed.ContentType, nil
		}
	}

	return nil, "", fmt.Errorf("no inscription envelope in tx %s", id.TxID)
}

func (s *Service) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func isNotFound(err error) bool {
	statusErr, ok := err.(*statusError)
	return ok && statusErr.code == http.StatusNotFound
}

func feeRateForTarget(estimates map[string]float64, targets ...string) int64 {
	for _, target := range targets {
		if rate, ok := estimates[target]; ok && rate > 0 {
			return int64(math.Ceil(rate))
		}
	}
	return 0
}
