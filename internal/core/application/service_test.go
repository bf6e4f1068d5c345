// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"inscriber/bitcoin"
	"inscriber/internal/core/application"
	"inscriber/internal/core/domain"
	"inscriber/internal/core/ports"
	"inscriber/internal/infrastructure/db"
)

const revealTxidHex = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

type fakeWallet struct {
	utxos []bitcoin.UTXO
	err   error
}

func (w *fakeWallet) ListUnspent(ctx context.Context, address string) ([]bitcoin.UTXO, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.utxos, nil
}

type fakeFeeOracle struct {
	rates ports.FeeRates
	err   error
}

func (o *fakeFeeOracle) RecommendedFees(ctx context.Context) (ports.FeeRates, error) {
	if o.err != nil {
		return ports.FeeRates{}, o.err
	}
	return o.rates, nil
}

type fakeIndexer struct {
	body        []byte
	contentType string
}

func (i *fakeIndexer) InscriptionContent(ctx context.Context, inscriptionId string) ([]byte, string, error) {
	return i.body, i.contentType, nil
}

type testEnv struct {
	svc    *application.Service
	repos  ports.RepoManager
	wallet *fakeWallet
	oracle *fakeFeeOracle
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repos, err := db.NewService(db.ServiceConfig{DbType: "badger"})
	require.NoError(t, err)
	t.Cleanup(repos.Close)

	funding := testAddress(t, 2)
	wallet := &fakeWallet{utxos: []bitcoin.UTXO{fundingUTXO(t, funding, 500_000)}}
	oracle := &fakeFeeOracle{rates: ports.FeeRates{Low: 1, Medium: 3, High: 7}}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	svc := application.NewService(repos, wallet, oracle, &fakeIndexer{}, application.Config{
		MaxContentSize: 1 << 16,
		Postage:        8_000,
	}, log)

	return &testEnv{svc: svc, repos: repos, wallet: wallet, oracle: oracle}
}

func testAddress(t *testing.T, keyByte byte) string {
	t.Helper()

	raw := make([]byte, 32)
	raw[31] = keyByte
	privateKey, _ := btcec.PrivKeyFromBytes(raw)

	outputKey := txscript.ComputeTaprootKeyNoScript(privateKey.PubKey())
	address, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), &chaincfg.TestNet3Params)
	require.NoError(t, err)

	return address.EncodeAddress()
}

func fundingUTXO(t *testing.T, address string, amount int64) bitcoin.UTXO {
	t.Helper()

	decoded, err := btcutil.DecodeAddress(address, &chaincfg.TestNet3Params)
	require.NoError(t, err)

	script, err := txscript.PayToAddrScript(decoded)
	require.NoError(t, err)

	return bitcoin.UTXO{
		TxHash:  "30f1b8b9f6406e80e7022b65c07dfb2a6e4f9c135805b07a01ba45e161154cf5",
		Index:   0,
		Amount:  amount,
		Script:  script,
		Address: address,
	}
}

func startParams() application.StartInscriptionParams {
	return application.StartInscriptionParams{
		ContentType: "text/plain;charset=utf-8",
		Content:     []byte("lifecycle body"),
		SatTarget:   1_000_000_001,
	}
}

func prepareParams(t *testing.T) application.PrepareParams {
	return application.PrepareParams{
		FeeRate:          2,
		Network:          bitcoin.NetworkTestnet,
		RecipientAddress: testAddress(t, 3),
		FundingAddress:   testAddress(t, 2),
	}
}

func TestStartInscription(t *testing.T) {
	ctx := context.Background()

	t.Run("registers a pending request", func(t *testing.T) {
		env := newTestEnv(t)

		request, err := env.svc.StartInscription(ctx, startParams())
		require.NoError(t, err)
		require.NotEmpty(t, request.Id)
		require.Equal(t, domain.StatusPending, request.Status)

		stored, err := env.svc.GetInscription(ctx, request.Id)
		require.NoError(t, err)
		require.Equal(t, domain.StatusPending, stored.Status)
	})

	t.Run("validation", func(t *testing.T) {
		env := newTestEnv(t)

		tests := []struct {
			name   string
			mutate func(*application.StartInscriptionParams)
		}{
			{"empty content", func(p *application.StartInscriptionParams) { p.Content = nil }},
			{"empty content type", func(p *application.StartInscriptionParams) { p.ContentType = "" }},
			{"no target", func(p *application.StartInscriptionParams) { p.SatTarget = 0 }},
			{"oversized content", func(p *application.StartInscriptionParams) {
				p.Content = make([]byte, (1<<16)+1)
			}},
			{"malformed parent id", func(p *application.StartInscriptionParams) {
				p.ParentInscriptionId = "not-an-id"
			}},
		}
		for _, test := range tests {
			params := startParams()
			test.mutate(&params)

			_, err := env.svc.StartInscription(ctx, params)
			require.ErrorIs(t, err, domain.ErrInvalidInput, test.name)
		}
	})

	t.Run("parent id replaces sat target", func(t *testing.T) {
		env := newTestEnv(t)

		params := startParams()
		params.SatTarget = 0
		params.ParentInscriptionId = "30f1b8b9f6406e80e7022b65c07dfb2a6e4f9c135805b07a01ba45e161154cf5i0"

		_, err := env.svc.StartInscription(ctx, params)
		require.NoError(t, err)
	})
}

func TestInscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	request, err := env.svc.StartInscription(ctx, startParams())
	require.NoError(t, err)

	prepared, err := env.svc.Prepare(ctx, request.Id, prepareParams(t))
	require.NoError(t, err)
	require.Equal(t, domain.StatusInProgress, prepared.Status)
	require.NotNil(t, prepared.Prepared)
	require.NotEmpty(t, prepared.Prepared.CommitAddress)
	require.NotEmpty(t, prepared.CommitPSBT)
	require.NotEmpty(t, prepared.RevealPSBT)
	require.NotEmpty(t, prepared.RevealPrivateKey)
	require.Equal(t, prepared.Fees.TotalFeeSats, prepared.Fees.CommitFeeSats+prepared.Fees.RevealFeeSats)

	accepted, err := env.svc.AcceptCommit(ctx, request.Id, "commit123")
	require.NoError(t, err)
	require.Equal(t, "commit123", accepted.Transactions.Commit)
	require.Equal(t, domain.StatusInProgress, accepted.Status)

	completed, err := env.svc.FinalizeReveal(ctx, request.Id, revealTxidHex)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, completed.Status)
	require.Equal(t, revealTxidHex, completed.Transactions.Reveal)
	require.Equal(t, revealTxidHex+"i0", completed.InscriptionId)
	require.NotZero(t, completed.CompletedAt)
	// the ephemeral reveal key is erased once the inscription settles.
	require.Empty(t, completed.RevealPrivateKey)
}

func TestPrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("repeated prepare keeps the commit address", func(t *testing.T) {
		env := newTestEnv(t)

		request, err := env.svc.StartInscription(ctx, startParams())
		require.NoError(t, err)

		first, err := env.svc.Prepare(ctx, request.Id, prepareParams(t))
		require.NoError(t, err)

		second, err := env.svc.Prepare(ctx, request.Id, prepareParams(t))
		require.NoError(t, err)

		require.Equal(t, first.Prepared.CommitAddress, second.Prepared.CommitAddress)
		require.Equal(t, first.RevealPrivateKey, second.RevealPrivateKey)
	})

	t.Run("zero fee rate falls back to the oracle", func(t *testing.T) {
		env := newTestEnv(t)

		request, err := env.svc.StartInscription(ctx, startParams())
		require.NoError(t, err)

		params := prepareParams(t)
		params.FeeRate = 0

		prepared, err := env.svc.Prepare(ctx, request.Id, params)
		require.NoError(t, err)
		require.EqualValues(t, env.oracle.rates.Medium, prepared.FeeRate)
	})

	t.Run("unknown network", func(t *testing.T) {
		env := newTestEnv(t)

		request, err := env.svc.StartInscription(ctx, startParams())
		require.NoError(t, err)

		params := prepareParams(t)
		params.Network = "moonnet"

		_, err = env.svc.Prepare(ctx, request.Id, params)
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("wallet failure moves the request to FAILED", func(t *testing.T) {
		env := newTestEnv(t)
		env.wallet.err = errors.New("wallet unreachable")

		request, err := env.svc.StartInscription(ctx, startParams())
		require.NoError(t, err)

		_, err = env.svc.Prepare(ctx, request.Id, prepareParams(t))
		require.Error(t, err)

		stored, err := env.svc.GetInscription(ctx, request.Id)
		require.NoError(t, err)
		require.Equal(t, domain.StatusFailed, stored.Status)
		require.Contains(t, stored.Error, "wallet unreachable")
	})

	t.Run("insufficient funds moves the request to FAILED", func(t *testing.T) {
		env := newTestEnv(t)
		env.wallet.utxos[0].Amount = 1_000

		request, err := env.svc.StartInscription(ctx, startParams())
		require.NoError(t, err)

		_, err = env.svc.Prepare(ctx, request.Id, prepareParams(t))
		require.ErrorIs(t, err, bitcoin.ErrInsufficientFunds)

		stored, err := env.svc.GetInscription(ctx, request.Id)
		require.NoError(t, err)
		require.Equal(t, domain.StatusFailed, stored.Status)
		require.NotEmpty(t, stored.Error)
	})
}

func TestStateGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("commit before prepare", func(t *testing.T) {
		env := newTestEnv(t)

		request, err := env.svc.StartInscription(ctx, startParams())
		require.NoError(t, err)

		_, err = env.svc.AcceptCommit(ctx, request.Id, "commit123")
		require.ErrorIs(t, err, domain.ErrInvalidState)

		// a rejected call does not mutate the record.
		stored, err := env.svc.GetInscription(ctx, request.Id)
		require.NoError(t, err)
		require.Equal(t, domain.StatusPending, stored.Status)
	})

	t.Run("reveal before commit txid", func(t *testing.T) {
		env := newTestEnv(t)

		request, err := env.svc.StartInscription(ctx, startParams())
		require.NoError(t, err)

		_, err = env.svc.Prepare(ctx, request.Id, prepareParams(t))
		require.NoError(t, err)

		_, err = env.svc.FinalizeReveal(ctx, request.Id, revealTxidHex)
		require.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("malformed reveal txid", func(t *testing.T) {
		env := newTestEnv(t)

		request, err := env.svc.StartInscription(ctx, startParams())
		require.NoError(t, err)

		_, err = env.svc.Prepare(ctx, request.Id, prepareParams(t))
		require.NoError(t, err)

		_, err = env.svc.AcceptCommit(ctx, request.Id, "commit123")
		require.NoError(t, err)

		_, err = env.svc.FinalizeReveal(ctx, request.Id, "not-a-txid")
		require.ErrorIs(t, err, domain.ErrInvalidInput)

		stored, err := env.svc.GetInscription(ctx, request.Id)
		require.NoError(t, err)
		require.Equal(t, domain.StatusInProgress, stored.Status)
		require.Empty(t, stored.InscriptionId)
	})

	t.Run("cancel pending and in-progress only", func(t *testing.T) {
		env := newTestEnv(t)

		request, err := env.svc.StartInscription(ctx, startParams())
		require.NoError(t, err)

		cancelled, err := env.svc.Cancel(ctx, request.Id)
		require.NoError(t, err)
		require.Equal(t, domain.StatusCancelled, cancelled.Status)

		// terminal states stay put.
		_, err = env.svc.Cancel(ctx, request.Id)
		require.ErrorIs(t, err, domain.ErrInvalidState)

		_, err = env.svc.Prepare(ctx, request.Id, prepareParams(t))
		require.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("unknown id", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.Cancel(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestProcessBatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	valid := application.BatchItem{Start: startParams(), Prepare: prepareParams(t)}

	invalid := application.BatchItem{Start: startParams(), Prepare: prepareParams(t)}
	invalid.Start.Content = nil

	results := env.svc.ProcessBatch(ctx, []application.BatchItem{valid, invalid, valid})
	require.Len(t, results, 3)

	require.Equal(t, domain.StatusInProgress, results[0].Status)
	require.Empty(t, results[0].Error)
	require.NotNil(t, results[0].Request)

	// one failed item never aborts the rest.
	require.Equal(t, domain.StatusFailed, results[1].Status)
	require.NotEmpty(t, results[1].Error)

	require.Equal(t, domain.StatusInProgress, results[2].Status)

	all, err := env.svc.ListInscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestFetchInscriptionContent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, _, err := env.svc.FetchInscriptionContent(ctx, "not-an-id")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = env.svc.FetchInscriptionContent(
		ctx, "30f1b8b9f6406e80e7022b65c07dfb2a6e4f9c135805b07a01ba45e161154cf5i0")
	require.NoError(t, err)
}
