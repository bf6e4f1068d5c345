// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"inscriber/bitcoin"
	"inscriber/internal/config"
	"inscriber/internal/core/application"
	"inscriber/internal/infrastructure/db"
	"inscriber/internal/infrastructure/esplora"
)

func main() {
	var (
		filePath    = flag.String("file", "", "path to the inscription body file")
		contentType = flag.String("content-type", "", "MIME type of the inscription body")
		recipient   = flag.String("recipient", "", "taproot address receiving the inscription")
		funding     = flag.String("funding", "", "address owning the UTXOs that fund the commit tx")
		change      = flag.String("change", "", "change address, defaults to the funding address")
		feeRate     = flag.Int64("fee-rate", 0, "fee rate in sat/vB, 0 uses the network estimate")
		satTarget   = flag.Uint64("sat", 0, "target satoshi ordinal number")
		parent      = flag.String("parent", "", "parent inscription id")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	if *filePath == "" || *contentType == "" || *recipient == "" || *funding == "" {
		log.Fatal("-file, -content-type, -recipient and -funding are required")
	}

	body, err := os.ReadFile(*filePath)
	if err != nil {
		log.WithError(err).Fatal("could not read inscription body")
	}

	networkParams, err := bitcoin.NetworkParams(cfg.Network)
	if err != nil {
		log.WithError(err).Fatal("invalid network")
	}

	repoManager, err := db.NewService(db.ServiceConfig{
		DbType:  cfg.DbType,
		BaseDir: cfg.Datadir,
	})
	if err != nil {
		log.WithError(err).Fatal("could not open database")
	}
	defer repoManager.Close()

	chain := esplora.NewService(cfg.EsploraURL, networkParams)

	svc := application.NewService(repoManager, chain, chain, chain, application.Config{
		MaxContentSize: cfg.MaxContentSize,
		Postage:        cfg.Postage,
	}, log.StandardLogger())

	ctx := context.Background()

	request, err := svc.StartInscription(ctx, application.StartInscriptionParams{
		ContentType:         *contentType,
		Content:             body,
		ParentInscriptionId: *parent,
		SatTarget:           *satTarget,
	})
	if err != nil {
		log.WithError(err).Fatal("could not register inscription request")
	}

	prepared, err := svc.Prepare(ctx, request.Id, application.PrepareParams{
		FeeRate:          *feeRate,
		Network:          cfg.Network,
		RecipientAddress: *recipient,
		FundingAddress:   *funding,
		ChangeAddress:    *change,
	})
	if err != nil {
		log.WithError(err).Fatal("could not prepare inscription transactions")
	}

	out := struct {
		Id            string `json:"id"`
		CommitAddress string `json:"commitAddress"`
		CommitPSBT    string `json:"commitPsbt"`
		RevealPSBT    string `json:"revealPsbt"`
		CommitFeeSats int64  `json:"commitFeeSats"`
		RevealFeeSats int64  `json:"revealFeeSats"`
		TotalFeeSats  int64  `json:"totalFeeSats"`
	}{
		Id:            prepared.Id,
		CommitAddress: prepared.Prepared.CommitAddress,
		CommitPSBT:    prepared.CommitPSBT,
		RevealPSBT:    prepared.RevealPSBT,
		CommitFeeSats: prepared.Fees.CommitFeeSats,
		RevealFeeSats: prepared.Fees.RevealFeeSats,
		TotalFeeSats:  prepared.Fees.TotalFeeSats,
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.WithError(err).Fatal("could not encode result")
	}

	if _, err := os.Stdout.Write(append(encoded, '\n')); err != nil {
		log.WithError(err).Fatal("could not write result")
	}
}
