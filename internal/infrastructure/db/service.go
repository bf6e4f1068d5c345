// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package db

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"inscriber/internal/core/domain"
	"inscriber/internal/core/ports"
	badgerdb "inscriber/internal/infrastructure/db/badger"
)

// ServiceConfig holds repository backend parameters.
type ServiceConfig struct {
	DbType string
	// BaseDir is the data directory of the badger backend. Empty opens an
	// in-memory store.
	BaseDir string
	Logger  badger.Logger
}

type service struct {
	inscriptionRepo domain.InscriptionRepository
}

// NewService opens the configured repositories and returns the repo manager.
func NewService(config ServiceConfig) (ports.RepoManager, error) {
	switch config.DbType {
	case "badger":
		inscriptionRepo, err := badgerdb.NewInscriptionRepository(config.BaseDir, config.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open inscription db: %s", err)
		}
		return &service{inscriptionRepo: inscriptionRepo}, nil
	default:
		return nil, fmt.Errorf("unknown db type %q, allowed: badger", config.DbType)
	}
}

func (s *service) Inscriptions() domain.InscriptionRepository {
	return s.inscriptionRepo
}

func (s *service) Close() {
	s.inscriptionRepo.Close()
}
