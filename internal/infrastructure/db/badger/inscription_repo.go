// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package badgerdb

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/timshannon/badgerhold/v4"

	"inscriber/internal/core/domain"
)

const inscriptionDir = "inscriptions"

type inscriptionRepository struct {
	store *badgerhold.Store

	// locks serializes Update calls per inscription id.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewInscriptionRepository opens a badger-backed inscription store under
// baseDir. An empty baseDir opens an in-memory store, used in tests.
func NewInscriptionRepository(baseDir string, logger badger.Logger) (domain.InscriptionRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, inscriptionDir)
	}
	store, err := createDb(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open inscription store: %s", err)
	}
	return &inscriptionRepository{store: store, locks: make(map[string]*sync.Mutex)}, nil
}

func (r *inscriptionRepository) Add(ctx context.Context, request domain.InscriptionRequest) error {
	if err := r.store.Insert(request.Id, request); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("inscription request %s already exists", request.Id)
		}
		return fmt.Errorf("failed to add inscription request: %w", err)
	}
	return nil
}

func (r *inscriptionRepository) Get(ctx context.Context, id string) (*domain.InscriptionRequest, error) {
	var request domain.InscriptionRequest
	err := r.store.Get(id, &request)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inscription request: %w", err)
	}
	return &request, nil
}

func (r *inscriptionRepository) GetAll(ctx context.Context) ([]domain.InscriptionRequest, error) {
	var requests []domain.InscriptionRequest
	if err := r.store.Find(&requests, nil); err != nil {
		return nil, fmt.Errorf("failed to get all inscription requests: %w", err)
	}
	return requests, nil
}

// Update runs updateFn inside the per-id critical section and replaces the
// record as a whole with the returned value. Returning an error from updateFn
// leaves the stored record untouched.
func (r *inscriptionRepository) Update(
	ctx context.Context, id string,
	updateFn func(domain.InscriptionRequest) (*domain.InscriptionRequest, error),
) (*domain.InscriptionRequest, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := updateFn(*current)
	if err != nil {
		return nil, err
	}

	if err := r.store.Update(id, *updated); err != nil {
		return nil, fmt.Errorf("failed to update inscription request: %w", err)
	}

	if updated.Status.IsTerminal() {
		r.releaseLock(id)
	}
	return updated, nil
}

func (r *inscriptionRepository) Close() {
	// nolint:all
	r.store.Close()
}

func (r *inscriptionRepository) lockFor(id string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

// releaseLock drops the per-id lock entry once the record reaches a terminal
// state. Terminal records accept no further transitions, so a waiter still
// holding the dropped mutex can no longer race a live update.
func (r *inscriptionRepository) releaseLock(id string) {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	delete(r.locks, id)
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger
	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	return badgerhold.Open(badgerhold.Options{
		// Metadata holds arbitrary decoded values, so records are stored as
		// JSON instead of gob.
		Encoder: func(value interface{}) ([]byte, error) {
			return json.Marshal(value)
		},
		Decoder: func(data []byte, value interface{}) error {
			return json.Unmarshal(data, value)
		},
		SequenceBandwith: 100,
		Options:          opts,
	})
}
