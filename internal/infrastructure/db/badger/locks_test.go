// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package badgerdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"inscriber/internal/core/domain"
)

func TestUpdateReleasesLockOnTerminalStatus(t *testing.T) {
	ctx := context.Background()

	repo, err := NewInscriptionRepository("", nil)
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	r, ok := repo.(*inscriptionRepository)
	require.True(t, ok)

	require.NoError(t, r.Add(ctx, domain.InscriptionRequest{
		Id:     "req-1",
		Status: domain.StatusPending,
	}))

	_, err = r.Update(ctx, "req-1",
		func(request domain.InscriptionRequest) (*domain.InscriptionRequest, error) {
			request.Status = domain.StatusInProgress
			return &request, nil
		},
	)
	require.NoError(t, err)
	require.Len(t, r.locks, 1)

	_, err = r.Update(ctx, "req-1",
		func(request domain.InscriptionRequest) (*domain.InscriptionRequest, error) {
			request.Status = domain.StatusCancelled
			return &request, nil
		},
	)
	require.NoError(t, err)
	// terminal records never transition again, their lock entry is dropped.
	require.Empty(t, r.locks)
}
