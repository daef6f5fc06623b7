package storage

import (
	"context"

	"github.com/wmitsuda/akula/internal/core/domain"
)

// HeaderRepository is the archive the save stage writes verified
// headers into.
type HeaderRepository interface {
	// SaveBatch persists a run of headers. Re-saving an already stored
	// header is a no-op.
	SaveBatch(ctx context.Context, headers []domain.Header) error

	// MaxSaved returns the highest persisted block number. ok is false
	// when the archive is empty.
	MaxSaved(ctx context.Context) (num domain.BlockNumber, ok bool, err error)
}
