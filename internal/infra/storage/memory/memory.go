// Package memory is the databaseless header archive used for tests and
// runs without a configured database.
package memory

import (
	"context"
	"sync"

	"github.com/wmitsuda/akula/internal/core/domain"
)

// HeaderRepo keeps headers in a map. Safe for concurrent use.
type HeaderRepo struct {
	mu      sync.RWMutex
	headers map[domain.BlockNumber]domain.Header
	max     domain.BlockNumber
	any     bool
}

// NewHeaderRepo creates an empty archive.
func NewHeaderRepo() *HeaderRepo {
	return &HeaderRepo{
		headers: make(map[domain.BlockNumber]domain.Header),
	}
}

// SaveBatch stores the headers, overwriting duplicates.
func (r *HeaderRepo) SaveBatch(ctx context.Context, headers []domain.Header) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range headers {
		r.headers[h.Number] = h
		if !r.any || h.Number > r.max {
			r.max = h.Number
			r.any = true
		}
	}
	return nil
}

// MaxSaved returns the highest stored block number.
func (r *HeaderRepo) MaxSaved(ctx context.Context) (domain.BlockNumber, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.max, r.any, nil
}

// Get returns one stored header, for tests.
func (r *HeaderRepo) Get(num domain.BlockNumber) (domain.Header, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.headers[num]
	return h, ok
}

// Len returns the number of stored headers, for tests.
func (r *HeaderRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.headers)
}
