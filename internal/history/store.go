// Package history keeps a record of generation passes.
package history

import (
	"context"

	"git.home.luguber.info/inful/sitegen/internal/build"
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

// Store persists pass results.
type Store interface {
	// Record stores result, replacing any earlier record with the same id.
	Record(ctx context.Context, result *build.PassResult) error
	// List returns up to limit results, newest first.
	List(ctx context.Context, limit int) ([]*build.PassResult, error)
	// Get returns the result with id, or a not-found error.
	Get(ctx context.Context, id string) (*build.PassResult, error)
	Close() error
}
