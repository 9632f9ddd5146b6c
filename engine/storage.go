package engine

import (
	"context"

	"github.com/thisisjab/sluice/entity"
)

// Storage is the primary, per-record sink. Store must serialize concurrent
// callers so whole lines never interleave.
type Storage interface {
	Store(ctx context.Context, msg entity.Message) error
}

// BatchStorage is the contract for the optional mirror sink. Records reach
// it in batches assembled by the mirror manager.
type BatchStorage interface {
	StoreBatch(ctx context.Context, msgs ...entity.Message) error
}
