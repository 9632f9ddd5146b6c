package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thisisjab/sluice/entity"
)

const (
	defaultMirrorBufferSize    = 256
	defaultMirrorFlushInterval = 5 * time.Second
)

// mirrorManager buffers accepted records and flushes them to the mirror
// sink in batches, on size or interval, whichever comes first. The mirror
// is strictly best-effort: flush failures are logged and the batch is
// dropped without touching the primary path.
type mirrorManager struct {
	storage BatchStorage
	logger  *slog.Logger

	mu     sync.Mutex
	buffer []entity.Message
	wg     sync.WaitGroup

	bufferMaxSize uint
	flushInterval time.Duration
}

func newMirrorManager(logger *slog.Logger, storage BatchStorage, bufferMaxSize uint, flushInterval time.Duration) *mirrorManager {
	if bufferMaxSize == 0 {
		bufferMaxSize = defaultMirrorBufferSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultMirrorFlushInterval
	}
	return &mirrorManager{
		storage:       storage,
		logger:        logger,
		buffer:        make([]entity.Message, 0, bufferMaxSize),
		bufferMaxSize: bufferMaxSize,
		flushInterval: flushInterval,
	}
}

// run flushes on a ticker until ctx is cancelled, then drains what is left.
func (mm *mirrorManager) run(ctx context.Context) {
	ticker := time.NewTicker(mm.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.flush()
			mm.wg.Wait()
			return
		case <-ticker.C:
			mm.flush()
		}
	}
}

// add appends one record, flushing asynchronously when the buffer is full.
func (mm *mirrorManager) add(msg entity.Message) {
	var toFlush []entity.Message

	mm.mu.Lock()
	mm.buffer = append(mm.buffer, msg)
	if uint(len(mm.buffer)) >= mm.bufferMaxSize {
		toFlush = mm.buffer
		mm.buffer = make([]entity.Message, 0, mm.bufferMaxSize)
	}
	mm.mu.Unlock()

	if toFlush != nil {
		mm.storeBatch(toFlush)
	}
}

func (mm *mirrorManager) flush() {
	var toFlush []entity.Message

	mm.mu.Lock()
	if len(mm.buffer) > 0 {
		toFlush = mm.buffer
		mm.buffer = make([]entity.Message, 0, mm.bufferMaxSize)
	}
	mm.mu.Unlock()

	if toFlush != nil {
		mm.storeBatch(toFlush)
	}
}

func (mm *mirrorManager) storeBatch(batch []entity.Message) {
	mm.wg.Go(func() {
		// The mirror gets its own deadline so shutdown cannot cancel an
		// in-flight drain mid-batch.
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := mm.storage.StoreBatch(ctx, batch...); err != nil {
			mm.logger.Error("failed to flush mirror batch.", "count", len(batch), "error", err)
			return
		}

		mm.logger.Debug("flushed mirror batch.", "count", len(batch))
	})
}
