// Package engine supervises the receive/parse/dedupe/write pipeline: it
// starts the configured receivers, owns the shared pipeline stages and
// shuts everything down in order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thisisjab/sluice/dedup"
	"github.com/thisisjab/sluice/entity"
)

const defaultShutdownGrace = 2 * time.Second

type Config struct {
	Receivers     []Receiver
	Storage       Storage
	Dedup         *dedup.Deduplicator
	Filter        Filter
	Mirror        BatchStorage
	MirrorBuffer  uint
	MirrorFlush   time.Duration
	ShutdownGrace time.Duration
}

func (c Config) validate() error {
	if len(c.Receivers) == 0 {
		return errors.New("no receivers are enabled")
	}
	if c.Storage == nil {
		return errors.New("no storage is configured")
	}
	if c.Dedup == nil {
		return errors.New("no deduplicator is configured")
	}
	return nil
}

// Engine wires receivers into the shared pipeline and runs them until the
// context is cancelled or a receiver fails fatally.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Run blocks until shutdown completes. It returns nil on a clean,
// signal-initiated shutdown and the receiver's error when a transport
// failed to come up or died.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := &pipeline{
		logger:  e.logger,
		dedup:   e.cfg.Dedup,
		filter:  e.cfg.Filter,
		storage: e.cfg.Storage,
	}

	var mirrorWg sync.WaitGroup
	if e.cfg.Mirror != nil {
		p.mirror = newMirrorManager(e.logger, e.cfg.Mirror, e.cfg.MirrorBuffer, e.cfg.MirrorFlush)
		mirrorWg.Go(func() { p.mirror.run(runCtx) })
	}

	errCh := make(chan error, len(e.cfg.Receivers))

	var receiverWg sync.WaitGroup
	for _, rcv := range e.cfg.Receivers {
		receiverWg.Go(func() {
			e.logger.Info("starting receiver.", "name", rcv.Name())
			err := rcv.Listen(runCtx, func(env entity.Envelope) {
				p.process(runCtx, env)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("receiver %s: %w", rcv.Name(), err)
			}
		})
	}

	receiversDone := make(chan struct{})
	go func() {
		receiverWg.Wait()
		close(receiversDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		e.logger.Info("shutdown requested. stopping receivers.")
	case err := <-errCh:
		runErr = err
		e.logger.Error("receiver failed. stopping engine.", "error", err)
	case <-receiversDone:
	}
	cancel()

	// Let in-flight frames finish, then stop waiting.
	select {
	case <-receiversDone:
	case <-time.After(e.cfg.ShutdownGrace):
		e.logger.Warn("shutdown grace elapsed. abandoning in-flight connections.",
			"grace", e.cfg.ShutdownGrace)
	}

	// The mirror drains its remaining buffer on cancellation.
	mirrorWg.Wait()

	// A receiver may have failed in the same instant the loop exited.
	if runErr == nil {
		select {
		case err := <-errCh:
			runErr = err
		default:
		}
	}

	return runErr
}
