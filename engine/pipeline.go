package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/thisisjab/sluice/dedup"
	"github.com/thisisjab/sluice/entity"
	"github.com/thisisjab/sluice/parser"
)

// pipeline is the straight line every wire message walks:
// parse, optional filter, dedupe, write. It holds no per-message state and
// is shared by all receivers; the deduplicator and storage serialize
// internally.
type pipeline struct {
	logger  *slog.Logger
	dedup   *dedup.Deduplicator
	filter  Filter
	storage Storage
	mirror  *mirrorManager
}

func (p *pipeline) process(ctx context.Context, env entity.Envelope) {
	receivedAt := time.Now().UTC()

	msg, perr := parser.Parse(env.Raw)
	if perr != nil {
		// Best-effort records still flow; the parse problem is diagnostic only.
		p.logger.Debug("parse incomplete. keeping best-effort record.",
			"error", perr, "source", env.SourceIP)
	}
	msg.SourceIP = env.SourceIP
	msg.ReceivedAt = receivedAt.Format(entity.ReceivedAtLayout)

	if p.filter != nil {
		filtered, keep, err := p.filter.Filter(msg)
		switch {
		case err != nil:
			p.logger.Warn("filter failed. passing record through.", "error", err)
		case !keep:
			p.logger.Debug("record dropped by filter.", "source", msg.SourceIP)
			return
		default:
			msg = filtered
		}
	}

	if !p.dedup.Accept(msg.SourceIP, msg.Priority, msg.Message) {
		p.logger.Debug("duplicate suppressed.", "source", msg.SourceIP, "priority", msg.Priority)
		return
	}

	if err := p.storage.Store(ctx, msg); err != nil {
		p.logger.Error("failed to store record.", "severity", msg.Severity, "error", err)
		return
	}

	if p.mirror != nil {
		p.mirror.add(msg)
	}
}
