package dispatch

import (
	"context"
	"log/slog"
	"time"

	"checkinbot/internal/docsync"
	"checkinbot/internal/domain"
	"checkinbot/internal/metrics"
	"checkinbot/internal/phone"
	"checkinbot/internal/replyindex"
)

// Correlator matches inbound replies back to roster contacts through the
// persisted reply index.
type Correlator struct {
	store  domain.RecordStore
	sync   *docsync.Propagator // optional
	logger *slog.Logger
	now    func() time.Time
}

type CorrelatorConfig struct {
	Store  domain.RecordStore
	Sync   *docsync.Propagator
	Logger *slog.Logger
}

func NewCorrelator(cfg CorrelatorConfig) *Correlator {
	return &Correlator{
		store:  cfg.Store,
		sync:   cfg.Sync,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// Correlate resolves a reply to its contact and records the reply body and
// timestamp in one combined update. It fails closed: an empty normalized
// key, a missing index snapshot, or an index miss all drop the reply with an
// unmatched log line and no record mutation.
func (c *Correlator) Correlate(ctx context.Context, reply domain.InboundReply) bool {
	key := phone.Normalize(reply.From)
	if key == "" {
		c.logger.Info("unmatched reply: sender address has no digits", "from", reply.From)
		metrics.RepliesUnmatched.Inc()
		return false
	}

	idx, err := replyindex.Load(ctx, c.store)
	if err != nil {
		c.logger.Error("reply index load failed, dropping reply", "key", key, "err", err)
		metrics.RepliesUnmatched.Inc()
		return false
	}
	if idx == nil {
		c.logger.Warn("no reply index snapshot, dropping reply", "key", key)
		metrics.RepliesUnmatched.Inc()
		return false
	}

	id, ok := idx.Lookup(key)
	if !ok {
		c.logger.Info("unmatched reply", "key", key, "body_len", len(reply.Body))
		metrics.RepliesUnmatched.Inc()
		return false
	}

	receivedAt := reply.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = c.now()
	}

	// One combined update to keep the concurrent-edit window narrow.
	err = c.store.UpdateFields(ctx, id, map[string]any{
		domain.FieldReplyBody: reply.Body,
		domain.FieldReplyAt:   receivedAt,
	})
	if err != nil {
		c.logger.Error("reply write failed", "contact", id, "err", err)
		return false
	}

	metrics.RepliesMatched.Inc()
	c.logger.Info("reply correlated", "contact", id, "key", key)

	if c.sync != nil {
		if contact, err := c.store.GetByID(ctx, id); err == nil && contact != nil {
			c.sync.Propagate(ctx, *contact)
		}
	}
	return true
}
