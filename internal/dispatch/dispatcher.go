// Package dispatch contains the outbound broadcast pass and the inbound
// reply correlator.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"checkinbot/internal/docsync"
	"checkinbot/internal/domain"
	"checkinbot/internal/metrics"
)

const (
	defaultBatchSize  = 10
	defaultBatchDelay = time.Second
)

// Report is the aggregate outcome of one outbound pass.
type Report struct {
	Template    string
	Sent        int
	Failed      int
	Skipped     int
	StoreErrors int
	Duration    time.Duration
}

func (r Report) String() string {
	return fmt.Sprintf("template=%s sent=%d failed=%d skipped=%d store_errors=%d in %s",
		r.Template, r.Sent, r.Failed, r.Skipped, r.StoreErrors, r.Duration.Round(time.Millisecond))
}

// Dispatcher runs the outbound pass: one send per contact, paced in fixed
// batches to respect the transport's rate limit.
type Dispatcher struct {
	store     domain.RecordStore
	transport domain.Transport
	sync      *docsync.Propagator // optional
	batchSize int
	delay     time.Duration
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration)
}

type DispatcherConfig struct {
	Store      domain.RecordStore
	Transport  domain.Transport
	Sync       *docsync.Propagator
	BatchSize  int
	BatchDelay time.Duration
	Logger     *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = defaultBatchDelay
	}
	return &Dispatcher{
		store:     cfg.Store,
		transport: cfg.Transport,
		sync:      cfg.Sync,
		batchSize: cfg.BatchSize,
		delay:     cfg.BatchDelay,
		logger:    cfg.Logger,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// SendAll performs one complete pass over the roster. A single contact's
// failure is recorded as a failed receipt and never aborts the pass; the
// receipt is written back per-record immediately so partial progress
// survives a mid-run crash. Re-running a pass re-sends to everyone: there is
// no "already sent" suppression beyond the last receipt field.
func (d *Dispatcher) SendAll(ctx context.Context, templateID string) (Report, error) {
	contacts, err := d.store.ListAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list roster: %w", err)
	}

	start := time.Now()
	report := Report{Template: templateID}
	var touched []domain.Contact
	inBatch := 0

	// The last contact that will actually reach the transport: no pause is
	// owed once it has been sent, even if skip-only records follow.
	lastSendable := -1
	for i, c := range contacts {
		if c.Phone != "" {
			lastSendable = i
		}
	}

	for i, c := range contacts {
		if ctx.Err() != nil {
			d.logger.Warn("outbound pass cancelled", "after", i)
			break
		}
		if c.Phone == "" {
			report.Skipped++
			continue
		}

		status, err := d.transport.Send(ctx, c.Phone, templateID)
		receipt := domain.DeliveryReceipt{ContactID: c.ID, At: time.Now()}
		if err != nil {
			receipt.Status = "error: " + err.Error()
			report.Failed++
			metrics.SendFailures.Inc()
			d.logger.Warn("send failed", "contact", c.ID, "err", err)
		} else {
			receipt.Status = status
			report.Sent++
			metrics.Sends.Inc()
		}

		if err := d.store.UpdateFields(ctx, c.ID, map[string]any{
			domain.FieldDeliveryStatus: receipt.Status,
		}); err != nil {
			report.StoreErrors++
			d.logger.Error("receipt write failed", "contact", c.ID, "err", err)
		}

		c.LastDeliveryStatus = receipt.Status
		touched = append(touched, c)

		inBatch++
		if inBatch == d.batchSize && i < lastSendable {
			d.logger.Debug("batch complete, pausing", "batch_size", d.batchSize, "delay", d.delay)
			d.sleep(ctx, d.delay)
			inBatch = 0
		}
	}

	if d.sync != nil {
		for _, c := range touched {
			d.sync.Propagate(ctx, c)
		}
	}

	report.Duration = time.Since(start)
	d.logger.Info("outbound pass complete",
		"template", templateID,
		"sent", report.Sent,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"store_errors", report.StoreErrors,
	)
	return report, nil
}
