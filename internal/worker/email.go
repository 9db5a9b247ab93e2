package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/email"
	"github.com/stratum-app/backend/internal/metrics"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/queue"
)

// JobQueue is the subset of *queue.Queue the processor needs.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (dead bool, err error)
}

// LogRecorder persists delivery outcomes.
type LogRecorder interface {
	Create(ctx context.Context, el *models.EmailLog) error
}

// errPermanent marks failures that retrying cannot fix.
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

// EmailProcessor renders and delivers queued email jobs.
type EmailProcessor struct {
	queue   JobQueue
	sender  email.Sender
	logs    LogRecorder
	metrics *metrics.Metrics
	logger  *zap.Logger
	backoff time.Duration
	now     func() time.Time
}

// NewEmailProcessor creates an email job processor.
func NewEmailProcessor(q JobQueue, sender email.Sender, logs LogRecorder, m *metrics.Metrics, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		queue:   q,
		sender:  sender,
		logs:    logs,
		metrics: m,
		logger:  logger,
		backoff: queue.RetryBackoff,
		now:     time.Now,
	}
}

// Process executes one email job. A returned error means the job should be retried.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := decodeEmail(job)
	if err != nil {
		return err
	}
	return p.deliver(ctx, job, payload)
}

func decodeEmail(job *queue.Job) (queue.EmailPayload, error) {
	var payload queue.EmailPayload
	if job.Type != queue.JobTypeEmail {
		return payload, errPermanent{fmt.Errorf("unknown job type: %s", job.Type)}
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return payload, errPermanent{fmt.Errorf("unmarshal payload: %w", err)}
	}
	return payload, nil
}

func (p *EmailProcessor) deliver(ctx context.Context, job *queue.Job, payload queue.EmailPayload) error {
	entry := &models.EmailLog{
		OrganizationID: payload.OrganizationID,
		OwnerID:        payload.OwnerID,
		Template:       payload.Template,
		Recipient:      payload.Recipient,
	}

	rendered, err := email.Render(payload.Template, payload.Variables)
	if err != nil {
		entry.Status = models.EmailLogStatusFailed
		entry.ErrorMessage = err.Error()
		p.record(ctx, entry)
		p.metrics.EmailJob(payload.Template, "failed")
		return errPermanent{err}
	}
	entry.Subject = rendered.Subject

	err = p.sender.Send(ctx, email.Message{To: payload.Recipient, Subject: rendered.Subject, HTML: rendered.HTML})
	switch {
	case errors.Is(err, email.ErrDisabled):
		entry.Status = models.EmailLogStatusSkipped
		entry.ErrorMessage = err.Error()
		p.metrics.EmailJob(payload.Template, "skipped")
	case err != nil:
		return fmt.Errorf("send: %w", err)
	default:
		sentAt := p.now().UTC()
		entry.Status = models.EmailLogStatusSent
		entry.SentAt = &sentAt
		p.metrics.EmailJob(payload.Template, "sent")
		p.logger.Info("email sent", zap.String("job_id", job.ID), zap.String("template", payload.Template))
	}
	p.record(ctx, entry)
	return nil
}

// handle processes a job and re-enqueues it on transient failure. It reports whether the caller should back off.
func (p *EmailProcessor) handle(ctx context.Context, job *queue.Job) bool {
	payload, err := decodeEmail(job)
	if err != nil {
		p.logger.Error("email job dropped", zap.String("job_id", job.ID), zap.Error(err))
		return false
	}
	err = p.deliver(ctx, job, payload)
	if err == nil {
		return false
	}
	var perm errPermanent
	if errors.As(err, &perm) {
		p.logger.Error("email job dropped", zap.String("job_id", job.ID), zap.Error(err))
		return false
	}

	p.logger.Warn("email job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
	dead, reErr := p.queue.Retry(ctx, job)
	if reErr != nil {
		p.logger.Error("retry enqueue failed", zap.Error(reErr))
		return true
	}
	if !dead {
		p.metrics.EmailJob(payload.Template, "retried")
		return true
	}
	p.metrics.EmailJob(payload.Template, "failed")
	p.record(ctx, &models.EmailLog{
		OrganizationID: payload.OrganizationID,
		OwnerID:        payload.OwnerID,
		Template:       payload.Template,
		Recipient:      payload.Recipient,
		Status:         models.EmailLogStatusFailed,
		ErrorMessage:   err.Error(),
	})
	return true
}

func (p *EmailProcessor) record(ctx context.Context, entry *models.EmailLog) {
	if p.logs == nil {
		return
	}
	if err := p.logs.Create(ctx, entry); err != nil {
		p.logger.Error("record email log failed", zap.Error(err), zap.String("recipient", entry.Recipient))
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if p.handle(ctx, job) {
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
