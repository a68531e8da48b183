package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/felicity-fest/backend/internal/events"
	"github.com/felicity-fest/backend/internal/mailer"
	"github.com/felicity-fest/backend/pkg/queue"
)

// TrendingResetInterval is how often the rolling trending counter is zeroed.
const TrendingResetInterval = 24 * time.Hour

// EmailProcessor consumes confirmation email jobs: render, send over SMTP,
// and record the outcome in email_logs.
type EmailProcessor struct {
	mailer *mailer.Mailer
	events *events.Repository
	pool   *pgxpool.Pool
	queue  *queue.Queue
	logger *zap.Logger
}

// NewEmailProcessor creates an email worker.
func NewEmailProcessor(m *mailer.Mailer, eventsRepo *events.Repository, pool *pgxpool.Pool, q *queue.Queue, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{mailer: m, events: eventsRepo, pool: pool, queue: q, logger: logger}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := p.mailer.Send(payload); err != nil {
		p.logEmail(ctx, payload, "failed", err.Error())
		return fmt.Errorf("send email: %w", err)
	}

	p.logEmail(ctx, payload, "sent", "")
	p.logger.Info("confirmation email sent",
		zap.String("email_type", payload.EmailType),
		zap.String("recipient", payload.RecipientEmail))
	return nil
}

// logEmail records the delivery attempt. Logging failures never fail the job.
func (p *EmailProcessor) logEmail(ctx context.Context, payload queue.EmailPayload, status, errMsg string) {
	const q = `INSERT INTO email_logs
			(event_id, registration_id, email_type, recipient_email, status, sent_at, error_message)
		VALUES ($1, $2, $3, $4, $5, CASE WHEN $5 = 'sent' THEN NOW() END, NULLIF($6,''))`
	if _, err := p.pool.Exec(ctx, q, payload.EventID, payload.RegistrationID,
		payload.EmailType, payload.RecipientEmail, status, errMsg); err != nil {
		p.logger.Warn("email log write failed", zap.Error(err))
	}
}

// Run starts the worker loop: dequeue, process, retry on error. A background
// ticker also zeroes the trending counters once per window.
func (p *EmailProcessor) Run(ctx context.Context) {
	go p.runTrendingReset(ctx)

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
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}

// runTrendingReset zeroes recent_registrations on every event each window so
// the trending sort reflects recent activity, not all-time totals.
func (p *EmailProcessor) runTrendingReset(ctx context.Context) {
	ticker := time.NewTicker(TrendingResetInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.events.ResetRecentRegistrations(ctx); err != nil {
				p.logger.Error("trending reset failed", zap.Error(err))
				continue
			}
			p.logger.Info("trending counters reset")
		}
	}
}
