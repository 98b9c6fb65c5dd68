package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-invite/backend/internal/credential"
	"github.com/aura-invite/backend/internal/guests"
	"github.com/aura-invite/backend/internal/models"
	"github.com/aura-invite/backend/pkg/qrcode"
	"github.com/aura-invite/backend/pkg/queue"
	"github.com/aura-invite/backend/pkg/storage"
)

// dequeueWait bounds one blocking pop so Run notices cancellation.
const dequeueWait = 5 * time.Second

// JobSource is the job queue consumed by the processor.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Uploader stores rendered cards.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error
}

// Renderer turns a code into a PNG.
type Renderer interface {
	PNG(content string) ([]byte, error)
}

// GuestLookup reads guests by id.
type GuestLookup interface {
	GetGuest(ctx context.Context, guestID uuid.UUID) (*models.Guest, error)
}

// QRCardProcessor renders guest QR cards and uploads them to object storage.
type QRCardProcessor struct {
	guests   GuestLookup
	codec    *credential.Codec
	renderer Renderer
	uploader Uploader
	queue    JobSource
	logger   *zap.Logger
	backoff  time.Duration
}

// NewQRCardProcessor creates a QR card processor.
func NewQRCardProcessor(lookup GuestLookup, codec *credential.Codec, renderer Renderer, uploader Uploader, q JobSource, logger *zap.Logger) *QRCardProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QRCardProcessor{
		guests:   lookup,
		codec:    codec,
		renderer: renderer,
		uploader: uploader,
		queue:    q,
		logger:   logger,
		backoff:  queue.RetryBackoff,
	}
}

// Process executes one qr_render job. Uploads overwrite, so repeats are harmless.
func (p *QRCardProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeQRRender(job)
	if err != nil {
		return err
	}

	g, err := p.guests.GetGuest(ctx, payload.GuestID)
	if errors.Is(err, guests.ErrNotFound) {
		p.logger.Info("guest deleted before card render", zap.String("guest_id", payload.GuestID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load guest: %w", err)
	}

	code := p.codec.Encode(g.ID)
	if payload.Code != "" && payload.Code != code {
		p.logger.Warn("job code differs from guest code", zap.String("job_code", payload.Code), zap.String("code", code))
	}
	png, err := p.renderer.PNG(code)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	key := storage.QRKey(g.EventID.String(), code)
	if err := p.uploader.Upload(ctx, key, qrcode.ContentType, bytes.NewReader(png), int64(len(png))); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	p.logger.Info("qr card uploaded", zap.String("guest_id", g.ID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *QRCardProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("qr card worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, dequeueWait)
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
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *QRCardProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
