// Package queue schedules and processes background work with asynq.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// TypeSignatureEmail delivers the signing link to a quote recipient.
	TypeSignatureEmail = "deal:signature_email"
	// TypePDFRender renders the quote document and attaches its reference.
	TypePDFRender = "deal:pdf_render"
)

// SignatureEmailPayload is the task body for TypeSignatureEmail.
type SignatureEmailPayload struct {
	DealID    uuid.UUID `json:"deal_id"`
	Recipient string    `json:"recipient"`
	Token     string    `json:"token"`
}

// PDFRenderPayload is the task body for TypePDFRender.
type PDFRenderPayload struct {
	DealID uuid.UUID `json:"deal_id"`
}

// Enqueuer schedules deal tasks on the asynq client. It implements deal.Jobs.
type Enqueuer struct {
	Client *asynq.Client
}

// EnqueueSignatureEmail schedules the signing-link email.
func (e *Enqueuer) EnqueueSignatureEmail(ctx context.Context, dealID uuid.UUID, recipient, token string) error {
	payload, err := json.Marshal(SignatureEmailPayload{DealID: dealID, Recipient: recipient, Token: token})
	if err != nil {
		return fmt.Errorf("queue: encode signature email payload: %w", err)
	}
	task := asynq.NewTask(TypeSignatureEmail, payload, asynq.MaxRetry(5))
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", TypeSignatureEmail, err)
	}
	return nil
}

// EnqueuePDFRender schedules a quote document render.
func (e *Enqueuer) EnqueuePDFRender(ctx context.Context, dealID uuid.UUID) error {
	payload, err := json.Marshal(PDFRenderPayload{DealID: dealID})
	if err != nil {
		return fmt.Errorf("queue: encode pdf render payload: %w", err)
	}
	task := asynq.NewTask(TypePDFRender, payload, asynq.MaxRetry(3))
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", TypePDFRender, err)
	}
	return nil
}
