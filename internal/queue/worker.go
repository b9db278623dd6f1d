package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/sellaris/backend-crm/internal/common"
	"github.com/sellaris/backend-crm/internal/deal"
	"github.com/sellaris/backend-crm/internal/lock"
	"github.com/sellaris/backend-crm/internal/notify"
	"github.com/sellaris/backend-crm/internal/obs"
	"github.com/sellaris/backend-crm/internal/pdf"
)

// Worker processes deal tasks. It is registered on an asynq.ServeMux in the
// worker binary.
type Worker struct {
	Deals    *deal.Service
	Sender   common.EmailSender
	Renderer pdf.Renderer
	BaseURL  string
	Logger   zerolog.Logger

	// Locks serialises renders of the same deal across worker processes.
	// Left zero, renders run unguarded.
	Locks   lock.Locker
	LockTTL time.Duration
}

// Register attaches the task handlers to the mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSignatureEmail, w.HandleSignatureEmail)
	mux.HandleFunc(TypePDFRender, w.HandlePDFRender)
}

// HandleSignatureEmail delivers the signing link to the recipient.
func (w *Worker) HandleSignatureEmail(ctx context.Context, t *asynq.Task) error {
	var payload SignatureEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode signature email payload: %w", asynq.SkipRetry)
	}
	d, err := w.Deals.Get(ctx, payload.DealID)
	if err != nil {
		return fmt.Errorf("load deal %s: %w", payload.DealID, err)
	}
	subject, body := notify.SignatureRequestEmail(d, w.BaseURL, payload.Token)
	if err := w.Sender.Send(payload.Recipient, subject, body); err != nil {
		return fmt.Errorf("send signature email: %w", err)
	}
	w.Logger.Info().
		Str("deal_id", payload.DealID.String()).
		Str("recipient", payload.Recipient).
		Msg("signature email sent")
	return nil
}

// HandlePDFRender renders the quote document and persists its reference.
func (w *Worker) HandlePDFRender(ctx context.Context, t *asynq.Task) error {
	var payload PDFRenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode pdf render payload: %w", asynq.SkipRetry)
	}
	if w.Locks.R != nil {
		key := "pdf:render:" + payload.DealID.String()
		return w.Locks.WithLock(ctx, key, w.LockTTL, func(ctx context.Context) error {
			return w.renderPDF(ctx, payload)
		})
	}
	return w.renderPDF(ctx, payload)
}

func (w *Worker) renderPDF(ctx context.Context, payload PDFRenderPayload) error {
	d, err := w.Deals.Get(ctx, payload.DealID)
	if err != nil {
		return fmt.Errorf("load deal %s: %w", payload.DealID, err)
	}
	ref, err := w.Renderer.Render(ctx, d)
	if err != nil {
		obs.IncPDFRender("error")
		return fmt.Errorf("render pdf: %w", err)
	}
	if _, err := w.Deals.AttachPDFRef(ctx, payload.DealID, ref); err != nil {
		obs.IncPDFRender("error")
		return fmt.Errorf("attach pdf ref: %w", err)
	}
	obs.IncPDFRender("ok")
	w.Logger.Info().
		Str("deal_id", payload.DealID.String()).
		Str("ref", ref).
		Msg("quote pdf rendered")
	return nil
}
