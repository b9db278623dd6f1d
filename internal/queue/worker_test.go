package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellaris/backend-crm/internal/common"
	"github.com/sellaris/backend-crm/internal/deal"
	"github.com/sellaris/backend-crm/internal/pdf"
)

func newWorker(t *testing.T) (*Worker, *deal.Service, *common.RecordingEmail) {
	t.Helper()
	store := deal.NewMemStore()
	svc := &deal.Service{
		Store:           store,
		Logger:          zerolog.Nop(),
		DefaultCurrency: "EUR",
		Now:             func() time.Time { return time.Date(2023, 4, 15, 10, 0, 0, 0, time.UTC) },
	}
	rec := &common.RecordingEmail{}
	w := &Worker{
		Deals:    svc,
		Sender:   rec,
		Renderer: pdf.StaticRenderer{},
		BaseURL:  "https://crm.example.com",
		Logger:   zerolog.Nop(),
	}
	return w, svc, rec
}

func createDeal(t *testing.T, svc *deal.Service) deal.Deal {
	t.Helper()
	d, err := svc.Create(context.Background(), deal.CreateInput{
		Title:     "Support contract",
		LineItems: []deal.LineItemInput{{Description: "Support", Quantity: 12, UnitPrice: 250}},
	})
	require.NoError(t, err)
	return d
}

func TestHandleSignatureEmail(t *testing.T) {
	w, svc, rec := newWorker(t)
	d := createDeal(t, svc)

	payload, err := json.Marshal(SignatureEmailPayload{DealID: d.ID, Recipient: "jane@example.com", Token: "tok"})
	require.NoError(t, err)

	err = w.HandleSignatureEmail(context.Background(), asynq.NewTask(TypeSignatureEmail, payload))
	require.NoError(t, err)
	require.Len(t, rec.Outbox, 1)
	assert.Equal(t, "jane@example.com", rec.Outbox[0].To)
	assert.Contains(t, rec.Outbox[0].Subject, d.QuoteNumber)
	assert.Contains(t, rec.Outbox[0].HTML, "token=tok")
}

func TestHandleSignatureEmailUnknownDeal(t *testing.T) {
	w, _, rec := newWorker(t)

	payload, err := json.Marshal(SignatureEmailPayload{DealID: uuid.New(), Recipient: "jane@example.com", Token: "tok"})
	require.NoError(t, err)

	err = w.HandleSignatureEmail(context.Background(), asynq.NewTask(TypeSignatureEmail, payload))
	require.Error(t, err)
	assert.Empty(t, rec.Outbox)
}

func TestHandlePDFRender(t *testing.T) {
	w, svc, _ := newWorker(t)
	d := createDeal(t, svc)

	payload, err := json.Marshal(PDFRenderPayload{DealID: d.ID})
	require.NoError(t, err)

	err = w.HandlePDFRender(context.Background(), asynq.NewTask(TypePDFRender, payload))
	require.NoError(t, err)

	stored, err := svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PDFRef)
	assert.Equal(t, "renders/"+d.ID.String()+".pdf", *stored.PDFRef)
	assert.Equal(t, deal.StatusDraft, stored.Status, "rendering must not move the lifecycle")
}

func TestHandlePDFRenderBadPayload(t *testing.T) {
	w, _, _ := newWorker(t)
	err := w.HandlePDFRender(context.Background(), asynq.NewTask(TypePDFRender, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
