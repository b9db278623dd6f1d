package deal

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sellaris/backend-crm/internal/common"
	"github.com/sellaris/backend-crm/internal/pricing"
	"github.com/sellaris/backend-crm/internal/signature"
)

// Handler exposes the deal REST surface.
type Handler struct {
	Svc *Service
}

// Create handles POST /deals.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	d, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		renderDealError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": d})
}

// List handles GET /deals.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	filter := ListFilter{Limit: perPage, Offset: (page - 1) * perPage}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := Status(raw)
		if !status.Valid() {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown status filter", nil)
			return
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("company_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid company id", nil)
			return
		}
		filter.CompanyID = &id
	}
	deals, total, err := h.Svc.List(r.Context(), filter)
	if err != nil {
		renderDealError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       deals,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get handles GET /deals/{dealId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := dealID(w, r)
	if !ok {
		return
	}
	d, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		renderDealError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": d})
}

// Update handles PUT /deals/{dealId}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := dealID(w, r)
	if !ok {
		return
	}
	var in UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	d, err := h.Svc.Update(r.Context(), id, in)
	if err != nil {
		renderDealError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": d})
}

// SendSignature handles POST /deals/{dealId}/signature-request.
func (h *Handler) SendSignature(w http.ResponseWriter, r *http.Request) {
	id, ok := dealID(w, r)
	if !ok {
		return
	}
	var in struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "recipient email is required", nil)
		return
	}
	d, err := h.Svc.SendSignatureRequest(r.Context(), id, in.Email)
	if err != nil {
		renderDealError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": d})
}

// SetStatus handles PATCH /deals/{dealId}/status.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := dealID(w, r)
	if !ok {
		return
	}
	var in struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	target := Status(in.Status)
	if !target.Valid() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown status", nil)
		return
	}
	d, err := h.Svc.SetStatus(r.Context(), id, target)
	if err != nil {
		renderDealError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": d})
}

// RequestPDF handles POST /deals/{dealId}/pdf, scheduling an async render.
func (h *Handler) RequestPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := dealID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.RequestPDFRender(r.Context(), id); err != nil {
		renderDealError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
}

// PublicView handles GET /public/quotes?token=..., the link recipients open
// from the signature request email.
func (h *Handler) PublicView(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	d, err := h.Svc.ViewWithToken(r.Context(), token)
	if err != nil {
		renderDealError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": publicView(d)})
}

// PublicSign handles POST /public/quotes/sign.
func (h *Handler) PublicSign(w http.ResponseWriter, r *http.Request) {
	var in SignInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	d, err := h.Svc.Sign(r.Context(), in)
	if err != nil {
		renderDealError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": publicView(d)})
}

func dealID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "dealId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid deal id", nil)
		return uuid.Nil, false
	}
	return id, true
}

// publicView strips internal fields from a deal before showing it to the
// quote recipient.
func publicView(d Deal) map[string]any {
	return map[string]any{
		"quote_number":   d.QuoteNumber,
		"title":          d.Title,
		"line_items":     d.LineItems,
		"subtotal":       d.Subtotal,
		"tax_amount":     d.TaxAmount,
		"total_amount":   d.TotalAmount,
		"currency":       d.Currency,
		"status":         d.Status,
		"expiry_date":    d.ExpiryDate,
		"signature_date": d.SignatureDate,
	}
}

func renderDealError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDealNotFound):
		common.JSONError(w, http.StatusNotFound, "DEAL_NOT_FOUND", "deal not found", nil)
	case errors.Is(err, signature.ErrInvalidOrExpiredToken):
		common.JSONError(w, http.StatusUnauthorized, "INVALID_OR_EXPIRED_TOKEN", "signature token is invalid or expired", nil)
	case errors.Is(err, ErrAlreadySigned):
		common.JSONError(w, http.StatusConflict, "ALREADY_SIGNED", "deal has already been signed", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, ErrQuoteNumberCollision):
		common.JSONError(w, http.StatusConflict, "QUOTE_NUMBER_COLLISION", "quote number already allocated", nil)
	case errors.Is(err, ErrMissingSignature):
		common.JSONError(w, http.StatusBadRequest, "MISSING_SIGNATURE", err.Error(), nil)
	case errors.Is(err, pricing.ErrInvalidLineItem):
		common.JSONError(w, http.StatusBadRequest, "INVALID_LINE_ITEM", err.Error(), nil)
	default:
		common.RenderError(w, err)
	}
}
