package audit

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/sellaris/backend-crm/internal/common"
)

// Handler exposes the audit log read endpoint.
type Handler struct {
	Store Store
}

// List handles GET /audit-logs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 50)
	if perPage > 200 {
		perPage = 200
	}
	filter := ListFilter{
		ResourceType: r.URL.Query().Get("resource_type"),
		Limit:        perPage,
		Offset:       (page - 1) * perPage,
	}
	if raw := r.URL.Query().Get("actor_user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid actor user id", nil)
			return
		}
		filter.ActorUserID = &id
	}
	entries, err := h.Store.List(r.Context(), filter)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
}
