package audit

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sellaris/backend-crm/internal/common"
	"github.com/sellaris/backend-crm/internal/obs"
)

// HTTPRecorder records HTTP requests after they have been handled.
type HTTPRecorder struct {
	Service   *Service
	OnError   func(error)
	ActorFunc func(*http.Request) Actor
}

// HTTPConfig customises how the audit entry is produced for a route.
// When Action is empty the middleware derives a dotted action such as
// "deals.update" or "contacts.create" from the resource type and method.
type HTTPConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
	MetadataFunc    func(*http.Request, int) map[string]any
	ActorFunc       func(*http.Request) Actor
}

// Middleware returns a chi-compatible middleware that records audit entries.
func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r.Service == nil || !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}

			recorder := obs.NewStatusRecorder(w)
			next.ServeHTTP(recorder, req)

			entry := routeEntry{
				action:     cfg.Action,
				resourceID: chi.URLParam(req, cfg.ResourceIDParam),
				status:     recorder.Status(),
			}
			if entry.action == "" {
				entry.action = resourceAction(cfg.ResourceType, req.Method)
			}

			actor := r.actor(req)
			if cfg.ActorFunc != nil {
				actor = cfg.ActorFunc(req)
			}

			var metadata []byte
			if cfg.MetadataFunc != nil {
				if payload := cfg.MetadataFunc(req, entry.status); payload != nil {
					if data, err := json.Marshal(payload); err == nil {
						metadata = data
					}
				}
			}

			err := r.Service.Record(req.Context(), actor, entry.action, cfg.ResourceType, entry.resourceID, req, entry.status, metadata)
			if err != nil && r.OnError != nil {
				r.OnError(err)
			}
		})
	}
}

type routeEntry struct {
	action     string
	resourceID string
	status     int
}

// resourceAction names the audited operation in the vocabulary the rest of
// the API uses: "deals.update", "companies.create", "audit-logs.view".
func resourceAction(resourceType, method string) string {
	if resourceType == "" {
		return ""
	}
	var verb string
	switch method {
	case http.MethodPost:
		verb = "create"
	case http.MethodPut, http.MethodPatch:
		verb = "update"
	case http.MethodDelete:
		verb = "delete"
	default:
		verb = "view"
	}
	return strings.ToLower(resourceType) + "." + verb
}

func (r HTTPRecorder) actor(req *http.Request) Actor {
	if r.ActorFunc != nil {
		return r.ActorFunc(req)
	}
	if req == nil {
		return Actor{Kind: ActorKindAnonymous}
	}
	if userID, ok := common.UserID(req.Context()); ok && userID != "" {
		return Actor{Kind: ActorKindUser, UserID: &userID}
	}
	return Actor{Kind: ActorKindAnonymous}
}
