// Package handler is the HTTP surface of the portal backend. Handlers decode
// and validate transport concerns only; all business rules live in the
// service layer.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/stafflane/be-hr-requests/internal/errors"
	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/repository"
	"github.com/stafflane/be-hr-requests/internal/service"
)

// userIDHeader carries the authenticated caller's id, stamped by the API
// gateway in front of this service.
const userIDHeader = "X-User-ID"

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	requests      *service.RequestService
	approvals     *service.ApprovalService
	workflows     *service.WorkflowAdminService
	notifications *service.NotificationFeedService
	log           *logger.Logger
}

// NewHTTPHandler creates the HTTP handler.
func NewHTTPHandler(
	requests *service.RequestService,
	approvals *service.ApprovalService,
	workflows *service.WorkflowAdminService,
	notifications *service.NotificationFeedService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		requests:      requests,
		approvals:     approvals,
		workflows:     workflows,
		notifications: notifications,
		log:           log,
	}
}

// RegisterRoutes mounts every endpoint on the router.
func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/requests", h.CreateRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests", h.ListMyRequests).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}", h.GetRequest).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}/history", h.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}/timeline", h.GetTimeline).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}/itinerary", h.GetItinerary).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}/approve", h.Approve).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/reject", h.Reject).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/delegate", h.Delegate).Methods(http.MethodPost)

	api.HandleFunc("/approvals/pending", h.PendingApprovals).Methods(http.MethodGet)

	api.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/counts", h.NotificationCounts).Methods(http.MethodGet)
	api.HandleFunc("/notifications/event-types", h.ListNotificationEventTypes).Methods(http.MethodGet)
	api.HandleFunc("/notifications/mark-read", h.MarkNotificationsRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/mark-all-read", h.MarkAllNotificationsRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}", h.DismissNotification).Methods(http.MethodDelete)

	api.HandleFunc("/workflow-templates/validate", h.ValidateWorkflowTemplate).Methods(http.MethodPost)
	api.HandleFunc("/workflow-templates", h.SaveWorkflowTemplate).Methods(http.MethodPost)
	api.HandleFunc("/workflow-templates/{id}", h.GetWorkflowTemplate).Methods(http.MethodGet)
	api.HandleFunc("/workflow-templates/{id}/activate", h.ActivateWorkflowTemplate).Methods(http.MethodPost)

	api.HandleFunc("/workflow-executions", h.StartWorkflowExecution).Methods(http.MethodPost)
	api.HandleFunc("/workflow-executions/{id}", h.GetWorkflowExecution).Methods(http.MethodGet)
	api.HandleFunc("/workflow-executions/{id}/steps/{step}/approve", h.ApproveWorkflowStep).Methods(http.MethodPost)
	api.HandleFunc("/workflow-executions/{id}/steps/{step}/reject", h.RejectWorkflowStep).Methods(http.MethodPost)
	api.HandleFunc("/workflow-executions/{id}/steps/{step}/delegate", h.DelegateWorkflowStep).Methods(http.MethodPost)

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
}

// ── Requests ─────────────────────────────────────────────────────────────────

// CreateRequest submits a new request.
func (h *HTTPHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var in service.CreateRequestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}
	if in.RequestorID == "" {
		in.RequestorID = r.Header.Get(userIDHeader)
	}

	req, err := h.requests.CreateRequest(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, req)
}

// GetRequest returns one request.
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.requests.GetRequest(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, req)
}

// ListMyRequests returns the caller's own requests.
func (h *HTTPHandler) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		h.respondError(w, r, errors.InvalidInput(userIDHeader, "caller identity is required"))
		return
	}
	limit, offset := pagination(r)
	reqs, err := h.requests.ListMyRequests(r.Context(), userID, limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"items": reqs})
}

// GetHistory returns the raw approval history.
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.requests.GetHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"items": records})
}

// GetTimeline returns the synthesized stage-by-stage timeline.
func (h *HTTPHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := h.requests.GetTimeline(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"items": timeline})
}

// GetItinerary returns a travel request's itinerary.
func (h *HTTPHandler) GetItinerary(w http.ResponseWriter, r *http.Request) {
	segments, err := h.requests.GetItinerary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"items": segments})
}

// ── Approval actions ─────────────────────────────────────────────────────────

type actionBody struct {
	Comments   string `json:"comments"`
	Reason     string `json:"reason"`
	DelegateID string `json:"delegateId"`
}

// Approve advances a request one stage.
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actorID, body, err := h.actionInput(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	t, err := h.approvals.Approve(r.Context(), mux.Vars(r)["id"], actorID, body.Comments)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{
		"entityId": t.EntityID,
		"from":     t.From,
		"to":       t.To,
	})
}

// Reject terminally rejects a request.
func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actorID, body, err := h.actionInput(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	t, err := h.approvals.Reject(r.Context(), mux.Vars(r)["id"], actorID, body.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{
		"entityId": t.EntityID,
		"from":     t.From,
		"to":       t.To,
	})
}

// Delegate hands the current stage to another permission holder.
func (h *HTTPHandler) Delegate(w http.ResponseWriter, r *http.Request) {
	actorID, body, err := h.actionInput(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if body.DelegateID == "" {
		h.respondError(w, r, errors.InvalidInput("delegateId", "delegate id is required"))
		return
	}

	if err := h.approvals.Delegate(r.Context(), mux.Vars(r)["id"], actorID, body.DelegateID, body.Reason); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"delegated": true})
}

// PendingApprovals lists the requests waiting on the caller.
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		h.respondError(w, r, errors.InvalidInput(userIDHeader, "caller identity is required"))
		return
	}
	limit, offset := pagination(r)
	reqs, err := h.approvals.PendingApprovals(r.Context(), userID, limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"items": reqs})
}

// ── Notifications ────────────────────────────────────────────────────────────

// ListNotifications returns the caller's feed.
func (h *HTTPHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	limit, offset := pagination(r)

	q := repository.NotificationQuery{
		UserID:     userID,
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Limit:      limit,
		Offset:     offset,
	}
	if category := r.URL.Query().Get("category"); category != "" {
		q.Category = &category
	}

	items, err := h.notifications.List(r.Context(), q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"items": items})
}

// NotificationCounts returns the caller's badge tallies.
func (h *HTTPHandler) NotificationCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.notifications.Counts(r.Context(), r.Header.Get(userIDHeader))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, counts)
}

// ListNotificationEventTypes returns the event types a module can emit,
// used by the template administration screens.
func (h *HTTPHandler) ListNotificationEventTypes(w http.ResponseWriter, r *http.Request) {
	items, err := h.notifications.EventTypes(r.Context(), r.URL.Query().Get("module"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"items": items})
}

// MarkNotificationsRead marks specific notifications read.
func (h *HTTPHandler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	updated, err := h.notifications.MarkRead(r.Context(), r.Header.Get(userIDHeader), body.IDs)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"updated": updated})
}

// MarkAllNotificationsRead marks the whole feed read.
func (h *HTTPHandler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.notifications.MarkAllRead(r.Context(), r.Header.Get(userIDHeader))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"updated": updated})
}

// DismissNotification hides one notification.
func (h *HTTPHandler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.Dismiss(r.Context(), r.Header.Get(userIDHeader), mux.Vars(r)["id"]); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"dismissed": true})
}

// ── Workflow administration ──────────────────────────────────────────────────

// ValidateWorkflowTemplate dry-runs template validation.
func (h *HTTPHandler) ValidateWorkflowTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl repository.WorkflowTemplate
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	result, err := h.workflows.ValidateTemplate(r.Context(), &tpl)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, result)
}

// SaveWorkflowTemplate validates and stores a template.
func (h *HTTPHandler) SaveWorkflowTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl repository.WorkflowTemplate
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}
	tpl.CreatedBy = r.Header.Get(userIDHeader)

	result, err := h.workflows.SaveTemplate(r.Context(), &tpl)
	if err != nil {
		if errors.Is(err, errors.ErrCodeValidation) && result != nil {
			h.respond(w, http.StatusUnprocessableEntity, result)
			return
		}
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, map[string]interface{}{
		"template":   tpl,
		"validation": result,
	})
}

// GetWorkflowTemplate returns one template.
func (h *HTTPHandler) GetWorkflowTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.workflows.GetTemplate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, tpl)
}

// ActivateWorkflowTemplate makes a template active for its module.
func (h *HTTPHandler) ActivateWorkflowTemplate(w http.ResponseWriter, r *http.Request) {
	result, err := h.workflows.ActivateTemplate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, errors.ErrCodeValidation) && result != nil {
			h.respond(w, http.StatusUnprocessableEntity, result)
			return
		}
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"activated": true, "validation": result})
}

// StartWorkflowExecution starts the module's active template against an
// entity.
func (h *HTTPHandler) StartWorkflowExecution(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Module     string `json:"module"`
		EntityID   string `json:"entityId"`
		EntityType string `json:"entityType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	exec, err := h.workflows.StartExecution(r.Context(), body.Module, body.EntityID, body.EntityType, r.Header.Get(userIDHeader))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, exec)
}

// GetWorkflowExecution returns an execution with its step states.
func (h *HTTPHandler) GetWorkflowExecution(w http.ResponseWriter, r *http.Request) {
	exec, steps, err := h.workflows.GetExecution(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{
		"execution": exec,
		"steps":     steps,
	})
}

// ApproveWorkflowStep approves the current step of an execution.
func (h *HTTPHandler) ApproveWorkflowStep(w http.ResponseWriter, r *http.Request) {
	stepNumber, err := stepVar(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	actorID, body, err := h.actionInput(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var comments *string
	if body.Comments != "" {
		comments = &body.Comments
	}
	completed, err := h.workflows.ApproveStep(r.Context(), mux.Vars(r)["id"], stepNumber, actorID, comments)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"completed": completed})
}

// RejectWorkflowStep rejects the current step, terminating the execution.
func (h *HTTPHandler) RejectWorkflowStep(w http.ResponseWriter, r *http.Request) {
	stepNumber, err := stepVar(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	actorID, body, err := h.actionInput(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.workflows.RejectStep(r.Context(), mux.Vars(r)["id"], stepNumber, actorID, body.Reason); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"rejected": true})
}

// DelegateWorkflowStep reassigns the current step.
func (h *HTTPHandler) DelegateWorkflowStep(w http.ResponseWriter, r *http.Request) {
	stepNumber, err := stepVar(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	actorID, body, err := h.actionInput(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if body.DelegateID == "" {
		h.respondError(w, r, errors.InvalidInput("delegateId", "delegate id is required"))
		return
	}

	if err := h.workflows.DelegateStep(r.Context(), mux.Vars(r)["id"], stepNumber, actorID, body.DelegateID, body.Reason); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"delegated": true})
}

// Health is the liveness probe.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) actionInput(r *http.Request) (string, actionBody, error) {
	actorID := r.Header.Get(userIDHeader)
	if actorID == "" {
		return "", actionBody{}, errors.InvalidInput(userIDHeader, "caller identity is required")
	}

	var body actionBody
	if r.Body != nil {
		// An empty body is fine for approvals without comments.
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			return "", actionBody{}, errors.InvalidInput("body", "invalid request body")
		}
	}
	return actorID, body, nil
}

func stepVar(r *http.Request) (int, error) {
	n, err := strconv.Atoi(mux.Vars(r)["step"])
	if err != nil || n < 1 {
		return 0, errors.InvalidInput("step", "step must be a positive integer")
	}
	return n, nil
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *HTTPHandler) respond(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	status := httpStatus(code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		h.log.Debug().Err(err).Str("path", r.URL.Path).Msg("Request rejected")
	}

	h.respond(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    string(code),
			"message": err.Error(),
		},
	})
}

func httpStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeValidation:
		return http.StatusBadRequest
	case errors.ErrCodeInvalidState, errors.ErrCodeConflict, errors.ErrCodeDuplicate:
		return http.StatusConflict
	case errors.ErrCodeUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
