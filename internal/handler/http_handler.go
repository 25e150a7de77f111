package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/client"
	"github.com/maktaba-platform/be-legal-deposit/internal/logger"
	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
	"github.com/maktaba-platform/be-legal-deposit/internal/service"
)

// HTTPHandler exposes the workflow engine's REST surface.
type HTTPHandler struct {
	requests *service.RequestService
	registry *service.RegistryService
	tokens   *service.TokenService
	workflow *service.WorkflowService
	router   *service.RoutingService
	notifier *service.Notifier
	identity client.IdentityClientInterface
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	requests *service.RequestService,
	registry *service.RegistryService,
	tokens *service.TokenService,
	workflow *service.WorkflowService,
	router *service.RoutingService,
	notifier *service.Notifier,
	identity client.IdentityClientInterface,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		requests: requests,
		registry: registry,
		tokens:   tokens,
		workflow: workflow,
		router:   router,
		notifier: notifier,
		identity: identity,
		log:      log,
	}
}

// CreateRequest handles POST /api/v1/requests.
func (h *HTTPHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var in service.CreateRequestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	in.OwnerID = user.ID

	req, err := h.requests.Create(r.Context(), &in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, req)
}

// ListRequests handles GET /api/v1/requests, scoped to the caller's own
// requests.
func (h *HTTPHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	requests, err := h.requests.ListForOwner(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, requests)
}

// GetRequest handles GET /api/v1/requests/get?id=.
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, apperrors.InvalidInput("id", "request id is required"))
		return
	}

	req, err := h.requests.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// SubmitRequest handles POST /api/v1/requests/submit.
func (h *HTTPHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req struct {
		ID      string               `json:"id"`
		Parties []service.PartyInput `json:"parties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	result, err := h.requests.Submit(r.Context(), req.ID, user.ID, req.Parties)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// AttributeNumbers handles POST /api/v1/requests/attribute-numbers.
func (h *HTTPHandler) AttributeNumbers(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req struct {
		ID       string  `json:"id"`
		DLNumber *string `json:"dl_number,omitempty"`
		ISBN     *string `json:"isbn,omitempty"`
		ISSN     *string `json:"issn,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if err := h.requests.AttributeNumbers(r.Context(), req.ID, user.ID, req.DLNumber, req.ISBN, req.ISSN); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "attributed"})
}

// ReceiveRequest handles POST /api/v1/requests/receive.
func (h *HTTPHandler) ReceiveRequest(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if err := h.requests.MarkReceived(r.Context(), req.ID, user.ID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// CommitteeDecision handles POST /api/v1/requests/committee-decision.
func (h *HTTPHandler) CommitteeDecision(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req struct {
		ID       string  `json:"id"`
		Approved bool    `json:"approved"`
		Comment  *string `json:"comment,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	status, err := h.requests.CommitteeDecision(r.Context(), req.ID, user.ID, req.Approved, req.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// PublishDocument handles POST /api/v1/requests/publish-document.
func (h *HTTPHandler) PublishDocument(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req struct {
		ID   string `json:"id"`
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	url, err := h.requests.PublishDocument(r.Context(), req.ID, user.ID, req.Path)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// GetWorkflow handles GET /api/v1/requests/workflow?id=.
func (h *HTTPHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, apperrors.InvalidInput("id", "request id is required"))
		return
	}

	progress, err := h.workflow.GetProgress(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, progress)
}

// AdvanceStep handles PATCH /api/v1/requests/workflow/steps (admin).
func (h *HTTPHandler) AdvanceStep(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !user.IsAdmin {
		h.writeError(w, apperrors.New(apperrors.CodeUnauthorized, "admin role required"))
		return
	}

	var req struct {
		ID         string                `json:"id"`
		StepNumber int                   `json:"step_number"`
		Status     repository.StepStatus `json:"status"`
		Comments   *string               `json:"comments,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	handlerID := user.ID
	step, err := h.workflow.AdvanceStep(r.Context(), req.ID, req.StepNumber, req.Status, req.Comments, &handlerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, step)
}

// ListParties handles GET /api/v1/requests/parties?id=.
func (h *HTTPHandler) ListParties(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, apperrors.InvalidInput("id", "request id is required"))
		return
	}

	parties, err := h.registry.ListParties(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, parties)
}

// IssueToken handles POST /api/v1/parties/confirmation-tokens.
func (h *HTTPHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PartyID string `json:"party_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	token, err := h.tokens.Issue(r.Context(), req.PartyID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":      token.Token,
		"expires_at": token.ExpiresAt,
	})
}

// Confirm handles POST /api/v1/confirmations/{token}. No authentication:
// the token itself is the credential.
func (h *HTTPHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	tokenStr := strings.TrimPrefix(r.URL.Path, "/api/v1/confirmations/")
	if tokenStr == "" || strings.Contains(tokenStr, "/") {
		h.writeError(w, apperrors.InvalidInput("token", "confirmation token is required"))
		return
	}

	var req struct {
		Decision repository.ApprovalStatus `json:"decision"`
		Comment  *string                   `json:"comment,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	result, err := h.tokens.Redeem(r.Context(), tokenStr, req.Decision, req.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"party_status":   result.Party.Status,
		"request_status": result.RequestStatus,
		"all_approved":   result.Aggregate.AllApproved,
		"any_rejected":   result.Aggregate.AnyRejected,
		"pending_count":  result.Aggregate.PendingCount,
	})
}

// PendingConfirmations handles GET /api/v1/users/pending-confirmations.
func (h *HTTPHandler) PendingConfirmations(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	parties, err := h.registry.GetPendingForUser(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, parties)
}

// ListNotifications handles GET /api/v1/notifications.
func (h *HTTPHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"
	notifications, err := h.notifier.ListInbox(r.Context(), user.ID, unreadOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, notifications)
}

// MarkNotificationRead handles POST /api/v1/notifications/read.
func (h *HTTPHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if err := h.notifier.MarkRead(r.Context(), req.ID, user.ID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// RouteReproduction handles POST /api/v1/reproductions/route.
func (h *HTTPHandler) RouteReproduction(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var in service.ReproductionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	in.UserID = user.ID

	route, err := h.router.RouteReproduction(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, route)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// currentUser resolves the Authorization bearer token to a user.
func (h *HTTPHandler) currentUser(r *http.Request) (*client.User, error) {
	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" || token == auth {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "authentication required")
	}

	user, err := h.identity.GetCurrentUser(r.Context(), token)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnauthorized, "could not resolve user")
	}
	return user, nil
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	h.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(apperrors.CodeOf(err)),
	})
}
