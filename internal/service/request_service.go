package service

import (
	"context"
	"fmt"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/client"
	"github.com/maktaba-platform/be-legal-deposit/internal/logger"
	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
)

// EventRequestReceived supplements the core event list for closure of the
// deposit loop.
const EventRequestReceived = "request_received"

// CreateRequestInput is the payload for opening a draft request.
type CreateRequestInput struct {
	OwnerID      string                  `json:"-"`
	Title        string                  `json:"title"`
	Author       *string                 `json:"author,omitempty"`
	SupportType  string                  `json:"support_type"`
	WorkflowType repository.WorkflowType `json:"workflow_type"`
	Metadata     map[string]interface{}  `json:"metadata,omitempty"`
}

// SubmitResult is returned from a submission.
type SubmitResult struct {
	Request *repository.DepositRequest `json:"request"`
	Route   *RouteResult               `json:"route"`
	Parties []*repository.Party        `json:"parties,omitempty"`
	Steps   []*repository.WorkflowStep `json:"steps,omitempty"`
}

// RequestService orchestrates the deposit request lifecycle from draft to
// reception, delegating to the registry, workflow, token, routing and
// approval services.
type RequestService struct {
	requests RequestStore
	steps    StepStore
	registry *RegistryService
	workflow *WorkflowService
	tokens   *TokenService
	router   *RoutingService
	notifier *Notifier
	identity client.IdentityClientInterface
	storage  client.StorageClientInterface
	log      *logger.Logger
}

// NewRequestService creates a RequestService.
func NewRequestService(
	requests RequestStore,
	steps StepStore,
	registry *RegistryService,
	workflow *WorkflowService,
	tokens *TokenService,
	router *RoutingService,
	notifier *Notifier,
	identity client.IdentityClientInterface,
	storage client.StorageClientInterface,
	log *logger.Logger,
) *RequestService {
	return &RequestService{
		requests: requests,
		steps:    steps,
		registry: registry,
		workflow: workflow,
		tokens:   tokens,
		router:   router,
		notifier: notifier,
		identity: identity,
		storage:  storage,
		log:      log,
	}
}

// Create opens a new draft request owned by its initiator.
func (s *RequestService) Create(ctx context.Context, in *CreateRequestInput) (*repository.DepositRequest, error) {
	if in.Title == "" {
		return nil, apperrors.InvalidInput("title", "title is required")
	}
	if in.SupportType != "print" && in.SupportType != "electronic" {
		return nil, apperrors.InvalidInput("support_type", "expected 'print' or 'electronic'")
	}
	if in.WorkflowType == "" {
		in.WorkflowType = repository.WorkflowLegalDeposit
	}
	if !in.WorkflowType.Valid() {
		return nil, apperrors.InvalidInput("workflow_type",
			fmt.Sprintf("unknown workflow type %q", in.WorkflowType))
	}

	req := &repository.DepositRequest{
		RequestNumber: NewRequestNumber("DL"),
		OwnerID:       in.OwnerID,
		Title:         in.Title,
		Author:        in.Author,
		SupportType:   in.SupportType,
		WorkflowType:  in.WorkflowType,
		Status:        repository.StatusDraft,
		Metadata:      in.Metadata,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("request_number", req.RequestNumber).
		Str("workflow_type", string(req.WorkflowType)).
		Msg("deposit request created")

	return req, nil
}

// Get returns one request.
func (s *RequestService) Get(ctx context.Context, id string) (*repository.DepositRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// ListForOwner returns all requests a user opened.
func (s *RequestService) ListForOwner(ctx context.Context, ownerID string) ([]*repository.DepositRequest, error) {
	return s.requests.ListByOwner(ctx, ownerID)
}

// Submit moves a draft into the approval pipeline: the router decides
// internal vs partner handling; for internal requests the parties are
// attached, the step pipeline is created and confirmation tokens go out.
func (s *RequestService) Submit(ctx context.Context, requestID, userID string, parties []PartyInput) (*SubmitResult, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != userID {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "only the request owner can submit it")
	}

	if err := s.requests.TransitionStatus(ctx, requestID,
		repository.StatusDraft, repository.StatusSubmitted); err != nil {
		return nil, err
	}

	route, err := s.router.RouteSubmission(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !route.CreatedInternalQueue {
		// The partner institution owns the request from here; no internal
		// pipeline is created.
		req, err = s.requests.GetByID(ctx, requestID)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Request: req, Route: route}, nil
	}

	if err := s.requests.TransitionStatus(ctx, requestID,
		repository.StatusSubmitted, repository.StatusAwaitingValidation); err != nil {
		return nil, err
	}

	attached, err := s.registry.AttachParties(ctx, requestID, parties)
	if err != nil {
		return nil, err
	}
	steps, err := s.workflow.CreateWorkflow(ctx, requestID, req.WorkflowType)
	if err != nil {
		return nil, err
	}

	for _, party := range attached {
		if _, err := s.tokens.Issue(ctx, party.ID); err != nil {
			// Invitations are at-least-once: a failed issue can be retried
			// through the token endpoint without blocking submission.
			s.log.Warn().Err(err).
				Str("party_id", party.ID).
				Msg("failed to issue confirmation token at submission")
		}
	}

	req, err = s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Request: req, Route: route, Parties: attached, Steps: steps}, nil
}

// AttributeNumbers stamps the DL/ISBN/ISSN numbers (admin only) and
// notifies the owner.
func (s *RequestService) AttributeNumbers(ctx context.Context, requestID, adminID string, dlNumber, isbn, issn *string) error {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}
	if dlNumber == nil && isbn == nil && issn == nil {
		return apperrors.InvalidInput("numbers", "at least one of dl_number, isbn or issn is required")
	}

	if err := s.requests.AttributeNumbers(ctx, requestID, dlNumber, isbn, issn); err != nil {
		return err
	}
	comment := "numeros attribues"
	if err := s.steps.CompleteCurrentStep(ctx, requestID, &comment); err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID).Msg("failed to close step after attribution")
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, req.OwnerID, "", EventNumbersAttributed,
		"Numéros attribués",
		fmt.Sprintf("Les numéros de la demande %s ont été attribués.", req.RequestNumber),
		req.ID, nil)
	return nil
}

// MarkReceived closes the request once the deposited copies arrive (admin only).
func (s *RequestService) MarkReceived(ctx context.Context, requestID, adminID string) error {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}

	if err := s.requests.TransitionStatus(ctx, requestID,
		repository.StatusNumbersAttributed, repository.StatusReceived); err != nil {
		return err
	}
	comment := "exemplaires receptionnes"
	if err := s.steps.CompleteCurrentStep(ctx, requestID, &comment); err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID).Msg("failed to close step after reception")
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, req.OwnerID, "", EventRequestReceived,
		"Demande clôturée",
		fmt.Sprintf("La demande %s est réceptionnée et clôturée.", req.RequestNumber),
		req.ID, nil)
	return nil
}

// CommitteeDecision records the validation committee's verdict for request
// types that require one (admin only).
func (s *RequestService) CommitteeDecision(ctx context.Context, requestID, adminID string, approved bool, comment *string) (repository.RequestStatus, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return "", err
	}

	if !approved {
		if err := s.requests.TransitionStatus(ctx, requestID,
			repository.StatusAwaitingCommittee, repository.StatusCommitteeRejected); err != nil {
			return "", err
		}
		if err := s.steps.CompleteCurrentStep(ctx, requestID, comment); err != nil {
			s.log.Warn().Err(err).Str("request_id", requestID).Msg("failed to close step after committee rejection")
		}
		s.notifyDecision(ctx, requestID, EventRequestRejected, "Demande rejetée par le comité")
		return repository.StatusCommitteeRejected, nil
	}

	if err := s.requests.TransitionStatus(ctx, requestID,
		repository.StatusAwaitingCommittee, repository.StatusCommitteeValidated); err != nil {
		return "", err
	}
	if err := s.requests.TransitionStatus(ctx, requestID,
		repository.StatusCommitteeValidated, repository.StatusInProgress); err != nil {
		return "", err
	}
	if _, err := s.steps.UpdateStep(ctx, requestID, 1, repository.StepInProgress, nil, nil); err != nil {
		if apperrors.CodeOf(err) != apperrors.CodeConflict {
			return "", err
		}
	}
	s.notifyDecision(ctx, requestID, EventRequestValidated, "Demande validée par le comité")
	return repository.StatusInProgress, nil
}

// PublishDocument resolves a stored document path to a URL and notifies the
// owner it is available (admin only). The engine never touches file bytes.
func (s *RequestService) PublishDocument(ctx context.Context, requestID, adminID, storagePath string) (string, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return "", err
	}
	if storagePath == "" {
		return "", apperrors.InvalidInput("path", "storage path is required")
	}

	url, err := s.storage.ResolveURL(ctx, storagePath)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "failed to resolve document URL")
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return "", err
	}
	s.notifier.Notify(ctx, req.OwnerID, "", EventDocumentAvailable,
		"Document disponible",
		fmt.Sprintf("Un document de la demande %s est disponible.", req.RequestNumber),
		req.ID, &url)
	return url, nil
}

func (s *RequestService) requireAdmin(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.New(apperrors.CodeUnauthorized, "authentication required")
	}
	isAdmin, err := s.identity.IsAdmin(ctx, userID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to check admin role")
	}
	if !isAdmin {
		return apperrors.New(apperrors.CodeUnauthorized, "admin role required")
	}
	return nil
}

func (s *RequestService) notifyDecision(ctx context.Context, requestID, eventType, title string) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID).Msg("failed to load request for notification")
		return
	}
	s.notifier.Notify(ctx, req.OwnerID, "", eventType, title,
		fmt.Sprintf("Demande %s: %s.", req.RequestNumber, title), req.ID, nil)
}
