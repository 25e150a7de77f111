package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maktaba-platform/be-legal-deposit/internal/logger"
	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
)

// internalService is the target name reported for requests handled in the
// internal queue.
const internalService = "legal-deposit"

// RouteResult is the routing decision for a submission.
type RouteResult struct {
	TargetService        string `json:"target_service"`
	CreatedInternalQueue bool   `json:"created_internal_queue"`
	RedirectURL          string `json:"redirect_url,omitempty"`
}

// ReproductionInput describes a reproduction request to route.
type ReproductionInput struct {
	ManuscriptID      string `json:"manuscript_id"`
	OwningInstitution string `json:"owning_institution"`
	UserID            string `json:"user_id"`
	Title             string `json:"title"`
}

// ReproductionRoute is the routing decision for a reproduction request.
type ReproductionRoute struct {
	TargetService  string `json:"target_service"`
	RedirectURL    string `json:"redirect_url,omitempty"`
	RequestCreated bool   `json:"request_created"`
	RequestID      string `json:"request_id,omitempty"`
}

// RoutingService decides, at submission and reproduction time, whether a
// request is handled in the internal queue or belongs to a partner
// institution. Decisions are local table lookups: this never calls out to
// a partner system.
type RoutingService struct {
	requests   RequestStore
	notifier   *Notifier
	home       string
	partners   map[string]string
	contactURL string
	log        *logger.Logger
}

// NewRoutingService creates a RoutingService from the static routing data.
func NewRoutingService(
	requests RequestStore,
	notifier *Notifier,
	home string,
	partners map[string]string,
	contactURL string,
	log *logger.Logger,
) *RoutingService {
	return &RoutingService{
		requests:   requests,
		notifier:   notifier,
		home:       home,
		partners:   partners,
		contactURL: contactURL,
		log:        log,
	}
}

// RouteSubmission decides where a submitted request is handled. Content
// owned by the home institution (or with no owner recorded) stays in the
// internal queue; otherwise the requester is pointed at the owning
// partner's portal.
func (s *RoutingService) RouteSubmission(ctx context.Context, requestID string) (*RouteResult, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	institution := s.owningInstitution(req.Metadata)
	if s.isInternal(institution) {
		return &RouteResult{TargetService: internalService, CreatedInternalQueue: true}, nil
	}

	target, redirect := s.partnerTarget(institution)
	link := redirect
	s.notifier.Notify(ctx, req.OwnerID, "", EventRequestValidated,
		"Demande transmise",
		fmt.Sprintf("La demande %s relève de l'institution %s.", req.RequestNumber, institution),
		req.ID, &link)

	return &RouteResult{TargetService: target, RedirectURL: redirect}, nil
}

// RouteReproduction decides where a reproduction request is handled. For
// home-owned content an internal draft request is created; for partner
// content the caller is redirected and no internal record is written.
func (s *RoutingService) RouteReproduction(ctx context.Context, in ReproductionInput) (*ReproductionRoute, error) {
	if !s.isInternal(in.OwningInstitution) {
		target, redirect := s.partnerTarget(in.OwningInstitution)
		s.log.Info().
			Str("manuscript_id", in.ManuscriptID).
			Str("institution", in.OwningInstitution).
			Str("target", target).
			Msg("reproduction request routed externally")
		return &ReproductionRoute{TargetService: target, RedirectURL: redirect}, nil
	}

	title := in.Title
	if title == "" {
		title = fmt.Sprintf("Reproduction %s", in.ManuscriptID)
	}
	req := &repository.DepositRequest{
		RequestNumber: NewRequestNumber("RE"),
		OwnerID:       in.UserID,
		Title:         title,
		SupportType:   "print",
		WorkflowType:  repository.WorkflowReproduction,
		Status:        repository.StatusDraft,
		Metadata: map[string]interface{}{
			"manuscript_id": in.ManuscriptID,
		},
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("manuscript_id", in.ManuscriptID).
		Str("request_id", req.ID).
		Msg("reproduction request created in internal queue")

	return &ReproductionRoute{
		TargetService:  internalService,
		RequestCreated: true,
		RequestID:      req.ID,
	}, nil
}

func (s *RoutingService) isInternal(institution string) bool {
	return institution == "" || strings.EqualFold(institution, s.home)
}

// partnerTarget resolves a non-home institution to its portal URL, falling
// back to the generic contact page for unknown institutions.
func (s *RoutingService) partnerTarget(institution string) (target, redirect string) {
	if url, ok := s.partners[strings.ToUpper(institution)]; ok {
		return "partner:" + strings.ToUpper(institution), url
	}
	return "contact", s.contactURL
}

func (s *RoutingService) owningInstitution(metadata map[string]interface{}) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata["institution"].(string); ok {
		return v
	}
	return ""
}

// NewRequestNumber builds a human-readable request number like
// DL-2026-4F2A7C1B.
func NewRequestNumber(prefix string) string {
	fragment := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().Year(), fragment)
}
