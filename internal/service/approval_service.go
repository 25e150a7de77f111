package service

import (
	"context"
	"fmt"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/logger"
	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
)

// ApprovalService derives the aggregate approval state of a request from
// its party rows and drives the request status machine off party decisions.
type ApprovalService struct {
	requests RequestStore
	parties  PartyStore
	steps    StepStore
	notifier *Notifier
	data     *WorkflowData
	log      *logger.Logger
}

// NewApprovalService creates an ApprovalService.
func NewApprovalService(
	requests RequestStore,
	parties PartyStore,
	steps StepStore,
	notifier *Notifier,
	data *WorkflowData,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		requests: requests,
		parties:  parties,
		steps:    steps,
		notifier: notifier,
		data:     data,
		log:      log,
	}
}

// ComputeAggregate derives the request's aggregate approval state. Always a
// fresh read over the party rows, never an incrementally maintained
// counter, so concurrent decisions cannot make it drift.
func (s *ApprovalService) ComputeAggregate(ctx context.Context, requestID string) (*repository.AggregateApproval, error) {
	parties, err := s.parties.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return Aggregate(parties), nil
}

// Aggregate folds party statuses into the aggregate approval state.
// AllApproved is false for an empty party list.
func Aggregate(parties []*repository.Party) *repository.AggregateApproval {
	agg := &repository.AggregateApproval{TotalParties: len(parties)}
	approved := 0
	for _, p := range parties {
		switch p.Status {
		case repository.ApprovalRejected:
			agg.AnyRejected = true
		case repository.ApprovalApproved:
			approved++
		default:
			agg.PendingCount++
		}
	}
	agg.AllApproved = len(parties) > 0 && approved == len(parties)
	return agg
}

// OnPartyDecision is invoked after every party mutation. It recomputes the
// aggregate and applies the decision rules in order:
//  1. any rejection  → request is rejected, current step closed with the
//     rejection comment, initiator notified;
//  2. all approved   → request validated and the next pipeline stage begins
//     (committee review when the workflow type requires it);
//  3. otherwise      → request stays awaiting validation.
//
// Returns the request status after the rules were applied.
func (s *ApprovalService) OnPartyDecision(ctx context.Context, requestID string) (repository.RequestStatus, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return "", err
	}
	if req.Status != repository.StatusAwaitingValidation {
		// Decisions arriving after the request moved on (or was rejected)
		// change nothing at the request level.
		return req.Status, nil
	}

	agg, err := s.ComputeAggregate(ctx, requestID)
	if err != nil {
		return "", err
	}

	switch {
	case agg.AnyRejected:
		if err := s.transitionIdempotent(ctx, requestID,
			repository.StatusAwaitingValidation, repository.StatusRejected); err != nil {
			return "", err
		}
		comment := "demande rejetee par un intervenant"
		if err := s.steps.CompleteCurrentStep(ctx, requestID, &comment); err != nil {
			return "", err
		}
		s.notifyOwner(ctx, req, EventRequestRejected,
			"Demande rejetée",
			fmt.Sprintf("La demande %s a été rejetée par un intervenant.", req.RequestNumber))
		return repository.StatusRejected, nil

	case agg.AllApproved:
		if err := s.transitionIdempotent(ctx, requestID,
			repository.StatusAwaitingValidation, repository.StatusValidated); err != nil {
			return "", err
		}
		next, err := s.beginPipeline(ctx, req)
		if err != nil {
			return "", err
		}
		s.notifyOwner(ctx, req, EventRequestValidated,
			"Demande validée",
			fmt.Sprintf("Tous les intervenants ont validé la demande %s.", req.RequestNumber))
		return next, nil

	default:
		return repository.StatusAwaitingValidation, nil
	}
}

// beginPipeline moves a freshly validated request into its administrative
// pipeline: committee review when the workflow type requires it, otherwise
// straight to en_cours with the first step running.
func (s *ApprovalService) beginPipeline(ctx context.Context, req *repository.DepositRequest) (repository.RequestStatus, error) {
	tpl, ok := s.data.Template(req.WorkflowType)
	if ok && tpl.RequiresCommittee {
		if err := s.transitionIdempotent(ctx, req.ID,
			repository.StatusValidated, repository.StatusAwaitingCommittee); err != nil {
			return "", err
		}
		return repository.StatusAwaitingCommittee, nil
	}

	if err := s.transitionIdempotent(ctx, req.ID,
		repository.StatusValidated, repository.StatusInProgress); err != nil {
		return "", err
	}
	if _, err := s.steps.UpdateStep(ctx, req.ID, 1, repository.StepInProgress, nil, nil); err != nil {
		// The pipeline start is best-effort here: the step may already be
		// running if a concurrent decision won the race.
		if apperrors.CodeOf(err) != apperrors.CodeConflict {
			return "", err
		}
	}
	return repository.StatusInProgress, nil
}

// Transition applies one explicit status move with conflict detection.
// Out-of-order attempts fail naming the current and attempted states.
func (s *ApprovalService) Transition(ctx context.Context, requestID string, from, to repository.RequestStatus) error {
	if !from.CanTransition(to) {
		return apperrors.Conflict(fmt.Sprintf(
			"invalid transition: request is '%s', cannot move to '%s'", from, to))
	}
	return s.requests.TransitionStatus(ctx, requestID, from, to)
}

// transitionIdempotent applies a transition but treats "already at the
// target state" as success, so concurrent aggregate recomputations converge
// instead of failing the later writer.
func (s *ApprovalService) transitionIdempotent(ctx context.Context, requestID string, from, to repository.RequestStatus) error {
	err := s.requests.TransitionStatus(ctx, requestID, from, to)
	if err == nil {
		return nil
	}
	if apperrors.CodeOf(err) == apperrors.CodeConflict {
		current, getErr := s.requests.GetByID(ctx, requestID)
		if getErr == nil && current.Status == to {
			return nil
		}
	}
	return err
}

func (s *ApprovalService) notifyOwner(ctx context.Context, req *repository.DepositRequest, eventType, title, message string) {
	s.notifier.Notify(ctx, req.OwnerID, "", eventType, title, message, req.ID, nil)
}
