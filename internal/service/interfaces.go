package service

import (
	"context"

	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
)

// Store interfaces are the narrow slices of the repository layer each
// service consumes. The concrete pgx repositories satisfy them; tests use
// in-memory fakes.

// RequestStore persists deposit requests.
type RequestStore interface {
	Create(ctx context.Context, req *repository.DepositRequest) error
	GetByID(ctx context.Context, id string) (*repository.DepositRequest, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*repository.DepositRequest, error)
	TransitionStatus(ctx context.Context, id string, from, to repository.RequestStatus) error
	AttributeNumbers(ctx context.Context, id string, dlNumber, isbn, issn *string) error
}

// PartyStore persists request parties.
type PartyStore interface {
	Upsert(ctx context.Context, parties []*repository.Party) error
	GetByID(ctx context.Context, id string) (*repository.Party, error)
	ListByRequest(ctx context.Context, requestID string) ([]*repository.Party, error)
	GetPendingForUser(ctx context.Context, userID string) ([]*repository.Party, error)
	RecordDecision(ctx context.Context, id string, decision repository.ApprovalStatus, comment *string) error
	MarkNotified(ctx context.Context, id string) error
}

// TokenStore persists confirmation tokens.
type TokenStore interface {
	Create(ctx context.Context, token *repository.ConfirmationToken) error
	GetByToken(ctx context.Context, token string) (*repository.ConfirmationToken, error)
	Consume(ctx context.Context, id string) error
}

// StepStore persists workflow steps.
type StepStore interface {
	CreateSteps(ctx context.Context, requestID string, stepNames []string) ([]*repository.WorkflowStep, error)
	GetByRequest(ctx context.Context, requestID string) ([]*repository.WorkflowStep, error)
	UpdateStep(ctx context.Context, requestID string, stepNumber int, status repository.StepStatus, comments, handlerID *string) (*repository.WorkflowStep, error)
	CompleteCurrentStep(ctx context.Context, requestID string, comment *string) error
}

// NotificationStore persists inbox notifications.
type NotificationStore interface {
	Insert(ctx context.Context, n *repository.Notification) error
	ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]*repository.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) error
}

// EventPublisher fans workflow events out to the platform messaging service.
type EventPublisher interface {
	PublishWorkflowEvent(ctx context.Context, eventType, requestID, actorID string, recipients []string, payload map[string]interface{})
}
