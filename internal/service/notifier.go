package service

import (
	"context"

	"github.com/maktaba-platform/be-legal-deposit/internal/logger"
	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
)

// Notification event types emitted by the engine.
const (
	EventPartyInvited      = "party_invited"
	EventPartyApproved     = "party_approved"
	EventPartyRejected     = "party_rejected"
	EventRequestValidated  = "request_validated"
	EventRequestRejected   = "request_rejected"
	EventNumbersAttributed = "numbers_attributed"
	EventDocumentAvailable = "document_available"
)

// Notifier dispatches user-visible notifications: an inbox row plus a NATS
// event for the messaging service. Both are best-effort: failures are
// logged and never propagated, so a notification outage can never roll back
// a workflow transition.
type Notifier struct {
	store  NotificationStore
	events EventPublisher
	log    *logger.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(store NotificationStore, events EventPublisher, log *logger.Logger) *Notifier {
	return &Notifier{store: store, events: events, log: log}
}

// Notify inserts an inbox notification for a user and publishes the
// matching event. recipientID may be empty (account-less party), in which
// case only the event is published, carrying the recipient email.
func (n *Notifier) Notify(ctx context.Context, recipientID, recipientEmail, eventType, title, message, requestID string, relatedLink *string) {
	if recipientID != "" {
		notification := &repository.Notification{
			RecipientID: recipientID,
			Type:        eventType,
			Title:       title,
			Message:     message,
			RelatedLink: relatedLink,
		}
		if err := n.store.Insert(ctx, notification); err != nil {
			n.log.Warn().Err(err).
				Str("recipient_id", recipientID).
				Str("event_type", eventType).
				Msg("failed to insert notification (non-fatal)")
		}
	}

	recipient := recipientID
	if recipient == "" {
		recipient = recipientEmail
	}
	if recipient == "" {
		return
	}

	payload := map[string]interface{}{"title": title, "message": message}
	if relatedLink != nil {
		payload["link"] = *relatedLink
	}
	n.events.PublishWorkflowEvent(ctx, eventType, requestID, "", []string{recipient}, payload)
}

// ListInbox returns a user's notifications.
func (n *Notifier) ListInbox(ctx context.Context, recipientID string, unreadOnly bool) ([]*repository.Notification, error) {
	return n.store.ListForRecipient(ctx, recipientID, unreadOnly)
}

// MarkRead acknowledges one notification for its recipient.
func (n *Notifier) MarkRead(ctx context.Context, id, recipientID string) error {
	return n.store.MarkRead(ctx, id, recipientID)
}
