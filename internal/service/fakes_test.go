package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/logger"
	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", ServiceName: "test"})
}

// ── in-memory stores ─────────────────────────────────────────────────────────
//
// The fakes reproduce the conditional-update semantics of the pgx
// repositories: stale transitions and double decisions come back as
// conflicts, missing rows as not-found.

type fakeRequestStore struct {
	mu       sync.Mutex
	requests map[string]*repository.DepositRequest
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{requests: make(map[string]*repository.DepositRequest)}
}

func (s *fakeRequestStore) Create(_ context.Context, req *repository.DepositRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	s.requests[req.ID] = req
	return nil
}

func (s *fakeRequestStore) GetByID(_ context.Context, id string) (*repository.DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, apperrors.NotFound("deposit request", id)
	}
	copied := *req
	return &copied, nil
}

func (s *fakeRequestStore) ListByOwner(_ context.Context, ownerID string) ([]*repository.DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.DepositRequest
	for _, req := range s.requests {
		if req.OwnerID == ownerID {
			copied := *req
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeRequestStore) TransitionStatus(_ context.Context, id string, from, to repository.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return apperrors.NotFound("deposit request", id)
	}
	if req.Status != from {
		return apperrors.Conflict(fmt.Sprintf(
			"invalid transition: request is '%s', cannot move to '%s'", req.Status, to))
	}
	req.Status = to
	if to == repository.StatusSubmitted {
		now := time.Now()
		req.SubmittedAt = &now
	}
	req.UpdatedAt = time.Now()
	return nil
}

func (s *fakeRequestStore) AttributeNumbers(_ context.Context, id string, dlNumber, isbn, issn *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return apperrors.NotFound("deposit request", id)
	}
	if req.Status != repository.StatusInProgress {
		return apperrors.Conflict(fmt.Sprintf(
			"invalid transition: request is '%s', cannot move to '%s'", req.Status, repository.StatusNumbersAttributed))
	}
	req.Status = repository.StatusNumbersAttributed
	req.DLNumber = dlNumber
	req.ISBN = isbn
	req.ISSN = issn
	return nil
}

type fakePartyStore struct {
	mu      sync.Mutex
	parties map[string]*repository.Party
	order   []string
}

func newFakePartyStore() *fakePartyStore {
	return &fakePartyStore{parties: make(map[string]*repository.Party)}
}

func (s *fakePartyStore) Upsert(_ context.Context, parties []*repository.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range parties {
		var existing *repository.Party
		for _, id := range s.order {
			cur := s.parties[id]
			if cur.RequestID == p.RequestID && cur.Role == p.Role && cur.Email == p.Email {
				existing = cur
				break
			}
		}
		if existing != nil {
			existing.UserID = p.UserID
			existing.IsInitiator = p.IsInitiator
			p.ID = existing.ID
			p.Status = existing.Status
			continue
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.CreatedAt = time.Now()
		stored := *p
		s.parties[p.ID] = &stored
		s.order = append(s.order, p.ID)
	}
	return nil
}

func (s *fakePartyStore) GetByID(_ context.Context, id string) (*repository.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[id]
	if !ok {
		return nil, apperrors.NotFound("party", id)
	}
	copied := *p
	return &copied, nil
}

func (s *fakePartyStore) ListByRequest(_ context.Context, requestID string) ([]*repository.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.Party
	for _, id := range s.order {
		if s.parties[id].RequestID == requestID {
			copied := *s.parties[id]
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakePartyStore) GetPendingForUser(_ context.Context, userID string) ([]*repository.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.Party
	for _, id := range s.order {
		p := s.parties[id]
		if p.UserID != nil && *p.UserID == userID && p.Status == repository.ApprovalPending {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakePartyStore) RecordDecision(_ context.Context, id string, decision repository.ApprovalStatus, comment *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[id]
	if !ok {
		return apperrors.NotFound("party", id)
	}
	if p.Status != repository.ApprovalPending {
		return apperrors.Conflict("this confirmation was already processed")
	}
	now := time.Now()
	p.Status = decision
	p.Comment = comment
	p.DecidedAt = &now
	return nil
}

func (s *fakePartyStore) MarkNotified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[id]
	if !ok {
		return apperrors.NotFound("party", id)
	}
	now := time.Now()
	p.NotifiedAt = &now
	return nil
}

type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*repository.ConfirmationToken
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[string]*repository.ConfirmationToken)}
}

func (s *fakeTokenStore) Create(_ context.Context, token *repository.ConfirmationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	token.IssuedAt = time.Now()
	stored := *token
	s.tokens[token.ID] = &stored
	return nil
}

func (s *fakeTokenStore) GetByToken(_ context.Context, tokenStr string) (*repository.ConfirmationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.Token == tokenStr {
			copied := *t
			return &copied, nil
		}
	}
	return nil, apperrors.NotFound("confirmation", tokenStr)
}

func (s *fakeTokenStore) Consume(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return apperrors.NotFound("confirmation", id)
	}
	if t.Consumed {
		return apperrors.Conflict("this confirmation was already processed")
	}
	now := time.Now()
	t.Consumed = true
	t.ConsumedAt = &now
	return nil
}

type fakeStepStore struct {
	mu    sync.Mutex
	steps map[string][]*repository.WorkflowStep
}

func newFakeStepStore() *fakeStepStore {
	return &fakeStepStore{steps: make(map[string][]*repository.WorkflowStep)}
}

func (s *fakeStepStore) CreateSteps(_ context.Context, requestID string, stepNames []string) ([]*repository.WorkflowStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps[requestID]) > 0 {
		return nil, apperrors.Conflict("workflow already exists for this request")
	}
	var out []*repository.WorkflowStep
	for i, name := range stepNames {
		step := &repository.WorkflowStep{
			ID:         uuid.NewString(),
			RequestID:  requestID,
			StepNumber: i + 1,
			StepName:   name,
			Status:     repository.StepPending,
			CreatedAt:  time.Now(),
		}
		s.steps[requestID] = append(s.steps[requestID], step)
		copied := *step
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeStepStore) GetByRequest(_ context.Context, requestID string) ([]*repository.WorkflowStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.WorkflowStep
	for _, step := range s.steps[requestID] {
		copied := *step
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeStepStore) UpdateStep(_ context.Context, requestID string, stepNumber int, status repository.StepStatus, comments, handlerID *string) (*repository.WorkflowStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var target *repository.WorkflowStep
	for _, step := range s.steps[requestID] {
		if step.StepNumber == stepNumber {
			target = step
		}
		if status == repository.StepInProgress &&
			step.StepNumber != stepNumber && step.Status == repository.StepInProgress {
			return nil, apperrors.Conflict("another step is already in progress for this request")
		}
	}
	if target == nil {
		return nil, apperrors.NotFound("workflow step", fmt.Sprintf("%s/%d", requestID, stepNumber))
	}
	target.Status = status
	if comments != nil {
		target.Comments = comments
	}
	if handlerID != nil {
		target.HandlerID = handlerID
	}
	if status == repository.StepDone {
		now := time.Now()
		target.ProcessedAt = &now
	}
	copied := *target
	return &copied, nil
}

func (s *fakeStepStore) CompleteCurrentStep(_ context.Context, requestID string, comment *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, step := range s.steps[requestID] {
		if step.Status == repository.StepInProgress {
			now := time.Now()
			step.Status = repository.StepDone
			step.ProcessedAt = &now
			if comment != nil {
				step.Comments = comment
			}
		}
	}
	return nil
}

type fakeNotificationStore struct {
	mu            sync.Mutex
	notifications []*repository.Notification
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{}
}

func (s *fakeNotificationStore) Insert(_ context.Context, n *repository.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now()
	stored := *n
	s.notifications = append(s.notifications, &stored)
	return nil
}

func (s *fakeNotificationStore) ListForRecipient(_ context.Context, recipientID string, unreadOnly bool) ([]*repository.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.Notification
	for _, n := range s.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		copied := *n
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeNotificationStore) MarkRead(_ context.Context, id, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id && n.RecipientID == recipientID {
			n.Read = true
			return nil
		}
	}
	return apperrors.NotFound("notification", id)
}

type publishedEvent struct {
	eventType  string
	requestID  string
	recipients []string
	payload    map[string]interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) PublishWorkflowEvent(_ context.Context, eventType, requestID, _ string, recipients []string, payload map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{
		eventType:  eventType,
		requestID:  requestID,
		recipients: recipients,
		payload:    payload,
	})
}

func (p *fakePublisher) byType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ── wired environment ────────────────────────────────────────────────────────

type testEnv struct {
	requests      *fakeRequestStore
	parties       *fakePartyStore
	tokens        *fakeTokenStore
	steps         *fakeStepStore
	notifications *fakeNotificationStore
	publisher     *fakePublisher

	notifier *Notifier
	registry *RegistryService
	approval *ApprovalService
	workflow *WorkflowService
	token    *TokenService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		requests:      newFakeRequestStore(),
		parties:       newFakePartyStore(),
		tokens:        newFakeTokenStore(),
		steps:         newFakeStepStore(),
		notifications: newFakeNotificationStore(),
		publisher:     &fakePublisher{},
	}
	log := testLogger()
	data := DefaultWorkflowData()

	env.notifier = NewNotifier(env.notifications, env.publisher, log)
	env.registry = NewRegistryService(env.parties, env.requests, log)
	env.approval = NewApprovalService(env.requests, env.parties, env.steps, env.notifier, data, log)
	env.workflow = NewWorkflowService(env.steps, data, log)
	env.token = NewTokenService(env.tokens, env.parties, env.approval, env.notifier,
		time.Hour, "https://portal.example.org", log)
	return env
}

// seedRequest creates a request directly in the store at a given status.
func (env *testEnv) seedRequest(status repository.RequestStatus, wtype repository.WorkflowType) *repository.DepositRequest {
	req := &repository.DepositRequest{
		RequestNumber: "DL-2026-TEST0001",
		OwnerID:       "owner-1",
		Title:         "Histoire de la typographie",
		SupportType:   "print",
		WorkflowType:  wtype,
		Status:        status,
	}
	_ = env.requests.Create(context.Background(), req)
	return req
}

// seedParty attaches one party directly in the store.
func (env *testEnv) seedParty(requestID string, role repository.PartyRole, email string, initiator bool) *repository.Party {
	p := &repository.Party{
		RequestID:   requestID,
		Email:       email,
		Role:        role,
		IsInitiator: initiator,
		Status:      repository.ApprovalPending,
	}
	_ = env.parties.Upsert(context.Background(), []*repository.Party{p})
	return p
}

// seedSteps instantiates the standard pipeline for a request.
func (env *testEnv) seedSteps(requestID string, names []string) []*repository.WorkflowStep {
	steps, _ := env.steps.CreateSteps(context.Background(), requestID, names)
	return steps
}
