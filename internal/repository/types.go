package repository

import "time"

// ── Status enums ─────────────────────────────────────────────────────────────

// RequestStatus is the top-level state of a deposit request. The zero value
// is invalid; requests are always created as StatusDraft.
type RequestStatus string

const (
	StatusDraft              RequestStatus = "brouillon"
	StatusSubmitted          RequestStatus = "soumis"
	StatusAwaitingValidation RequestStatus = "en_attente_validation_b"
	StatusValidated          RequestStatus = "valide_par_b"
	StatusRejected           RequestStatus = "rejete_par_b"
	StatusAwaitingCommittee  RequestStatus = "en_attente_comite_validation"
	StatusCommitteeValidated RequestStatus = "valide_par_comite"
	StatusCommitteeRejected  RequestStatus = "rejete_par_comite"
	StatusInProgress         RequestStatus = "en_cours"
	StatusNumbersAttributed  RequestStatus = "attribue"
	StatusReceived           RequestStatus = "receptionne"
)

// requestTransitions is the complete one-directional transition graph.
// Absent entries (including everything out of terminal states) are illegal.
var requestTransitions = map[RequestStatus][]RequestStatus{
	StatusDraft:              {StatusSubmitted},
	StatusSubmitted:          {StatusAwaitingValidation},
	StatusAwaitingValidation: {StatusValidated, StatusRejected},
	StatusValidated:          {StatusInProgress, StatusAwaitingCommittee},
	StatusAwaitingCommittee:  {StatusCommitteeValidated, StatusCommitteeRejected},
	StatusCommitteeValidated: {StatusInProgress},
	StatusInProgress:         {StatusNumbersAttributed},
	StatusNumbersAttributed:  {StatusReceived},
}

// CanTransition reports whether from → to is an allowed move.
func (s RequestStatus) CanTransition(to RequestStatus) bool {
	for _, next := range requestTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition exists from s.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case StatusReceived, StatusRejected, StatusCommitteeRejected:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusAwaitingValidation,
		StatusValidated, StatusRejected,
		StatusAwaitingCommittee, StatusCommitteeValidated, StatusCommitteeRejected,
		StatusInProgress, StatusNumbersAttributed, StatusReceived:
		return true
	}
	return false
}

// ApprovalStatus is a single party's decision state.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Valid reports whether s is a known approval status.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// StepStatus is the state of one pipeline step.
type StepStatus string

const (
	StepPending    StepStatus = "en_attente"
	StepInProgress StepStatus = "en_cours"
	StepDone       StepStatus = "termine"
)

// Valid reports whether s is a known step status.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepInProgress, StepDone:
		return true
	}
	return false
}

// PartyRole is the approval role a party holds on a request.
type PartyRole string

const (
	RoleEditor   PartyRole = "editor"
	RolePrinter  PartyRole = "printer"
	RoleProducer PartyRole = "producer"
)

// Valid reports whether r is a known role.
func (r PartyRole) Valid() bool {
	switch r {
	case RoleEditor, RolePrinter, RoleProducer:
		return true
	}
	return false
}

// WorkflowType selects the fixed step template for a request.
type WorkflowType string

const (
	WorkflowLegalDeposit     WorkflowType = "legal_deposit"
	WorkflowReproduction     WorkflowType = "reproduction"
	WorkflowManuscriptReview WorkflowType = "manuscript_review"
)

// Valid reports whether t is a known workflow type.
func (t WorkflowType) Valid() bool {
	switch t {
	case WorkflowLegalDeposit, WorkflowReproduction, WorkflowManuscriptReview:
		return true
	}
	return false
}

// ── Domain records ───────────────────────────────────────────────────────────

// DepositRequest is the subject of the workflow.
type DepositRequest struct {
	ID            string
	RequestNumber string
	OwnerID       string
	Title         string
	Author        *string
	SupportType   string // print | electronic
	WorkflowType  WorkflowType
	Status        RequestStatus
	DLNumber      *string
	ISBN          *string
	ISSN          *string
	Metadata      map[string]interface{}
	SubmittedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Party is one person whose approval a request needs.
type Party struct {
	ID          string
	RequestID   string
	UserID      *string // nil until the party creates an account
	Email       string
	Role        PartyRole
	IsInitiator bool
	Status      ApprovalStatus
	Comment     *string
	DecidedAt   *time.Time
	NotifiedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConfirmationToken is a single-use capability letting an unauthenticated
// party decide on exactly one (request, party) pair.
type ConfirmationToken struct {
	ID         string
	PartyID    string
	RequestID  string
	Token      string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Consumed   bool
	ConsumedAt *time.Time
}

// WorkflowStep is one named stage of the administrative pipeline.
type WorkflowStep struct {
	ID          string
	RequestID   string
	StepNumber  int // 1-based, contiguous, fixed at creation
	StepName    string
	Status      StepStatus
	HandlerID   *string // back-office gestionnaire
	Comments    *string
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Notification is a best-effort message to a user's inbox.
type Notification struct {
	ID          string
	RecipientID string
	Type        string
	Title       string
	Message     string
	RelatedLink *string
	Read        bool
	CreatedAt   time.Time
}

// AggregateApproval is the derived approval state of a request's parties.
type AggregateApproval struct {
	AllApproved  bool
	AnyRejected  bool
	PendingCount int
	TotalParties int
}

// WorkflowProgress is the read-only projection over a request's steps.
type WorkflowProgress struct {
	TotalSteps      int
	CompletedSteps  int
	ProgressPercent int
	CurrentStep     *WorkflowStep
	Steps           []*WorkflowStep
}
