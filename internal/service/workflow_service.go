package service

import (
	"context"
	"fmt"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/logger"
	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
)

// WorkflowService maintains the ordered step pipeline of each request. The
// step template is selected once from the workflow data at creation time;
// afterwards only step statuses, handlers and comments change.
type WorkflowService struct {
	steps StepStore
	data  *WorkflowData
	log   *logger.Logger
}

// NewWorkflowService creates a WorkflowService.
func NewWorkflowService(steps StepStore, data *WorkflowData, log *logger.Logger) *WorkflowService {
	return &WorkflowService{steps: steps, data: data, log: log}
}

// CreateWorkflow instantiates the step list for a request from its workflow
// type's template. Fails with a conflict when steps already exist.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, requestID string, wtype repository.WorkflowType) ([]*repository.WorkflowStep, error) {
	tpl, ok := s.data.Template(wtype)
	if !ok {
		return nil, apperrors.InvalidInput("workflow_type", fmt.Sprintf("no step template for %q", wtype))
	}

	steps, err := s.steps.CreateSteps(ctx, requestID, tpl.Steps)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", requestID).
		Str("workflow_type", string(wtype)).
		Int("total_steps", len(steps)).
		Msg("workflow created")

	return steps, nil
}

// AdvanceStep updates exactly one step. Moving a step to en_cours is
// rejected while another step is running; moving it to termine stamps the
// processed timestamp.
func (s *WorkflowService) AdvanceStep(
	ctx context.Context,
	requestID string,
	stepNumber int,
	status repository.StepStatus,
	comments *string,
	handlerID *string,
) (*repository.WorkflowStep, error) {
	if stepNumber < 1 {
		return nil, apperrors.InvalidInput("step_number", "step numbers start at 1")
	}
	if !status.Valid() {
		return nil, apperrors.InvalidInput("status",
			fmt.Sprintf("unknown step status %q", status))
	}

	step, err := s.steps.UpdateStep(ctx, requestID, stepNumber, status, comments, handlerID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", requestID).
		Int("step_number", stepNumber).
		Str("status", string(status)).
		Msg("workflow step updated")

	return step, nil
}

// GetProgress recomputes the progress projection from the stored step rows.
// The current step is the running one, falling back to the first pending
// step when nothing is running.
func (s *WorkflowService) GetProgress(ctx context.Context, requestID string) (*repository.WorkflowProgress, error) {
	steps, err := s.steps.GetByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, apperrors.NotFound("workflow", requestID)
	}
	return Progress(steps), nil
}

// Progress folds step rows into the progress projection.
func Progress(steps []*repository.WorkflowStep) *repository.WorkflowProgress {
	progress := &repository.WorkflowProgress{
		TotalSteps: len(steps),
		Steps:      steps,
	}

	var firstPending *repository.WorkflowStep
	for _, step := range steps {
		switch step.Status {
		case repository.StepDone:
			progress.CompletedSteps++
		case repository.StepInProgress:
			if progress.CurrentStep == nil {
				progress.CurrentStep = step
			}
		case repository.StepPending:
			if firstPending == nil {
				firstPending = step
			}
		}
	}
	if progress.CurrentStep == nil {
		progress.CurrentStep = firstPending
	}
	if progress.TotalSteps > 0 {
		progress.ProgressPercent = progress.CompletedSteps * 100 / progress.TotalSteps
	}
	return progress
}
