// Package execution routes a resolved (intent, parameters) pair to the task
// operation it names.
package execution

import (
	"context"
	"fmt"
	"strings"

	"llm-task-manager/internal/logging"
	"llm-task-manager/internal/models"
	"llm-task-manager/internal/pipeline"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskDataFlows is the set of task operations the router dispatches to
type TaskDataFlows interface {
	CreateNewTask(ctx context.Context, fields models.NewTaskFields) (models.Task, error)
	ModifyExistingTask(ctx context.Context, id uuid.UUID, changes models.PartialTask) (models.Task, error)
	DeleteExistingTask(ctx context.Context, id uuid.UUID) (models.Task, error)
	RetrieveTasks(ctx context.Context, filter models.FieldFilter) ([]models.Task, error)
}

// SuccessReport describes a completed operation
type SuccessReport struct {
	Intent pipeline.Intent
	Params pipeline.Extraction
	Tasks  []models.Task
}

// Describe renders the report for chat replies
func (r *SuccessReport) Describe() string {
	return fmt.Sprintf("Done || [Intent] %s || [Params] %s || [Outcome] %s ", r.Intent, r.Params, r.outcome())
}

func (r *SuccessReport) outcome() string {
	if len(r.Tasks) == 0 {
		if r.Intent == pipeline.QueryTasks {
			return "no matching tasks"
		}
		return "nothing changed"
	}
	lines := make([]string, 0, len(r.Tasks))
	for _, task := range r.Tasks {
		lines = append(lines, task.String())
	}
	return strings.Join(lines, "; ")
}

// Router dispatches complete parameter sets to TaskDataFlows
type Router struct {
	flows  TaskDataFlows
	logger *zap.Logger
}

// NewRouter creates a router over flows
func NewRouter(flows TaskDataFlows, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{flows: flows, logger: logger.Named("router")}
}

// Resolve pairs intent with the extraction variant carrying its parameters.
// Any pairing other than the four defined ones is InvalidIntentParamPairing
// and never reaches the task store.
func (r *Router) Resolve(ctx context.Context, intent pipeline.Intent, params pipeline.Extraction) (*SuccessReport, error) {
	switch intent {
	case pipeline.CreateNewTask:
		if p, ok := params.(pipeline.CreateParams); ok {
			return r.create(ctx, p)
		}
	case pipeline.ModifyExistingTask:
		if p, ok := params.(pipeline.ModifyParams); ok {
			return r.modify(ctx, p)
		}
	case pipeline.DeleteTask:
		if p, ok := params.(pipeline.DeleteParams); ok {
			return r.delete(ctx, p)
		}
	case pipeline.QueryTasks:
		if p, ok := params.(pipeline.QueryParams); ok {
			return r.query(ctx, p)
		}
	}

	variant := "none"
	if params != nil {
		variant = string(params.Intent())
	}
	r.logger.Error("intent and parameters do not pair",
		logging.Defect(),
		zap.String("intent", string(intent)),
		zap.String("params_variant", variant))
	return nil, &ExecutionError{
		Kind:   InvalidIntentParamPairing,
		Intent: intent,
		Err:    fmt.Errorf("intent %s cannot take %s parameters", intent, variant),
	}
}

func (r *Router) create(ctx context.Context, p pipeline.CreateParams) (*SuccessReport, error) {
	record, missing, _, err := pipeline.CheckComplete(p)
	if err != nil {
		return nil, &ExecutionError{Kind: TaskCreationError, Intent: pipeline.CreateNewTask, Err: err}
	}
	if record == nil {
		return nil, &ExecutionError{
			Kind:   TaskCreationError,
			Intent: pipeline.CreateNewTask,
			Err:    fmt.Errorf("%w: missing %s", ErrIncompleteParams, missing),
		}
	}

	task, err := r.flows.CreateNewTask(ctx, record.(pipeline.CompleteCreate).Fields)
	if err != nil {
		return nil, &ExecutionError{Kind: TaskCreationError, Intent: pipeline.CreateNewTask, Err: err}
	}
	r.logger.Info("task created", zap.String("task_id", task.ID.String()))
	return &SuccessReport{Intent: pipeline.CreateNewTask, Params: p, Tasks: []models.Task{task}}, nil
}

func (r *Router) modify(ctx context.Context, p pipeline.ModifyParams) (*SuccessReport, error) {
	if p.Found.ID == nil {
		return nil, &ExecutionError{Kind: TaskModificationError, Intent: pipeline.ModifyExistingTask, Err: ErrMissingTaskID}
	}
	if !p.Found.HasChanges() {
		return nil, &ExecutionError{
			Kind:   TaskModificationError,
			Intent: pipeline.ModifyExistingTask,
			Err:    fmt.Errorf("%w: missing %s", ErrIncompleteParams, pipeline.SlotFieldsToModify),
		}
	}

	task, err := r.flows.ModifyExistingTask(ctx, *p.Found.ID, p.Found)
	if err != nil {
		return nil, &ExecutionError{Kind: TaskModificationError, Intent: pipeline.ModifyExistingTask, Err: err}
	}
	r.logger.Info("task modified", zap.String("task_id", task.ID.String()))
	return &SuccessReport{Intent: pipeline.ModifyExistingTask, Params: p, Tasks: []models.Task{task}}, nil
}

func (r *Router) delete(ctx context.Context, p pipeline.DeleteParams) (*SuccessReport, error) {
	if p.Found.ID == nil {
		return nil, &ExecutionError{Kind: TaskDeletionError, Intent: pipeline.DeleteTask, Err: ErrMissingTaskID}
	}

	task, err := r.flows.DeleteExistingTask(ctx, *p.Found.ID)
	if err != nil {
		return nil, &ExecutionError{Kind: TaskDeletionError, Intent: pipeline.DeleteTask, Err: err}
	}
	r.logger.Info("task deleted", zap.String("task_id", task.ID.String()))
	return &SuccessReport{Intent: pipeline.DeleteTask, Params: p, Tasks: []models.Task{task}}, nil
}

func (r *Router) query(ctx context.Context, p pipeline.QueryParams) (*SuccessReport, error) {
	filter, missing, reasons := models.CheckFilter(p.Found)
	if len(missing) > 0 {
		detail := "missing " + strings.Join(missing, ", ")
		if len(reasons) > 0 {
			detail += " (" + strings.Join(reasons, "; ") + ")"
		}
		return nil, &ExecutionError{
			Kind:   TaskRetrievalError,
			Intent: pipeline.QueryTasks,
			Err:    fmt.Errorf("%w: %s", ErrIncompleteParams, detail),
		}
	}

	tasks, err := r.flows.RetrieveTasks(ctx, filter)
	if err != nil {
		return nil, &ExecutionError{Kind: TaskRetrievalError, Intent: pipeline.QueryTasks, Err: err}
	}
	r.logger.Info("tasks retrieved", zap.Stringer("filter", filter), zap.Int("count", len(tasks)))
	return &SuccessReport{Intent: pipeline.QueryTasks, Params: p, Tasks: tasks}, nil
}
