package services

import (
	"context"
	"fmt"
	"time"

	"llm-task-manager/internal/database"
	"llm-task-manager/internal/models"
	"llm-task-manager/internal/utils"

	"github.com/google/uuid"
)

// TaskService implements the task data flows over a repository
type TaskService struct {
	repo database.TaskRepository
	now  func() time.Time

	// serialises read-modify-write per task id
	locks utils.KeyedMutex[uuid.UUID]
}

// NewTaskService creates a new task service
func NewTaskService(repo database.TaskRepository) *TaskService {
	return &TaskService{
		repo: repo,
		now:  time.Now,
	}
}

// CreateNewTask assigns a fresh id and creation date and saves the task
func (s *TaskService) CreateNewTask(ctx context.Context, fields models.NewTaskFields) (models.Task, error) {
	task := models.Task{
		ID:          uuid.New(),
		Description: fields.Description,
		CreateDate:  s.now().UTC(),
		DueDate:     fields.DueDate.UTC(),
		Assignee:    fields.Assignee,
	}
	saved, err := s.repo.Save(ctx, task)
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to create task: %w", err)
	}
	return saved, nil
}

// ModifyExistingTask applies the present editable fields of changes to task id
func (s *TaskService) ModifyExistingTask(ctx context.Context, id uuid.UUID, changes models.PartialTask) (models.Task, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	task, err := s.repo.RetrieveByID(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	saved, err := s.repo.Save(ctx, changes.ApplyTo(task))
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to modify task %s: %w", id, err)
	}
	return saved, nil
}

// DeleteExistingTask deletes task id and returns it
func (s *TaskService) DeleteExistingTask(ctx context.Context, id uuid.UUID) (models.Task, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.repo.DeleteByID(ctx, id)
}

// RetrieveTasks returns the tasks matching filter
func (s *TaskService) RetrieveTasks(ctx context.Context, filter models.FieldFilter) ([]models.Task, error) {
	tasks, err := s.repo.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve tasks: %w", err)
	}
	return tasks, nil
}

// GetTask retrieves a task by ID
func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (models.Task, error) {
	return s.repo.RetrieveByID(ctx, id)
}
