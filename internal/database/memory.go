package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"llm-task-manager/internal/models"

	"github.com/google/uuid"
)

// MemoryTaskRepository keeps tasks in process memory
type MemoryTaskRepository struct {
	tasks map[uuid.UUID]models.Task
	mutex sync.RWMutex
}

// NewMemoryTaskRepository creates an empty in-memory repository
func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{
		tasks: make(map[uuid.UUID]models.Task),
	}
}

// Save stores task, replacing any task with the same id
func (r *MemoryTaskRepository) Save(_ context.Context, task models.Task) (models.Task, error) {
	if task.ID == uuid.Nil {
		return models.Task{}, fmt.Errorf("cannot save task without id")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.tasks[task.ID] = task
	return task, nil
}

// RetrieveByID returns the task with id
func (r *MemoryTaskRepository) RetrieveByID(_ context.Context, id uuid.UUID) (models.Task, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	task, exists := r.tasks[id]
	if !exists {
		return models.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task, nil
}

// DeleteByID removes the task with id and returns it
func (r *MemoryTaskRepository) DeleteByID(_ context.Context, id uuid.UUID) (models.Task, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	task, exists := r.tasks[id]
	if !exists {
		return models.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	delete(r.tasks, id)
	return task, nil
}

// Find returns the tasks matching filter ordered by due date
func (r *MemoryTaskRepository) Find(_ context.Context, filter models.FieldFilter) ([]models.Task, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var matches []models.Task
	for _, task := range r.tasks {
		if filter.Matches(task) {
			matches = append(matches, task)
		}
	}
	sortTasks(matches)
	return matches, nil
}

func sortTasks(tasks []models.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].DueDate.Equal(tasks[j].DueDate) {
			return tasks[i].DueDate.Before(tasks[j].DueDate)
		}
		return tasks[i].ID.String() < tasks[j].ID.String()
	})
}
