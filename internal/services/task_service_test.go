package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"llm-task-manager/internal/database"
	"llm-task-manager/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestTaskService() *TaskService {
	s := NewTaskService(database.NewMemoryTaskRepository())
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestCreateNewTaskAssignsIdentity(t *testing.T) {
	s := newTestTaskService()
	ctx := context.Background()
	due := time.Date(2025, 3, 2, 17, 0, 0, 0, time.FixedZone("CET", 3600))

	task, err := s.CreateNewTask(ctx, models.NewTaskFields{Description: "write report", DueDate: due, Assignee: "Alice"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, fixedNow, task.CreateDate)
	assert.Equal(t, time.UTC, task.DueDate.Location())
	assert.True(t, due.Equal(task.DueDate))

	stored, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task, stored)
}

func TestModifyExistingTaskKeepsIdentity(t *testing.T) {
	s := newTestTaskService()
	ctx := context.Background()
	task, err := s.CreateNewTask(ctx, models.NewTaskFields{Description: "write report", DueDate: fixedNow, Assignee: "Alice"})
	require.NoError(t, err)

	other := uuid.New()
	otherDate := fixedNow.AddDate(-1, 0, 0)
	modified, err := s.ModifyExistingTask(ctx, task.ID, models.PartialTask{
		ID:         &other,
		CreateDate: &otherDate,
		Assignee:   models.Ptr("Bob"),
	})
	require.NoError(t, err)

	assert.Equal(t, task.ID, modified.ID)
	assert.Equal(t, task.CreateDate, modified.CreateDate)
	assert.Equal(t, "Bob", modified.Assignee)
	assert.Equal(t, "write report", modified.Description)
}

func TestModifyAndDeleteUnknownTask(t *testing.T) {
	s := newTestTaskService()
	ctx := context.Background()

	_, err := s.ModifyExistingTask(ctx, uuid.New(), models.PartialTask{Assignee: models.Ptr("Bob")})
	assert.True(t, errors.Is(err, database.ErrTaskNotFound))

	_, err = s.DeleteExistingTask(ctx, uuid.New())
	assert.True(t, errors.Is(err, database.ErrTaskNotFound))
}

func TestDeleteExistingTaskReturnsDeleted(t *testing.T) {
	s := newTestTaskService()
	ctx := context.Background()
	task, err := s.CreateNewTask(ctx, models.NewTaskFields{Description: "clean", DueDate: fixedNow, Assignee: "Bob"})
	require.NoError(t, err)

	deleted, err := s.DeleteExistingTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task, deleted)

	_, err = s.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, database.ErrTaskNotFound)
}

func TestRetrieveTasksByFilter(t *testing.T) {
	s := newTestTaskService()
	ctx := context.Background()
	for _, name := range []string{"Alice", "Bob", "alice"} {
		_, err := s.CreateNewTask(ctx, models.NewTaskFields{Description: "task for " + name, DueDate: fixedNow, Assignee: name})
		require.NoError(t, err)
	}

	field, op, value := models.FieldAssignee, models.OpEquals, "Alice"
	filter, missing, _ := models.CheckFilter(models.QueryFilterParams{Field: &field, Op: &op, Value: &value})
	require.Empty(t, missing)

	tasks, err := s.RetrieveTasks(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestConcurrentModificationsReleaseLocks(t *testing.T) {
	s := newTestTaskService()
	ctx := context.Background()
	task, err := s.CreateNewTask(ctx, models.NewTaskFields{Description: "shared", DueDate: fixedNow, Assignee: "Alice"})
	require.NoError(t, err)

	names := []string{"Bob", "Carol", "Dan", "Erin"}
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := s.ModifyExistingTask(ctx, task.ID, models.PartialTask{Assignee: models.Ptr(name)})
			assert.NoError(t, err)
		}(names[i%len(names)])
	}
	wg.Wait()

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Contains(t, names, got.Assignee)
	assert.Equal(t, "shared", got.Description)
	assert.Equal(t, 0, s.locks.Len())
}
