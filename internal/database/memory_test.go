package database

import (
	"context"
	"testing"
	"time"

	"llm-task-manager/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTasks() []models.Task {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return []models.Task{
		{ID: uuid.New(), Description: "write report", CreateDate: base, DueDate: base.AddDate(0, 0, 3), Assignee: "Alice"},
		{ID: uuid.New(), Description: "clean the garage", CreateDate: base, DueDate: base.AddDate(0, 0, 1), Assignee: "Bob"},
		{ID: uuid.New(), Description: "Report review", CreateDate: base, DueDate: base.AddDate(0, 0, 10), Assignee: "alice"},
	}
}

func mustFilter(t *testing.T, field models.TaskField, op models.QueryOp, value string) models.FieldFilter {
	t.Helper()
	f, missing, reasons := models.CheckFilter(models.QueryFilterParams{Field: &field, Op: &op, Value: &value})
	require.Empty(t, missing, reasons)
	return f
}

// exerciseRepository runs the shared repository contract against repo
func exerciseRepository(t *testing.T, repo TaskRepository) {
	ctx := context.Background()
	tasks := sampleTasks()
	for _, task := range tasks {
		saved, err := repo.Save(ctx, task)
		require.NoError(t, err)
		assert.Equal(t, task.ID, saved.ID)
	}

	got, err := repo.RetrieveByID(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, tasks[0].Description, got.Description)
	assert.True(t, tasks[0].DueDate.Equal(got.DueDate))

	updated := tasks[0]
	updated.Assignee = "Carol"
	_, err = repo.Save(ctx, updated)
	require.NoError(t, err)
	got, err = repo.RetrieveByID(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Carol", got.Assignee)

	found, err := repo.Find(ctx, mustFilter(t, models.FieldDescription, models.OpContains, "report"))
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, tasks[0].ID, found[0].ID, "ordered by due date")

	found, err = repo.Find(ctx, mustFilter(t, models.FieldAssignee, models.OpEquals, "ALICE"))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, tasks[2].ID, found[0].ID)

	found, err = repo.Find(ctx, mustFilter(t, models.FieldDueDate, models.OpBefore, "2025-01-03"))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, tasks[1].ID, found[0].ID)

	found, err = repo.Find(ctx, mustFilter(t, models.FieldDescription, models.OpContains, "%' OR 1=1 --"))
	require.NoError(t, err)
	assert.Empty(t, found)

	deleted, err := repo.DeleteByID(ctx, tasks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, tasks[1].Description, deleted.Description)

	_, err = repo.RetrieveByID(ctx, tasks[1].ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = repo.DeleteByID(ctx, tasks[1].ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMemoryTaskRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryTaskRepository())
}

func TestMemoryTaskRepositoryRejectsNilID(t *testing.T) {
	_, err := NewMemoryTaskRepository().Save(context.Background(), models.Task{Description: "x"})
	assert.Error(t, err)
}
