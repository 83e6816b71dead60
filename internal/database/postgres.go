package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"llm-task-manager/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// taskColumns maps task fields to their column. Only these names ever reach SQL text.
var taskColumns = map[models.TaskField]string{
	models.FieldID:          "task_id",
	models.FieldDescription: "description",
	models.FieldCreateDate:  "create_date",
	models.FieldDueDate:     "due_date",
	models.FieldAssignee:    "assignee",
}

const selectTaskColumns = "task_id, description, create_date, due_date, assignee"

// PostgresTaskRepository stores tasks in PostgreSQL
type PostgresTaskRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// OpenPostgres opens a pool and applies migrations. An empty dsn falls back to DATABASE_URL.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresTaskRepository, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, errors.New("postgres DSN or DATABASE_URL required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}
	cfg.MaxConns = 20
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	r := &PostgresTaskRepository{pool: pool, logger: logger.Named("postgres")}
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	r.logger.Info("connected to postgres", zap.String("host", cfg.ConnConfig.Host), zap.String("database", cfg.ConnConfig.Database))
	return r, nil
}

// Close closes the pool
func (r *PostgresTaskRepository) Close() {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
}

// Migrate applies the embedded migrations in file name order
func (r *PostgresTaskRepository) Migrate(ctx context.Context) error {
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if !f.IsDir() && strings.HasSuffix(f.Name(), ".sql") {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("migration %s failed: %w", name, err)
		}
	}
	return nil
}

// Save upserts task by id
func (r *PostgresTaskRepository) Save(ctx context.Context, task models.Task) (models.Task, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (task_id, description, create_date, due_date, assignee)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id) DO UPDATE
		SET description = EXCLUDED.description,
		    due_date = EXCLUDED.due_date,
		    assignee = EXCLUDED.assignee
		RETURNING `+selectTaskColumns,
		task.ID, task.Description, task.CreateDate, task.DueDate, task.Assignee)

	saved, err := scanTask(row)
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return saved, nil
}

// RetrieveByID returns the task with id
func (r *PostgresTaskRepository) RetrieveByID(ctx context.Context, id uuid.UUID) (models.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectTaskColumns+` FROM tasks WHERE task_id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to retrieve task %s: %w", id, err)
	}
	return task, nil
}

// DeleteByID deletes the task with id and returns it
func (r *PostgresTaskRepository) DeleteByID(ctx context.Context, id uuid.UUID) (models.Task, error) {
	row := r.pool.QueryRow(ctx, `DELETE FROM tasks WHERE task_id = $1 RETURNING `+selectTaskColumns, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return task, nil
}

// Find returns tasks matching filter ordered by due date
func (r *PostgresTaskRepository) Find(ctx context.Context, filter models.FieldFilter) ([]models.Task, error) {
	where, arg, err := postgresPredicate(filter)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+selectTaskColumns+` FROM tasks WHERE `+where+` ORDER BY due_date, task_id`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// postgresPredicate renders filter as a WHERE clause with a single $1 argument
func postgresPredicate(filter models.FieldFilter) (string, any, error) {
	column, ok := taskColumns[filter.Field]
	if !ok {
		return "", nil, fmt.Errorf("unsupported filter field %q", filter.Field)
	}
	q := filter.Query

	switch {
	case filter.Field == models.FieldID:
		return column + " = $1", q.ID(), nil
	case filter.Field.IsDate():
		switch q.Op() {
		case models.OpEquals:
			return column + " = $1", q.Time(), nil
		case models.OpBefore:
			return column + " < $1", q.Time(), nil
		case models.OpAfter:
			return column + " > $1", q.Time(), nil
		}
	default:
		switch q.Op() {
		case models.OpEquals:
			return "lower(" + column + ") = lower($1)", q.Text(), nil
		case models.OpContains:
			return "strpos(lower(" + column + "), lower($1)) > 0", q.Text(), nil
		}
	}
	return "", nil, fmt.Errorf("unsupported operator %q on %s", q.Op(), filter.Field)
}

func scanTask(row pgx.Row) (models.Task, error) {
	var task models.Task
	if err := row.Scan(&task.ID, &task.Description, &task.CreateDate, &task.DueDate, &task.Assignee); err != nil {
		return models.Task{}, err
	}
	task.CreateDate = task.CreateDate.UTC()
	task.DueDate = task.DueDate.UTC()
	return task, nil
}
