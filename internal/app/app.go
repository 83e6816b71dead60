// Package app assembles the task assistant from configuration.
package app

import (
	"context"
	"fmt"

	"llm-task-manager/internal/config"
	"llm-task-manager/internal/database"
	"llm-task-manager/internal/dialogue"
	"llm-task-manager/internal/execution"
	"llm-task-manager/internal/llm"
	"llm-task-manager/internal/pipeline"
	"llm-task-manager/internal/prompts"
	"llm-task-manager/internal/services"
	"llm-task-manager/internal/transcription"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// App holds the wired components shared by the server and the CLI
type App struct {
	Config      *config.Config
	Prompts     *prompts.Catalog
	LLM         *llm.Service
	Classifier  *pipeline.Classifier
	Extractor   *pipeline.Extractor
	TaskService *services.TaskService
	Router      *execution.Router
	Machine     *dialogue.Machine
	Metrics     *services.TurnMetrics
	JWT         *services.JWTService

	closers []func()
	logger  *zap.Logger
}

// Build connects every configured backend. Close releases them.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, logger: logger}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, logger := a.Config, a.logger

	var err error
	a.Prompts, err = prompts.Load(cfg.Prompts.File)
	if err != nil {
		return err
	}

	var influx *services.InfluxService
	if cfg.InfluxDB.URL != "" {
		influx, err = services.NewInfluxService(ctx, cfg.InfluxDB.URL, cfg.InfluxDB.Token, cfg.InfluxDB.Org, cfg.InfluxDB.Bucket, logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, influx.Close)
	}
	a.Metrics = services.NewTurnMetrics(influx, logger)

	a.LLM, err = llm.New(ctx, cfg.LLM, logger,
		llm.WithBasePrompt(a.Prompts.BaseSystemPrompt),
		llm.WithLatencyObserver(a.Metrics.ObserveLLM))
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	a.Classifier = pipeline.NewClassifier(a.LLM, a.Prompts.ClassificationInstruction, logger)
	a.Extractor = pipeline.NewExtractor(a.LLM, a.Prompts.ExtractionInstruction, logger)

	var mongo *database.MongoDBClient
	if cfg.MongoEnabled() {
		mongo, err = database.NewMongoDBClient(ctx, cfg.MongoDB, logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = mongo.Close() })
	}

	repo, err := a.taskRepository(ctx, mongo)
	if err != nil {
		return err
	}
	a.TaskService = services.NewTaskService(repo)
	a.Router = execution.NewRouter(a.TaskService, logger)

	store, err := a.conversationStore(ctx, mongo)
	if err != nil {
		return err
	}

	opts := []dialogue.Option{dialogue.WithTurnRecorder(a.Metrics)}
	if cfg.LLM.OpenAIKey != "" {
		opts = append(opts, dialogue.WithTranscriber(transcription.NewWhisper(cfg.LLM, cfg.Transcription)))
	} else {
		logger.Info("voice turns disabled: transcription needs OPENAI_API_KEY")
	}
	if cfg.S3.Bucket != "" {
		archive, err := services.NewVoiceArchive(ctx, cfg.S3)
		if err != nil {
			return err
		}
		opts = append(opts, dialogue.WithVoiceArchive(archive))
	}
	a.Machine = dialogue.NewMachine(a.Classifier, a.Extractor, a.Router, store, logger, opts...)

	secret := cfg.JWT.Secret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("JWT_SECRET not set, using an ephemeral secret; issued tokens will not survive a restart")
	}
	a.JWT = services.NewJWTService(secret, cfg.JWT.TTL)
	return nil
}

func (a *App) taskRepository(ctx context.Context, mongo *database.MongoDBClient) (database.TaskRepository, error) {
	switch a.Config.Storage.TaskStore {
	case config.StoreMongo:
		return mongo.Tasks(), nil
	case config.StorePostgres:
		pg, err := database.OpenPostgres(ctx, a.Config.Storage.DatabaseURL, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	default:
		a.logger.Warn("using in-memory task store; tasks are lost on restart")
		return database.NewMemoryTaskRepository(), nil
	}
}

func (a *App) conversationStore(ctx context.Context, mongo *database.MongoDBClient) (dialogue.ConversationStore, error) {
	switch a.Config.Storage.ConversationStore {
	case config.StoreMongo:
		return dialogue.NewBlobStore(mongo.Conversations()), nil
	case config.StoreSQLite:
		blobs, err := database.OpenSQLite(ctx, a.Config.Storage.SQLitePath, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = blobs.Close() })
		return dialogue.NewBlobStore(blobs), nil
	default:
		return dialogue.NewMemoryStore(), nil
	}
}

// Close releases backends in reverse order of creation
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
