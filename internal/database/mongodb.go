package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"llm-task-manager/internal/config"
	"llm-task-manager/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoDBClient wraps the MongoDB client holding tasks and conversation state
type MongoDBClient struct {
	client        *mongo.Client
	database      *mongo.Database
	tasks         *mongo.Collection
	conversations *mongo.Collection
	logger        *zap.Logger
}

// taskDocument is the stored form of a task
type taskDocument struct {
	ID          string    `bson:"_id"`
	Description string    `bson:"description"`
	CreateDate  time.Time `bson:"createDate"`
	DueDate     time.Time `bson:"dueDate"`
	Assignee    string    `bson:"assignee"`
}

// conversationDocument holds a serialised conversation state
type conversationDocument struct {
	Key       string    `bson:"_id"`
	State     string    `bson:"state"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// taskBSONFields maps task fields to document keys
var taskBSONFields = map[models.TaskField]string{
	models.FieldID:          "_id",
	models.FieldDescription: "description",
	models.FieldCreateDate:  "createDate",
	models.FieldDueDate:     "dueDate",
	models.FieldAssignee:    "assignee",
}

// mongoURI builds the connection URI and a variant safe to log
func mongoURI(cfg config.MongoDBConfig) (uri, logURI string) {
	if cfg.URI != "" {
		return cfg.URI, "(configured MONGODB_URI)"
	}
	authSource := cfg.AuthSource
	if authSource == "" {
		authSource = "admin"
	}
	if cfg.Username != "" && cfg.Password != "" {
		// url.UserPassword encodes reserved characters in the credentials
		userInfo := url.UserPassword(cfg.Username, cfg.Password)
		uri = fmt.Sprintf("mongodb://%s@%s:%s/%s?authSource=%s",
			userInfo.String(), cfg.Host, cfg.Port, cfg.Database, url.QueryEscape(authSource))
		logURI = fmt.Sprintf("mongodb://%s:***@%s:%s/%s?authSource=%s",
			url.User(cfg.Username).String(), cfg.Host, cfg.Port, cfg.Database, url.QueryEscape(authSource))
		return uri, logURI
	}
	uri = fmt.Sprintf("mongodb://%s:%s/%s", cfg.Host, cfg.Port, cfg.Database)
	return uri, uri
}

// NewMongoDBClient connects to MongoDB and ensures the collection indexes
func NewMongoDBClient(ctx context.Context, cfg config.MongoDBConfig, logger *zap.Logger) (*MongoDBClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mongodb")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	uri, logURI := mongoURI(cfg)
	logger.Info("connecting to MongoDB", zap.String("uri", logURI))

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB at %s: %w", logURI, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB at %s: %w", logURI, err)
	}

	database := client.Database(cfg.Database)
	c := &MongoDBClient{
		client:        client,
		database:      database,
		tasks:         database.Collection(cfg.TaskCollection),
		conversations: database.Collection(cfg.ConversationCollection),
		logger:        logger,
	}

	indexes := []struct {
		collection *mongo.Collection
		model      mongo.IndexModel
	}{
		{c.tasks, mongo.IndexModel{Keys: bson.D{{Key: "dueDate", Value: 1}}}},
		{c.tasks, mongo.IndexModel{Keys: bson.D{{Key: "assignee", Value: 1}}}},
		{c.conversations, mongo.IndexModel{Keys: bson.D{{Key: "updatedAt", Value: 1}}}},
	}
	for _, idx := range indexes {
		if _, err := idx.collection.Indexes().CreateOne(ctx, idx.model); err != nil {
			// Index might already exist, that's okay
			logger.Warn("index creation", zap.String("collection", idx.collection.Name()), zap.Error(err))
		}
	}

	return c, nil
}

// Close closes the MongoDB client connection
func (c *MongoDBClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}

// Tasks returns the task repository view of the client
func (c *MongoDBClient) Tasks() *MongoTaskRepository {
	return &MongoTaskRepository{collection: c.tasks}
}

// Conversations returns the conversation state view of the client
func (c *MongoDBClient) Conversations() *MongoConversationBlobs {
	return &MongoConversationBlobs{collection: c.conversations}
}

// MongoTaskRepository stores tasks in a MongoDB collection
type MongoTaskRepository struct {
	collection *mongo.Collection
}

// Save replaces or inserts the task by id
func (r *MongoTaskRepository) Save(ctx context.Context, task models.Task) (models.Task, error) {
	doc := toTaskDocument(task)
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return models.Task{}, fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return fromTaskDocument(doc)
}

// RetrieveByID returns the task with id
func (r *MongoTaskRepository) RetrieveByID(ctx context.Context, id uuid.UUID) (models.Task, error) {
	var doc taskDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to retrieve task %s: %w", id, err)
	}
	return fromTaskDocument(doc)
}

// DeleteByID deletes the task with id and returns it
func (r *MongoTaskRepository) DeleteByID(ctx context.Context, id uuid.UUID) (models.Task, error) {
	var doc taskDocument
	err := r.collection.FindOneAndDelete(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return fromTaskDocument(doc)
}

// Find returns tasks matching filter ordered by due date
func (r *MongoTaskRepository) Find(ctx context.Context, filter models.FieldFilter) ([]models.Task, error) {
	query, err := mongoFilter(filter)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "dueDate", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []taskDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	tasks := make([]models.Task, 0, len(docs))
	for _, doc := range docs {
		task, err := fromTaskDocument(doc)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// mongoFilter translates a checked filter into a bson query. Text operands
// are escaped so they only ever match literally.
func mongoFilter(filter models.FieldFilter) (bson.M, error) {
	key, ok := taskBSONFields[filter.Field]
	if !ok {
		return nil, fmt.Errorf("unsupported filter field %q", filter.Field)
	}
	q := filter.Query

	switch {
	case filter.Field == models.FieldID:
		return bson.M{key: q.ID().String()}, nil
	case filter.Field.IsDate():
		switch q.Op() {
		case models.OpEquals:
			return bson.M{key: q.Time()}, nil
		case models.OpBefore:
			return bson.M{key: bson.M{"$lt": q.Time()}}, nil
		case models.OpAfter:
			return bson.M{key: bson.M{"$gt": q.Time()}}, nil
		}
	default:
		literal := regexp.QuoteMeta(q.Text())
		switch q.Op() {
		case models.OpEquals:
			return bson.M{key: bson.M{"$regex": "^" + literal + "$", "$options": "i"}}, nil
		case models.OpContains:
			return bson.M{key: bson.M{"$regex": literal, "$options": "i"}}, nil
		}
	}
	return nil, fmt.Errorf("unsupported operator %q on %s", q.Op(), filter.Field)
}

func toTaskDocument(task models.Task) taskDocument {
	return taskDocument{
		ID:          task.ID.String(),
		Description: task.Description,
		CreateDate:  task.CreateDate.UTC(),
		DueDate:     task.DueDate.UTC(),
		Assignee:    task.Assignee,
	}
}

func fromTaskDocument(doc taskDocument) (models.Task, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return models.Task{}, fmt.Errorf("stored task has invalid id %q: %w", doc.ID, err)
	}
	return models.Task{
		ID:          id,
		Description: doc.Description,
		CreateDate:  doc.CreateDate.UTC(),
		DueDate:     doc.DueDate.UTC(),
		Assignee:    doc.Assignee,
	}, nil
}

// MongoConversationBlobs stores conversation state documents keyed by conversation
type MongoConversationBlobs struct {
	collection *mongo.Collection
}

// LoadConversation returns the stored state for key
func (b *MongoConversationBlobs) LoadConversation(ctx context.Context, key string) ([]byte, error) {
	var doc conversationDocument
	err := b.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", key, err)
	}
	return []byte(doc.State), nil
}

// SaveConversation upserts the state for key
func (b *MongoConversationBlobs) SaveConversation(ctx context.Context, key string, state []byte) error {
	doc := conversationDocument{Key: key, State: string(state), UpdatedAt: time.Now().UTC()}
	opts := options.Update().SetUpsert(true)
	if _, err := b.collection.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": doc}, opts); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", key, err)
	}
	return nil
}

// DeleteConversation removes the state for key
func (b *MongoConversationBlobs) DeleteConversation(ctx context.Context, key string) error {
	if _, err := b.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", key, err)
	}
	return nil
}
