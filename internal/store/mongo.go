package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ippclub/repo-catalog/internal/config"
	"github.com/ippclub/repo-catalog/internal/model"
	"github.com/ippclub/repo-catalog/internal/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.uber.org/zap"
)

// mongoRepo is the document layout of a repo in MongoDB
type mongoRepo struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Tagline     string             `bson:"tagline"`
	Category    string             `bson:"category"`
	Stack       []string           `bson:"stack"`
	Stars       int                `bson:"stars"`
	LastUpdated time.Time          `bson:"lastUpdated"`
	IsTopPick   bool               `bson:"isTopPick"`
	GithubURL   string             `bson:"githubUrl"`
	DeepWikiURL string             `bson:"deepWikiUrl"`
}

// MongoStore implements RepoStore using a MongoDB collection
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore connects to MongoDB and returns a store over the configured collection
func NewMongoStore(ctx context.Context, cfg config.Mongo, logger *zap.Logger) (*MongoStore, error) {
	database, err := mongoDatabase(cfg)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("mongodb connected",
		zap.String("database", database),
		zap.String("collection", cfg.Collection),
	)

	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(cfg.Collection),
		logger: logger,
	}, nil
}

// mongoDatabase returns the database named in the connection string, or the
// configured one when the URI has none
func mongoDatabase(cfg config.Mongo) (string, error) {
	cs, err := connstring.ParseAndValidate(cfg.URI)
	if err != nil {
		return "", fmt.Errorf("invalid mongodb uri: %w", err)
	}
	if cs.Database != "" {
		return cs.Database, nil
	}
	return cfg.Database, nil
}

// Close disconnects the client
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Insert inserts a new repo document
func (s *MongoStore) Insert(ctx context.Context, repo model.Repo) (model.Repo, error) {
	doc := toMongo(repo)
	doc.ID = primitive.NewObjectID()
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return model.Repo{}, fmt.Errorf("failed to insert repo: %w", err)
	}
	return fromMongo(doc), nil
}

// InsertMany runs an unordered bulk insert and returns the documents that were written
func (s *MongoStore) InsertMany(ctx context.Context, repos []model.Repo) ([]model.Repo, error) {
	if len(repos) == 0 {
		return []model.Repo{}, nil
	}

	docs := make([]any, len(repos))
	prepared := make([]mongoRepo, len(repos))
	for i, repo := range repos {
		prepared[i] = toMongo(repo)
		prepared[i].ID = primitive.NewObjectID()
		docs[i] = prepared[i]
	}

	_, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	failed := map[int]bool{}
	if err != nil {
		var bulkErr mongo.BulkWriteException
		if !errors.As(err, &bulkErr) || bulkErr.WriteConcernError != nil {
			return nil, fmt.Errorf("failed to insert repos: %w", err)
		}
		for _, we := range bulkErr.WriteErrors {
			failed[we.Index] = true
			s.logger.Warn("skipping bulk candidate",
				zap.Int("index", we.Index),
				zap.String("name", prepared[we.Index].Name),
				zap.String("error", we.Message),
			)
		}
	}

	saved := make([]model.Repo, 0, len(prepared))
	for i, doc := range prepared {
		if !failed[i] {
			saved = append(saved, fromMongo(doc))
		}
	}
	return saved, nil
}

// Find returns the documents matching the spec, sorted and capped
func (s *MongoStore) Find(ctx context.Context, spec query.Spec) ([]model.Repo, error) {
	opts := options.Find().SetSort(mongoSort(spec.Sort))
	if n, ok := spec.Limit.Cap(); ok {
		opts.SetLimit(int64(n))
	}

	cursor, err := s.coll.Find(ctx, mongoFilter(spec.Filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query repos: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoRepo
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode repos: %w", err)
	}

	repos := make([]model.Repo, 0, len(docs))
	for _, doc := range docs {
		repos = append(repos, fromMongo(doc))
	}
	return repos, nil
}

// Count returns the number of documents matching the filter
func (s *MongoStore) Count(ctx context.Context, filter query.Filter) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, mongoFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count repos: %w", err)
	}
	return n, nil
}

// Get gets a repo by identifier. Identifiers that are not ObjectIDs are never found.
func (s *MongoStore) Get(ctx context.Context, id string) (model.Repo, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Repo{}, ErrNotFound
	}

	var doc mongoRepo
	err = s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Repo{}, ErrNotFound
	}
	if err != nil {
		return model.Repo{}, fmt.Errorf("failed to get repo: %w", err)
	}
	return fromMongo(doc), nil
}

// Replace replaces the document and returns its new version
func (s *MongoStore) Replace(ctx context.Context, id string, repo model.Repo) (model.Repo, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Repo{}, ErrNotFound
	}

	doc := toMongo(repo)
	doc.ID = oid

	var updated mongoRepo
	err = s.coll.FindOneAndReplace(ctx,
		bson.D{{Key: "_id", Value: oid}},
		doc,
		options.FindOneAndReplace().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Repo{}, ErrNotFound
	}
	if err != nil {
		return model.Repo{}, fmt.Errorf("failed to replace repo: %w", err)
	}
	return fromMongo(updated), nil
}

// Delete removes a document by identifier
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("failed to delete repo: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DistinctCategories returns every category in use, unordered
func (s *MongoStore) DistinctCategories(ctx context.Context) ([]string, error) {
	values, err := s.coll.Distinct(ctx, "category", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}

	categories := make([]string, 0, len(values))
	for _, v := range values {
		if category, ok := v.(string); ok {
			categories = append(categories, category)
		}
	}
	return categories, nil
}

// mongoFilter renders a filter as a query document; sibling keys are implicitly ANDed
func mongoFilter(filter query.Filter) bson.D {
	doc := bson.D{}
	for _, c := range filter.Clauses {
		switch c := c.(type) {
		case query.CategoryEquals:
			doc = append(doc, bson.E{Key: "category", Value: c.Category})
		case query.TopPickEquals:
			doc = append(doc, bson.E{Key: "isTopPick", Value: c.TopPick})
		case query.TextSearch:
			re := primitive.Regex{Pattern: regexp.QuoteMeta(c.Text), Options: "i"}
			doc = append(doc, bson.E{Key: "$or", Value: bson.A{
				bson.D{{Key: "name", Value: re}},
				bson.D{{Key: "tagline", Value: re}},
				bson.D{{Key: "category", Value: re}},
				bson.D{{Key: "stack", Value: bson.D{{Key: "$in", Value: bson.A{re}}}}},
			}})
		}
	}
	return doc
}

// mongoSort renders a sort order; _id keeps ties in insertion order
func mongoSort(sort query.Sort) bson.D {
	direction := 1
	if sort.Descending {
		direction = -1
	}
	return bson.D{
		{Key: string(sort.Field), Value: direction},
		{Key: "_id", Value: 1},
	}
}

func toMongo(repo model.Repo) mongoRepo {
	stack := repo.Stack
	if stack == nil {
		stack = []string{}
	}
	return mongoRepo{
		Name:        repo.Name,
		Tagline:     repo.Tagline,
		Category:    repo.Category,
		Stack:       stack,
		Stars:       repo.Stars,
		LastUpdated: repo.LastUpdated,
		IsTopPick:   repo.IsTopPick,
		GithubURL:   repo.GithubURL,
		DeepWikiURL: repo.DeepWikiURL,
	}
}

func fromMongo(doc mongoRepo) model.Repo {
	stack := doc.Stack
	if stack == nil {
		stack = []string{}
	}
	return model.Repo{
		ID:          doc.ID.Hex(),
		Name:        doc.Name,
		Tagline:     doc.Tagline,
		Category:    doc.Category,
		Stack:       stack,
		Stars:       doc.Stars,
		LastUpdated: doc.LastUpdated.UTC(),
		IsTopPick:   doc.IsTopPick,
		GithubURL:   doc.GithubURL,
		DeepWikiURL: doc.DeepWikiURL,
	}
}
