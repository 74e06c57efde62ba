package predictor

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB database and collection names for model artifacts
const (
	MongoDBName          = "agromarket"
	MongoModelCollection = "model_artifacts"

	// latestDocumentID is the well-known document holding the current model
	latestDocumentID = "latest"
)

// modelDocument is the BSON shape of a persisted model artifact
type modelDocument struct {
	ID        string                     `bson:"_id"`
	Version   string                     `bson:"version"`
	TrainedAt time.Time                  `bson:"trained_at"`
	Params    map[string]CommodityParams `bson:"params"`
	SavedAt   time.Time                  `bson:"saved_at"`
}

// MongoModelStore persists model artifacts in MongoDB Atlas. Each trained
// model is kept under its version id for audit, and the "latest" document is
// overwritten so LoadLatest is a single read.
type MongoModelStore struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoModelStore connects to MongoDB and returns a model store
func NewMongoModelStore(ctx context.Context, uri string) (*MongoModelStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(connectCtx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Println("MongoDB model store connected successfully")
	return &MongoModelStore{
		client:   client,
		database: client.Database(MongoDBName),
	}, nil
}

// Save writes the versioned artifact and overwrites the latest pointer
func (s *MongoModelStore) Save(ctx context.Context, m *Model) error {
	coll := s.database.Collection(MongoModelCollection)
	now := time.Now().UTC()

	versioned := modelDocument{
		ID:        m.Version,
		Version:   m.Version,
		TrainedAt: m.TrainedAt,
		Params:    m.Params,
		SavedAt:   now,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := coll.ReplaceOne(ctx, bson.M{"_id": m.Version}, versioned, opts); err != nil {
		return fmt.Errorf("failed to save model %s: %w", m.Version, err)
	}

	latest := versioned
	latest.ID = latestDocumentID
	if _, err := coll.ReplaceOne(ctx, bson.M{"_id": latestDocumentID}, latest, opts); err != nil {
		return fmt.Errorf("failed to update latest model pointer: %w", err)
	}
	return nil
}

// LoadLatest reads the current model artifact
func (s *MongoModelStore) LoadLatest(ctx context.Context) (*Model, error) {
	coll := s.database.Collection(MongoModelCollection)

	var doc modelDocument
	err := coll.FindOne(ctx, bson.M{"_id": latestDocumentID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNoModel
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest model: %w", err)
	}

	return &Model{
		Version:   doc.Version,
		TrainedAt: doc.TrainedAt,
		Params:    doc.Params,
	}, nil
}

// Close disconnects the underlying MongoDB client
func (s *MongoModelStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
