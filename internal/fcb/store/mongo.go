package store

import (
	"context"
	"fmt"
	"time"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the production FCB queue backend: one document per flow_id
// in a single collection, matching the Executor's documented config
// (mongodb_uri, db_name, collection -- spec.md §6.7). It plays the same
// role the teacher's MySQLStore/SQLiteStore play for workflow state
// (graph/store/mysql.go, graph/store/sqlite.go): durable, upsert-by-key,
// safe for multiple executor instances to share.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// mongoDoc is the on-disk shape: {flow_id, state} per spec.md §6.6.
type mongoDoc struct {
	FlowID string             `bson:"flow_id"`
	State  flowtypes.FlowState `bson:"state"`
}

// NewMongoStore connects to uri and returns a store backed by
// db.collection. The collection is created implicitly by MongoDB on first
// write; no explicit schema migration is needed for a document store.
func NewMongoStore(ctx context.Context, uri, db, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo store: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo store: ping: %w", err)
	}

	coll := client.Database(db).Collection(collection)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "flow_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo store: create index: %w", err)
	}

	return &MongoStore{client: client, collection: coll}, nil
}

// Close disconnects the underlying Mongo client.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Save upserts the flow document by flow_id (idempotent, per spec.md
// §4.1's checkpoint contract).
func (m *MongoStore) Save(ctx context.Context, flowID string, state flowtypes.FlowState) error {
	filter := bson.M{"flow_id": flowID}
	update := bson.M{"$set": mongoDoc{FlowID: flowID, State: state}}
	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo store: save %q: %w", flowID, err)
	}
	return nil
}

// Load returns the persisted document for flow_id, or ErrNotFound.
func (m *MongoStore) Load(ctx context.Context, flowID string) (flowtypes.FlowState, error) {
	var doc mongoDoc
	err := m.collection.FindOne(ctx, bson.M{"flow_id": flowID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return flowtypes.FlowState{}, ErrNotFound
	}
	if err != nil {
		return flowtypes.FlowState{}, fmt.Errorf("mongo store: load %q: %w", flowID, err)
	}
	return doc.State, nil
}

// LoadAll iterates every persisted flow document, for recovery on boot
// (spec.md §4.2).
func (m *MongoStore) LoadAll(ctx context.Context) ([]flowtypes.FlowState, error) {
	cur, err := m.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongo store: load all: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []flowtypes.FlowState
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			continue // per-document decode failures are skipped, not fatal to recovery
		}
		out = append(out, doc.State)
	}
	return out, cur.Err()
}

// Delete removes the flow document. Called when the flow reaches STOP.
func (m *MongoStore) Delete(ctx context.Context, flowID string) error {
	_, err := m.collection.DeleteOne(ctx, bson.M{"flow_id": flowID})
	if err != nil {
		return fmt.Errorf("mongo store: delete %q: %w", flowID, err)
	}
	return nil
}
