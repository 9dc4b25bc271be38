package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore maps DocumentStore onto MongoDB collections. Ids are the hex
// form of the generated ObjectID.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// OpenMongoStore connects to uri, waits for a primary and makes sure the
// lookup indexes exist. The client is disconnected again on any failure.
func OpenMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetAppName("cartsync").
		SetServerSelectionTimeout(5*time.Second).
		SetRetryWrites(true))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	store := NewMongoStore(client.Database(database))
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("mongo primary unreachable: %w", err)
	}
	if err := store.CreateIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return store, nil
}

// Close disconnects the underlying client.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.db.Client().Disconnect(ctx)
}

func (m *MongoStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	payload := bson.M{}
	for k, v := range doc {
		if k == FieldID {
			continue
		}
		payload[k] = v
	}

	res, err := m.db.Collection(collection).InsertOne(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (m *MongoStore) Query(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	f, err := toBSONFilter(filter)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Document{}, nil
		}
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := m.db.Collection(collection).Find(ctx, f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(raw))
	for _, r := range raw {
		docs = append(docs, fromBSON(r))
	}
	return docs, nil
}

func (m *MongoStore) Delete(ctx context.Context, collection, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	result, err := m.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStore) Update(ctx context.Context, collection, id string, fields Document) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	set := bson.M{}
	for k, v := range fields {
		if k == FieldID {
			continue
		}
		set[k] = v
	}

	result, err := m.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", collection, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateIndexes adds the lookup indexes the repositories query by.
func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		CollectionOrders: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "idempotencyKey", Value: 1}}},
		},
		CollectionNotifications: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "read", Value: 1}}},
			{Keys: bson.D{{Key: "orderId", Value: 1}}},
		},
		CollectionCart: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "productId", Value: 1}}},
		},
		CollectionStock: {
			{Keys: bson.D{{Key: "productId", Value: 1}, {Key: "color", Value: 1}, {Key: "size", Value: 1}}},
		},
	}

	for collection, models := range indexes {
		if _, err := m.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}

func toBSONFilter(filter Filter) (bson.M, error) {
	f := bson.M{}
	for k, v := range filter {
		if k == FieldID {
			s, ok := v.(string)
			if !ok {
				return nil, ErrNotFound
			}
			oid, err := primitive.ObjectIDFromHex(s)
			if err != nil {
				return nil, ErrNotFound
			}
			f["_id"] = oid
			continue
		}
		f[k] = v
	}
	return f, nil
}

// fromBSON converts driver types into plain Go values so the mapping layer
// sees the same shapes from every backend.
func fromBSON(m bson.M) Document {
	doc := make(Document, len(m))
	for k, v := range m {
		if k == "_id" {
			if oid, ok := v.(primitive.ObjectID); ok {
				doc[FieldID] = oid.Hex()
				continue
			}
			doc[FieldID] = fmt.Sprint(v)
			continue
		}
		doc[k] = normalize(v)
	}
	return doc
}

func normalize(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case bson.M:
		return map[string]any(fromBSON(t))
	case bson.D:
		m := make(bson.M, len(t))
		for _, e := range t {
			m[e.Key] = e.Value
		}
		return map[string]any(fromBSON(m))
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}
