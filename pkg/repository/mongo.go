package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/apperrors"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps collections one-to-one onto MongoDB collections.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
	config   *config.MongoDBConfig
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(ctx context.Context, cfg *config.MongoDBConfig) (*MongoStore, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	return &MongoStore{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
	}, nil
}

func (m *MongoStore) Ping(ctx context.Context) error {
	return apperrors.Unavailable("ping", m.client.Ping(ctx, nil))
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func filterDoc(f Filter) bson.M {
	doc := bson.M{}
	if f.ID != nil {
		doc[models.IDField] = *f.ID
	}
	for k, v := range f.Equals {
		doc[k] = v
	}
	if f.Pattern != "" && len(f.PatternFields) > 0 {
		re := primitive.Regex{Pattern: f.Pattern, Options: "i"}
		or := make(bson.A, 0, len(f.PatternFields))
		for _, field := range f.PatternFields {
			or = append(or, bson.M{field: re})
		}
		doc["$or"] = or
	}
	return doc
}

func (m *MongoStore) Find(ctx context.Context, collection string, q Query) ([]models.Record, error) {
	opts := options.Find()
	if q.SortField != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.SortField, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cursor, err := m.database.Collection(collection).Find(ctx, filterDoc(q.Filter), opts)
	if err != nil {
		return nil, apperrors.Unavailable("find "+collection, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, apperrors.Unavailable("find "+collection, err)
	}

	records := make([]models.Record, len(docs))
	for i, d := range docs {
		records[i] = models.Record(d)
	}
	return records, nil
}

func (m *MongoStore) InsertOne(ctx context.Context, collection string, rec models.Record) (primitive.ObjectID, error) {
	doc := bson.M{}
	for k, v := range rec {
		doc[k] = v
	}
	id, ok := rec.ObjectID()
	if !ok {
		id = primitive.NewObjectID()
		doc[models.IDField] = id
	}

	if _, err := m.database.Collection(collection).InsertOne(ctx, doc); err != nil {
		return primitive.NilObjectID, apperrors.Unavailable("insert into "+collection, err)
	}
	return id, nil
}

func (m *MongoStore) UpdateOne(ctx context.Context, collection string, f Filter, set models.Record) (bool, error) {
	fields := bson.M{}
	for k, v := range set {
		if k != models.IDField {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		n, err := m.database.Collection(collection).CountDocuments(ctx, filterDoc(f), options.Count().SetLimit(1))
		if err != nil {
			return false, apperrors.Unavailable("update "+collection, err)
		}
		return n == 1, nil
	}

	res, err := m.database.Collection(collection).UpdateOne(ctx, filterDoc(f), bson.M{"$set": fields})
	if err != nil {
		return false, apperrors.Unavailable("update "+collection, err)
	}
	return res.MatchedCount == 1, nil
}

func (m *MongoStore) IncrementOne(ctx context.Context, collection string, f Filter, field string, delta int64) (bool, error) {
	res, err := m.database.Collection(collection).UpdateOne(ctx, filterDoc(f), bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return false, apperrors.Unavailable("increment "+collection+"."+field, err)
	}
	return res.MatchedCount == 1, nil
}

func (m *MongoStore) DeleteOne(ctx context.Context, collection string, f Filter) (bool, error) {
	res, err := m.database.Collection(collection).DeleteOne(ctx, filterDoc(f))
	if err != nil {
		return false, apperrors.Unavailable("delete from "+collection, err)
	}
	return res.DeletedCount == 1, nil
}

// WithTransaction runs fn in a multi-document transaction. The session
// travels in the context, so store calls made with it join the transaction.
// Requires a replica set or sharded cluster.
func (m *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := m.client.StartSession()
	if err != nil {
		return apperrors.Unavailable("start session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
