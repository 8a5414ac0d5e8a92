// Package mongo stores collections in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store wraps one MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects and pings the server.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// EnsureIndexes creates the unique indexes listed in storage.UniqueFields.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for name, fields := range storage.UniqueFields {
		indexes := make([]mongo.IndexModel, 0, len(fields))
		for _, field := range fields {
			indexes = append(indexes, mongo.IndexModel{
				Keys:    bson.D{{Key: field, Value: 1}},
				Options: options.Index().SetUnique(true).SetName(field + "_unique"),
			})
		}
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	_, err := s.db.Collection(models.CollectionLearningPaths).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: models.FieldClassCode, Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create indexes on %s: %w", models.CollectionLearningPaths, err)
	}
	return nil
}

// Collection returns the named collection.
func (s *Store) Collection(name string) storage.Collection {
	return &collection{coll: s.db.Collection(name)}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type collection struct {
	coll *mongo.Collection
}

func (c *collection) InsertOne(ctx context.Context, doc storage.Document) (string, error) {
	res, err := c.coll.InsertOne(ctx, toBSON(doc.Without(models.FieldID)))
	if err != nil {
		return "", mapErr(err)
	}
	return idString(res.InsertedID), nil
}

func (c *collection) InsertMany(ctx context.Context, docs []storage.Document) ([]string, error) {
	batch := make([]any, 0, len(docs))
	for _, doc := range docs {
		batch = append(batch, toBSON(doc.Without(models.FieldID)))
	}
	res, err := c.coll.InsertMany(ctx, batch)
	if err != nil {
		return nil, mapErr(err)
	}
	ids := make([]string, 0, len(res.InsertedIDs))
	for _, id := range res.InsertedIDs {
		ids = append(ids, idString(id))
	}
	return ids, nil
}

func (c *collection) FindOne(ctx context.Context, filter storage.Filter) (storage.Document, error) {
	var raw bson.M
	if err := c.coll.FindOne(ctx, toFilter(filter)).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return fromBSON(raw), nil
}

func (c *collection) FindMany(ctx context.Context, filter storage.Filter) ([]storage.Document, error) {
	cur, err := c.coll.Find(ctx, toFilter(filter))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []storage.Document{}
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, fromBSON(raw))
	}
	return out, cur.Err()
}

func (c *collection) UpdateOne(ctx context.Context, filter storage.Filter, set storage.Document, upsert bool) (storage.UpdateResult, error) {
	update := bson.M{"$set": toBSON(set.Without(models.FieldID))}
	res, err := c.coll.UpdateOne(ctx, toFilter(filter), update, options.UpdateOne().SetUpsert(upsert))
	if err != nil {
		return storage.UpdateResult{}, mapErr(err)
	}
	out := storage.UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}
	if res.UpsertedID != nil {
		out.UpsertedID = idString(res.UpsertedID)
	}
	return out, nil
}

func (c *collection) DeleteOne(ctx context.Context, filter storage.Filter) (int64, error) {
	res, err := c.coll.DeleteOne(ctx, toFilter(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// toFilter translates a storage filter. Ids that are valid hex become ObjectIDs.
func toFilter(filter storage.Filter) bson.M {
	out := bson.M{}
	for k, v := range filter {
		if ne, ok := v.(storage.Ne); ok {
			if k == models.FieldID {
				out[k] = bson.M{"$ne": objectID(ne.Value)}
			} else {
				out[k] = bson.M{"$ne": ne.Value}
			}
			continue
		}
		if k == models.FieldID {
			out[k] = objectID(v)
			continue
		}
		out[k] = v
	}
	return out
}

func objectID(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if oid, err := bson.ObjectIDFromHex(s); err == nil {
		return oid
	}
	return s
}

func idString(v any) string {
	if oid, ok := v.(bson.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(v)
}

func toBSON(doc storage.Document) bson.M {
	return bson.M(doc)
}

func fromBSON(raw bson.M) storage.Document {
	doc := storage.Document{}
	for k, v := range raw {
		doc[k] = normalize(v)
	}
	if id, ok := raw[models.FieldID]; ok {
		doc[models.FieldID] = idString(id)
	}
	return doc
}

// normalize converts driver types into plain JSON-friendly values.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalize(vv)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = normalize(vv)
		}
		return out
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}

func mapErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrAlreadyExists
	}
	return err
}
