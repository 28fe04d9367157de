package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoIDField     = "_id"
	mongoParentField = "_parent"
)

var mongoOps = map[Op]string{
	Eq:  "$eq",
	Lt:  "$lt",
	Lte: "$lte",
	Gt:  "$gt",
	Gte: "$gte",
}

// Mongo maps the hierarchical layout onto MongoDB. Each leaf collection name
// becomes one Mongo collection and the parent document path is kept in the
// _parent field, so users/u1/batches/b7/students lands in "students" with
// _parent = "users/u1/batches/b7".
type Mongo struct {
	db *mongo.Database
}

// NewMongo wraps a database handle.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

// EnsureIndexes creates the (_parent, field) indexes the attendance queries
// rely on. Safe to call on every start.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]string{
		"students":              {"macAddress"},
		"schedules":             {"dayOfWeek", "isActive"},
		"pending_verifications": {"studentEnrollment", "scheduleId", "status"},
	}
	for coll, fields := range specs {
		keys := bson.D{{Key: mongoParentField, Value: 1}}
		for _, f := range fields {
			keys = append(keys, bson.E{Key: f, Value: 1})
		}
		if _, err := s.db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys}); err != nil {
			return fmt.Errorf("create index on %s: %w", coll, err)
		}
	}
	return nil
}

// Get returns the document at path.
func (s *Mongo) Get(ctx context.Context, path string) (Document, error) {
	coll, id, err := Split(path)
	if err != nil {
		return Document{}, err
	}
	parent, name := parentOf(coll)
	var raw bson.M
	err = s.db.Collection(name).FindOne(ctx, bson.M{mongoIDField: id, mongoParentField: parent}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return fromBSON(coll, raw), nil
}

// Query returns every document of collection matching all filters, sorted
// by id.
func (s *Mongo) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	parent, name := parentOf(collection)
	q := bson.M{mongoParentField: parent}
	for _, f := range filters {
		op, ok := mongoOps[f.Op]
		if !ok {
			return nil, fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
		cond, _ := q[f.Field].(bson.M)
		if cond == nil {
			cond = bson.M{}
		}
		cond[op] = f.Value
		q[f.Field] = cond
	}
	opts := options.Find().SetSort(bson.D{{Key: mongoIDField, Value: 1}})
	cursor, err := s.db.Collection(name).Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(raws))
	for _, raw := range raws {
		out = append(out, fromBSON(collection, raw))
	}
	return out, nil
}

// Add inserts data under a generated id.
func (s *Mongo) Add(ctx context.Context, collection string, data Fields) (string, error) {
	parent, name := parentOf(collection)
	id := uuid.NewString()
	doc := bson.M{mongoIDField: id, mongoParentField: parent}
	for k, v := range resolve(data, time.Now().UTC()) {
		doc[k] = v
	}
	if _, err := s.db.Collection(name).InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Update sets the given fields on the document at path.
func (s *Mongo) Update(ctx context.Context, path string, data Fields) error {
	coll, id, err := Split(path)
	if err != nil {
		return err
	}
	parent, name := parentOf(coll)
	res, err := s.db.Collection(name).UpdateOne(ctx,
		bson.M{mongoIDField: id, mongoParentField: parent},
		bson.M{"$set": bson.M(resolve(data, time.Now().UTC()))},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func fromBSON(collection string, raw bson.M) Document {
	id, _ := raw[mongoIDField].(string)
	data := make(Fields, len(raw))
	for k, v := range raw {
		if k == mongoIDField || k == mongoParentField {
			continue
		}
		if dt, ok := v.(primitive.DateTime); ok {
			data[k] = dt.Time()
			continue
		}
		data[k] = v
	}
	return Document{ID: id, Path: Join(collection, id), Data: data}
}
