package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilianp07/evtrip/core/model"
	"github.com/kilianp07/evtrip/core/trips"
)

// mongoDoc is one vehicle's envelope as stored in the collection.
type mongoDoc struct {
	VehicleID string    `bson:"_id"`
	Rev       int64     `bson:"rev"`
	UpdatedAt time.Time `bson:"updated_at"`
	Envelope  `bson:",inline"`
}

// mutateAttempts bounds how often Mutate retries after losing a revision race.
const mutateAttempts = 16

// ErrConflict is returned when Mutate keeps losing to concurrent writers.
var ErrConflict = errors.New("concurrent trip list update")

// MongoStore persists trip lists in a MongoDB collection, one document per
// vehicle.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection

	afterLoad func()
}

// ConnectMongo connects to uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// NewMongoStore uses the given collection of an already connected client.
func NewMongoStore(client *mongo.Client, database, collection string) *MongoStore {
	return &MongoStore{client: client, collection: client.Database(database).Collection(collection)}
}

func (s *MongoStore) Load(ctx context.Context, vehicleID string) ([]model.Trip, bool, error) {
	var doc mongoDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": vehicleID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	list, err := doc.Envelope.Trips()
	return list, true, err
}

func (s *MongoStore) Save(ctx context.Context, vehicleID string, list []model.Trip) error {
	env := NewEnvelope(vehicleID, list)
	update := bson.M{
		"$set": bson.M{"updated_at": time.Now().UTC(), "version": env.Version, "key": env.Key, "data": env.Data},
		"$inc": bson.M{"rev": 1},
	}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": vehicleID}, update, options.Update().SetUpsert(true))
	return err
}

// Mutate is an optimistic read/modify/write: the replacement only matches the
// revision that was read, and a lost race reloads and calls fn again.
func (s *MongoStore) Mutate(ctx context.Context, vehicleID string, fn trips.MutateFunc) (bool, error) {
	for attempt := 0; attempt < mutateAttempts; attempt++ {
		var doc mongoDoc
		found := true
		err := s.collection.FindOne(ctx, bson.M{"_id": vehicleID}).Decode(&doc)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			found = false
		case err != nil:
			return false, err
		}
		if s.afterLoad != nil {
			s.afterLoad()
		}
		var cur []model.Trip
		if found {
			if cur, err = doc.Envelope.Trips(); err != nil {
				return false, err
			}
		}
		next, changed, err := fn(cur, found)
		if err != nil || !changed {
			return false, err
		}
		repl := mongoDoc{
			VehicleID: vehicleID,
			Rev:       doc.Rev + 1,
			UpdatedAt: time.Now().UTC(),
			Envelope:  NewEnvelope(vehicleID, next),
		}
		if !found {
			_, err := s.collection.InsertOne(ctx, repl)
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return err == nil, err
		}
		res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": vehicleID, "rev": revFilter(doc.Rev)}, repl)
		if err != nil {
			return false, err
		}
		if res.MatchedCount == 1 {
			return true, nil
		}
	}
	return false, fmt.Errorf("%w for vehicle %s", ErrConflict, vehicleID)
}

// revFilter matches rev, treating documents written before revisions existed
// as revision 0.
func revFilter(rev int64) any {
	if rev == 0 {
		return bson.M{"$in": bson.A{0, nil}}
	}
	return rev
}

func (s *MongoStore) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ trips.Mutator = (*MongoStore)(nil)
