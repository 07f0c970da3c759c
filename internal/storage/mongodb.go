package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"time"

	"github.com/bosocmputer/statement_ledger/internal/batch"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BatchCollection holds one document per batch, keyed by batch id.
const BatchCollection = "statement_batches"

var tDecimal = reflect.TypeOf(decimal.Decimal{})

// MongoStore persists batches in MongoDB.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects, pings and returns a store on dbName.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri).SetRegistry(NewRegistry())
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Println("✅ Connected to MongoDB successfully!")
	return &MongoStore{
		client:     client,
		collection: client.Database(dbName).Collection(BatchCollection),
	}, nil
}

// Close closes the MongoDB connection.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return err
	}
	log.Println("MongoDB connection closed")
	return nil
}

// SaveBatch upserts the batch document.
func (s *MongoStore) SaveBatch(ctx context.Context, b *batch.Batch) error {
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": b.ID}, b, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save batch %s: %w", b.ID, err)
	}
	return nil
}

// GetBatch loads one batch.
func (s *MongoStore) GetBatch(ctx context.Context, id string) (*batch.Batch, error) {
	var b batch.Batch
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, batch.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query batch: %w", err)
	}
	return &b, nil
}

// ListBatches returns summaries without loading chunk payloads.
func (s *MongoStore) ListBatches(ctx context.Context) ([]batch.Summary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$project", Value: bson.M{
			"filename":   1,
			"state":      1,
			"created_at": 1,
			"updated_at": 1,
			"chunks":     bson.M{"$size": bson.M{"$ifNull": bson.A{"$chunks", bson.A{}}}},
			"merged":     bson.M{"$eq": bson.A{bson.M{"$type": "$session.ledger"}, "object"}},
		}}},
		{{Key: "$sort", Value: bson.M{"updated_at": -1}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer cursor.Close(ctx)

	var out []batch.Summary
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode batches: %w", err)
	}
	return out, nil
}

// DeleteBatch removes one batch.
func (s *MongoStore) DeleteBatch(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	if res.DeletedCount == 0 {
		return batch.ErrNotFound
	}
	return nil
}

// NewRegistry returns the default BSON registry with decimal.Decimal stored
// as its exact string form.
func NewRegistry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(tDecimal, bsoncodec.ValueEncoderFunc(encodeDecimal))
	reg.RegisterTypeDecoder(tDecimal, bsoncodec.ValueDecoderFunc(decodeDecimal))
	return reg
}

func encodeDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tDecimal {
		return bsoncodec.ValueEncoderError{Name: "DecimalEncodeValue", Types: []reflect.Type{tDecimal}, Received: val}
	}
	return vw.WriteString(val.Interface().(decimal.Decimal).String())
}

func decodeDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tDecimal {
		return bsoncodec.ValueDecoderError{Name: "DecimalDecodeValue", Types: []reflect.Type{tDecimal}, Received: val}
	}

	var d decimal.Decimal
	switch vr.Type() {
	case bsontype.String:
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		if d, err = decimal.NewFromString(s); err != nil {
			return fmt.Errorf("decode decimal %q: %w", s, err)
		}
	case bsontype.Double:
		f, err := vr.ReadDouble()
		if err != nil {
			return err
		}
		d = decimal.NewFromFloat(f)
	case bsontype.Int32:
		i, err := vr.ReadInt32()
		if err != nil {
			return err
		}
		d = decimal.NewFromInt32(i)
	case bsontype.Int64:
		i, err := vr.ReadInt64()
		if err != nil {
			return err
		}
		d = decimal.NewFromInt(i)
	case bsontype.Null:
		if err := vr.ReadNull(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("cannot decode %v into decimal", vr.Type())
	}
	val.Set(reflect.ValueOf(d))
	return nil
}
