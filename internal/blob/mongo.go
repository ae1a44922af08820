package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultMongoURI — адрес MongoDB для локального окружения.
const DefaultMongoURI = "mongodb://localhost:27017"

// NewMongoClient подключается к MongoDB и проверяет доступность.
// Вызывающий владеет клиентом и должен вызвать Disconnect.
func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		uri = DefaultMongoURI
	}

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opt := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)
	client, err := mongo.Connect(opt)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// object — документ в коллекции bucket'а.
type object struct {
	Key       string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	Size      int       `bson:"size"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore — blob store поверх MongoDB.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore создаёт хранилище в базе db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

var _ Store = (*MongoStore)(nil)

// Put записывает объект (upsert по _id).
func (s *MongoStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	doc := object{
		Key:       key,
		Data:      data,
		Size:      len(data),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.Collection(bucket).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: key}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Get читает объект.
func (s *MongoStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var doc object
	err := s.db.Collection(bucket).FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return doc.Data, nil
}
