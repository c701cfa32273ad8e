package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
)

// eventsCollection: коллекция мероприятий.
const eventsCollection = "events"

// MongoEventRepository: мероприятия в MongoDB.
type MongoEventRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// ConnectMongo подключается к MongoDB, проверяет доступность
// и создаёт индексы коллекции мероприятий.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoEventRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("MongoDB недоступна: %w", err)
	}

	r := NewMongoEventRepository(client, database)
	if err := r.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return r, nil
}

// NewMongoEventRepository создаёт репозиторий поверх подключённого клиента.
func NewMongoEventRepository(client *mongo.Client, database string) *MongoEventRepository {
	return &MongoEventRepository{
		client: client,
		coll:   client.Database(database).Collection(eventsCollection),
		now:    time.Now,
	}
}

// EnsureIndexes создаёт уникальный индекс slug и индекс кандидатов очистки.
func (r *MongoEventRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "uploadSlug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "isFilesDeleted", Value: 1},
				{Key: "storageExpiresAt", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "owner", Value: 1}},
		},
	}

	if _, err := r.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("ошибка создания индексов %s: %w", eventsCollection, err)
	}
	return nil
}

// Ping проверяет доступность MongoDB.
func (r *MongoEventRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Close отключается от MongoDB.
func (r *MongoEventRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Create создаёт мероприятие. Дубликат id или slug → ErrConflict.
func (r *MongoEventRepository) Create(ctx context.Context, e *model.Event) error {
	now := r.now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, e); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: id или uploadSlug уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания мероприятия: %w", err)
	}
	return nil
}

// GetByID возвращает мероприятие по id.
func (r *MongoEventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetBySlug возвращает мероприятие по slug ссылки загрузки.
func (r *MongoEventRepository) GetBySlug(ctx context.Context, slug string) (*model.Event, error) {
	return r.findOne(ctx, bson.M{"uploadSlug": slug})
}

func (r *MongoEventRepository) findOne(ctx context.Context, filter bson.M) (*model.Event, error) {
	var e model.Event
	if err := r.coll.FindOne(ctx, filter).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения мероприятия: %w", err)
	}
	return &e, nil
}

// FindExpiredUncleaned возвращает кандидатов на очистку по (storageExpiresAt, _id),
// строго после after. Документы без поля isFilesDeleted считаются неочищенными.
func (r *MongoEventRepository) FindExpiredUncleaned(ctx context.Context, threshold time.Time, after *model.ExpiryCursor, limit int) ([]model.ExpiredEvent, error) {
	filter := bson.M{
		"storageExpiresAt": bson.M{"$lt": threshold},
		"isFilesDeleted":   bson.M{"$ne": true},
		"storagePrefix":    bson.M{"$nin": bson.A{"", nil}},
	}
	if after != nil {
		filter["$or"] = bson.A{
			bson.M{"storageExpiresAt": bson.M{"$gt": after.ExpiresAt}},
			bson.M{"storageExpiresAt": after.ExpiresAt, "_id": bson.M{"$gt": after.ID}},
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "storageExpiresAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"_id": 1, "storagePrefix": 1, "storageExpiresAt": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска истёкших мероприятий: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID               string    `bson:"_id"`
		StoragePrefix    string    `bson:"storagePrefix"`
		StorageExpiresAt time.Time `bson:"storageExpiresAt"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("ошибка декодирования кандидатов: %w", err)
	}

	result := make([]model.ExpiredEvent, 0, len(docs))
	for _, d := range docs {
		result = append(result, model.ExpiredEvent{
			ID:               d.ID,
			StoragePrefix:    d.StoragePrefix,
			StorageExpiresAt: d.StorageExpiresAt,
		})
	}
	return result, nil
}

// MarkFilesDeleted: условная запись: обновляется только неотмеченный документ.
func (r *MongoEventRepository) MarkFilesDeleted(ctx context.Context, id string) error {
	now := r.now().UTC()
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "isFilesDeleted": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{
			"isFilesDeleted": true,
			"filesDeletedAt": now,
			"updatedAt":      now,
		}},
	)
	if err != nil {
		return fmt.Errorf("ошибка отметки удаления файлов: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("ошибка проверки мероприятия: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrAlreadyMarked
}
