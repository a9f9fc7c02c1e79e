package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore — альтернативный бэкенд хранилища. Автоинкрементные id
// эмулируются через коллекцию counters ($inc + FindOneAndUpdate).
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database

	users      *mongo.Collection
	tracks     *mongo.Collection
	usedTracks *mongo.Collection
	broadcasts *mongo.Collection
	files      *mongo.Collection
	counters   *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("подключение mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client:     client,
		db:         db,
		users:      db.Collection("users"),
		tracks:     db.Collection("tracks"),
		usedTracks: db.Collection("used_tracks"),
		broadcasts: db.Collection("broadcasts"),
		files:      db.Collection("broadcast_files"),
		counters:   db.Collection("counters"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.usedTracks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "track_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("индекс used_tracks: %w", err)
	}
	_, err = s.tracks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "is_active", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("индекс tracks: %w", err)
	}
	_, err = s.files.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "broadcast_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("индекс broadcast_files: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) nextID(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("счетчик %s: %w", name, err)
	}
	return doc.Seq, nil
}

// ==========================================
// ПОЛЬЗОВАТЕЛИ
// ==========================================

func (s *MongoStore) UpsertUser(ctx context.Context, id int64, username string) error {
	_, err := s.users.UpdateByID(ctx, id, bson.M{
		"$set":         bson.M{"username": username},
		"$setOnInsert": bson.M{"joined_at": time.Now()},
	}, options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	cur, err := s.users.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []int64
	for cur.Next(ctx) {
		var u User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		ids = append(ids, u.ID)
	}
	return ids, cur.Err()
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]User, error) {
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *MongoStore) CountUsers(ctx context.Context) (int64, error) {
	return s.users.CountDocuments(ctx, bson.M{})
}

// ==========================================
// КАТАЛОГ ТРЕКОВ
// ==========================================

func (s *MongoStore) CreateTrack(ctx context.Context, t *Track) error {
	if t == nil {
		return errors.New("track is nil")
	}
	if t.Points < 1 {
		t.Points = 1
	}
	if t.ID == 0 {
		id, err := s.nextID(ctx, "tracks")
		if err != nil {
			return err
		}
		t.ID = id
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.tracks.InsertOne(ctx, t)
	return err
}

func (s *MongoStore) GetTrack(ctx context.Context, id int64) (*Track, error) {
	var track Track
	err := s.tracks.FindOne(ctx, bson.M{"_id": id}).Decode(&track)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &track, nil
}

func (s *MongoStore) UpdateTrack(ctx context.Context, t *Track) error {
	if t == nil {
		return errors.New("track is nil")
	}
	res, err := s.tracks.UpdateByID(ctx, t.ID, bson.M{"$set": bson.M{
		"title":     t.Title,
		"points":    t.Points,
		"hint":      t.Hint,
		"is_active": t.IsActive,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteTrack(ctx context.Context, id int64) error {
	res, err := s.tracks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListTracks(ctx context.Context) ([]Track, error) {
	cur, err := s.tracks.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var tracks []Track
	if err := cur.All(ctx, &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// ==========================================
// ВЫДАЧА БЕЗ ПОВТОРОВ
// ==========================================

func (s *MongoStore) RandomUnseenTrack(ctx context.Context, userID int64) (*Track, error) {
	usedCur, err := s.usedTracks.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer usedCur.Close(ctx)

	var used []int64
	for usedCur.Next(ctx) {
		var mark UsedTrack
		if err := usedCur.Decode(&mark); err != nil {
			return nil, err
		}
		used = append(used, mark.TrackID)
	}
	if err := usedCur.Err(); err != nil {
		return nil, err
	}
	if used == nil {
		used = []int64{}
	}

	cur, err := s.tracks.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"is_active": true, "_id": bson.M{"$nin": used}}}},
		{{Key: "$sample", Value: bson.M{"size": 1}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var tracks []Track
	if err := cur.All(ctx, &tracks); err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, nil
	}
	return &tracks[0], nil
}

func (s *MongoStore) MarkTrackUsed(ctx context.Context, userID, trackID int64) error {
	_, err := s.usedTracks.UpdateOne(ctx,
		bson.M{"user_id": userID, "track_id": trackID},
		bson.M{"$setOnInsert": bson.M{"user_id": userID, "track_id": trackID}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) ClearUsedTracks(ctx context.Context, userID int64) error {
	_, err := s.usedTracks.DeleteMany(ctx, bson.M{"user_id": userID})
	return err
}

func (s *MongoStore) CountUsedTracks(ctx context.Context, userID int64) (int64, error) {
	return s.usedTracks.CountDocuments(ctx, bson.M{"user_id": userID})
}

// ==========================================
// РАССЫЛКИ
// ==========================================

func (s *MongoStore) CreateBroadcast(ctx context.Context, b *Broadcast) error {
	if b == nil {
		return errors.New("broadcast is nil")
	}
	if b.ID == 0 {
		id, err := s.nextID(ctx, "broadcasts")
		if err != nil {
			return err
		}
		b.ID = id
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	_, err := s.broadcasts.InsertOne(ctx, b)
	return err
}

func (s *MongoStore) GetBroadcast(ctx context.Context, id int64) (*Broadcast, error) {
	var bc Broadcast
	err := s.broadcasts.FindOne(ctx, bson.M{"_id": id}).Decode(&bc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &bc, nil
}

func (s *MongoStore) MarkBroadcastSent(ctx context.Context, id int64) error {
	now := time.Now()
	res, err := s.broadcasts.UpdateByID(ctx, id, bson.M{"$set": bson.M{"sent_at": now}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListBroadcasts(ctx context.Context) ([]Broadcast, error) {
	cur, err := s.broadcasts.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var list []Broadcast
	if err := cur.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *MongoStore) DeleteBroadcast(ctx context.Context, id int64) error {
	if _, err := s.files.DeleteMany(ctx, bson.M{"broadcast_id": id}); err != nil {
		return err
	}
	res, err := s.broadcasts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) CreateBroadcastFile(ctx context.Context, f *BroadcastFile) error {
	if f == nil {
		return errors.New("broadcast file is nil")
	}
	if !f.Kind.Valid() {
		return fmt.Errorf("неизвестный тип вложения: %q", f.Kind)
	}
	if f.ID == 0 {
		id, err := s.nextID(ctx, "broadcast_files")
		if err != nil {
			return err
		}
		f.ID = id
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := s.files.InsertOne(ctx, f)
	return err
}

func (s *MongoStore) ListBroadcastFiles(ctx context.Context, broadcastID int64) ([]BroadcastFile, error) {
	cur, err := s.files.Find(ctx, bson.M{"broadcast_id": broadcastID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var files []BroadcastFile
	if err := cur.All(ctx, &files); err != nil {
		return nil, err
	}
	return files, nil
}
