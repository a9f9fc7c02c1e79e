package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore — хранилище на SQLite. Файл БД лежит внутри uploads,
// поэтому бэкап каталога забирает и каталог треков целиком.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(file string) (*GormStore, error) {
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return nil, fmt.Errorf("создание директории БД: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)", file)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("подключение БД: %w", err)
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(2 * time.Hour)

	if err := db.AutoMigrate(&User{}, &Track{}, &UsedTrack{}, &Broadcast{}, &BroadcastFile{}); err != nil {
		log.Printf("⚠️ Ошибка AutoMigrate: %v", err)
	}

	log.Println("🔌 БД подключена (WAL).")
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ==========================================
// ПОЛЬЗОВАТЕЛИ
// ==========================================

func (s *GormStore) UpsertUser(ctx context.Context, id int64, username string) error {
	user := User{ID: id, Username: username, JoinedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{"username": username}),
	}).Create(&user).Error
}

func (s *GormStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&User{}).Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := s.db.WithContext(ctx).Order("joined_at asc").Find(&users).Error
	return users, err
}

func (s *GormStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).Count(&count).Error
	return count, err
}

// ==========================================
// КАТАЛОГ ТРЕКОВ
// ==========================================

func (s *GormStore) CreateTrack(ctx context.Context, t *Track) error {
	if t == nil {
		return errors.New("track is nil")
	}
	if t.Points < 1 {
		t.Points = 1
	}
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *GormStore) GetTrack(ctx context.Context, id int64) (*Track, error) {
	var track Track
	if err := s.db.WithContext(ctx).First(&track, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &track, nil
}

func (s *GormStore) UpdateTrack(ctx context.Context, t *Track) error {
	if t == nil {
		return errors.New("track is nil")
	}
	res := s.db.WithContext(ctx).Model(&Track{}).Where("id = ?", t.ID).Updates(map[string]any{
		"title":     t.Title,
		"points":    t.Points,
		"hint":      t.Hint,
		"is_active": t.IsActive,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteTrack(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&Track{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListTracks(ctx context.Context) ([]Track, error) {
	var tracks []Track
	err := s.db.WithContext(ctx).Order("id desc").Find(&tracks).Error
	return tracks, err
}

// ==========================================
// ВЫДАЧА БЕЗ ПОВТОРОВ
// ==========================================

func (s *GormStore) RandomUnseenTrack(ctx context.Context, userID int64) (*Track, error) {
	used := s.db.Model(&UsedTrack{}).Select("track_id").Where("user_id = ?", userID)

	var track Track
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("id NOT IN (?)", used).
		Order("RANDOM()").
		First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

func (s *GormStore) MarkTrackUsed(ctx context.Context, userID, trackID int64) error {
	mark := UsedTrack{UserID: userID, TrackID: trackID}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&mark).Error
}

func (s *GormStore) ClearUsedTracks(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&UsedTrack{}).Error
}

func (s *GormStore) CountUsedTracks(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&UsedTrack{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// ==========================================
// РАССЫЛКИ
// ==========================================

func (s *GormStore) CreateBroadcast(ctx context.Context, b *Broadcast) error {
	if b == nil {
		return errors.New("broadcast is nil")
	}
	return s.db.WithContext(ctx).Create(b).Error
}

func (s *GormStore) GetBroadcast(ctx context.Context, id int64) (*Broadcast, error) {
	var bc Broadcast
	if err := s.db.WithContext(ctx).First(&bc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &bc, nil
}

func (s *GormStore) MarkBroadcastSent(ctx context.Context, id int64) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&Broadcast{}).Where("id = ?", id).Update("sent_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListBroadcasts(ctx context.Context) ([]Broadcast, error) {
	var list []Broadcast
	err := s.db.WithContext(ctx).Order("COALESCE(sent_at, created_at) desc").Find(&list).Error
	return list, err
}

// DeleteBroadcast удаляет рассылку вместе с записями вложений.
// Файлы на диске остаются.
func (s *GormStore) DeleteBroadcast(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("broadcast_id = ?", id).Delete(&BroadcastFile{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Broadcast{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) CreateBroadcastFile(ctx context.Context, f *BroadcastFile) error {
	if f == nil {
		return errors.New("broadcast file is nil")
	}
	if !f.Kind.Valid() {
		return fmt.Errorf("неизвестный тип вложения: %q", f.Kind)
	}
	return s.db.WithContext(ctx).Create(f).Error
}

func (s *GormStore) ListBroadcastFiles(ctx context.Context, broadcastID int64) ([]BroadcastFile, error) {
	var files []BroadcastFile
	err := s.db.WithContext(ctx).Where("broadcast_id = ?", broadcastID).Order("id asc").Find(&files).Error
	return files, err
}
