package app

import (
	"context"
	"errors"
)

var (
	// ErrNotFound — трек или рассылка с таким id не существует.
	ErrNotFound = errors.New("запись не найдена")
)

// Store — узкий интерфейс хранилища. Две реализации: GormStore (sqlite,
// файл внутри uploads) и MongoStore. Каждый вызов — отдельный стейтмент,
// транзакций поверх нескольких вызовов движки не требуют.
type Store interface {
	// Пользователи
	UpsertUser(ctx context.Context, id int64, username string) error
	ListUserIDs(ctx context.Context) ([]int64, error)
	ListUsers(ctx context.Context) ([]User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Каталог треков
	CreateTrack(ctx context.Context, t *Track) error
	GetTrack(ctx context.Context, id int64) (*Track, error)
	UpdateTrack(ctx context.Context, t *Track) error
	DeleteTrack(ctx context.Context, id int64) error
	ListTracks(ctx context.Context) ([]Track, error)

	// Выдача треков без повторов
	RandomUnseenTrack(ctx context.Context, userID int64) (*Track, error)
	MarkTrackUsed(ctx context.Context, userID, trackID int64) error
	ClearUsedTracks(ctx context.Context, userID int64) error
	CountUsedTracks(ctx context.Context, userID int64) (int64, error)

	// Рассылки
	CreateBroadcast(ctx context.Context, b *Broadcast) error
	GetBroadcast(ctx context.Context, id int64) (*Broadcast, error)
	MarkBroadcastSent(ctx context.Context, id int64) error
	ListBroadcasts(ctx context.Context) ([]Broadcast, error)
	DeleteBroadcast(ctx context.Context, id int64) error
	CreateBroadcastFile(ctx context.Context, f *BroadcastFile) error
	ListBroadcastFiles(ctx context.Context, broadcastID int64) ([]BroadcastFile, error)

	Close() error
}
