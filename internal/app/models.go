package app

import (
	"time"
)

// ==========================================
// МОДЕЛИ ДАННЫХ
// ==========================================

// User — игрок, с которым бот хоть раз разговаривал.
// Запись никогда не удаляется, username обновляется при каждом контакте.
type User struct {
	ID       int64     `json:"id" gorm:"primaryKey" bson:"_id"`
	Username string    `json:"username" gorm:"size:255" bson:"username"`
	JoinedAt time.Time `json:"joined_at" gorm:"autoCreateTime" bson:"joined_at"`
}

// Track — песня из каталога испытания.
type Track struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement" bson:"_id"`
	Title     string    `json:"title" gorm:"size:255;not null" bson:"title"`
	Points    int       `json:"points" gorm:"not null;default:1" bson:"points"`
	Hint      string    `json:"hint" gorm:"type:text" bson:"hint"`
	IsActive  bool      `json:"is_active" gorm:"default:true;index" bson:"is_active"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime" bson:"created_at"`
}

// UsedTrack — отметка "этот трек пользователю уже показывали".
// Пара (user, track) уникальна.
type UsedTrack struct {
	UserID  int64 `json:"user_id" gorm:"primaryKey;autoIncrement:false" bson:"user_id"`
	TrackID int64 `json:"track_id" gorm:"primaryKey;autoIncrement:false" bson:"track_id"`
}

// Broadcast — рассылка из админки. SentAt проставляется после обхода
// всех адресатов, независимо от числа ошибок.
type Broadcast struct {
	ID        int64      `json:"id" gorm:"primaryKey;autoIncrement" bson:"_id"`
	Text      string     `json:"text" gorm:"type:text;not null" bson:"text"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime" bson:"created_at"`
	SentAt    *time.Time `json:"sent_at" bson:"sent_at,omitempty"`
}

// AttachmentKind — закрытый набор типов вложений.
type AttachmentKind string

const (
	KindPhoto AttachmentKind = "photo"
	KindVideo AttachmentKind = "video"
	KindFile  AttachmentKind = "file"
)

func (k AttachmentKind) Valid() bool {
	switch k {
	case KindPhoto, KindVideo, KindFile:
		return true
	}
	return false
}

// BroadcastFile — сохраненное вложение рассылки. Порядок внутри
// рассылки задается автоинкрементным id.
type BroadcastFile struct {
	ID          int64          `json:"id" gorm:"primaryKey;autoIncrement" bson:"_id"`
	BroadcastID int64          `json:"broadcast_id" gorm:"index;not null" bson:"broadcast_id"`
	Kind        AttachmentKind `json:"kind" gorm:"size:16;not null" bson:"kind"`
	Path        string         `json:"path" gorm:"type:text;not null" bson:"path"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime" bson:"created_at"`
}
