package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrEmptyBroadcast — ни текста, ни вложений.
	ErrEmptyBroadcast = errors.New("пустая рассылка")
	// ErrNoRecipients — боту пока никто не писал, слать некому.
	ErrNoRecipients = errors.New("нет адресатов для рассылки")
)

// Расширения, которые уходят как аудио, а не как документ.
var audioExtensions = map[string]struct{}{
	".mp3": {},
	".ogg": {},
	".wav": {},
	".m4a": {},
}

// Upload — один файл из формы админки.
type Upload struct {
	Name   string
	Reader io.Reader
}

// Broadcaster собирает рассылку и раздает ее всем известным
// пользователям. Доставка последовательная, без ретраев: ошибка по
// одному адресату только увеличивает счетчик failed.
type Broadcaster struct {
	store     Store
	courier   Courier
	uploadDir string
}

func NewBroadcaster(store Store, courier Courier, uploadDir string) *Broadcaster {
	if strings.TrimSpace(uploadDir) == "" {
		uploadDir = dirUploads
	}
	return &Broadcaster{store: store, courier: courier, uploadDir: uploadDir}
}

// Compose валидирует форму, сохраняет файлы и создает записи рассылки.
// Проверка адресатов идет до записи чего-либо в БД.
func (b *Broadcaster) Compose(ctx context.Context, title, body string, photos, videos, files []Upload) (int64, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)

	if title == "" && body == "" && len(photos) == 0 && len(videos) == 0 && len(files) == 0 {
		return 0, ErrEmptyBroadcast
	}

	count, err := b.store.CountUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("подсчет адресатов: %w", err)
	}
	if count == 0 {
		return 0, ErrNoRecipients
	}

	fullText := title
	if title != "" && body != "" {
		fullText = title + "\n\n" + body
	} else if body != "" {
		fullText = body
	}

	bc := &Broadcast{Text: fullText}
	if err := b.store.CreateBroadcast(ctx, bc); err != nil {
		return 0, fmt.Errorf("создание рассылки: %w", err)
	}

	groups := []struct {
		kind    AttachmentKind
		uploads []Upload
	}{
		{KindPhoto, photos},
		{KindVideo, videos},
		{KindFile, files},
	}
	for _, g := range groups {
		for _, up := range g.uploads {
			path, err := b.saveUpload(bc.ID, g.kind, up)
			if err != nil {
				return 0, err
			}
			if path == "" {
				continue // пустое имя или пустое содержимое
			}
			rec := &BroadcastFile{BroadcastID: bc.ID, Kind: g.kind, Path: path}
			if err := b.store.CreateBroadcastFile(ctx, rec); err != nil {
				return 0, fmt.Errorf("запись вложения: %w", err)
			}
		}
	}

	return bc.ID, nil
}

// saveUpload кладет файл в uploads/broadcasts/<id>/<kind>/. Пустые
// загрузки молча пропускаются — возвращается пустой путь без ошибки.
func (b *Broadcaster) saveUpload(broadcastID int64, kind AttachmentKind, up Upload) (string, error) {
	name := strings.TrimSpace(up.Name)
	if name == "" || up.Reader == nil {
		return "", nil
	}

	dir := filepath.Join(b.uploadDir, "broadcasts", strconv.FormatInt(broadcastID, 10), string(kind))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("создание каталога вложений: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(name))
	target := filepath.Join(dir, uuid.NewString()+ext)
	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("создание файла вложения: %w", err)
	}

	n, err := io.Copy(dst, up.Reader)
	closeErr := dst.Close()
	if err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("сохранение вложения: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("сохранение вложения: %w", closeErr)
	}
	if n == 0 {
		_ = os.Remove(target)
		return "", nil
	}
	return filepath.ToSlash(target), nil
}

// ==========================================
// ДОСТАВКА
// ==========================================

type deliveryState int

const (
	deliveryNotStarted deliveryState = iota
	deliveryAttemptingPrimary
	deliveryAttemptingFallback
	deliveryDone
)

// delivery — доставка одной рассылки одному адресату. Подпись уходит
// ровно с первым отправляемым элементом, флаг captionConsumed общий
// для всех трех групп вложений.
type delivery struct {
	courier         Courier
	userID          int64
	fullText        string
	state           deliveryState
	captionConsumed bool
}

func (d *delivery) caption() string {
	if d.captionConsumed || d.fullText == "" {
		return ""
	}
	d.captionConsumed = true
	return d.fullText
}

func (d *delivery) run(photos, videos, files []string) error {
	defer func() { d.state = deliveryDone }()

	if err := d.sendPhotos(photos); err != nil {
		return err
	}
	if err := d.sendVideos(videos); err != nil {
		return err
	}
	if err := d.sendFiles(files); err != nil {
		return err
	}

	// Вложений не было вовсе — текст уходит обычным сообщением.
	if d.state == deliveryNotStarted && d.fullText != "" {
		d.state = deliveryAttemptingPrimary
		return d.courier.SendText(d.userID, d.caption())
	}
	return nil
}

func (d *delivery) sendPhotos(photos []string) error {
	switch {
	case len(photos) == 0:
		return nil
	case len(photos) == 1:
		d.state = deliveryAttemptingPrimary
		return d.courier.SendPhoto(d.userID, photos[0], d.caption())
	default:
		d.state = deliveryAttemptingPrimary
		return d.courier.SendPhotoAlbum(d.userID, photos, d.caption())
	}
}

func (d *delivery) sendVideos(videos []string) error {
	for _, path := range videos {
		d.state = deliveryAttemptingPrimary
		caption := d.caption()
		if err := d.courier.SendVideo(d.userID, path, caption); err != nil {
			// Телеграм не принял видео (контейнер, размер) —
			// пробуем тот же файл документом.
			d.state = deliveryAttemptingFallback
			if fbErr := d.courier.SendDocument(d.userID, path, caption); fbErr != nil {
				return fmt.Errorf("видео %s: %w", path, fbErr)
			}
		}
	}
	return nil
}

func (d *delivery) sendFiles(files []string) error {
	for _, path := range files {
		d.state = deliveryAttemptingPrimary
		caption := d.caption()
		ext := strings.ToLower(filepath.Ext(path))
		var err error
		if _, ok := audioExtensions[ext]; ok {
			err = d.courier.SendAudio(d.userID, path, caption)
		} else {
			err = d.courier.SendDocument(d.userID, path, caption)
		}
		if err != nil {
			return fmt.Errorf("файл %s: %w", path, err)
		}
	}
	return nil
}

// FanOut обходит адресатов по очереди. Ошибка по одному адресату не
// прерывает остальных. SentAt проставляется после полного обхода
// независимо от результата.
func (b *Broadcaster) FanOut(ctx context.Context, broadcastID int64, fullText string, photos, videos, files []string, recipients []int64) (sent, failed int) {
	for _, userID := range recipients {
		d := &delivery{courier: b.courier, userID: userID, fullText: fullText}
		if err := d.run(photos, videos, files); err != nil {
			failed++
			log.Printf("⚠️ Ошибка рассылки %d пользователю %d: %v", broadcastID, userID, err)
			continue
		}
		sent++
	}

	if err := b.store.MarkBroadcastSent(ctx, broadcastID); err != nil {
		log.Printf("⚠️ Не удалось отметить рассылку %d отправленной: %v", broadcastID, err)
	}
	return sent, failed
}

// Dispatch — обертка над FanOut: поднимает текст, вложения и список
// адресатов из хранилища. Именно ее зовет админка после Compose.
func (b *Broadcaster) Dispatch(ctx context.Context, broadcastID int64) (sent, failed int, err error) {
	bc, err := b.store.GetBroadcast(ctx, broadcastID)
	if err != nil {
		return 0, 0, fmt.Errorf("чтение рассылки: %w", err)
	}

	attachments, err := b.store.ListBroadcastFiles(ctx, broadcastID)
	if err != nil {
		return 0, 0, fmt.Errorf("чтение вложений: %w", err)
	}
	var photos, videos, files []string
	for _, a := range attachments {
		switch a.Kind {
		case KindPhoto:
			photos = append(photos, a.Path)
		case KindVideo:
			videos = append(videos, a.Path)
		case KindFile:
			files = append(files, a.Path)
		}
	}

	recipients, err := b.store.ListUserIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("список адресатов: %w", err)
	}

	sent, failed = b.FanOut(ctx, broadcastID, bc.Text, photos, videos, files, recipients)
	return sent, failed, nil
}

// Remove удаляет запись рассылки вместе с записями вложений.
// Сохраненные файлы остаются на диске: они могут входить в уже снятые
// резервные копии, и место нам дороже не настолько.
func (b *Broadcaster) Remove(ctx context.Context, broadcastID int64) error {
	return b.store.DeleteBroadcast(ctx, broadcastID)
}
