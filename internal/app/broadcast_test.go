package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeCourier пишет журнал вызовов и умеет ломаться на заданных
// адресатах и типах отправки.
type fakeCourier struct {
	calls    []string
	failFor  map[int64]bool
	videoErr bool
}

func (f *fakeCourier) record(kind string, userID int64, caption string) error {
	f.calls = append(f.calls, fmt.Sprintf("%s:%d:%s", kind, userID, caption))
	if f.failFor[userID] {
		return errors.New("blocked by user")
	}
	return nil
}

func (f *fakeCourier) SendText(userID int64, text string) error {
	return f.record("text", userID, text)
}
func (f *fakeCourier) SendPhoto(userID int64, path, caption string) error {
	return f.record("photo", userID, caption)
}
func (f *fakeCourier) SendPhotoAlbum(userID int64, paths []string, caption string) error {
	return f.record(fmt.Sprintf("album(%d)", len(paths)), userID, caption)
}
func (f *fakeCourier) SendVideo(userID int64, path, caption string) error {
	if f.videoErr {
		f.calls = append(f.calls, fmt.Sprintf("video-failed:%d:%s", userID, caption))
		return errors.New("wrong container")
	}
	return f.record("video", userID, caption)
}
func (f *fakeCourier) SendDocument(userID int64, path, caption string) error {
	return f.record("document", userID, caption)
}
func (f *fakeCourier) SendAudio(userID int64, path, caption string) error {
	return f.record("audio", userID, caption)
}

func seedUsers(t *testing.T, s *GormStore, ids ...int64) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		if err := s.UpsertUser(ctx, id, fmt.Sprintf("user%d", id)); err != nil {
			t.Fatalf("UpsertUser(%d): %v", id, err)
		}
	}
}

func newTestBroadcaster(t *testing.T, s *GormStore, c Courier) *Broadcaster {
	t.Helper()
	return NewBroadcaster(s, c, t.TempDir())
}

func TestComposeRejectsEmptyForm(t *testing.T) {
	s := newTestStore(t)
	seedUsers(t, s, 1)
	b := newTestBroadcaster(t, s, &fakeCourier{})

	_, err := b.Compose(context.Background(), "  ", "\n\t", nil, nil, nil)
	if !errors.Is(err, ErrEmptyBroadcast) {
		t.Fatalf("expected ErrEmptyBroadcast, got %v", err)
	}
}

func TestComposeRejectsWhenNoRecipients(t *testing.T) {
	s := newTestStore(t)
	b := newTestBroadcaster(t, s, &fakeCourier{})
	ctx := context.Background()

	_, err := b.Compose(ctx, "Заголовок", "", nil, nil, nil)
	if !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
	// Запись не должна была появиться.
	list, err := s.ListBroadcasts(ctx)
	if err != nil {
		t.Fatalf("ListBroadcasts: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("broadcast row created despite no recipients: %d", len(list))
	}
}

func TestComposeJoinsTitleAndBody(t *testing.T) {
	s := newTestStore(t)
	seedUsers(t, s, 1)
	b := newTestBroadcaster(t, s, &fakeCourier{})
	ctx := context.Background()

	tests := []struct {
		title, body, want string
	}{
		{"Заголовок", "Текст", "Заголовок\n\nТекст"},
		{"Только заголовок", "", "Только заголовок"},
		{"", "Только текст", "Только текст"},
	}
	for _, tt := range tests {
		id, err := b.Compose(ctx, tt.title, tt.body, nil, nil, nil)
		if err != nil {
			t.Fatalf("Compose(%q,%q): %v", tt.title, tt.body, err)
		}
		bc, err := s.GetBroadcast(ctx, id)
		if err != nil {
			t.Fatalf("GetBroadcast(%d): %v", id, err)
		}
		if bc.Text != tt.want {
			t.Fatalf("Compose(%q,%q) text = %q; want %q", tt.title, tt.body, bc.Text, tt.want)
		}
	}
}

func TestComposeSavesUploadsByKind(t *testing.T) {
	s := newTestStore(t)
	seedUsers(t, s, 1)
	b := newTestBroadcaster(t, s, &fakeCourier{})
	ctx := context.Background()

	id, err := b.Compose(ctx, "С вложениями", "",
		[]Upload{{Name: "a.jpg", Reader: strings.NewReader("jpg-bytes")}},
		[]Upload{{Name: "b.mp4", Reader: strings.NewReader("mp4-bytes")}},
		[]Upload{
			{Name: "c.mp3", Reader: strings.NewReader("mp3-bytes")},
			{Name: "", Reader: strings.NewReader("ignored")},     // без имени
			{Name: "empty.pdf", Reader: strings.NewReader("")},   // нулевой размер
		})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	files, err := s.ListBroadcastFiles(ctx, id)
	if err != nil {
		t.Fatalf("ListBroadcastFiles: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 saved attachments, got %d", len(files))
	}
	wantKinds := []AttachmentKind{KindPhoto, KindVideo, KindFile}
	for i, f := range files {
		if f.Kind != wantKinds[i] {
			t.Fatalf("attachment #%d kind = %q; want %q", i, f.Kind, wantKinds[i])
		}
	}
	if ext := files[2].Path[len(files[2].Path)-4:]; ext != ".mp3" {
		t.Fatalf("audio upload lost its extension: %q", files[2].Path)
	}
}

func TestFanOutCountsAndStampsSentAt(t *testing.T) {
	s := newTestStore(t)
	seedUsers(t, s, 1, 2, 3)
	fc := &fakeCourier{failFor: map[int64]bool{2: true}}
	b := newTestBroadcaster(t, s, fc)
	ctx := context.Background()

	id, err := b.Compose(ctx, "Новость", "", nil, nil, nil)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	sent, failed, err := b.Dispatch(ctx, id)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sent != 2 || failed != 1 {
		t.Fatalf("Dispatch = (%d sent, %d failed); want (2, 1)", sent, failed)
	}

	bc, err := s.GetBroadcast(ctx, id)
	if err != nil {
		t.Fatalf("GetBroadcast: %v", err)
	}
	if bc.SentAt == nil {
		t.Fatalf("SentAt not stamped after fan-out with failures")
	}
}

func TestDeliveryCaptionGoesOnce(t *testing.T) {
	fc := &fakeCourier{}
	d := &delivery{courier: fc, userID: 9, fullText: "Подпись"}
	if err := d.run([]string{"p1.jpg", "p2.jpg"}, []string{"v.mp4"}, []string{"doc.pdf"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{
		"album(2):9:Подпись",
		"video:9:",
		"document:9:",
	}
	if len(fc.calls) != len(want) {
		t.Fatalf("calls = %#v; want %#v", fc.calls, want)
	}
	for i := range want {
		if fc.calls[i] != want[i] {
			t.Fatalf("call #%d = %q; want %q", i, fc.calls[i], want[i])
		}
	}
}

func TestDeliverySinglePhotoCarriesCaption(t *testing.T) {
	fc := &fakeCourier{}
	d := &delivery{courier: fc, userID: 4, fullText: "Один кадр"}
	if err := d.run([]string{"only.jpg"}, nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fc.calls) != 1 || fc.calls[0] != "photo:4:Один кадр" {
		t.Fatalf("calls = %#v", fc.calls)
	}
}

func TestDeliveryTextOnly(t *testing.T) {
	fc := &fakeCourier{}
	d := &delivery{courier: fc, userID: 4, fullText: "Просто текст"}
	if err := d.run(nil, nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fc.calls) != 1 || fc.calls[0] != "text:4:Просто текст" {
		t.Fatalf("calls = %#v", fc.calls)
	}
}

func TestDeliveryVideoFallsBackToDocument(t *testing.T) {
	fc := &fakeCourier{videoErr: true}
	d := &delivery{courier: fc, userID: 8, fullText: "Ролик"}
	if err := d.run(nil, []string{"clip.avi"}, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{
		"video-failed:8:Ролик",
		"document:8:Ролик", // подпись сохраняется при фолбэке
	}
	for i := range want {
		if fc.calls[i] != want[i] {
			t.Fatalf("call #%d = %q; want %q", i, fc.calls[i], want[i])
		}
	}
}

func TestDeliveryRoutesAudioByExtension(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"song.mp3", "audio"},
		{"voice.OGG", "audio"},
		{"take.wav", "audio"},
		{"memo.m4a", "audio"},
		{"readme.pdf", "document"},
		{"noext", "document"},
	}
	for _, tt := range tests {
		fc := &fakeCourier{}
		d := &delivery{courier: fc, userID: 1}
		if err := d.run(nil, nil, []string{tt.path}); err != nil {
			t.Fatalf("run(%q): %v", tt.path, err)
		}
		if len(fc.calls) != 1 || !strings.HasPrefix(fc.calls[0], tt.want+":") {
			t.Fatalf("file %q routed as %#v; want %s", tt.path, fc.calls, tt.want)
		}
	}
}
