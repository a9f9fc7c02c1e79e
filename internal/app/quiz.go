package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrCycleComplete — активные треки для пользователя исчерпаны.
var ErrCycleComplete = errors.New("цикл треков завершен")

// QuizManager — выдача треков без повторов. Чтение и отметка не
// сериализованы: два быстрых нажатия "дальше" могут получить один и
// тот же трек. На этом масштабе это принятый компромисс, блокировок
// здесь нет намеренно.
type QuizManager struct {
	store Store
}

func NewQuizManager(store Store) *QuizManager {
	return &QuizManager{store: store}
}

// PickNextTrack выбирает случайный активный трек, который пользователю
// еще не показывали, и сразу отмечает его показанным. Когда неувиденных
// треков не осталось — ErrCycleComplete, отметки не меняются.
func (q *QuizManager) PickNextTrack(ctx context.Context, userID int64) (*Track, error) {
	track, err := q.store.RandomUnseenTrack(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("выбор трека: %w", err)
	}
	if track == nil {
		return nil, ErrCycleComplete
	}
	if err := q.store.MarkTrackUsed(ctx, userID, track.ID); err != nil {
		return nil, fmt.Errorf("отметка трека %d: %w", track.ID, err)
	}
	return track, nil
}

// ResetCycle сбрасывает прогресс: следующий PickNextTrack ведет себя
// как для нового пользователя.
func (q *QuizManager) ResetCycle(ctx context.Context, userID int64) error {
	return q.store.ClearUsedTracks(ctx, userID)
}

var pointsGlyphs = map[int]string{
	1: "1️⃣",
	2: "2️⃣",
	3: "3️⃣",
	4: "4️⃣",
	5: "5️⃣",
}

// pointsGlyph — эмодзи для баллов 1–5, для остальных просто число.
func pointsGlyph(points int) string {
	if glyph, ok := pointsGlyphs[points]; ok {
		return glyph
	}
	return strconv.Itoa(points)
}
