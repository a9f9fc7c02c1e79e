package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewGormStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTracks(t *testing.T, s *GormStore, titles ...string) []int64 {
	t.Helper()
	ctx := context.Background()
	ids := make([]int64, 0, len(titles))
	for _, title := range titles {
		tr := &Track{Title: title, Points: 1, IsActive: true}
		if err := s.CreateTrack(ctx, tr); err != nil {
			t.Fatalf("CreateTrack(%q): %v", title, err)
		}
		ids = append(ids, tr.ID)
	}
	return ids
}

func TestPickNextTrackNoRepeats(t *testing.T) {
	s := newTestStore(t)
	seedTracks(t, s, "Песня А", "Песня Б", "Песня В")

	qm := NewQuizManager(s)
	ctx := context.Background()
	const userID = int64(100)

	seen := map[int64]bool{}
	for i := 0; i < 3; i++ {
		track, err := qm.PickNextTrack(ctx, userID)
		if err != nil {
			t.Fatalf("PickNextTrack #%d: %v", i+1, err)
		}
		if seen[track.ID] {
			t.Fatalf("track %d shown twice within one cycle", track.ID)
		}
		seen[track.ID] = true
	}

	if _, err := qm.PickNextTrack(ctx, userID); !errors.Is(err, ErrCycleComplete) {
		t.Fatalf("after exhaustion expected ErrCycleComplete, got %v", err)
	}
}

func TestPickNextTrackSkipsInactive(t *testing.T) {
	s := newTestStore(t)
	ids := seedTracks(t, s, "Активная", "Скрытая")
	ctx := context.Background()

	hidden, err := s.GetTrack(ctx, ids[1])
	if err != nil {
		t.Fatalf("GetTrack: %v", err)
	}
	hidden.IsActive = false
	if err := s.UpdateTrack(ctx, hidden); err != nil {
		t.Fatalf("UpdateTrack: %v", err)
	}

	qm := NewQuizManager(s)
	track, err := qm.PickNextTrack(ctx, 7)
	if err != nil {
		t.Fatalf("PickNextTrack: %v", err)
	}
	if track.ID != ids[0] {
		t.Fatalf("expected active track %d, got %d", ids[0], track.ID)
	}
	if _, err := qm.PickNextTrack(ctx, 7); !errors.Is(err, ErrCycleComplete) {
		t.Fatalf("inactive track must not be served, got %v", err)
	}
}

func TestResetCycleMakesTracksEligibleAgain(t *testing.T) {
	s := newTestStore(t)
	ids := seedTracks(t, s, "Единственная")

	qm := NewQuizManager(s)
	ctx := context.Background()
	const userID = int64(42)

	if _, err := qm.PickNextTrack(ctx, userID); err != nil {
		t.Fatalf("first pick: %v", err)
	}
	if _, err := qm.PickNextTrack(ctx, userID); !errors.Is(err, ErrCycleComplete) {
		t.Fatalf("expected ErrCycleComplete, got %v", err)
	}

	if err := qm.ResetCycle(ctx, userID); err != nil {
		t.Fatalf("ResetCycle: %v", err)
	}
	track, err := qm.PickNextTrack(ctx, userID)
	if err != nil {
		t.Fatalf("pick after reset: %v", err)
	}
	if track.ID != ids[0] {
		t.Fatalf("expected track %d after reset, got %d", ids[0], track.ID)
	}
}

func TestCyclesAreIndependentPerUser(t *testing.T) {
	s := newTestStore(t)
	seedTracks(t, s, "Общая")

	qm := NewQuizManager(s)
	ctx := context.Background()

	if _, err := qm.PickNextTrack(ctx, 1); err != nil {
		t.Fatalf("user 1 pick: %v", err)
	}
	// Прогресс первого пользователя не влияет на второго.
	if _, err := qm.PickNextTrack(ctx, 2); err != nil {
		t.Fatalf("user 2 pick: %v", err)
	}
}

func TestMarkTrackUsedIdempotent(t *testing.T) {
	s := newTestStore(t)
	ids := seedTracks(t, s, "Повтор")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.MarkTrackUsed(ctx, 5, ids[0]); err != nil {
			t.Fatalf("MarkTrackUsed #%d: %v", i+1, err)
		}
	}
	count, err := s.CountUsedTracks(ctx, 5)
	if err != nil {
		t.Fatalf("CountUsedTracks: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 mark, got %d", count)
	}
}

func TestPointsGlyph(t *testing.T) {
	tests := []struct {
		points int
		want   string
	}{
		{1, "1️⃣"},
		{3, "3️⃣"},
		{5, "5️⃣"},
		{6, "6"},
		{12, "12"},
	}
	for _, tt := range tests {
		if got := pointsGlyph(tt.points); got != tt.want {
			t.Fatalf("pointsGlyph(%d) = %q; want %q", tt.points, got, tt.want)
		}
	}
}
