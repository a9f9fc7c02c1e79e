package app

import (
	"strings"
	"testing"
)

func TestFormatTrackCard(t *testing.T) {
	tests := []struct {
		name  string
		track Track
		want  []string
		skip  []string
	}{
		{
			name:  "полная карточка",
			track: Track{Title: "Группа крови", Points: 3, Hint: "Кино, 1988"},
			want: []string{
				"🎵 <b>Группа крови</b>",
				"3️⃣ баллов",
				"<tg-spoiler>Кино, 1988</tg-spoiler>",
			},
		},
		{
			name:  "без подсказки",
			track: Track{Title: "Трек", Points: 1},
			want:  []string{"🎵 <b>Трек</b>", "1️⃣ баллов"},
			skip:  []string{"tg-spoiler"},
		},
		{
			name:  "HTML экранируется",
			track: Track{Title: "<script>", Points: 1, Hint: "a & b"},
			want:  []string{"&lt;script&gt;", "a &amp; b"},
			skip:  []string{"<script>"},
		},
	}
	for _, tt := range tests {
		got := formatTrackCard(&tt.track)
		for _, w := range tt.want {
			if !strings.Contains(got, w) {
				t.Fatalf("%s: card %q missing %q", tt.name, got, w)
			}
		}
		for _, s := range tt.skip {
			if strings.Contains(got, s) {
				t.Fatalf("%s: card %q must not contain %q", tt.name, got, s)
			}
		}
	}
}

func TestShorten(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"короткий", 20, "короткий"},
		{"очень длинный текст", 5, "очень..."},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := shorten(tt.in, tt.n); got != tt.want {
			t.Fatalf("shorten(%q, %d) = %q; want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
