package domain

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.Local)

func day(offset int) string {
	return testNow.AddDate(0, 0, offset).Format("2006-01-02")
}

func TestSeasonStatus(t *testing.T) {
	tests := []struct {
		name   string
		season Season
		want   EffectiveStatus
	}{
		{
			name:   "active season with past start",
			season: Season{Status: StatusActive, StartDate: day(-10)},
			want:   EffectiveActive,
		},
		{
			name:   "future start date locks",
			season: Season{Status: StatusActive, StartDate: day(1)},
			want:   EffectiveLocked,
		},
		{
			name:   "start date today does not lock",
			season: Season{Status: StatusActive, StartDate: day(0)},
			want:   EffectiveActive,
		},
		{
			name:   "paused stays paused",
			season: Season{Status: StatusPaused, StartDate: day(-1)},
			want:   EffectivePaused,
		},
		{
			name:   "completed is sticky even with future start",
			season: Season{Status: StatusCompleted, StartDate: day(30)},
			want:   EffectiveCompleted,
		},
		{
			name:   "archived is sticky even with future start",
			season: Season{Status: StatusArchived, StartDate: day(30)},
			want:   EffectiveArchived,
		},
		{
			name:   "malformed start date does not lock",
			season: Season{Status: StatusActive, StartDate: "not-a-date"},
			want:   EffectiveActive,
		},
		{
			name:   "missing start date does not lock",
			season: Season{Status: StatusActive},
			want:   EffectiveActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeasonStatus(&tt.season, testNow); got != tt.want {
				t.Errorf("SeasonStatus() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestSeasonStatus_DateOnlyComparison(t *testing.T) {
	// A start date later today (after "now" as an instant, same calendar day)
	// must not lock: the comparison is day-granular.
	s := Season{Status: StatusActive, StartDate: testNow.Add(5 * time.Hour).Format(time.RFC3339)}
	if got := SeasonStatus(&s, testNow); got != EffectiveActive {
		t.Errorf("SeasonStatus() = %q; want %q", got, EffectiveActive)
	}
}

func TestChapterStatus(t *testing.T) {
	openSeason := Season{ID: "s1", Status: StatusActive, StartDate: day(-30)}
	lockedSeason := Season{ID: "s2", Status: StatusActive, StartDate: day(30)}

	tests := []struct {
		name    string
		chapter Chapter
		seasons []Season
		want    EffectiveStatus
	}{
		{
			name:    "active chapter in open season",
			chapter: Chapter{SeasonID: "s1", Status: StatusActive},
			seasons: []Season{openSeason},
			want:    EffectiveActive,
		},
		{
			name:    "locked season overrides chapter base",
			chapter: Chapter{SeasonID: "s2", Status: StatusActive},
			seasons: []Season{lockedSeason},
			want:    EffectiveLocked,
		},
		{
			name:    "completed survives locked season",
			chapter: Chapter{SeasonID: "s2", Status: StatusCompleted},
			seasons: []Season{lockedSeason},
			want:    EffectiveCompleted,
		},
		{
			name: "completed after deadline is completed late",
			chapter: Chapter{
				SeasonID:    "s1",
				Status:      StatusCompleted,
				Deadline:    day(-5),
				CompletedAt: day(-1),
			},
			seasons: []Season{openSeason},
			want:    EffectiveCompletedLate,
		},
		{
			name: "completed late survives locked season",
			chapter: Chapter{
				SeasonID:    "s2",
				Status:      StatusCompleted,
				Deadline:    day(-5),
				CompletedAt: day(-1),
			},
			seasons: []Season{lockedSeason},
			want:    EffectiveCompletedLate,
		},
		{
			name:    "future unlock time locks",
			chapter: Chapter{SeasonID: "s1", Status: StatusActive, UnlockTime: day(3)},
			seasons: []Season{openSeason},
			want:    EffectiveLocked,
		},
		{
			name:    "past deadline is overdue",
			chapter: Chapter{SeasonID: "s1", Status: StatusActive, Deadline: day(-2)},
			seasons: []Season{openSeason},
			want:    EffectiveOverdue,
		},
		{
			name:    "paused chapter",
			chapter: Chapter{SeasonID: "s1", Status: StatusPaused},
			seasons: []Season{openSeason},
			want:    EffectivePaused,
		},
		{
			name:    "unknown season falls back to base status",
			chapter: Chapter{SeasonID: "missing", Status: StatusActive},
			seasons: []Season{openSeason},
			want:    EffectiveActive,
		},
		{
			name:    "malformed unlock time does not lock",
			chapter: Chapter{SeasonID: "s1", Status: StatusActive, UnlockTime: "garbage"},
			seasons: []Season{openSeason},
			want:    EffectiveActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Hierarchy{Seasons: tt.seasons}
			if got := ChapterStatus(h, &tt.chapter, testNow); got != tt.want {
				t.Errorf("ChapterStatus() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestQuestStatus(t *testing.T) {
	h := &Hierarchy{
		Seasons: []Season{
			{
				ID:        "open",
				Status:    StatusActive,
				StartDate: day(-30),
				Chapters: []Chapter{
					{ID: "ch-open", SeasonID: "open", Status: StatusActive},
					{ID: "ch-gated", SeasonID: "open", Status: StatusActive, UnlockTime: day(7)},
				},
			},
			{
				ID:        "future",
				Status:    StatusActive,
				StartDate: day(14),
				Chapters: []Chapter{
					{ID: "ch-future", SeasonID: "future", Status: StatusActive},
				},
			},
		},
	}

	tests := []struct {
		name  string
		quest Quest
		want  EffectiveStatus
	}{
		{
			name:  "plain active quest",
			quest: Quest{SeasonID: "open", Status: StatusActive},
			want:  EffectiveActive,
		},
		{
			name:  "quest in locked season",
			quest: Quest{SeasonID: "future", Status: StatusActive},
			want:  EffectiveLocked,
		},
		{
			name:  "quest linked to gated chapter",
			quest: Quest{SeasonID: "open", LinkedChapterID: "ch-gated", Status: StatusActive},
			want:  EffectiveLocked,
		},
		{
			name: "linked chapter lock wins over passed own unlock",
			quest: Quest{
				SeasonID:        "open",
				LinkedChapterID: "ch-gated",
				UnlockTime:      day(-5),
				Status:          StatusActive,
			},
			want: EffectiveLocked,
		},
		{
			name: "chapter in a different season than the quest's own",
			// The quest lives in the open season but is linked to a chapter
			// owned by the future (locked) season. The chapter's season must
			// be resolved independently.
			quest: Quest{SeasonID: "open", LinkedChapterID: "ch-future", Status: StatusActive},
			want:  EffectiveLocked,
		},
		{
			name:  "own future unlock time",
			quest: Quest{SeasonID: "open", UnlockTime: day(2), Status: StatusActive},
			want:  EffectiveLocked,
		},
		{
			name:  "paused quest",
			quest: Quest{SeasonID: "open", Status: StatusPaused},
			want:  EffectivePaused,
		},
		{
			name:  "completed is sticky in locked season",
			quest: Quest{SeasonID: "future", Status: StatusCompleted},
			want:  EffectiveCompleted,
		},
		{
			name:  "archived is sticky behind gated chapter",
			quest: Quest{SeasonID: "open", LinkedChapterID: "ch-gated", Status: StatusArchived},
			want:  EffectiveArchived,
		},
		{
			name:  "dangling chapter link is ignored",
			quest: Quest{SeasonID: "open", LinkedChapterID: "missing", Status: StatusActive},
			want:  EffectiveActive,
		},
		{
			name:  "no season id at all",
			quest: Quest{Status: StatusActive},
			want:  EffectiveActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QuestStatus(h, &tt.quest, testNow); got != tt.want {
				t.Errorf("QuestStatus() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"2026-03-15", true},
		{"2026-03-15T10:30:00Z", true},
		{"2026-03-15T10:30:00", true},
		{"2026-03-15 10:30:00", true},
		{"", false},
		{"yesterday", false},
		{"15/03/2026", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if _, ok := ParseDate(tt.input); ok != tt.ok {
				t.Errorf("ParseDate(%q) ok = %v; want %v", tt.input, ok, tt.ok)
			}
		})
	}
}
