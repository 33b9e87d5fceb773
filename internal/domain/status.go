package domain

import "time"

// Effective status resolution. These are pure functions recomputed on every
// read; nothing here caches or mutates. Precedence, highest first:
//
//  1. terminal explicit status (completed, archived) is returned unchanged
//  2. ancestor lock (season, then linked chapter for quests)
//  3. the entity's own dates
//  4. paused
//  5. active

// SeasonStatus resolves a season's effective status at the given time. A
// season whose start date is strictly after today's calendar day is locked.
func SeasonStatus(s *Season, now time.Time) EffectiveStatus {
	if s.Status.IsTerminal() {
		return EffectiveStatus(s.Status)
	}
	if start, ok := ParseDate(s.StartDate); ok {
		if StartOfDay(start).After(StartOfDay(now)) {
			return EffectiveLocked
		}
	}
	if s.Status == StatusPaused {
		return EffectivePaused
	}
	return EffectiveActive
}

// chapterDateStatus computes a chapter's display status from its own fields
// only, ignoring ancestors.
func chapterDateStatus(c *Chapter, now time.Time) EffectiveStatus {
	if c.Status == StatusArchived {
		return EffectiveArchived
	}
	if c.Status == StatusCompleted {
		if done, ok := ParseDate(c.CompletedAt); ok {
			if deadline, ok := ParseDate(c.Deadline); ok && done.After(deadline) {
				return EffectiveCompletedLate
			}
		}
		return EffectiveCompleted
	}
	if unlock, ok := ParseDate(c.UnlockTime); ok && unlock.After(now) {
		return EffectiveLocked
	}
	if deadline, ok := ParseDate(c.Deadline); ok && deadline.Before(now) {
		return EffectiveOverdue
	}
	if c.Status == StatusPaused {
		return EffectivePaused
	}
	return EffectiveActive
}

// ChapterStatus resolves a chapter's effective status. A locked parent season
// overrides everything except a terminal completed variant.
func ChapterStatus(h *Hierarchy, c *Chapter, now time.Time) EffectiveStatus {
	base := chapterDateStatus(c, now)
	if base.IsTerminal() {
		return base
	}
	if season, ok := h.SeasonByID(c.SeasonID); ok {
		if SeasonStatus(season, now) == EffectiveLocked {
			return EffectiveLocked
		}
	}
	return base
}

// QuestStatus resolves a quest's effective status. The quest locks when its
// own season is locked, when its linked chapter is locked (the chapter's
// season is resolved independently of the quest's SeasonID), or when its own
// unlock time is still in the future.
func QuestStatus(h *Hierarchy, q *Quest, now time.Time) EffectiveStatus {
	if q.Status.IsTerminal() {
		return EffectiveStatus(q.Status)
	}
	if q.SeasonID != "" {
		if season, ok := h.SeasonByID(q.SeasonID); ok {
			if SeasonStatus(season, now) == EffectiveLocked {
				return EffectiveLocked
			}
		}
	}
	if q.LinkedChapterID != "" {
		if chapter, _, ok := h.ChapterByID(q.LinkedChapterID); ok {
			if ChapterStatus(h, chapter, now) == EffectiveLocked {
				return EffectiveLocked
			}
		}
	}
	if unlock, ok := ParseDate(q.UnlockTime); ok && unlock.After(now) {
		return EffectiveLocked
	}
	if q.Status == StatusPaused {
		return EffectivePaused
	}
	return EffectiveActive
}
