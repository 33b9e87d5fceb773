package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"questpulse/internal/domain"
)

// HierarchyStore persists the planning hierarchy in SQLite. It is the system
// of record the monitor reads point-in-time snapshots from.
type HierarchyStore struct {
	db *DB
}

// NewHierarchyStore creates a new SQLite-backed hierarchy store.
func NewHierarchyStore(db *DB) *HierarchyStore {
	return &HierarchyStore{db: db}
}

// SaveSeason persists a season (insert or update). Nested chapters are not
// written; use SaveChapter.
func (s *HierarchyStore) SaveSeason(season *domain.Season) error {
	_, err := s.db.Exec(`
		INSERT INTO seasons (id, name, status, start_date, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, status=excluded.status,
			start_date=excluded.start_date, updated_at=excluded.updated_at`,
		season.ID, season.Name, string(season.Status), season.StartDate, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert season: %w", err)
	}
	return nil
}

// GetSeason retrieves a season with its chapters.
func (s *HierarchyStore) GetSeason(id string) (*domain.Season, error) {
	row := s.db.QueryRow(`
		SELECT id, name, status, start_date FROM seasons WHERE id = ?`, id)

	var season domain.Season
	var status string
	if err := row.Scan(&season.ID, &season.Name, &status, &season.StartDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSeasonNotFound
		}
		return nil, fmt.Errorf("get season: %w", err)
	}
	season.Status = domain.ExplicitStatus(status)

	chapters, err := s.chaptersFor(season.ID)
	if err != nil {
		return nil, err
	}
	season.Chapters = chapters
	return &season, nil
}

// DeleteSeason removes a season and, via cascade, its chapters.
func (s *HierarchyStore) DeleteSeason(id string) error {
	result, err := s.db.Exec("DELETE FROM seasons WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete season: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrSeasonNotFound
	}
	return nil
}

// SaveChapter persists a chapter (insert or update).
func (s *HierarchyStore) SaveChapter(chapter *domain.Chapter) error {
	_, err := s.db.Exec(`
		INSERT INTO chapters (id, season_id, name, status, unlock_time, deadline,
			completed_at, progress, sort_order, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			season_id=excluded.season_id, name=excluded.name,
			status=excluded.status, unlock_time=excluded.unlock_time,
			deadline=excluded.deadline, completed_at=excluded.completed_at,
			progress=excluded.progress, sort_order=excluded.sort_order,
			updated_at=excluded.updated_at`,
		chapter.ID, chapter.SeasonID, chapter.Name, string(chapter.Status),
		chapter.UnlockTime, chapter.Deadline, chapter.CompletedAt,
		chapter.Progress, chapter.Order, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert chapter: %w", err)
	}
	return nil
}

// DeleteChapter removes a chapter.
func (s *HierarchyStore) DeleteChapter(id string) error {
	result, err := s.db.Exec("DELETE FROM chapters WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete chapter: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrChapterNotFound
	}
	return nil
}

// SaveQuest persists a quest (insert or update).
func (s *HierarchyStore) SaveQuest(quest *domain.Quest) error {
	_, err := s.db.Exec(`
		INSERT INTO quests (id, name, status, unlock_time, deadline, completed_at,
			linked_chapter_id, season_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, status=excluded.status,
			unlock_time=excluded.unlock_time, deadline=excluded.deadline,
			completed_at=excluded.completed_at,
			linked_chapter_id=excluded.linked_chapter_id,
			season_id=excluded.season_id, updated_at=excluded.updated_at`,
		quest.ID, quest.Name, string(quest.Status), quest.UnlockTime,
		quest.Deadline, quest.CompletedAt, quest.LinkedChapterID,
		quest.SeasonID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert quest: %w", err)
	}
	return nil
}

// GetQuest retrieves a quest by ID.
func (s *HierarchyStore) GetQuest(id string) (*domain.Quest, error) {
	row := s.db.QueryRow(`
		SELECT id, name, status, unlock_time, deadline, completed_at,
			linked_chapter_id, season_id
		FROM quests WHERE id = ?`, id)

	var q domain.Quest
	var status string
	err := row.Scan(&q.ID, &q.Name, &status, &q.UnlockTime, &q.Deadline,
		&q.CompletedAt, &q.LinkedChapterID, &q.SeasonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrQuestNotFound
		}
		return nil, fmt.Errorf("get quest: %w", err)
	}
	q.Status = domain.ExplicitStatus(status)
	return &q, nil
}

// DeleteQuest removes a quest.
func (s *HierarchyStore) DeleteQuest(id string) error {
	result, err := s.db.Exec("DELETE FROM quests WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete quest: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrQuestNotFound
	}
	return nil
}

// SaveTask persists a task (insert or update).
func (s *HierarchyStore) SaveTask(task *domain.Task) error {
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, quest_id, title, status, weight, deadline,
			created_at_s, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			quest_id=excluded.quest_id, title=excluded.title,
			status=excluded.status, weight=excluded.weight,
			deadline=excluded.deadline, created_at_s=excluded.created_at_s,
			completed_at=excluded.completed_at, updated_at=excluded.updated_at`,
		task.ID, task.QuestID, task.Title, string(task.Status), task.Weight,
		task.Deadline, task.CreatedAt, task.CompletedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// DeleteTask removes a task.
func (s *HierarchyStore) DeleteTask(id string) error {
	result, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// Load reads the whole hierarchy as one point-in-time snapshot.
func (s *HierarchyStore) Load(ctx context.Context) (*domain.Hierarchy, error) {
	h := &domain.Hierarchy{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, start_date FROM seasons ORDER BY start_date, id`)
	if err != nil {
		return nil, fmt.Errorf("list seasons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var season domain.Season
		var status string
		if err := rows.Scan(&season.ID, &season.Name, &status, &season.StartDate); err != nil {
			return nil, fmt.Errorf("scan season: %w", err)
		}
		season.Status = domain.ExplicitStatus(status)
		h.Seasons = append(h.Seasons, season)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range h.Seasons {
		chapters, err := s.chaptersFor(h.Seasons[i].ID)
		if err != nil {
			return nil, err
		}
		h.Seasons[i].Chapters = chapters
	}

	quests, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, unlock_time, deadline, completed_at,
			linked_chapter_id, season_id
		FROM quests ORDER BY deadline, id`)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	defer quests.Close()

	for quests.Next() {
		var q domain.Quest
		var status string
		err := quests.Scan(&q.ID, &q.Name, &status, &q.UnlockTime, &q.Deadline,
			&q.CompletedAt, &q.LinkedChapterID, &q.SeasonID)
		if err != nil {
			return nil, fmt.Errorf("scan quest: %w", err)
		}
		q.Status = domain.ExplicitStatus(status)
		h.Quests = append(h.Quests, q)
	}
	if err := quests.Err(); err != nil {
		return nil, err
	}

	tasks, err := s.db.QueryContext(ctx, `
		SELECT id, quest_id, title, status, weight, deadline, created_at_s, completed_at
		FROM tasks ORDER BY created_at_s, id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer tasks.Close()

	for tasks.Next() {
		var t domain.Task
		var status string
		err := tasks.Scan(&t.ID, &t.QuestID, &t.Title, &status, &t.Weight,
			&t.Deadline, &t.CreatedAt, &t.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = domain.ExplicitStatus(status)
		h.Tasks = append(h.Tasks, t)
	}
	return h, tasks.Err()
}

func (s *HierarchyStore) chaptersFor(seasonID string) ([]domain.Chapter, error) {
	rows, err := s.db.Query(`
		SELECT id, season_id, name, status, unlock_time, deadline, completed_at,
			progress, sort_order
		FROM chapters WHERE season_id = ? ORDER BY sort_order, id`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []domain.Chapter
	for rows.Next() {
		var c domain.Chapter
		var status string
		err := rows.Scan(&c.ID, &c.SeasonID, &c.Name, &status, &c.UnlockTime,
			&c.Deadline, &c.CompletedAt, &c.Progress, &c.Order)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		c.Status = domain.ExplicitStatus(status)
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}
