package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

func (s *BaseStore) GetCourse(ctx context.Context, courseID int64) (*models.Course, error) {
	var course models.Course
	query := s.Converter(`
		SELECT id, short_name, full_name
		FROM courses
		WHERE id = ?
	`)

	err := s.DB.GetContext(ctx, &course, query, courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course %d: %w", courseID, err)
	}
	return &course, nil
}

func (s *BaseStore) ListGradeItems(ctx context.Context, courseID int64) ([]models.GradeItem, error) {
	var items []models.GradeItem
	query := s.Converter(`
		SELECT id, course_id, item_name, sort_order, hidden, grade_max
		FROM grade_items
		WHERE course_id = ?
		ORDER BY sort_order ASC, id ASC
	`)

	if err := s.DB.SelectContext(ctx, &items, query, courseID); err != nil {
		return nil, fmt.Errorf("failed to list grade items: %w", err)
	}
	return items, nil
}

// ListGradeRows returns one row per (enrolled user, graded item), plus a row
// with a NULL item for users without any grade yet. groupID 0 means every
// group.
func (s *BaseStore) ListGradeRows(ctx context.Context, courseID, groupID int64, onlyActive bool) ([]models.GradeRow, error) {
	conditions := []string{"e.course_id = ?"}
	args := []interface{}{courseID}
	if groupID != 0 {
		conditions = append(conditions, "e.group_id = ?")
		args = append(args, groupID)
	}
	if onlyActive {
		conditions = append(conditions, "e.active = ?")
		args = append(args, true)
	}

	query := s.Converter(`
		SELECT
			e.user_id,
			e.user_name,
			e.email,
			e.active,
			g.item_id,
			g.final_grade,
			g.feedback
		FROM enrolments e
		LEFT JOIN grades g
			ON g.user_id = e.user_id
			AND g.item_id IN (SELECT id FROM grade_items WHERE course_id = e.course_id)
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY e.user_name ASC, e.user_id ASC, g.item_id ASC
	`)

	var rows []models.GradeRow
	if err := s.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list grades: %w", err)
	}
	return rows, nil
}

func (s *BaseStore) IsGroupMember(ctx context.Context, courseID, groupID, userID int64) (bool, error) {
	var count int
	query := s.Converter(`
		SELECT COUNT(*)
		FROM enrolments
		WHERE course_id = ?
		AND group_id = ?
		AND user_id = ?
	`)

	if err := s.DB.GetContext(ctx, &count, query, courseID, groupID, userID); err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	return count > 0, nil
}
