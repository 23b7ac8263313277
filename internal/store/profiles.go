package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

const profileColumns = `id, user_id, course_id, profile_name, is_last`

func (s *BaseStore) GetProfiles(ctx context.Context, owner models.Owner) ([]models.Profile, error) {
	var profiles []models.Profile
	query := s.Converter(`
		SELECT ` + profileColumns + `
		FROM export_profiles
		WHERE user_id = ?
		AND course_id = ?
		ORDER BY id ASC
	`)

	if err := s.DB.SelectContext(ctx, &profiles, query, owner.UserID, owner.CourseID); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

func (s *BaseStore) GetLastProfileID(ctx context.Context, owner models.Owner) (int64, bool, error) {
	var id int64
	query := s.Converter(`
		SELECT id
		FROM export_profiles
		WHERE user_id = ?
		AND course_id = ?
		AND is_last = ?
		ORDER BY id ASC
		LIMIT 1
	`)

	err := s.DB.GetContext(ctx, &id, query, owner.UserID, owner.CourseID, true)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get last profile: %w", err)
	}
	return id, true, nil
}

func (s *BaseStore) GetProfileIDByName(ctx context.Context, owner models.Owner, name string) (int64, bool, error) {
	p, err := s.profileByName(ctx, s.DB, owner, name)
	if err != nil {
		return 0, false, err
	}
	if p == nil {
		return 0, false, nil
	}
	return p.ID, true, nil
}

func (s *BaseStore) GetProfileName(ctx context.Context, owner models.Owner, profileID int64) (string, Access, error) {
	p, access, err := s.lookupProfile(ctx, s.DB, owner, profileID)
	if err != nil || !access.Granted() {
		return "", access, err
	}
	return p.Name, access, nil
}

func (s *BaseStore) GetItemStates(ctx context.Context, owner models.Owner, profileID int64) (map[int64]int, Access, error) {
	states := make(map[int64]int)

	_, access, err := s.lookupProfile(ctx, s.DB, owner, profileID)
	if err != nil || !access.Granted() {
		return states, access, err
	}

	var rows []models.ItemState
	query := s.Converter(`
		SELECT profile_id, grade_item_id, state
		FROM export_profile_items
		WHERE profile_id = ?
	`)
	if err := s.DB.SelectContext(ctx, &rows, query, profileID); err != nil {
		return states, access, fmt.Errorf("failed to get item states: %w", err)
	}

	for _, row := range rows {
		states[row.GradeItemID] = row.State
	}
	return states, access, nil
}

func (s *BaseStore) GetOptions(ctx context.Context, owner models.Owner, profileID int64) (map[string]string, Access, error) {
	options := make(map[string]string)

	_, access, err := s.lookupProfile(ctx, s.DB, owner, profileID)
	if err != nil || !access.Granted() {
		return options, access, err
	}

	var rows []models.ProfileOption
	query := s.Converter(`
		SELECT profile_id, opt, value
		FROM export_profile_options
		WHERE profile_id = ?
	`)
	if err := s.DB.SelectContext(ctx, &rows, query, profileID); err != nil {
		return options, access, fmt.Errorf("failed to get profile options: %w", err)
	}

	for _, row := range rows {
		options[row.Opt] = row.Value
	}
	return options, access, nil
}

// SetLast moves the last flag of the target's (user, course) onto the
// target. The scope comes from the target row itself, after it passed the
// ownership gate, so a foreign profile can never clear someone else's flag.
func (s *BaseStore) SetLast(ctx context.Context, owner models.Owner, profileID int64) (Access, error) {
	var access Access
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		p, a, err := s.lookupProfile(ctx, tx, owner, profileID)
		access = a
		if err != nil || !a.Granted() {
			return err
		}
		return s.markLast(ctx, tx, p)
	})
	return access, err
}

func (s *BaseStore) SaveProfile(ctx context.Context, owner models.Owner, req SaveRequest) (int64, error) {
	effectiveID := req.ProfileID

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if req.ProfileID != 0 {
			p, access, err := s.lookupProfile(ctx, tx, owner, req.ProfileID)
			if err != nil {
				return err
			}
			if access.Granted() {
				if err := s.updateLastFlag(ctx, tx, p, req.Last); err != nil {
					return err
				}
			}
		}

		if req.ProfileName != "" {
			p, err := s.profileByName(ctx, tx, owner, req.ProfileName)
			if err != nil {
				return err
			}

			if p != nil {
				effectiveID = p.ID
				if err := s.updateLastFlag(ctx, tx, p, req.Last); err != nil {
					return err
				}
			} else {
				if req.Last {
					if err := s.unsetLast(ctx, tx, owner); err != nil {
						return err
					}
				}
				id, err := s.insertProfile(ctx, tx, owner, req.ProfileName, req.Last)
				if err != nil {
					return err
				}
				effectiveID = id
			}
		}

		if effectiveID == 0 {
			return nil
		}

		_, access, err := s.lookupProfile(ctx, tx, owner, effectiveID)
		if err != nil || !access.Granted() {
			return err
		}

		if err := s.replaceItemStates(ctx, tx, effectiveID, req.Items); err != nil {
			return err
		}
		return s.replaceOptions(ctx, tx, effectiveID, req.Options)
	})
	if err != nil {
		return 0, err
	}

	return effectiveID, nil
}

func (s *BaseStore) DeleteProfile(ctx context.Context, owner models.Owner, profileID int64) (Access, error) {
	var access Access
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		p, a, err := s.lookupProfile(ctx, tx, owner, profileID)
		access = a
		if err != nil || !a.Granted() {
			return err
		}
		if p.IsLastState() {
			access = AccessProtected
			return nil
		}

		if p.Last {
			sentinel, err := s.profileByName(ctx, tx, owner, models.LastStateName)
			if err != nil {
				return err
			}
			if sentinel != nil {
				if err := s.markLast(ctx, tx, sentinel); err != nil {
					return err
				}
			}
		}

		return s.deleteProfileRows(ctx, tx, profileID)
	})
	return access, err
}

func (s *BaseStore) DeleteAllForCourse(ctx context.Context, courseID int64) (int64, error) {
	var deleted int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"export_profile_options", "export_profile_items"} {
			query := s.Converter(`
				DELETE FROM ` + table + `
				WHERE profile_id IN (SELECT id FROM export_profiles WHERE course_id = ?)
			`)
			if _, err := tx.ExecContext(ctx, query, courseID); err != nil {
				return fmt.Errorf("failed to purge %s of course %d: %w", table, courseID, err)
			}
		}

		res, err := tx.ExecContext(ctx, s.Converter(`DELETE FROM export_profiles WHERE course_id = ?`), courseID)
		if err != nil {
			return fmt.Errorf("failed to purge profiles of course %d: %w", courseID, err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

func (s *BaseStore) lookupProfile(ctx context.Context, q queryer, owner models.Owner, profileID int64) (*models.Profile, Access, error) {
	var p models.Profile
	query := s.Converter(`
		SELECT ` + profileColumns + `
		FROM export_profiles
		WHERE id = ?
	`)

	err := sqlx.GetContext(ctx, q, &p, query, profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, AccessNotFound, nil
	}
	if err != nil {
		return nil, AccessNotFound, fmt.Errorf("failed to get profile %d: %w", profileID, err)
	}
	if !owner.Owns(&p) {
		return nil, AccessDenied, nil
	}
	return &p, AccessGranted, nil
}

func (s *BaseStore) profileByName(ctx context.Context, q queryer, owner models.Owner, name string) (*models.Profile, error) {
	var p models.Profile
	query := s.Converter(`
		SELECT ` + profileColumns + `
		FROM export_profiles
		WHERE user_id = ?
		AND course_id = ?
		AND profile_name = ?
		ORDER BY id ASC
		LIMIT 1
	`)

	err := sqlx.GetContext(ctx, q, &p, query, owner.UserID, owner.CourseID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %q: %w", name, err)
	}
	return &p, nil
}

// markLast clears and sets the flag in one statement.
func (s *BaseStore) markLast(ctx context.Context, tx *sqlx.Tx, p *models.Profile) error {
	query := s.Converter(`
		UPDATE export_profiles
		SET is_last = (id = ?)
		WHERE user_id = ?
		AND course_id = ?
	`)
	if _, err := tx.ExecContext(ctx, query, p.ID, p.UserID, p.CourseID); err != nil {
		return fmt.Errorf("failed to set last profile %d: %w", p.ID, err)
	}
	return nil
}

func (s *BaseStore) unsetLast(ctx context.Context, tx *sqlx.Tx, owner models.Owner) error {
	query := s.Converter(`
		UPDATE export_profiles
		SET is_last = ?
		WHERE user_id = ?
		AND course_id = ?
		AND is_last = ?
	`)
	if _, err := tx.ExecContext(ctx, query, false, owner.UserID, owner.CourseID, true); err != nil {
		return fmt.Errorf("failed to unset last profile: %w", err)
	}
	return nil
}

func (s *BaseStore) updateLastFlag(ctx context.Context, tx *sqlx.Tx, p *models.Profile, last bool) error {
	if last {
		return s.markLast(ctx, tx, p)
	}

	query := s.Converter(`UPDATE export_profiles SET is_last = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, query, false, p.ID); err != nil {
		return fmt.Errorf("failed to update profile %d: %w", p.ID, err)
	}
	return nil
}

func (s *BaseStore) insertProfile(ctx context.Context, tx *sqlx.Tx, owner models.Owner, name string, last bool) (int64, error) {
	var id int64
	query := s.Converter(`
		INSERT INTO export_profiles (user_id, course_id, profile_name, is_last)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`)
	if err := tx.GetContext(ctx, &id, query, owner.UserID, owner.CourseID, name, last); err != nil {
		return 0, fmt.Errorf("failed to create profile %q: %w", name, err)
	}
	return id, nil
}

// replaceItemStates drops every stored state and writes the submitted ones.
func (s *BaseStore) replaceItemStates(ctx context.Context, tx *sqlx.Tx, profileID int64, items map[int64]int) error {
	if _, err := tx.ExecContext(ctx, s.Converter(`DELETE FROM export_profile_items WHERE profile_id = ?`), profileID); err != nil {
		return fmt.Errorf("failed to clear item states: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	rows := make([]models.ItemState, 0, len(items))
	for itemID, state := range items {
		rows = append(rows, models.ItemState{ProfileID: profileID, GradeItemID: itemID, State: state})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].GradeItemID < rows[j].GradeItemID })

	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO export_profile_items (profile_id, grade_item_id, state)
		VALUES (:profile_id, :grade_item_id, :state)
	`, rows)
	if err != nil {
		return fmt.Errorf("failed to write item states: %w", err)
	}
	return nil
}

func (s *BaseStore) replaceOptions(ctx context.Context, tx *sqlx.Tx, profileID int64, options map[string]string) error {
	if _, err := tx.ExecContext(ctx, s.Converter(`DELETE FROM export_profile_options WHERE profile_id = ?`), profileID); err != nil {
		return fmt.Errorf("failed to clear profile options: %w", err)
	}
	if len(options) == 0 {
		return nil
	}

	rows := make([]models.ProfileOption, 0, len(options))
	for opt, value := range options {
		rows = append(rows, models.ProfileOption{ProfileID: profileID, Opt: opt, Value: value})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Opt < rows[j].Opt })

	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO export_profile_options (profile_id, opt, value)
		VALUES (:profile_id, :opt, :value)
	`, rows)
	if err != nil {
		return fmt.Errorf("failed to write profile options: %w", err)
	}
	return nil
}

func (s *BaseStore) deleteProfileRows(ctx context.Context, tx *sqlx.Tx, profileID int64) error {
	for _, query := range []string{
		`DELETE FROM export_profile_items WHERE profile_id = ?`,
		`DELETE FROM export_profile_options WHERE profile_id = ?`,
		`DELETE FROM export_profiles WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.Converter(query), profileID); err != nil {
			return fmt.Errorf("failed to delete profile %d: %w", profileID, err)
		}
	}
	return nil
}
