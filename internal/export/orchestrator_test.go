package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
	"github.com/shrimpsizemoose/exportprofiles/internal/store"
	"github.com/shrimpsizemoose/exportprofiles/internal/store/sqlite"
	"github.com/shrimpsizemoose/exportprofiles/migrations"
)

var instructor = &models.Identity{
	UserID: 101,
	Capabilities: map[string]bool{
		models.CapGradeExport:  true,
		models.CapProfilesView: true,
	},
}

func setupOrchestrator(t *testing.T) (*Orchestrator, *sqlite.SQLiteStore, func()) {
	s, err := sqlite.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations(migrations.FS))

	_, err = s.DB.Exec(`
		INSERT INTO courses (id, short_name, full_name) VALUES (1, 'CS101', 'Intro');
		INSERT INTO grade_items (id, course_id, item_name, sort_order, grade_max) VALUES
			(10, 1, 'Quiz 1', 1, 10),
			(11, 1, 'Quiz 2', 2, 10);
		INSERT INTO enrolments (course_id, user_id, user_name, email, active) VALUES
			(1, 501, 'ann', 'ann@example.com', 1),
			(1, 502, 'bob', 'bob@example.com', 0);
		INSERT INTO grades (item_id, user_id, final_grade) VALUES
			(10, 501, 8),
			(11, 501, 6),
			(10, 502, 3);
	`)
	require.NoError(t, err)

	o := NewOrchestrator(s, NewRegistry(), models.DisplayReal)
	o.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }

	return o, s, func() { s.Close() }
}

func textOptions() models.ExportOptions {
	opts := models.DefaultOptions(models.DisplayReal, 1, false)
	opts.FileFormat = models.FormatText
	return opts
}

func TestRunExport(t *testing.T) {
	o, s, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()
	owner := instructor.Owner(1)

	t.Run("sentinel selection makes Last State the last profile", func(t *testing.T) {
		res, err := o.Run(ctx, instructor, ActionRequest{
			CourseID: 1,
			Action:   ActionExport,
			Selected: models.SelectEmpty,
			Items:    map[int64]bool{10: true, 11: false},
			Options:  textOptions(),
		})
		require.NoError(t, err)
		require.NotNil(t, res.File)

		assert.Equal(t, "CS101 Grades.txt", res.File.Name)
		assert.Equal(t, "Name,Email address,Quiz 1 (Real),Last downloaded from this course\nann,ann@example.com,8.0,2024-03-01 09:00\n", string(res.File.Data))

		lastID, ok, err := s.GetLastProfileID(ctx, owner)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, res.ProfileID, lastID)

		name, _, err := s.GetProfileName(ctx, owner, lastID)
		require.NoError(t, err)
		assert.Equal(t, models.LastStateName, name)

		states, _, err := s.GetItemStates(ctx, owner, lastID)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int{10: 1, 11: 0}, states)
	})

	t.Run("exporting a named profile keeps it last", func(t *testing.T) {
		named, err := o.Run(ctx, instructor, ActionRequest{
			CourseID:  1,
			Action:    ActionSaveNew,
			Selected:  models.SelectNew,
			NameInput: "weekly",
			Items:     map[int64]bool{10: true, 11: true},
			Options:   textOptions(),
		})
		require.NoError(t, err)

		res, err := o.Run(ctx, instructor, ActionRequest{
			CourseID: 1,
			Action:   ActionExport,
			Selected: models.SelectProfile(named.ProfileID),
			Items:    map[int64]bool{10: true, 11: true},
			Options:  textOptions(),
		})
		require.NoError(t, err)
		assert.NotEqual(t, named.ProfileID, res.ProfileID)

		lastID, _, err := s.GetLastProfileID(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, named.ProfileID, lastID)

		profiles, err := s.GetProfiles(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, profiles, 2)
	})

	t.Run("suspended users need the capability", func(t *testing.T) {
		opts := textOptions()
		opts.OnlyActive = false

		res, err := o.Run(ctx, instructor, ActionRequest{CourseID: 1, Action: ActionExport, Selected: models.SelectEmpty, Items: map[int64]bool{10: true}, Options: opts})
		require.NoError(t, err)
		assert.False(t, strings.Contains(string(res.File.Data), "bob"))

		manager := &models.Identity{UserID: 101, Capabilities: map[string]bool{models.CapViewSuspended: true}}
		res, err = o.Run(ctx, manager, ActionRequest{CourseID: 1, Action: ActionExport, Selected: models.SelectEmpty, Items: map[int64]bool{10: true}, Options: opts})
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(res.File.Data), "bob"))
	})

	t.Run("every format produces a file", func(t *testing.T) {
		for _, format := range []models.FileFormat{models.FormatODS, models.FormatExcel} {
			opts := textOptions()
			opts.FileFormat = format
			res, err := o.Run(ctx, instructor, ActionRequest{CourseID: 1, Action: ActionExport, Selected: models.SelectAll, Items: map[int64]bool{10: true}, Options: opts})
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(res.File.Name, "."+format.String()))
			assert.NotEmpty(t, res.File.Data)
		}
	})
}

func TestRunSaveAndSelect(t *testing.T) {
	o, s, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()
	owner := instructor.Owner(1)

	first, err := o.Run(ctx, instructor, ActionRequest{
		CourseID: 1, Action: ActionSaveNew, NameInput: "first",
		Items: map[int64]bool{10: true}, Options: textOptions(),
	})
	require.NoError(t, err)
	second, err := o.Run(ctx, instructor, ActionRequest{
		CourseID: 1, Action: ActionSaveNew, NameInput: "second",
		Items: map[int64]bool{11: true}, Options: textOptions(),
	})
	require.NoError(t, err)

	t.Run("save_new requires a name", func(t *testing.T) {
		_, err := o.Run(ctx, instructor, ActionRequest{CourseID: 1, Action: ActionSaveNew})
		assert.True(t, errors.Is(err, ErrNameRequired))
	})

	t.Run("save overwrites the selected profile", func(t *testing.T) {
		res, err := o.Run(ctx, instructor, ActionRequest{
			CourseID: 1, Action: ActionSave, Selected: models.SelectProfile(first.ProfileID),
			Items: map[int64]bool{10: false, 11: true}, Options: textOptions(),
		})
		require.NoError(t, err)
		assert.Equal(t, first.ProfileID, res.ProfileID)

		states, _, err := s.GetItemStates(ctx, owner, first.ProfileID)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int{10: 0, 11: 1}, states)

		lastID, _, err := s.GetLastProfileID(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, first.ProfileID, lastID)
	})

	t.Run("save on a sentinel does nothing", func(t *testing.T) {
		res, err := o.Run(ctx, instructor, ActionRequest{CourseID: 1, Action: ActionSave, Selected: models.SelectNew})
		require.NoError(t, err)
		assert.Zero(t, res.ProfileID)
	})

	t.Run("select marks the profile last", func(t *testing.T) {
		res, err := o.Run(ctx, instructor, ActionRequest{CourseID: 1, Action: ActionSelect, Selected: models.SelectProfile(second.ProfileID)})
		require.NoError(t, err)
		assert.Equal(t, second.ProfileID, res.ProfileID)

		lastID, _, err := s.GetLastProfileID(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, second.ProfileID, lastID)
	})

	t.Run("select b without a Last State row does nothing", func(t *testing.T) {
		res, err := o.Run(ctx, instructor, ActionRequest{CourseID: 1, Action: ActionSelect, Selected: models.SelectLastState})
		require.NoError(t, err)
		assert.Zero(t, res.ProfileID)
	})

	t.Run("select of a foreign profile does nothing", func(t *testing.T) {
		stranger := &models.Identity{UserID: 999}
		res, err := o.Run(ctx, stranger, ActionRequest{CourseID: 1, Action: ActionSelect, Selected: models.SelectProfile(first.ProfileID)})
		require.NoError(t, err)
		assert.Zero(t, res.ProfileID)

		lastID, _, err := s.GetLastProfileID(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, second.ProfileID, lastID)
	})
}

func TestRunRemoveAndConfirmDelete(t *testing.T) {
	o, s, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()
	owner := instructor.Owner(1)

	saved, err := o.Run(ctx, instructor, ActionRequest{
		CourseID: 1, Action: ActionSaveNew, NameInput: "midterm",
		Items: map[int64]bool{10: true}, Options: textOptions(),
	})
	require.NoError(t, err)

	t.Run("remove asks for confirmation", func(t *testing.T) {
		res, err := o.Run(ctx, instructor, ActionRequest{CourseID: 1, Action: ActionRemove, Selected: models.SelectProfile(saved.ProfileID)})
		require.NoError(t, err)
		assert.Equal(t, "Are you sure that you want to delete the profile midterm?", res.Confirm)
		assert.Equal(t, saved.ProfileID, res.ProfileID)

		profiles, err := s.GetProfiles(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, profiles, 1)
	})

	t.Run("remove of a foreign profile asks nothing", func(t *testing.T) {
		res, err := o.Run(ctx, &models.Identity{UserID: 5}, ActionRequest{CourseID: 1, Action: ActionRemove, Selected: models.SelectProfile(saved.ProfileID)})
		require.NoError(t, err)
		assert.Empty(t, res.Confirm)
	})

	t.Run("confirmed delete by someone else is ignored", func(t *testing.T) {
		access, err := o.ConfirmDelete(ctx, &models.Identity{UserID: 5}, 1, saved.ProfileID)
		require.NoError(t, err)
		assert.Equal(t, store.AccessDenied, access)
	})

	t.Run("confirmed delete", func(t *testing.T) {
		access, err := o.ConfirmDelete(ctx, instructor, 1, saved.ProfileID)
		require.NoError(t, err)
		assert.Equal(t, store.AccessGranted, access)

		profiles, err := s.GetProfiles(ctx, owner)
		require.NoError(t, err)
		assert.Empty(t, profiles)
	})
}

func TestRunErrors(t *testing.T) {
	o, _, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	_, err := o.Run(ctx, instructor, ActionRequest{CourseID: 42, Action: ActionExport})
	assert.True(t, errors.Is(err, ErrCourseNotFound))

	_, err = o.Run(ctx, instructor, ActionRequest{CourseID: 1, Action: "publish"})
	assert.True(t, errors.Is(err, ErrUnknownAction))

	_, err = o.ConfirmDelete(ctx, instructor, 42, 1)
	assert.True(t, errors.Is(err, ErrCourseNotFound))

	opts := textOptions()
	opts.Decimals = 9
	_, err = o.Run(ctx, instructor, ActionRequest{CourseID: 1, Action: ActionExport, Selected: models.SelectEmpty, Options: opts})
	assert.True(t, errors.Is(err, ErrInvalidOptions))
}

func TestRunGroupAccess(t *testing.T) {
	o, s, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	_, err := s.DB.Exec(`
		UPDATE enrolments SET group_id = 7 WHERE user_id = 501;
		UPDATE enrolments SET group_id = 8 WHERE user_id = 502;
		INSERT INTO enrolments (course_id, user_id, user_name, email, group_id) VALUES (1, 101, 'tutor', 'tutor@example.com', 7);
	`)
	require.NoError(t, err)

	exportGroup := func(identity *models.Identity, group int64) (*ActionResult, error) {
		return o.Run(ctx, identity, ActionRequest{
			CourseID: 1,
			GroupID:  group,
			Action:   ActionExport,
			Selected: models.SelectEmpty,
			Items:    map[int64]bool{10: true},
			Options:  textOptions(),
		})
	}

	t.Run("member of the group", func(t *testing.T) {
		res, err := exportGroup(instructor, 7)
		require.NoError(t, err)
		assert.Contains(t, string(res.File.Data), "ann")
		assert.NotContains(t, string(res.File.Data), "bob")
	})

	t.Run("not a member", func(t *testing.T) {
		_, err := exportGroup(instructor, 8)
		assert.True(t, errors.Is(err, ErrGroupAccess))
	})

	t.Run("not a member saving a profile", func(t *testing.T) {
		_, err := o.Run(ctx, instructor, ActionRequest{CourseID: 1, GroupID: 8, Action: ActionSaveNew, Selected: models.SelectNew, NameInput: "g8"})
		assert.True(t, errors.Is(err, ErrGroupAccess))
	})

	t.Run("access to all groups", func(t *testing.T) {
		admin := &models.Identity{UserID: 101, Capabilities: map[string]bool{models.CapAccessAllGroups: true, models.CapViewSuspended: true}}
		opts := textOptions()
		opts.OnlyActive = false
		res, err := o.Run(ctx, admin, ActionRequest{CourseID: 1, GroupID: 8, Action: ActionExport, Selected: models.SelectEmpty, Items: map[int64]bool{10: true}, Options: opts})
		require.NoError(t, err)
		assert.Contains(t, string(res.File.Data), "bob")
		assert.NotContains(t, string(res.File.Data), "ann")
	})
}
