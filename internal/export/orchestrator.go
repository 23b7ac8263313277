package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/exportprofiles/internal/metrics"
	"github.com/shrimpsizemoose/exportprofiles/internal/models"
	"github.com/shrimpsizemoose/exportprofiles/internal/store"
)

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrUnknownAction  = errors.New("unknown export action")
	ErrNameRequired   = errors.New("profile name is required")
	ErrGroupAccess    = errors.New("cannot access group")
	ErrInvalidOptions = errors.New("invalid export options")
)

const confirmDeleteTpl = "Are you sure that you want to delete the profile %s?"

type Action string

const (
	ActionSave    Action = "save"
	ActionSaveNew Action = "save_new"
	ActionRemove  Action = "remove"
	ActionExport  Action = "export"
	ActionSelect  Action = "select"
)

// ActionRequest is one submission of the export form.
type ActionRequest struct {
	CourseID  int64
	GroupID   int64
	Action    Action
	Selected  models.Selector
	NameInput string
	Items     map[int64]bool
	Options   models.ExportOptions
}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type ActionResult struct {
	Action    Action
	ProfileID int64
	// Confirm is set for ActionRemove when there is something to delete.
	Confirm string
	File    *File
}

type Orchestrator struct {
	store     store.Store
	exporters Registry
	display   models.DisplayType
	now       func() time.Time
}

func NewOrchestrator(s store.Store, exporters Registry, display models.DisplayType) *Orchestrator {
	return &Orchestrator{
		store:     s,
		exporters: exporters,
		display:   display,
		now:       time.Now,
	}
}

func (o *Orchestrator) Run(ctx context.Context, identity *models.Identity, req ActionRequest) (*ActionResult, error) {
	course, err := o.store.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, fmt.Errorf("%w: %d", ErrCourseNotFound, req.CourseID)
	}

	if req.GroupID != 0 && !identity.Can(models.CapAccessAllGroups) {
		member, err := o.store.IsGroupMember(ctx, course.ID, req.GroupID, identity.UserID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, fmt.Errorf("%w: %d", ErrGroupAccess, req.GroupID)
		}
	}

	owner := identity.Owner(course.ID)
	opts := req.Options
	opts.EnsureDisplay(o.display)
	if !identity.Can(models.CapViewSuspended) {
		opts.OnlyActive = true
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	var result *ActionResult
	switch req.Action {
	case ActionSave:
		result, err = o.save(ctx, owner, req, opts)
	case ActionSaveNew:
		result, err = o.saveNew(ctx, owner, req, opts)
	case ActionRemove:
		result, err = o.remove(ctx, owner, req)
	case ActionExport:
		result, err = o.export(ctx, owner, course, req, opts)
	case ActionSelect:
		result, err = o.selectProfile(ctx, owner, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
	if err != nil {
		return nil, err
	}

	metrics.ProfileActionsTotal.WithLabelValues(string(req.Action)).Inc()
	result.Action = req.Action
	return result, nil
}

// save overwrites the selected named profile. Sentinels have nothing to
// overwrite.
func (o *Orchestrator) save(ctx context.Context, owner models.Owner, req ActionRequest, opts models.ExportOptions) (*ActionResult, error) {
	if req.Selected.IsSentinel() {
		return &ActionResult{}, nil
	}

	id, err := o.store.SaveProfile(ctx, owner, store.SaveRequest{
		Items:     itemStates(req.Items),
		Options:   opts.OptionMap(),
		Last:      true,
		ProfileID: req.Selected.ProfileID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return &ActionResult{ProfileID: id}, nil
}

func (o *Orchestrator) saveNew(ctx context.Context, owner models.Owner, req ActionRequest, opts models.ExportOptions) (*ActionResult, error) {
	if req.NameInput == "" {
		return nil, ErrNameRequired
	}

	id, err := o.store.SaveProfile(ctx, owner, store.SaveRequest{
		Items:       itemStates(req.Items),
		Options:     opts.OptionMap(),
		Last:        true,
		ProfileName: req.NameInput,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	logger.Info.Printf("User %d saved profile %q (%d) in course %d", owner.UserID, req.NameInput, id, owner.CourseID)
	return &ActionResult{ProfileID: id}, nil
}

// remove only asks for confirmation; ConfirmDelete does the deletion.
func (o *Orchestrator) remove(ctx context.Context, owner models.Owner, req ActionRequest) (*ActionResult, error) {
	if req.Selected.IsSentinel() {
		return &ActionResult{}, nil
	}

	name, access, err := o.store.GetProfileName(ctx, owner, req.Selected.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile name: %w", err)
	}
	if !access.Granted() {
		logger.Debug.Printf("Remove of profile %d by user %d: %s", req.Selected.ProfileID, owner.UserID, access)
		return &ActionResult{}, nil
	}

	return &ActionResult{
		ProfileID: req.Selected.ProfileID,
		Confirm:   fmt.Sprintf(confirmDeleteTpl, name),
	}, nil
}

func (o *Orchestrator) export(ctx context.Context, owner models.Owner, course *models.Course, req ActionRequest, opts models.ExportOptions) (*ActionResult, error) {
	exporter, err := o.exporters.Get(opts.FileFormat)
	if err != nil {
		return nil, err
	}

	last := true
	if !req.Selected.IsSentinel() {
		last = false
		if _, err := o.store.SetLast(ctx, owner, req.Selected.ProfileID); err != nil {
			return nil, fmt.Errorf("failed to set last profile: %w", err)
		}
	}

	lastStateID, err := o.store.SaveProfile(ctx, owner, store.SaveRequest{
		Items:       itemStates(req.Items),
		Options:     opts.OptionMap(),
		Last:        last,
		ProfileName: models.LastStateName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save last state: %w", err)
	}

	items, err := o.selectedItems(ctx, course.ID, req.Items)
	if err != nil {
		return nil, err
	}
	rows, err := o.store.ListGradeRows(ctx, course.ID, req.GroupID, opts.OnlyActive)
	if err != nil {
		return nil, err
	}

	sheet := BuildSheet(course, items, rows, opts, o.now())
	var buf bytes.Buffer
	if err := exporter.Write(&buf, sheet, opts); err != nil {
		return nil, fmt.Errorf("failed to export grades: %w", err)
	}

	format := opts.FileFormat.String()
	metrics.ExportsTotal.WithLabelValues(format).Inc()
	metrics.ExportSizeBytes.WithLabelValues(format).Observe(float64(buf.Len()))
	logger.Info.Printf("User %d exported %d rows of course %d as %s", owner.UserID, len(sheet.Rows), course.ID, format)

	return &ActionResult{
		ProfileID: lastStateID,
		File: &File{
			Name:        Filename(course, exporter),
			ContentType: exporter.ContentType(),
			Data:        buf.Bytes(),
		},
	}, nil
}

func (o *Orchestrator) selectProfile(ctx context.Context, owner models.Owner, req ActionRequest) (*ActionResult, error) {
	var (
		id int64
		ok bool
	)
	switch req.Selected.Kind {
	case models.SelectorProfile:
		id, ok = req.Selected.ProfileID, true
	case models.SelectorLastState:
		var err error
		id, ok, err = o.store.GetProfileIDByName(ctx, owner, models.LastStateName)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve last state: %w", err)
		}
	}
	if !ok {
		return &ActionResult{}, nil
	}

	access, err := o.store.SetLast(ctx, owner, id)
	if err != nil {
		return nil, fmt.Errorf("failed to set last profile: %w", err)
	}
	if !access.Granted() {
		return &ActionResult{}, nil
	}
	return &ActionResult{ProfileID: id}, nil
}

// ConfirmDelete deletes a profile after the user confirmed it. Foreign,
// missing and protected profiles are left alone.
func (o *Orchestrator) ConfirmDelete(ctx context.Context, identity *models.Identity, courseID, profileID int64) (store.Access, error) {
	course, err := o.store.GetCourse(ctx, courseID)
	if err != nil {
		return store.AccessNotFound, err
	}
	if course == nil {
		return store.AccessNotFound, fmt.Errorf("%w: %d", ErrCourseNotFound, courseID)
	}

	access, err := o.store.DeleteProfile(ctx, identity.Owner(course.ID), profileID)
	if err != nil {
		return access, fmt.Errorf("failed to delete profile: %w", err)
	}
	if access.Granted() {
		logger.Info.Printf("User %d deleted profile %d in course %d", identity.UserID, profileID, course.ID)
	} else {
		logger.Debug.Printf("Delete of profile %d by user %d: %s", profileID, identity.UserID, access)
	}
	return access, nil
}

// selectedItems keeps the catalogue order and drops items the form left
// unchecked or never showed.
func (o *Orchestrator) selectedItems(ctx context.Context, courseID int64, checked map[int64]bool) ([]models.GradeItem, error) {
	all, err := o.store.ListGradeItems(ctx, courseID)
	if err != nil {
		return nil, err
	}

	var items []models.GradeItem
	for _, item := range all {
		if checked[item.ID] {
			items = append(items, item)
		}
	}
	return items, nil
}

func itemStates(checked map[int64]bool) map[int64]int {
	states := make(map[int64]int, len(checked))
	for id, on := range checked {
		if on {
			states[id] = 1
		} else {
			states[id] = 0
		}
	}
	return states
}
