package profiles

import (
	"context"
	"fmt"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
	"github.com/shrimpsizemoose/exportprofiles/internal/store"
)

// Reader is the part of the profile store the resolver needs.
type Reader interface {
	GetProfiles(ctx context.Context, owner models.Owner) ([]models.Profile, error)
	GetLastProfileID(ctx context.Context, owner models.Owner) (int64, bool, error)
	GetProfileIDByName(ctx context.Context, owner models.Owner, name string) (int64, bool, error)
	GetItemStates(ctx context.Context, owner models.Owner, profileID int64) (map[int64]int, store.Access, error)
	GetOptions(ctx context.Context, owner models.Owner, profileID int64) (map[string]string, store.Access, error)
}

var sentinelLabels = map[models.SelectorKind]string{
	models.SelectorNew:        "new profile",
	models.SelectorLastState:  "last state",
	models.SelectorSelectAll:  "Select all",
	models.SelectorSelectNone: "Select none",
	models.SelectorEmpty:      "Choose...",
}

type Choice struct {
	Value models.Selector `json:"value"`
	Label string          `json:"label"`
}

type Item struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Included bool   `json:"included"`
	// New marks an item the loaded profile has no state for, i.e. one added
	// to the gradebook after the profile was saved.
	New bool `json:"new,omitempty"`
}

// FormState is everything the export form needs to render.
type FormState struct {
	Choices     []Choice             `json:"choices"`
	Selected    models.Selector      `json:"selected"`
	ProfileID   int64                `json:"profile_id,omitempty"`
	Items       []Item               `json:"items"`
	Options     models.ExportOptions `json:"options"`
	SaveVisible bool                 `json:"save_visible"`
}

// Viewer carries the capability bits that change what the form shows.
type Viewer struct {
	CanViewHidden    bool
	CanViewSuspended bool
}

type Resolver struct {
	store    Reader
	defaults models.ExportOptions
	display  models.DisplayType
}

func NewResolver(r Reader, defaults models.ExportOptions, display models.DisplayType) *Resolver {
	return &Resolver{
		store:    r,
		defaults: defaults,
		display:  display,
	}
}

func (r *Resolver) Defaults() models.ExportOptions {
	return r.defaults
}

func (r *Resolver) Choices(ctx context.Context, owner models.Owner) ([]Choice, error) {
	profiles, err := r.store.GetProfiles(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to populate profiles: %w", err)
	}

	if len(profiles) == 0 {
		return []Choice{
			sentinelChoice(models.SelectEmpty),
			sentinelChoice(models.SelectNew),
			sentinelChoice(models.SelectAll),
			sentinelChoice(models.SelectNone),
		}, nil
	}

	choices := []Choice{
		sentinelChoice(models.SelectNew),
		sentinelChoice(models.SelectLastState),
		sentinelChoice(models.SelectAll),
		sentinelChoice(models.SelectNone),
	}
	for _, p := range profiles {
		if p.IsLastState() {
			continue
		}
		choices = append(choices, Choice{Value: models.SelectProfile(p.ID), Label: p.Name})
	}
	return choices, nil
}

func sentinelChoice(sel models.Selector) Choice {
	return Choice{Value: sel, Label: sentinelLabels[sel.Kind]}
}

func hasChoice(choices []Choice, sel models.Selector) bool {
	for _, c := range choices {
		if c.Value == sel {
			return true
		}
	}
	return false
}

// DefaultSelection picks what the drop-down shows on page load.
func (r *Resolver) DefaultSelection(ctx context.Context, owner models.Owner, choices []Choice) (models.Selector, error) {
	id, ok, err := r.store.GetLastProfileID(ctx, owner)
	if err != nil {
		return models.Selector{}, fmt.Errorf("failed to get last profile: %w", err)
	}

	if ok && hasChoice(choices, models.SelectProfile(id)) {
		return models.SelectProfile(id), nil
	}
	if hasChoice(choices, models.SelectLastState) {
		return models.SelectLastState, nil
	}
	return models.SelectEmpty, nil
}

// ResolveSelection returns the stored profile a selector points at, if any.
func (r *Resolver) ResolveSelection(ctx context.Context, owner models.Owner, sel models.Selector) (int64, bool, error) {
	switch sel.Kind {
	case models.SelectorProfile:
		return sel.ProfileID, true, nil
	case models.SelectorLastState:
		id, ok, err := r.store.GetProfileIDByName(ctx, owner, models.LastStateName)
		if err != nil {
			return 0, false, fmt.Errorf("failed to resolve last state: %w", err)
		}
		return id, ok, nil
	default:
		return 0, false, nil
	}
}

// Resolve builds the form for sel. A nil selector means the default
// selection. items is the course's grade item catalogue in display order.
func (r *Resolver) Resolve(ctx context.Context, owner models.Owner, sel *models.Selector, items []models.GradeItem, viewer Viewer) (*FormState, error) {
	choices, err := r.Choices(ctx, owner)
	if err != nil {
		return nil, err
	}

	selected := models.SelectEmpty
	if sel != nil {
		selected = *sel
	} else {
		selected, err = r.DefaultSelection(ctx, owner, choices)
		if err != nil {
			return nil, err
		}
	}

	form := &FormState{
		Choices:  choices,
		Selected: selected,
	}

	var (
		states   map[int64]int
		stored   map[string]string
		force    = -1
		sourceID int64
	)

	switch selected.Kind {
	case models.SelectorProfile, models.SelectorLastState:
		id, ok, err := r.ResolveSelection(ctx, owner, selected)
		if err != nil {
			return nil, err
		}
		if ok {
			sourceID = id
			form.ProfileID = id
		}
	case models.SelectorSelectAll, models.SelectorSelectNone:
		id, ok, err := r.store.GetLastProfileID(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to get last profile: %w", err)
		}
		if ok {
			sourceID = id
		}
		force = 1
		if selected.Kind == models.SelectorSelectNone {
			force = 0
		}
	case models.SelectorNew:
		id, ok, err := r.store.GetLastProfileID(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to get last profile: %w", err)
		}
		if ok {
			sourceID = id
		}
		form.SaveVisible = true
	}

	if sourceID != 0 {
		stored, _, err = r.store.GetOptions(ctx, owner, sourceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile options: %w", err)
		}
		if force < 0 {
			states, _, err = r.store.GetItemStates(ctx, owner, sourceID)
			if err != nil {
				return nil, fmt.Errorf("failed to load item states: %w", err)
			}
		}
	}

	form.Items = buildItems(items, states, force, viewer.CanViewHidden)
	form.Options = models.OptionsFromMap(stored, r.defaults)
	form.Options.EnsureDisplay(r.display)
	if !viewer.CanViewSuspended {
		form.Options.OnlyActive = true
	}

	return form, nil
}

func buildItems(catalogue []models.GradeItem, states map[int64]int, force int, canViewHidden bool) []Item {
	items := make([]Item, 0, len(catalogue))
	for _, gi := range catalogue {
		if gi.Hidden && !canViewHidden {
			continue
		}

		item := Item{ID: gi.ID, Name: gi.Name}
		if force >= 0 {
			item.Included = force == 1
		} else {
			item.Included = models.ItemIncluded(states, gi.ID)
			_, stored := states[gi.ID]
			item.New = !stored && len(states) > 0
		}
		items = append(items, item)
	}
	return items
}
