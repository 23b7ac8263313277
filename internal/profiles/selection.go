package profiles

import "github.com/shrimpsizemoose/exportprofiles/internal/models"

// Widget is the client-side state of the export form: the profile
// drop-down, the item checkboxes and the two notice groups. It never touches
// storage; Effect tells the caller when the form has to go back to the
// server.
type Widget struct {
	Selected       models.Selector `json:"selected"`
	Checked        map[int64]bool  `json:"checked"`
	SaveVisible    bool            `json:"save_visible"`
	ChangesVisible bool            `json:"changes_visible"`
}

type Effect struct {
	Submit bool
}

// NewWidget mirrors a freshly rendered form. Both groups start hidden.
func NewWidget(form *FormState) *Widget {
	w := &Widget{
		Selected: form.Selected,
		Checked:  make(map[int64]bool, len(form.Items)),
	}
	for _, item := range form.Items {
		w.Checked[item.ID] = item.Included
	}
	return w
}

// OptionChanged handles an edit of any export option or item checkbox.
func (w *Widget) OptionChanged() Effect {
	w.ChangesVisible = true

	switch w.Selected.Kind {
	case models.SelectorLastState, models.SelectorSelectAll, models.SelectorSelectNone:
		w.Selected = models.SelectNew
		w.SaveVisible = true
	}
	return Effect{}
}

// Toggle flips one item checkbox and counts as an option change.
func (w *Widget) Toggle(itemID int64) Effect {
	w.Checked[itemID] = !w.Checked[itemID]
	return w.OptionChanged()
}

func (w *Widget) SelectorChanged(sel models.Selector) Effect {
	w.Selected = sel

	switch sel.Kind {
	case models.SelectorSelectAll, models.SelectorSelectNone:
		check := sel.Kind == models.SelectorSelectAll
		for id := range w.Checked {
			w.Checked[id] = check
		}
		w.SaveVisible = false
		w.ChangesVisible = false
		return Effect{}
	case models.SelectorNew:
		w.SaveVisible = true
		return Effect{}
	default:
		return Effect{Submit: true}
	}
}
