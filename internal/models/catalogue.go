package models

import "database/sql"

type Course struct {
	ID        int64  `db:"id" json:"id"`
	ShortName string `db:"short_name" json:"short_name"`
	FullName  string `db:"full_name" json:"full_name"`
}

type GradeItem struct {
	ID        int64   `db:"id" json:"id"`
	CourseID  int64   `db:"course_id" json:"course_id"`
	Name      string  `db:"item_name" json:"name"`
	SortOrder int     `db:"sort_order" json:"sort_order"`
	Hidden    bool    `db:"hidden" json:"hidden"`
	GradeMax  float64 `db:"grade_max" json:"grade_max"`
}

// GradeRow is one enrolled user's grade for one item, as the catalogue join
// returns it.
type GradeRow struct {
	UserID     int64           `db:"user_id"`
	UserName   string          `db:"user_name"`
	Email      string          `db:"email"`
	Active     bool            `db:"active"`
	ItemID     sql.NullInt64   `db:"item_id"`
	FinalGrade sql.NullFloat64 `db:"final_grade"`
	Feedback   sql.NullString  `db:"feedback"`
}

type Identity struct {
	UserID       int64
	Capabilities map[string]bool
}

// Capabilities checked by the HTTP surface.
const (
	CapGradeExport   = "grade:export"
	CapProfilesView  = "profiles:view"
	CapViewHidden    = "grade:viewhidden"
	CapViewSuspended = "course:viewsuspended"
	CapSiteManage    = "site:manage"

	// CapAccessAllGroups lifts the group membership check on exports.
	CapAccessAllGroups = "site:accessallgroups"
)

func (i *Identity) Can(capability string) bool {
	return i != nil && i.Capabilities[capability]
}

func (i *Identity) Owner(courseID int64) Owner {
	return Owner{UserID: i.UserID, CourseID: courseID}
}
