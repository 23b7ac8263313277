package models

// LastStateName is the reserved auto-profile every (user, course) pair gets.
// It tracks whatever was exported most recently and can't be deleted.
const LastStateName = "Last State"

// Owner is the active (user, course) context. Every store and resolver call
// is scoped by it.
type Owner struct {
	UserID   int64 `json:"user_id"`
	CourseID int64 `json:"course_id"`
}

func (o Owner) Owns(p *Profile) bool {
	return p != nil && p.UserID == o.UserID && p.CourseID == o.CourseID
}

type Profile struct {
	ID       int64  `db:"id" json:"id"`
	UserID   int64  `db:"user_id" json:"user_id"`
	CourseID int64  `db:"course_id" json:"course_id"`
	Name     string `db:"profile_name" json:"name"`
	Last     bool   `db:"is_last" json:"last"`
}

func (p *Profile) IsLastState() bool {
	return p.Name == LastStateName
}

// ItemIncluded reports whether a grade item is part of an export given a
// profile's stored states. Items without a stored state are included.
func ItemIncluded(states map[int64]int, itemID int64) bool {
	state, ok := states[itemID]
	return !ok || state != 0
}

type ItemState struct {
	ID          int64 `db:"id" json:"-"`
	ProfileID   int64 `db:"profile_id" json:"profile_id"`
	GradeItemID int64 `db:"grade_item_id" json:"grade_item_id"`
	State       int   `db:"state" json:"state"`
}

type ProfileOption struct {
	ID        int64  `db:"id" json:"-"`
	ProfileID int64  `db:"profile_id" json:"profile_id"`
	Opt       string `db:"opt" json:"opt"`
	Value     string `db:"value" json:"value"`
}

/*
CREATE TABLE export_profiles (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    course_id BIGINT NOT NULL,
    profile_name VARCHAR(255) NOT NULL,
    is_last BOOLEAN NOT NULL DEFAULT FALSE
);
at most one is_last per (user_id, course_id), kept by the store, not by a constraint
*/
