package export

import (
	"strconv"
	"time"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

const (
	missingGrade  = "-"
	exportedLabel = "Last downloaded from this course"
)

// Cell holds the rendered text and, for numeric grades, the raw value so
// spreadsheet writers can store a real number.
type Cell struct {
	Text    string
	Number  float64
	Numeric bool
}

func textCell(s string) Cell {
	return Cell{Text: s}
}

type Sheet struct {
	Title  string
	Header []string
	Rows   [][]Cell
}

type letterBoundary struct {
	min    float64
	letter string
}

var letterBoundaries = []letterBoundary{
	{93, "A"},
	{90, "A-"},
	{87, "B+"},
	{83, "B"},
	{80, "B-"},
	{77, "C+"},
	{73, "C"},
	{70, "C-"},
	{67, "D+"},
	{60, "D"},
	{0, "F"},
}

func letterFor(percent float64) string {
	for _, b := range letterBoundaries {
		if percent >= b.min {
			return b.letter
		}
	}
	return "F"
}

var displayLabels = map[models.DisplayType]string{
	models.DisplayReal:       "Real",
	models.DisplayPercentage: "Percentage",
	models.DisplayLetter:     "Letter",
}

// BuildSheet lays the grade rows out as one line per user: identity columns,
// then per item one column per display type plus optional feedback, then the
// export timestamp.
func BuildSheet(course *models.Course, items []models.GradeItem, rows []models.GradeRow, opts models.ExportOptions, exportedAt time.Time) *Sheet {
	displays := opts.DisplayTypes()

	sheet := &Sheet{
		Title:  course.ShortName,
		Header: []string{"Name", "Email address"},
	}
	for _, item := range items {
		for _, d := range displays {
			sheet.Header = append(sheet.Header, item.Name+" ("+displayLabels[d]+")")
		}
		if opts.Feedback {
			sheet.Header = append(sheet.Header, item.Name+" (Feedback)")
		}
	}
	sheet.Header = append(sheet.Header, exportedLabel)

	stamp := exportedAt.UTC().Format("2006-01-02 15:04")

	for _, user := range groupByUser(rows) {
		line := []Cell{textCell(user.name), textCell(user.email)}
		for _, item := range items {
			g, graded := user.grades[item.ID]
			for _, d := range displays {
				line = append(line, formatGrade(g, graded, item.GradeMax, d, opts.Decimals))
			}
			if opts.Feedback {
				line = append(line, textCell(g.Feedback.String))
			}
		}
		line = append(line, textCell(stamp))
		sheet.Rows = append(sheet.Rows, line)
	}

	return sheet
}

type userGrades struct {
	name   string
	email  string
	grades map[int64]models.GradeRow
}

func groupByUser(rows []models.GradeRow) []*userGrades {
	var users []*userGrades
	index := make(map[int64]*userGrades)

	for _, r := range rows {
		u, ok := index[r.UserID]
		if !ok {
			u = &userGrades{name: r.UserName, email: r.Email, grades: make(map[int64]models.GradeRow)}
			index[r.UserID] = u
			users = append(users, u)
		}
		if r.ItemID.Valid {
			u.grades[r.ItemID.Int64] = r
		}
	}
	return users
}

func formatGrade(g models.GradeRow, graded bool, gradeMax float64, display models.DisplayType, decimals int) Cell {
	if !graded || !g.FinalGrade.Valid {
		return textCell(missingGrade)
	}

	value := g.FinalGrade.Float64
	percent := 0.0
	if gradeMax > 0 {
		percent = value / gradeMax * 100
	}

	switch display {
	case models.DisplayPercentage:
		return Cell{
			Text:    strconv.FormatFloat(percent, 'f', decimals, 64) + " %",
			Number:  round(percent, decimals),
			Numeric: true,
		}
	case models.DisplayLetter:
		return textCell(letterFor(percent))
	default:
		return Cell{
			Text:    strconv.FormatFloat(value, 'f', decimals, 64),
			Number:  round(value, decimals),
			Numeric: true,
		}
	}
}

func round(v float64, decimals int) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	return r
}
