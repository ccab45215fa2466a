package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mimiro-io/grade-export/encoder"

	ge "github.com/mimiro-io/grade-export"
)

const (
	suspendedKey    = "suspended"
	timeExportedKey = "time_exported"
	yes             = "Yes"
)

var moduleNames = map[string]string{
	"assign":      "Assignment",
	"quiz":        "Quiz",
	"forum":       "Forum",
	"lesson":      "Lesson",
	"workshop":    "Workshop",
	"glossary":    "Glossary",
	"data":        "Database",
	"scorm":       "SCORM package",
	"lti":         "External tool",
	"h5pactivity": "H5P",
}

// layout is the column plan of one export, fixed before the first row is read.
type layout struct {
	fields       []*ge.FieldDescriptor
	items        []*ge.GradeItem
	displayTypes []DisplayType
	feedback     bool
	suspended    bool
	decimals     *int
	columns      []encoder.Column
	factory      encoder.ItemFactory
}

func newLayout(fields []*ge.FieldDescriptor, items *ge.GradeItems, displayTypes []DisplayType, def *ge.ExportDefinition) *layout {
	l := &layout{
		fields:       fields,
		items:        items.All(),
		displayTypes: displayTypes,
		feedback:     def.ExportFeedback,
		suspended:    !def.OnlyActive,
		decimals:     def.DecimalPoints,
		factory:      &encoder.RowItemFactory{},
	}

	for _, f := range fields {
		l.columns = append(l.columns, encoder.Column{Key: fieldKey(f), Title: f.FullName})
	}
	if l.suspended {
		l.columns = append(l.columns, encoder.Column{Key: suspendedKey, Title: "Suspended"})
	}
	for _, item := range l.items {
		for _, dt := range displayTypes {
			l.columns = append(l.columns, encoder.Column{
				Key:   gradeKey(item.ID, string(dt)),
				Title: ColumnTitle(item, displayTitles[dt]),
			})
		}
		if l.feedback {
			l.columns = append(l.columns, encoder.Column{
				Key:   gradeKey(item.ID, "feedback"),
				Title: ColumnTitle(item, "feedback"),
			})
		}
	}
	l.columns = append(l.columns, encoder.Column{Key: timeExportedKey, Title: "Last downloaded from this course"})
	return l
}

func fieldKey(f *ge.FieldDescriptor) string {
	if f.Source == ge.FieldSourceCustom {
		return "profile_field_" + f.ShortName
	}
	return f.ShortName
}

func gradeKey(itemID int64, suffix string) string {
	return fmt.Sprintf("item_%d_%s", itemID, suffix)
}

// ItemName is the display name of a grade item, aggregate items are named after what they total.
func ItemName(item *ge.GradeItem) string {
	switch item.ItemType {
	case ge.ItemTypeCourse:
		return "Course total"
	case ge.ItemTypeCategory:
		if item.ItemName != "" {
			return item.ItemName + " total"
		}
		return "Category total"
	default:
		return item.ItemName
	}
}

// ColumnTitle formats a grade column header such as "Assignment: Essay (Real)".
func ColumnTitle(item *ge.GradeItem, label string) string {
	name := ItemName(item)
	if item.ItemType == ge.ItemTypeMod {
		module, ok := moduleNames[item.ItemModule]
		if !ok && item.ItemModule != "" {
			module = strings.ToUpper(item.ItemModule[:1]) + item.ItemModule[1:]
		}
		if module != "" {
			name = module + ": " + name
		}
	}
	return fmt.Sprintf("%s (%s)", name, label)
}

func (l *layout) itemDecimals(item *ge.GradeItem) int {
	if l.decimals != nil {
		return *l.decimals
	}
	if item.DecimalPoints != nil {
		return *item.DecimalPoints
	}
	return defaultDecimals
}

func (l *layout) row(bundle *ge.UserGradeBundle, exportedAt int64) encoder.Item {
	row := l.factory.NewItem()
	for _, f := range l.fields {
		row.SetValue(fieldKey(f), f.Value(bundle.User))
	}
	if l.suspended {
		suspended := ""
		if bundle.User.Suspended {
			suspended = yes
		}
		row.SetValue(suspendedKey, suspended)
	}
	for _, item := range l.items {
		grade := bundle.Grades[item.ID]
		for _, dt := range l.displayTypes {
			row.SetValue(gradeKey(item.ID, string(dt)), FormatGrade(grade, item, dt, l.itemDecimals(item)))
		}
		if l.feedback {
			row.SetValue(gradeKey(item.ID, "feedback"), FormatFeedback(bundle.Feedbacks[item.ID]))
		}
	}
	row.SetValue(timeExportedKey, strconv.FormatInt(exportedAt, 10))
	return row
}
