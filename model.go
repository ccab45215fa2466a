package grade_export

import (
	"github.com/shopspring/decimal"
)

type Course struct {
	ID        int64
	ShortName string
	FullName  string
}

const (
	ItemTypeCourse   = "course"
	ItemTypeCategory = "category"
	ItemTypeMod      = "mod"
	ItemTypeManual   = "manual"
)

type GradeItem struct {
	ID            int64
	CourseID      int64
	ItemName      string
	ItemType      string
	ItemModule    string
	IDNumber      string
	GradeType     int
	GradeMax      decimal.Decimal
	GradeMin      decimal.Decimal
	// DecimalPoints is nil when the item uses the site default
	DecimalPoints *int
	SortOrder     int
	NeedsUpdate   bool
}

// GradeItems is an insertion ordered set of grade items keyed by item id.
type GradeItems struct {
	order []int64
	items map[int64]*GradeItem
}

func NewGradeItems(items ...*GradeItem) *GradeItems {
	gi := &GradeItems{items: make(map[int64]*GradeItem, len(items))}
	for _, item := range items {
		gi.Add(item)
	}
	return gi
}

// Add appends the item, replacing an earlier item with the same id in place.
func (gi *GradeItems) Add(item *GradeItem) {
	if _, exists := gi.items[item.ID]; !exists {
		gi.order = append(gi.order, item.ID)
	}
	gi.items[item.ID] = item
}

func (gi *GradeItems) Len() int {
	if gi == nil {
		return 0
	}
	return len(gi.order)
}

func (gi *GradeItems) Get(id int64) (*GradeItem, bool) {
	if gi == nil {
		return nil, false
	}
	item, ok := gi.items[id]
	return item, ok
}

func (gi *GradeItems) IDs() []int64 {
	if gi == nil {
		return nil
	}
	ids := make([]int64, len(gi.order))
	copy(ids, gi.order)
	return ids
}

func (gi *GradeItems) All() []*GradeItem {
	if gi == nil {
		return nil
	}
	res := make([]*GradeItem, 0, len(gi.order))
	for _, id := range gi.order {
		res = append(res, gi.items[id])
	}
	return res
}

type UserRow struct {
	ID          int64
	Username    string
	IDNumber    string
	FirstName   string
	LastName    string
	Email       string
	Institution string
	Department  string
	Phone1      string
	Phone2      string
	Address     string
	City        string
	Country     string

	SortKey1 string
	SortKey2 string

	// GroupName is only selected when no group filter is applied
	GroupName *string
	// CustomFields maps custom profile field short names to their stored data, nil for no data
	CustomFields map[string]*string

	Suspended bool
}

// GradeRow is one recorded grade. UserID 0 is the absent user id.
type GradeRow struct {
	ID             int64
	UserID         int64
	ItemID         int64
	RawGrade       decimal.NullDecimal
	FinalGrade     decimal.NullDecimal
	RawGradeMax    decimal.Decimal
	RawGradeMin    decimal.Decimal
	Feedback       string
	FeedbackFormat FeedbackFormat
	Hidden         bool
	Locked         bool
	Overridden     bool
	TimeModified   int64

	SortKey1 string
	SortKey2 string
}

type GradeValue struct {
	ID           int64
	UserID       int64
	ItemID       int64
	RawGrade     decimal.NullDecimal
	FinalGrade   decimal.NullDecimal
	RawGradeMax  decimal.Decimal
	RawGradeMin  decimal.Decimal
	Hidden       bool
	Locked       bool
	Overridden   bool
	TimeModified int64
}

type FeedbackFormat int

const (
	FeedbackFormatMoodle   FeedbackFormat = 0
	FeedbackFormatHTML     FeedbackFormat = 1
	FeedbackFormatPlain    FeedbackFormat = 2
	FeedbackFormatMarkdown FeedbackFormat = 4
)

type FeedbackValue struct {
	Feedback string
	Format   FeedbackFormat
}

// UserGradeBundle holds one user and a grade and feedback value for every configured item.
type UserGradeBundle struct {
	User      *UserRow
	Grades    map[int64]*GradeValue
	Feedbacks map[int64]*FeedbackValue
}
