package grade_export

import (
	"context"
	"strings"
)

type Stoppable interface {
	Stop(ctx context.Context) error
}

// Cursor is a lazily produced, ordered stream of rows. Valid reports whether Current holds a row.
type Cursor[T any] interface {
	Valid() bool
	Current() T
	Next() error
	Close() error
}

type SortDirection string

const (
	SortAscending  SortDirection = "ASC"
	SortDescending SortDirection = "DESC"
)

type SortKey struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

func (k SortKey) IsZero() bool {
	return k.Field == ""
}

// IsUserID reports whether the key orders by the unique user id.
func (k SortKey) IsUserID() bool {
	return k.Field == "id" || k.Field == UserIDField
}

func ParseSortDirection(s string) SortDirection {
	if strings.EqualFold(strings.TrimSpace(s), string(SortDescending)) {
		return SortDescending
	}
	return SortAscending
}

const (
	UserIDField    = "u.id"
	GroupNameField = "go.name"
)

// StreamQuery carries the already resolved inputs for both row streams of one export.
type StreamQuery struct {
	CourseID            int64
	GroupID             int64
	Order               []SortKey
	OnlyActive          bool
	IncludeCustomFields bool
}

type RowSource interface {
	CourseNeedsRegrade(ctx context.Context, courseID int64) (bool, error)
	OpenUsers(ctx context.Context, query StreamQuery) (Cursor[*UserRow], error)
	OpenGrades(ctx context.Context, query StreamQuery, itemIDs []int64) (Cursor[*GradeRow], error)
	SuspendedUserIDs(ctx context.Context, courseID int64) (map[int64]struct{}, error)
}

// UserOrder builds the compound key shared by the user and grade streams. The user id is
// appended whenever the configured fields do not already make the order total.
func UserOrder(sort1, sort2 SortKey) []SortKey {
	if sort1.IsZero() {
		return []SortKey{{Field: UserIDField, Direction: SortAscending}}
	}
	order := []SortKey{normalize(sort1)}
	if !sort2.IsZero() {
		order = append(order, normalize(sort2))
	}
	if !sort1.IsUserID() && !sort2.IsUserID() {
		order = append(order, SortKey{Field: UserIDField, Direction: SortAscending})
	}
	return order
}

// GroupOrder drops group name keys from order when a single group is exported, every
// row then has the same group name. The user id key keeps the order total.
func GroupOrder(order []SortKey, groupID int64) []SortKey {
	if groupID == 0 {
		return order
	}
	res := make([]SortKey, 0, len(order))
	for _, k := range order {
		if k.Field != GroupNameField {
			res = append(res, k)
		}
	}
	return res
}

func normalize(k SortKey) SortKey {
	return SortKey{Field: k.Field, Direction: ParseSortDirection(string(k.Direction))}
}
