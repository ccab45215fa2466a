// Package memsource is an in memory gradebook used to test exports without a database.
// Rows must be added in the order the streams are expected to produce them.
package memsource

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	ge "github.com/mimiro-io/grade-export"
)

type Source struct {
	mu sync.Mutex

	Courses      map[int64]*ge.Course
	Items        map[int64]*ge.GradeItems
	Users        []*ge.UserRow
	Grades       []*ge.GradeRow
	Suspended    map[int64]struct{}
	CustomFields []*ge.FieldDescriptor
	NeedsRegrade bool

	open int
}

func New() *Source {
	return &Source{
		Courses:   make(map[int64]*ge.Course),
		Items:     make(map[int64]*ge.GradeItems),
		Suspended: make(map[int64]struct{}),
	}
}

// OpenCursors is the number of streams not closed yet.
func (s *Source) OpenCursors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Source) Course(_ context.Context, courseID int64) (*ge.Course, error) {
	c, ok := s.Courses[courseID]
	if !ok {
		return nil, ge.Errorf(ge.LayerErrorNotFound, "course %d not found", courseID)
	}
	return c, nil
}

func (s *Source) GradeItems(_ context.Context, courseID int64) (*ge.GradeItems, error) {
	items, ok := s.Items[courseID]
	if !ok {
		return ge.NewGradeItems(), nil
	}
	return items, nil
}

func (s *Source) CustomProfileFields(_ context.Context, shortNames []string) ([]*ge.FieldDescriptor, error) {
	var res []*ge.FieldDescriptor
	for _, name := range shortNames {
		for _, f := range s.CustomFields {
			if f.ShortName == name {
				res = append(res, f)
			}
		}
	}
	return res, nil
}

func (s *Source) CourseNeedsRegrade(_ context.Context, _ int64) (bool, error) {
	return s.NeedsRegrade, nil
}

func (s *Source) OpenUsers(_ context.Context, q ge.StreamQuery) (ge.Cursor[*ge.UserRow], error) {
	var users []*ge.UserRow
	for _, u := range s.Users {
		if q.OnlyActive {
			if _, suspended := s.Suspended[u.ID]; suspended {
				continue
			}
		}
		copied := *u
		users = append(users, &copied)
	}
	return newCursor(s, users), nil
}

func (s *Source) OpenGrades(_ context.Context, q ge.StreamQuery, itemIDs []int64) (ge.Cursor[*ge.GradeRow], error) {
	wanted := make(map[int64]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}
	var grades []*ge.GradeRow
	for _, g := range s.Grades {
		if !wanted[g.ItemID] {
			continue
		}
		if q.OnlyActive {
			if _, suspended := s.Suspended[g.UserID]; suspended {
				continue
			}
		}
		grades = append(grades, g)
	}
	return newCursor(s, grades), nil
}

func (s *Source) SuspendedUserIDs(_ context.Context, _ int64) (map[int64]struct{}, error) {
	return s.Suspended, nil
}

// User adds a user, sorted by first name when the default export order is used.
func (s *Source) User(id int64, first, last, group string) *ge.UserRow {
	u := &ge.UserRow{
		ID:        id,
		Username:  first,
		FirstName: first,
		LastName:  last,
		Email:     first + "@example.com",
	}
	if group != "" {
		u.GroupName = &group
		u.SortKey1 = group
	}
	u.SortKey2 = first
	s.Users = append(s.Users, u)
	return u
}

// Grade adds a final grade, value "" adds a grade without value.
func (s *Source) Grade(userID, itemID int64, value string, feedback string, format ge.FeedbackFormat) *ge.GradeRow {
	g := &ge.GradeRow{
		ID:             userID*1000 + itemID,
		UserID:         userID,
		ItemID:         itemID,
		Feedback:       feedback,
		FeedbackFormat: format,
	}
	if value != "" {
		g.FinalGrade = decimal.NewNullDecimal(decimal.RequireFromString(value))
	}
	s.Grades = append(s.Grades, g)
	return g
}

type cursor[T any] struct {
	s      *Source
	rows   []T
	index  int
	closed bool
}

func newCursor[T any](s *Source, rows []T) *cursor[T] {
	s.mu.Lock()
	s.open++
	s.mu.Unlock()
	return &cursor[T]{s: s, rows: rows}
}

func (c *cursor[T]) Valid() bool {
	return !c.closed && c.index < len(c.rows)
}

func (c *cursor[T]) Current() T {
	return c.rows[c.index]
}

func (c *cursor[T]) Next() error {
	c.index++
	return nil
}

func (c *cursor[T]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.s.mu.Lock()
	c.s.open--
	c.s.mu.Unlock()
	return nil
}
