package grade_export

import (
	"bytes"
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type sliceCursor[T any] struct {
	rows    []T
	index   int
	closed  bool
	failAt  int // Next fails when moving past this index, -1 never fails
	onClose func()
}

func newSliceCursor[T any](rows []T) *sliceCursor[T] {
	return &sliceCursor[T]{rows: rows, failAt: -1}
}

func (c *sliceCursor[T]) Valid() bool {
	return !c.closed && c.index < len(c.rows)
}

func (c *sliceCursor[T]) Current() T {
	return c.rows[c.index]
}

func (c *sliceCursor[T]) Next() error {
	if c.failAt >= 0 && c.index >= c.failAt {
		return errors.New("connection reset")
	}
	c.index++
	return nil
}

func (c *sliceCursor[T]) Close() error {
	if !c.closed && c.onClose != nil {
		c.onClose()
	}
	c.closed = true
	return nil
}

// memorySource serves rows that are already sorted the way the iterator expects.
type memorySource struct {
	users        []*UserRow
	grades       []*GradeRow
	suspended    map[int64]struct{}
	needsRegrade bool

	gradeFailAt int

	openCursors     int
	queries         []StreamQuery
	gradeItemIDs    []int64
	suspendedLoaded bool
}

func (m *memorySource) CourseNeedsRegrade(_ context.Context, _ int64) (bool, error) {
	return m.needsRegrade, nil
}

func (m *memorySource) OpenUsers(_ context.Context, query StreamQuery) (Cursor[*UserRow], error) {
	m.queries = append(m.queries, query)
	m.openCursors++
	c := newSliceCursor(m.users)
	c.onClose = func() { m.openCursors-- }
	return c, nil
}

func (m *memorySource) OpenGrades(_ context.Context, _ StreamQuery, itemIDs []int64) (Cursor[*GradeRow], error) {
	m.gradeItemIDs = itemIDs
	m.openCursors++
	c := newSliceCursor(m.grades)
	if m.gradeFailAt > 0 {
		c.failAt = m.gradeFailAt
	}
	c.onClose = func() { m.openCursors-- }
	return c, nil
}

func (m *memorySource) SuspendedUserIDs(_ context.Context, _ int64) (map[int64]struct{}, error) {
	m.suspendedLoaded = true
	return m.suspended, nil
}

func user(id int64, first string) *UserRow {
	return &UserRow{ID: id, FirstName: first, LastName: "Test", SortKey1: first}
}

func grade(userID, itemID int64, value string, feedback string) *GradeRow {
	return &GradeRow{
		ID:             userID*100 + itemID,
		UserID:         userID,
		ItemID:         itemID,
		FinalGrade:     decimal.NewNullDecimal(decimal.RequireFromString(value)),
		Feedback:       feedback,
		FeedbackFormat: FeedbackFormatHTML,
	}
}

func testLogger(buf *bytes.Buffer) Logger {
	if buf == nil {
		buf = &bytes.Buffer{}
	}
	return newLogger(buf, "test", "json", "debug")
}
