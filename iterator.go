package grade_export

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// GradedUserIterator walks the users of a course together with their grades. Users and
// grades come from two cursors sorted by the same key; grades of a user are collected by
// reading the grade cursor until a row of another user shows up, which is kept in a single
// pushback slot for the next call.
type GradedUserIterator struct {
	source  RowSource
	course  *Course
	items   *GradeItems
	groupID int64
	sort1   SortKey
	sort2   SortKey
	logger  Logger
	metrics Metrics

	onlyActive        bool
	allowCustomFields bool

	users     Cursor[*UserRow]
	grades    Cursor[*GradeRow]
	pending   *GradeRow
	suspended map[int64]struct{}
}

// NewGradedUserIterator prepares an iterator. items may be nil to only return user data,
// a groupID of 0 means all groups. Nothing is read until Init.
func NewGradedUserIterator(
	source RowSource,
	course *Course,
	items *GradeItems,
	groupID int64,
	sort1, sort2 SortKey,
	logger Logger,
	metrics Metrics,
) *GradedUserIterator {
	return &GradedUserIterator{
		source:  source,
		course:  course,
		items:   items,
		groupID: groupID,
		sort1:   sort1,
		sort2:   sort2,
		logger:  logger,
		metrics: metrics,
	}
}

// Init opens the row streams. It returns false when the course total needs to be
// recalculated, the export must then be aborted.
func (it *GradedUserIterator) Init(ctx context.Context) (bool, error) {
	if err := it.Close(); err != nil {
		return false, err
	}

	stale, err := it.source.CourseNeedsRegrade(ctx, it.course.ID)
	if err != nil {
		return false, fmt.Errorf("checking course %d for pending regrade: %w", it.course.ID, err)
	}
	if stale {
		it.logger.Warn("course grades need to be recalculated", "course", it.course.ID)
		return false, nil
	}

	query := StreamQuery{
		CourseID:            it.course.ID,
		GroupID:             it.groupID,
		Order:               GroupOrder(UserOrder(it.sort1, it.sort2), it.groupID),
		OnlyActive:          it.onlyActive,
		IncludeCustomFields: it.allowCustomFields,
	}

	it.users, err = it.source.OpenUsers(ctx, query)
	if err != nil {
		return false, fmt.Errorf("opening user stream for course %d: %w", it.course.ID, err)
	}

	if !it.onlyActive {
		it.suspended, err = it.source.SuspendedUserIDs(ctx, it.course.ID)
		if err != nil {
			return false, multierr.Append(
				fmt.Errorf("loading suspended users for course %d: %w", it.course.ID, err), it.Close())
		}
	} else {
		it.suspended = nil
	}

	if it.items.Len() > 0 {
		it.grades, err = it.source.OpenGrades(ctx, query, it.items.IDs())
		if err != nil {
			return false, multierr.Append(
				fmt.Errorf("opening grade stream for course %d: %w", it.course.ID, err), it.Close())
		}
	}

	return true, nil
}

// NextUser returns the next user with all configured grades, or nil when there are no
// more users. Errors only come from reading the underlying streams.
func (it *GradedUserIterator) NextUser() (*UserGradeBundle, error) {
	if it.users == nil || !it.users.Valid() {
		if leftover := it.pending; leftover != nil {
			// the grade stream held rows for users that were never returned
			it.pending = nil
			it.logger.Warn("grade stream not exhausted after last user",
				"course", it.course.ID, "user", leftover.UserID, "item", leftover.ItemID)
			if err := it.metrics.Incr("export.stream.inconsistent", nil, 1); err != nil {
				it.logger.Warn("Error with metrics", "error", err.Error())
			}
		}
		return nil, nil
	}

	user := it.users.Current()
	if err := it.users.Next(); err != nil {
		return nil, fmt.Errorf("reading user stream: %w", err)
	}

	records := make(map[int64]*GradeRow)
	for {
		current, err := it.popGrade()
		if err != nil {
			return nil, err
		}
		if current == nil || current.UserID == 0 {
			break
		}
		if current.UserID != user.ID {
			it.pushGrade(current)
			break
		}
		records[current.ItemID] = current
	}

	bundle := &UserGradeBundle{
		User:      user,
		Grades:    make(map[int64]*GradeValue, it.items.Len()),
		Feedbacks: make(map[int64]*FeedbackValue, it.items.Len()),
	}
	for _, itemID := range it.items.IDs() {
		if record, ok := records[itemID]; ok {
			bundle.Grades[itemID], bundle.Feedbacks[itemID] = splitGradeFeedback(record)
		} else {
			bundle.Grades[itemID], bundle.Feedbacks[itemID] = emptyGradeFeedback(user.ID, itemID)
		}
	}

	_, user.Suspended = it.suspended[user.ID]
	return bundle, nil
}

// Close releases both streams. It is safe to call at any time and more than once.
func (it *GradedUserIterator) Close() error {
	var err error
	if it.users != nil {
		err = multierr.Append(err, it.users.Close())
		it.users = nil
	}
	if it.grades != nil {
		err = multierr.Append(err, it.grades.Close())
		it.grades = nil
	}
	it.pending = nil
	it.suspended = nil
	return err
}

// RequireActiveEnrolment limits the export to users with an active enrolment. It only
// affects streams opened by a later call to Init.
func (it *GradedUserIterator) RequireActiveEnrolment(onlyActive bool) {
	if it.users != nil {
		it.logger.Warn("RequireActiveEnrolment has no effect until Init is called again",
			"course", it.course.ID)
	}
	it.onlyActive = onlyActive
}

// AllowUserCustomFields joins the custom profile fields into the user stream, set before Init.
func (it *GradedUserIterator) AllowUserCustomFields(allow bool) {
	it.allowCustomFields = allow
}

func (it *GradedUserIterator) pushGrade(grade *GradeRow) {
	it.pending = grade
}

func (it *GradedUserIterator) popGrade() (*GradeRow, error) {
	if it.pending != nil {
		grade := it.pending
		it.pending = nil
		return grade, nil
	}
	if it.grades == nil || !it.grades.Valid() {
		return nil, nil
	}
	grade := it.grades.Current()
	if err := it.grades.Next(); err != nil {
		return nil, fmt.Errorf("reading grade stream: %w", err)
	}
	return grade, nil
}
