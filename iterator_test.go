package grade_export

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestIterator(src *memorySource, items *GradeItems, log *bytes.Buffer) *GradedUserIterator {
	course := &Course{ID: 7, ShortName: "MATH101"}
	return NewGradedUserIterator(src, course, items, 0,
		SortKey{Field: "u.firstname", Direction: SortAscending}, SortKey{},
		testLogger(log), NoOpMetrics())
}

func collect(t *testing.T, it *GradedUserIterator) []*UserGradeBundle {
	t.Helper()
	var res []*UserGradeBundle
	for {
		b, err := it.NextUser()
		if err != nil {
			t.Fatalf("NextUser failed: %v", err)
		}
		if b == nil {
			return res
		}
		res = append(res, b)
	}
}

func TestIteratorGradeMissingForSecondUser(t *testing.T) {
	src := &memorySource{
		users:  []*UserRow{user(1, "Ann"), user(2, "Bob")},
		grades: []*GradeRow{grade(1, 10, "55.5", "<p>good</p>")},
	}
	items := NewGradeItems(&GradeItem{ID: 10, ItemName: "Essay"})
	it := newTestIterator(src, items, nil)
	defer it.Close()

	ok, err := it.Init(context.Background())
	if err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}

	bundles := collect(t, it)
	if len(bundles) != 2 {
		t.Fatalf("expected 2 bundles, got %d", len(bundles))
	}

	first := bundles[0]
	if first.User.ID != 1 {
		t.Errorf("expected user 1 first, got %d", first.User.ID)
	}
	if g := first.Grades[10]; g.ID != 110 || g.FinalGrade.Decimal.String() != "55.5" {
		t.Errorf("unexpected grade for user 1: %+v", g)
	}
	if diff := cmp.Diff(&FeedbackValue{Feedback: "<p>good</p>", Format: FeedbackFormatHTML}, first.Feedbacks[10]); diff != "" {
		t.Errorf("feedback mismatch (-want +got):\n%s", diff)
	}

	second := bundles[1]
	g := second.Grades[10]
	if g.ID != 0 || g.UserID != 2 || g.ItemID != 10 || g.FinalGrade.Valid {
		t.Errorf("expected synthesized grade for user 2, got %+v", g)
	}
	if diff := cmp.Diff(&FeedbackValue{Feedback: "", Format: FeedbackFormatMoodle}, second.Feedbacks[10]); diff != "" {
		t.Errorf("feedback mismatch (-want +got):\n%s", diff)
	}
}

func TestIteratorWithoutGradeItems(t *testing.T) {
	src := &memorySource{
		users:  []*UserRow{user(1, "Ann"), user(2, "Bob")},
		grades: []*GradeRow{grade(1, 10, "1", ""), grade(2, 10, "2", "")},
	}
	for _, items := range []*GradeItems{nil, NewGradeItems()} {
		it := newTestIterator(src, items, nil)
		ok, err := it.Init(context.Background())
		if err != nil || !ok {
			t.Fatalf("Init() = %v, %v", ok, err)
		}
		bundles := collect(t, it)
		if len(bundles) != 2 {
			t.Fatalf("expected 2 bundles, got %d", len(bundles))
		}
		for _, b := range bundles {
			if len(b.Grades) != 0 || len(b.Feedbacks) != 0 {
				t.Errorf("expected empty grades for user %d, got %v / %v", b.User.ID, b.Grades, b.Feedbacks)
			}
		}
		if src.gradeItemIDs != nil {
			t.Error("grade stream should not be opened without grade items")
		}
		if err := it.Close(); err != nil {
			t.Error(err)
		}
	}
}

func TestIteratorStaleCourseTotal(t *testing.T) {
	src := &memorySource{needsRegrade: true, users: []*UserRow{user(1, "Ann")}}
	it := newTestIterator(src, NewGradeItems(&GradeItem{ID: 10}), nil)

	ok, err := it.Init(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("Init should report stale grades")
	}
	if src.openCursors != 0 {
		t.Errorf("no stream should be open, got %d", src.openCursors)
	}

	b, err := it.NextUser()
	if err != nil || b != nil {
		t.Errorf("NextUser after failed init = %v, %v; want nil, nil", b, err)
	}
	if err := it.Close(); err != nil {
		t.Error(err)
	}
}

func TestIteratorOnlyActiveNeverSuspends(t *testing.T) {
	src := &memorySource{
		users:     []*UserRow{user(1, "Ann"), user(2, "Bob")},
		suspended: map[int64]struct{}{1: {}, 2: {}},
	}
	it := newTestIterator(src, nil, nil)
	it.RequireActiveEnrolment(true)

	ok, err := it.Init(context.Background())
	if err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}
	for _, b := range collect(t, it) {
		if b.User.Suspended {
			t.Errorf("user %d should not be flagged suspended", b.User.ID)
		}
	}
	if src.suspendedLoaded {
		t.Error("suspended users should not be loaded when only active users are exported")
	}
	if !src.queries[0].OnlyActive {
		t.Error("stream query should carry the active enrolment filter")
	}
	it.Close()
}

func TestIteratorFlagsSuspendedUsers(t *testing.T) {
	src := &memorySource{
		users:     []*UserRow{user(1, "Ann"), user(2, "Bob")},
		suspended: map[int64]struct{}{2: {}},
	}
	it := newTestIterator(src, nil, nil)
	ok, err := it.Init(context.Background())
	if err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}
	bundles := collect(t, it)
	if bundles[0].User.Suspended || !bundles[1].User.Suspended {
		t.Errorf("expected only user 2 suspended, got %v %v", bundles[0].User.Suspended, bundles[1].User.Suspended)
	}
	it.Close()
}

func TestIteratorGradeStreamEndsEarly(t *testing.T) {
	src := &memorySource{
		users:  []*UserRow{user(1, "Ann"), user(2, "Bob"), user(3, "Cid")},
		grades: []*GradeRow{grade(1, 10, "1", "a"), grade(1, 11, "2", "b")},
	}
	items := NewGradeItems(&GradeItem{ID: 10}, &GradeItem{ID: 11})
	it := newTestIterator(src, items, nil)
	ok, err := it.Init(context.Background())
	if err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}

	bundles := collect(t, it)
	if len(bundles) != 3 {
		t.Fatalf("expected 3 bundles, got %d", len(bundles))
	}
	for _, b := range bundles[1:] {
		for _, id := range []int64{10, 11} {
			if b.Grades[id].FinalGrade.Valid || b.Grades[id].UserID != b.User.ID || b.Feedbacks[id].Feedback != "" {
				t.Errorf("user %d item %d should be synthesized, got %+v", b.User.ID, id, b.Grades[id])
			}
		}
	}
	it.Close()
}

func TestIteratorPushbackKeepsEveryRow(t *testing.T) {
	src := &memorySource{
		users: []*UserRow{user(1, "A"), user(2, "B"), user(3, "C"), user(4, "D")},
		grades: []*GradeRow{
			grade(1, 10, "1", ""), grade(1, 11, "2", ""), grade(1, 12, "3", ""),
			grade(3, 11, "4", ""),
			grade(4, 10, "5", ""), grade(4, 12, "6", ""),
		},
	}
	items := NewGradeItems(&GradeItem{ID: 10}, &GradeItem{ID: 11}, &GradeItem{ID: 12})
	it := newTestIterator(src, items, nil)
	ok, err := it.Init(context.Background())
	if err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}

	want := map[int64][]int64{1: {10, 11, 12}, 2: nil, 3: {11}, 4: {10, 12}}
	var order []int64
	for _, b := range collect(t, it) {
		order = append(order, b.User.ID)
		var got []int64
		for _, id := range items.IDs() {
			if len(b.Grades) != items.Len() || len(b.Feedbacks) != items.Len() {
				t.Fatalf("user %d is missing item entries", b.User.ID)
			}
			g := b.Grades[id]
			if g.FinalGrade.Valid {
				if g.UserID != b.User.ID {
					t.Errorf("grade of user %d ended up with user %d", g.UserID, b.User.ID)
				}
				got = append(got, id)
			}
		}
		if diff := cmp.Diff(want[b.User.ID], got); diff != "" {
			t.Errorf("user %d grades mismatch (-want +got):\n%s", b.User.ID, diff)
		}
	}
	if diff := cmp.Diff([]int64{1, 2, 3, 4}, order); diff != "" {
		t.Errorf("user order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{10, 11, 12}, src.gradeItemIDs); diff != "" {
		t.Errorf("item ids mismatch (-want +got):\n%s", diff)
	}
	it.Close()
}

func TestIteratorStopsAtEmptyUserID(t *testing.T) {
	src := &memorySource{
		users:  []*UserRow{user(1, "A"), user(2, "B")},
		grades: []*GradeRow{grade(1, 10, "1", ""), {ItemID: 10}, grade(2, 10, "2", "")},
	}
	it := newTestIterator(src, NewGradeItems(&GradeItem{ID: 10}), nil)
	ok, err := it.Init(context.Background())
	if err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}
	bundles := collect(t, it)
	if !bundles[0].Grades[10].FinalGrade.Valid {
		t.Error("user 1 should have a grade")
	}
	if it.pending != nil {
		t.Error("a row without user id must not be pushed back")
	}
	if !bundles[1].Grades[10].FinalGrade.Valid {
		t.Error("user 2 should have a grade")
	}
	it.Close()
}

func TestIteratorWarnsOnLeftoverGrades(t *testing.T) {
	log := &bytes.Buffer{}
	src := &memorySource{
		users:  []*UserRow{user(1, "A")},
		grades: []*GradeRow{grade(1, 10, "1", ""), grade(9, 10, "2", "")},
	}
	it := newTestIterator(src, NewGradeItems(&GradeItem{ID: 10}), log)
	ok, err := it.Init(context.Background())
	if err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}
	bundles := collect(t, it)
	if len(bundles) != 1 {
		t.Fatalf("expected 1 bundle, got %d", len(bundles))
	}
	if it.pending != nil {
		t.Error("pushback should be drained once the users are exhausted")
	}
	if !strings.Contains(log.String(), "grade stream not exhausted") {
		t.Errorf("expected consistency warning, got %s", log.String())
	}
	it.Close()
}

func TestIteratorPropagatesStreamErrors(t *testing.T) {
	src := &memorySource{
		users:       []*UserRow{user(1, "A"), user(2, "B")},
		grades:      []*GradeRow{grade(1, 10, "1", ""), grade(2, 10, "2", ""), grade(2, 11, "3", "")},
		gradeFailAt: 2,
	}
	it := newTestIterator(src, NewGradeItems(&GradeItem{ID: 10}, &GradeItem{ID: 11}), nil)
	ok, err := it.Init(context.Background())
	if err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}
	if _, err := it.NextUser(); err != nil {
		t.Fatalf("first user should be fine: %v", err)
	}
	if _, err := it.NextUser(); err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("expected stream error, got %v", err)
	}
	it.Close()
}

func TestIteratorCloseIsIdempotent(t *testing.T) {
	src := &memorySource{
		users:  []*UserRow{user(1, "A"), user(2, "B")},
		grades: []*GradeRow{grade(1, 10, "1", ""), grade(2, 10, "2", "")},
	}
	it := newTestIterator(src, NewGradeItems(&GradeItem{ID: 10}), nil)
	if err := it.Close(); err != nil {
		t.Errorf("close before init: %v", err)
	}

	ok, err := it.Init(context.Background())
	if err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}
	if src.openCursors != 2 {
		t.Fatalf("expected 2 open cursors, got %d", src.openCursors)
	}
	if _, err := it.NextUser(); err != nil {
		t.Fatal(err)
	}
	if it.pending == nil {
		t.Fatal("expected the grade of user 2 in the pushback slot")
	}

	if err := it.Close(); err != nil {
		t.Error(err)
	}
	if err := it.Close(); err != nil {
		t.Error(err)
	}
	if src.openCursors != 0 {
		t.Errorf("expected all cursors closed, got %d open", src.openCursors)
	}
	if it.pending != nil {
		t.Error("close should clear the pushback slot")
	}
	if b, err := it.NextUser(); b != nil || err != nil {
		t.Errorf("NextUser after close = %v, %v", b, err)
	}
}

func TestIteratorReinitClosesPreviousStreams(t *testing.T) {
	src := &memorySource{users: []*UserRow{user(1, "A")}, grades: []*GradeRow{grade(1, 10, "1", "")}}
	it := newTestIterator(src, NewGradeItems(&GradeItem{ID: 10}), nil)
	for i := 0; i < 2; i++ {
		if ok, err := it.Init(context.Background()); err != nil || !ok {
			t.Fatalf("Init() = %v, %v", ok, err)
		}
	}
	if src.openCursors != 2 {
		t.Errorf("expected streams of the first Init to be closed, %d open", src.openCursors)
	}
	it.Close()
}

func TestRequireActiveEnrolmentAfterInitWarns(t *testing.T) {
	log := &bytes.Buffer{}
	src := &memorySource{users: []*UserRow{user(1, "A")}}
	it := newTestIterator(src, nil, log)
	it.RequireActiveEnrolment(true)
	if strings.Contains(log.String(), "no effect") {
		t.Error("no warning expected before Init")
	}
	if ok, err := it.Init(context.Background()); err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}
	it.RequireActiveEnrolment(false)
	if !strings.Contains(log.String(), "no effect until Init") {
		t.Errorf("expected developer warning, got %s", log.String())
	}
	it.Close()
}

func TestAllowUserCustomFieldsReachesQuery(t *testing.T) {
	src := &memorySource{}
	it := newTestIterator(src, nil, nil)
	it.AllowUserCustomFields(true)
	if ok, err := it.Init(context.Background()); err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}
	if !src.queries[0].IncludeCustomFields {
		t.Error("expected custom fields in stream query")
	}
	if b, err := it.NextUser(); b != nil || err != nil {
		t.Errorf("empty course should end immediately, got %v, %v", b, err)
	}
	it.Close()
}

func TestUserOrder(t *testing.T) {
	tests := []struct {
		name         string
		sort1, sort2 SortKey
		want         []SortKey
	}{
		{"no sort", SortKey{}, SortKey{}, []SortKey{{"u.id", SortAscending}}},
		{"two fields", SortKey{"go.name", "asc"}, SortKey{"u.firstname", "DESC"},
			[]SortKey{{"go.name", SortAscending}, {"u.firstname", SortDescending}, {"u.id", SortAscending}}},
		{"id already present", SortKey{"u.lastname", SortAscending}, SortKey{"id", SortDescending},
			[]SortKey{{"u.lastname", SortAscending}, {"id", SortDescending}}},
		{"single field", SortKey{"u.email", ""}, SortKey{},
			[]SortKey{{"u.email", SortAscending}, {"u.id", SortAscending}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, UserOrder(tt.sort1, tt.sort2)); diff != "" {
				t.Errorf("UserOrder mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type failingMetrics struct{}

func (failingMetrics) Incr(string, []string, int) LayerError {
	return Errorf(LayerErrorInternal, "statsd unreachable")
}

func (failingMetrics) Timing(string, time.Duration, []string, int) LayerError {
	return Errorf(LayerErrorInternal, "statsd unreachable")
}

func (failingMetrics) Gauge(string, float64, []string, int) LayerError {
	return Errorf(LayerErrorInternal, "statsd unreachable")
}

func TestIteratorLogsMetricsErrors(t *testing.T) {
	log := &bytes.Buffer{}
	src := &memorySource{
		users:  []*UserRow{user(1, "A")},
		grades: []*GradeRow{grade(9, 10, "2", "")},
	}
	it := NewGradedUserIterator(src, &Course{ID: 7}, NewGradeItems(&GradeItem{ID: 10}), 0,
		SortKey{}, SortKey{}, testLogger(log), failingMetrics{})
	ok, err := it.Init(context.Background())
	if err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}
	if bundles := collect(t, it); len(bundles) != 1 {
		t.Fatalf("expected 1 bundle, got %d", len(bundles))
	}
	if !strings.Contains(log.String(), "Error with metrics") || !strings.Contains(log.String(), "statsd unreachable") {
		t.Errorf("expected metrics error to be logged, got %s", log.String())
	}
	it.Close()
}

func TestIteratorLogsWithoutBuffer(t *testing.T) {
	src := &memorySource{needsRegrade: true}
	it := newTestIterator(src, nil, nil)
	ok, err := it.Init(context.Background())
	if err != nil || ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}
	if b, err := it.NextUser(); b != nil || err != nil {
		t.Errorf("NextUser() = %v, %v", b, err)
	}
}

func TestGroupOrder(t *testing.T) {
	order := UserOrder(SortKey{GroupNameField, SortAscending}, SortKey{"u.firstname", SortDescending})
	if diff := cmp.Diff(order, GroupOrder(order, 0)); diff != "" {
		t.Errorf("all groups should keep the order (-want +got):\n%s", diff)
	}
	want := []SortKey{{"u.firstname", SortDescending}, {"u.id", SortAscending}}
	if diff := cmp.Diff(want, GroupOrder(order, 3)); diff != "" {
		t.Errorf("GroupOrder mismatch (-want +got):\n%s", diff)
	}
	onlyGroup := UserOrder(SortKey{GroupNameField, SortAscending}, SortKey{})
	if diff := cmp.Diff([]SortKey{{"u.id", SortAscending}}, GroupOrder(onlyGroup, 3)); diff != "" {
		t.Errorf("GroupOrder mismatch (-want +got):\n%s", diff)
	}
}

func TestIteratorDefaultSortWithGroup(t *testing.T) {
	src := &memorySource{users: []*UserRow{user(1, "A")}}
	sort1, sort2 := (&ExportDefinition{}).SortKeys()
	it := NewGradedUserIterator(src, &Course{ID: 7}, NewGradeItems(&GradeItem{ID: 10}), 4,
		sort1, sort2, testLogger(nil), NoOpMetrics())
	ok, err := it.Init(context.Background())
	if err != nil || !ok {
		t.Fatalf("Init() = %v, %v", ok, err)
	}
	defer it.Close()
	want := []SortKey{{"u.firstname", SortAscending}, {"u.id", SortAscending}}
	if diff := cmp.Diff(want, src.queries[0].Order); diff != "" {
		t.Errorf("group name should not be part of a single group order (-want +got):\n%s", diff)
	}
	if src.queries[0].GroupID != 4 {
		t.Errorf("expected group 4, got %d", src.queries[0].GroupID)
	}
}
