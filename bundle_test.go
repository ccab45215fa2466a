package grade_export

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func TestSplitGradeFeedback(t *testing.T) {
	row := &GradeRow{
		ID:             3,
		UserID:         4,
		ItemID:         5,
		RawGrade:       decimal.NewNullDecimal(decimal.NewFromInt(8)),
		FinalGrade:     decimal.NewNullDecimal(decimal.NewFromInt(9)),
		RawGradeMax:    decimal.NewFromInt(10),
		Feedback:       "well done",
		FeedbackFormat: FeedbackFormatPlain,
		Locked:         true,
		TimeModified:   1700000000,
		SortKey1:       "Ann",
	}
	g, f := splitGradeFeedback(row)

	want := &GradeValue{
		ID:           3,
		UserID:       4,
		ItemID:       5,
		RawGrade:     row.RawGrade,
		FinalGrade:   row.FinalGrade,
		RawGradeMax:  row.RawGradeMax,
		Locked:       true,
		TimeModified: 1700000000,
	}
	if diff := cmp.Diff(want, g); diff != "" {
		t.Errorf("grade mismatch (-want +got):\n%s", diff)
	}
	if f.Feedback != "well done" || f.Format != FeedbackFormatPlain {
		t.Errorf("unexpected feedback %+v", f)
	}
}

func TestEmptyGradeFeedback(t *testing.T) {
	g, f := emptyGradeFeedback(4, 5)
	if diff := cmp.Diff(&GradeValue{UserID: 4, ItemID: 5}, g); diff != "" {
		t.Errorf("grade mismatch (-want +got):\n%s", diff)
	}
	if f.Feedback != "" || f.Format != FeedbackFormatMoodle {
		t.Errorf("unexpected feedback %+v", f)
	}
}

func TestFieldDescriptorValue(t *testing.T) {
	group := "Polo Norte"
	empty := ""
	zero := "0"
	u := &UserRow{
		ID:        12,
		FirstName: "Ann",
		LastName:  "Lee",
		Email:     "ann@example.com",
		GroupName: &group,
		CustomFields: map[string]*string{
			"polo":   &empty,
			"credit": &zero,
			"none":   nil,
		},
	}
	tests := []struct {
		field *FieldDescriptor
		want  string
	}{
		{&FieldDescriptor{ShortName: "fullname", Source: FieldSourceDerived}, "Ann Lee"},
		{&FieldDescriptor{ShortName: "email"}, "ann@example.com"},
		{&FieldDescriptor{ShortName: "id"}, "12"},
		{&FieldDescriptor{ShortName: "group", Source: FieldSourceGroup}, "Polo Norte"},
		{&FieldDescriptor{ShortName: "polo", Source: FieldSourceCustom, Default: "none"}, "none"},
		{&FieldDescriptor{ShortName: "credit", Source: FieldSourceCustom, Default: "x"}, "0"},
		{&FieldDescriptor{ShortName: "none", Source: FieldSourceCustom, Default: "d"}, "d"},
		{&FieldDescriptor{ShortName: "unknown"}, ""},
	}
	for _, tt := range tests {
		if got := tt.field.Value(u); got != tt.want {
			t.Errorf("%s: got %q want %q", tt.field.ShortName, got, tt.want)
		}
	}

	if got := (&FieldDescriptor{ShortName: "group", Source: FieldSourceGroup}).Value(&UserRow{}); got != "" {
		t.Errorf("missing group should be empty, got %q", got)
	}
}

func TestGradeItemsOrder(t *testing.T) {
	items := NewGradeItems(&GradeItem{ID: 30}, &GradeItem{ID: 10}, &GradeItem{ID: 20})
	items.Add(&GradeItem{ID: 10, ItemName: "replaced"})
	if diff := cmp.Diff([]int64{30, 10, 20}, items.IDs()); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if item, _ := items.Get(10); item.ItemName != "replaced" {
		t.Error("Add should replace an existing item")
	}
	var none *GradeItems
	if none.Len() != 0 || none.IDs() != nil || none.All() != nil {
		t.Error("nil items should behave as empty")
	}
}
