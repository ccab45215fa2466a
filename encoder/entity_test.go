package encoder

import (
	"encoding/json"
	"testing"

	egdm "github.com/mimiro-io/entity-graph-data-model"
)

func TestEntityWrite(t *testing.T) {
	buf := writeAll(t, FormatEntities, map[string]any{
		"base_uri":  "http://data.example.io/bio",
		"id_column": "email",
	}, testItems())

	var raw []json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("%v: %s", err, buf.String())
	}
	if len(raw) != 3 {
		t.Fatalf("expected context and 2 entities, got %d", len(raw))
	}

	var ctx map[string]any
	if err := json.Unmarshal(raw[0], &ctx); err != nil {
		t.Fatal(err)
	}
	if ctx["id"] != "@context" {
		t.Errorf("first object should be the context, got %v", ctx)
	}

	entity := egdm.NewEntity()
	if err := json.Unmarshal(raw[1], entity); err != nil {
		t.Fatal(err)
	}
	if entity.ID != "http://data.example.io/bio/user/ann@example.com" {
		t.Errorf("unexpected id %s", entity.ID)
	}
	if entity.Properties["http://data.example.io/bio/fullname"] != "Ann Lee" {
		t.Errorf("unexpected properties %v", entity.Properties)
	}
}

func TestEntityWriteNumbersRowsWithoutID(t *testing.T) {
	buf := writeAll(t, FormatEntities, nil, testItems())

	var raw []json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	entity := egdm.NewEntity()
	if err := json.Unmarshal(raw[2], entity); err != nil {
		t.Fatal(err)
	}
	if entity.ID != defaultBaseURI+"user/2" {
		t.Errorf("unexpected id %s", entity.ID)
	}
	if _, ok := entity.Properties[defaultBaseURI+"item_10_feedback"]; ok {
		t.Error("missing values should not become properties")
	}
}
