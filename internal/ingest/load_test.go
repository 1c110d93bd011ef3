package ingest

import (
	"strings"
	"testing"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/model"
)

const minimalModelJSON = `{
  "exportedAtUtc": "2026-01-01T00:00:00Z",
  "modules": [
    {
      "name": "Sales",
      "isSystem": false,
      "isActive": true,
      "entities": [
        {
          "name": "Order",
          "physicalName": "OSUSR_ORDER",
          "db_schema": "dbo",
          "isStatic": false,
          "isExternal": false,
          "isActive": true,
          "attributes": [
            {"logicalName": "Id", "columnName": "ID", "dataType": "int", "isIdentifier": true, "isMandatory": true, "isActive": true},
            {"logicalName": "CustomerId", "columnName": "CUSTOMERID", "dataType": "int", "isActive": true}
          ],
          "relationships": [],
          "indexes": [],
          "triggers": []
        }
      ]
    }
  ]
}`

func TestLoadReader_Minimal(t *testing.T) {
	res := LoadReader(strings.NewReader(minimalModelJSON), Options{})
	if res.Failed() {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Value.Modules) != 1 {
		t.Fatalf("expected 1 module, got %d", len(res.Value.Modules))
	}
	mod := res.Value.Modules[0]
	if mod.Name != "Sales" {
		t.Errorf("expected module Sales, got %s", mod.Name)
	}
	if len(mod.Entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(mod.Entities))
	}
	if mod.Entities[0].TableName != "OSUSR_ORDER" {
		t.Errorf("unexpected table name: %s", mod.Entities[0].TableName)
	}
}

func TestLoadReader_NullArrayFails(t *testing.T) {
	const bad = `{
      "exportedAtUtc": "2026-01-01T00:00:00Z",
      "modules": [{"name":"Sales","isSystem":false,"isActive":true,"entities":[
        {"name":"Order","physicalName":"OSUSR_ORDER","db_schema":"dbo","isStatic":false,"isExternal":false,"isActive":true,
         "attributes": null, "relationships": [], "indexes": [], "triggers": []}
      ]}]
    }`
	res := LoadReader(strings.NewReader(bad), Options{})
	if !res.Failed() {
		t.Fatalf("expected failure for null attributes array")
	}
	codes := res.Errors.Codes()
	if len(codes) != 1 || codes[0] != "extraction.sql.contract.entityArray" {
		t.Fatalf("unexpected error codes: %v", codes)
	}
}

func TestLoadReader_AllAttributesInactiveFails(t *testing.T) {
	const allInactive = `{
      "exportedAtUtc": "2026-01-01T00:00:00Z",
      "modules": [{"name":"Sales","isSystem":false,"isActive":true,"entities":[
        {"name":"Order","physicalName":"OSUSR_ORDER","db_schema":"dbo","isStatic":false,"isExternal":false,"isActive":true,
         "attributes":[{"logicalName":"Id","columnName":"ID","dataType":"int","isActive":false}],
         "relationships":[],"indexes":[],"triggers":[]}
      ]}]
    }`
	res := LoadReader(strings.NewReader(allInactive), Options{})
	if !res.Failed() {
		t.Fatalf("expected failure when every attribute is filtered out by inactivity")
	}
	codes := res.Errors.Codes()
	if len(codes) != 1 || codes[0] != "entity.attributes.empty" {
		t.Fatalf("unexpected error codes: %v", codes)
	}
}

func TestLoadReader_IncludeInactiveKeepsInactiveAttributes(t *testing.T) {
	const withInactive = `{
      "exportedAtUtc": "2026-01-01T00:00:00Z",
      "modules": [{"name":"Sales","isSystem":false,"isActive":true,"entities":[
        {"name":"Order","physicalName":"OSUSR_ORDER","db_schema":"dbo","isStatic":false,"isExternal":false,"isActive":true,
         "attributes":[
           {"logicalName":"Id","columnName":"ID","dataType":"int","isActive":true},
           {"logicalName":"Retired","columnName":"RETIRED","dataType":"int","isActive":false}
         ],
         "relationships":[],"indexes":[],"triggers":[]}
      ]}]
    }`
	res := LoadReader(strings.NewReader(withInactive), Options{IncludeInactive: true})
	if res.Failed() {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Value.Modules[0].Entities[0].Attributes) != 2 {
		t.Fatalf("expected both attributes retained with IncludeInactive, got %d", len(res.Value.Modules[0].Entities[0].Attributes))
	}
}

func TestLoadReader_EmptyModulesWarns(t *testing.T) {
	res := LoadReader(strings.NewReader(`{"exportedAtUtc":"2026-01-01T00:00:00Z","modules":[]}`), Options{})
	if res.Failed() {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	found := false
	for _, w := range res.Warnings {
		if w == "no modules" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 'no modules' warning, got %v", res.Warnings)
	}
}

func TestLoadReader_EmptyModuleDropped(t *testing.T) {
	const withEmpty = `{
      "exportedAtUtc": "2026-01-01T00:00:00Z",
      "modules": [
        {"name":"Empty","isSystem":false,"isActive":true,"entities":[]},
        {"name":"Sales","isSystem":false,"isActive":true,"entities":[
          {"name":"Order","physicalName":"OSUSR_ORDER","db_schema":"dbo","isStatic":false,"isExternal":false,"isActive":true,
           "attributes":[{"logicalName":"Id","columnName":"ID","dataType":"int","isIdentifier":true,"isActive":true}],
           "relationships":[],"indexes":[],"triggers":[]}
        ]}
      ]
    }`
	res := LoadReader(strings.NewReader(withEmpty), Options{})
	if res.Failed() {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Value.Modules) != 1 {
		t.Fatalf("expected Empty module to be dropped, got %d modules", len(res.Value.Modules))
	}
	warned := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "Empty") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected warning naming the empty module, got %v", res.Warnings)
	}
}

func TestLoadReader_DuplicateColumnWarnsButKeepsBoth(t *testing.T) {
	const dup = `{
      "exportedAtUtc": "2026-01-01T00:00:00Z",
      "modules": [{"name":"Sales","isSystem":false,"isActive":true,"entities":[
        {"name":"Order","physicalName":"OSUSR_ORDER","db_schema":"dbo","isStatic":false,"isExternal":false,"isActive":true,
         "attributes":[
           {"logicalName":"A","columnName":"COL","dataType":"int","isActive":true},
           {"logicalName":"B","columnName":"COL","dataType":"int","isActive":true}
         ],
         "relationships":[],"indexes":[],"triggers":[]}
      ]}]
    }`
	res := LoadReader(strings.NewReader(dup), Options{})
	if res.Failed() {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	attrs := res.Value.Modules[0].Entities[0].Attributes
	if len(attrs) != 2 {
		t.Fatalf("expected both duplicate attributes retained, got %d", len(attrs))
	}
	if len(res.Warnings) == 0 {
		t.Errorf("expected duplicate-column warning")
	}
}

func TestMergeSupplemental_AppendsAndReplaces(t *testing.T) {
	base := LoadReader(strings.NewReader(minimalModelJSON), Options{}).Value

	// Replace the existing entity's table name.
	existing := base.Modules[0].Entities[0]
	existing.TableName = "OSUSR_ORDER_RENAMED"

	merged := MergeSupplemental(base, []model.Entity{existing})
	if len(merged.Modules[0].Entities) != 1 {
		t.Fatalf("expected replace not append, got %d entities", len(merged.Modules[0].Entities))
	}
	if merged.Modules[0].Entities[0].TableName != "OSUSR_ORDER_RENAMED" {
		t.Errorf("expected replaced table name, got %s", merged.Modules[0].Entities[0].TableName)
	}

	// A brand-new entity in a new module is appended.
	newEntity := model.Entity{
		Module:      "Billing",
		LogicalName: "Invoice",
		TableName:   "OSUSR_INVOICE",
		Schema:      "dbo",
		IsActive:    true,
	}
	merged2 := MergeSupplemental(merged, []model.Entity{newEntity})
	if len(merged2.Modules) != 2 {
		t.Fatalf("expected new module to be created, got %d modules", len(merged2.Modules))
	}
}
