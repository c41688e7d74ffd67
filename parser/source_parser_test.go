package parser

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseAgenciesKeepsOrderAndNumbers(t *testing.T) {
	t.Parallel()
	records, err := ParseAgencies([]byte(`{"agencies":[
		{"slug":"b","cfr_references":[{"title":12,"chapter":"I"}]},
		{"slug":"a","cfr_references":[]}
	]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0]["slug"] != "b" || records[1]["slug"] != "a" {
		t.Fatalf("unexpected records %v", records)
	}
	ref := records[0]["cfr_references"].([]any)[0].(map[string]any)
	if n, ok := ref["title"].(json.Number); !ok || n.String() != "12" {
		t.Fatalf("title should decode as json.Number, got %T %v", ref["title"], ref["title"])
	}
}

func TestParseCorrectionsEmptyList(t *testing.T) {
	t.Parallel()
	records, err := ParseCorrections([]byte(`{"ecfr_corrections":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestParseDocumentErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "invalid_json", content: `{"agencies":[`, want: "error parsing JSON"},
		{name: "missing_key", content: `{"other":[]}`, want: `no "agencies" array`},
		{name: "not_array", content: `{"agencies":{}}`, want: "not an array"},
		{name: "not_object", content: `{"agencies":[{"slug":"a"},7]}`, want: "agencies[1]"},
		{name: "trailing", content: `{"agencies":[]} {}`, want: "unexpected data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseAgencies([]byte(tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDecodeRecord(t *testing.T) {
	t.Parallel()
	record, err := DecodeRecord([]byte(`{"id":41234,"year":2024}`))
	if err != nil {
		t.Fatal(err)
	}
	if record["id"] != json.Number("41234") {
		t.Fatalf("unexpected id %v", record["id"])
	}
	if _, err := DecodeRecord([]byte(`null`)); err == nil {
		t.Fatal("expected error for null record")
	}
	if _, err := DecodeRecord([]byte(`[1]`)); err == nil {
		t.Fatal("expected error for array record")
	}
}
