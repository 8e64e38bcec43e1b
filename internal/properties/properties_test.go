package properties

import (
	"encoding/json"
	"testing"
)

func TestEntryMarshalRoundTrip(t *testing.T) {
	entries := map[string]Entry{
		"units":       {Value: "degC", Type: "string", UpdatedAt: 1000},
		"description": {Value: "boiler temperature", Type: "string", UpdatedAt: 1000},
	}
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]Entry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("got %d entries, want 2", len(decoded))
	}
	if decoded["units"].Value != "degC" {
		t.Errorf("units value = %v, want degC", decoded["units"].Value)
	}
}
