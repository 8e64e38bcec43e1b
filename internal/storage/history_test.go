package storage

import (
	"testing"

	"github.com/joyautomation/mantle/internal/topology"
)

func TestColumnsFromValue(t *testing.T) {
	iv, fv, sv, bv := columnsFromValue(topology.Int(42))
	if iv == nil || *iv != 42 || fv != nil || sv != nil || bv != nil {
		t.Errorf("int value: got iv=%v fv=%v sv=%v bv=%v", iv, fv, sv, bv)
	}

	iv, fv, sv, bv = columnsFromValue(topology.Float(3.5))
	if fv == nil || *fv != 3.5 || iv != nil || sv != nil || bv != nil {
		t.Errorf("float value: got iv=%v fv=%v sv=%v bv=%v", iv, fv, sv, bv)
	}

	iv, fv, sv, bv = columnsFromValue(topology.String("hi"))
	if sv == nil || *sv != "hi" || iv != nil || fv != nil || bv != nil {
		t.Errorf("string value: got iv=%v fv=%v sv=%v bv=%v", iv, fv, sv, bv)
	}

	iv, fv, sv, bv = columnsFromValue(topology.Bool(true))
	if bv == nil || *bv != true || iv != nil || fv != nil || sv != nil {
		t.Errorf("bool value: got iv=%v fv=%v sv=%v bv=%v", iv, fv, sv, bv)
	}

	iv, fv, sv, bv = columnsFromValue(topology.Null())
	if iv != nil || fv != nil || sv != nil || bv != nil {
		t.Errorf("null value: expected all nil, got iv=%v fv=%v sv=%v bv=%v", iv, fv, sv, bv)
	}
}

func TestBuildPrefixDeleteSQL(t *testing.T) {
	tests := []struct {
		name          string
		device        string
		metric        string
		wantHasDevice bool
		wantHasMetric bool
		wantArgs      int
	}{
		{"group_node_only", "", "", false, false, 2},
		{"with_device", "dev1", "", true, false, 3},
		{"with_device_and_metric", "dev1", "temp", true, true, 4},
		{"node_level_metric_pins_empty_device", "", "temp", true, true, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := buildPrefixDeleteSQL("history", "G1", "N1", tt.device, tt.metric)
			hasDevice := contains(sql, "device = $3")
			hasMetric := contains(sql, "metric = $4")
			if hasDevice != tt.wantHasDevice {
				t.Errorf("device clause presence = %v, want %v (sql=%q)", hasDevice, tt.wantHasDevice, sql)
			}
			if hasMetric != tt.wantHasMetric {
				t.Errorf("metric clause presence = %v, want %v (sql=%q)", hasMetric, tt.wantHasMetric, sql)
			}
			// The arg slice must match the placeholder count exactly, or
			// pgx rejects the statement.
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d (sql=%q)", len(args), tt.wantArgs, sql)
			}
		})
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
