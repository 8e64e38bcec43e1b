package ingress

import (
	"testing"

	"github.com/joyautomation/mantle/internal/sparkplug"
)

func TestAliasTableRegisterResolve(t *testing.T) {
	tbl := newAliasTable()
	if _, ok := tbl.resolve("G1", "N1", 7); ok {
		t.Fatal("expected no alias before registration")
	}
	tbl.register("G1", "N1", 7, "Temp")
	name, ok := tbl.resolve("G1", "N1", 7)
	if !ok || name != "Temp" {
		t.Fatalf("resolve() = %q, %v; want Temp, true", name, ok)
	}
	if _, ok := tbl.resolve("G1", "N2", 7); ok {
		t.Fatal("alias should be scoped per node")
	}
}

func TestAliasTableIgnoresEmptyName(t *testing.T) {
	tbl := newAliasTable()
	tbl.register("G1", "N1", 1, "")
	if _, ok := tbl.resolve("G1", "N1", 1); ok {
		t.Fatal("empty name should not be registered")
	}
}

func TestWorkerIndexStableAndInRange(t *testing.T) {
	idx1 := workerIndex("G1", "N1", "D1")
	idx2 := workerIndex("G1", "N1", "D1")
	if idx1 != idx2 {
		t.Fatalf("workerIndex should be deterministic: %d != %d", idx1, idx2)
	}
	if idx1 < 0 || idx1 >= numWorkers {
		t.Fatalf("workerIndex out of range: %d", idx1)
	}
}

func TestWorkerIndexDistinguishesDevices(t *testing.T) {
	seen := make(map[int]bool)
	for _, device := range []string{"D1", "D2", "D3", "D4", "D5", "D6", "D7", "D8"} {
		seen[workerIndex("G1", "N1", device)] = true
	}
	if len(seen) < 2 {
		t.Fatal("expected devices to hash to more than one worker")
	}
}

func TestResolveTimestampPrecedence(t *testing.T) {
	// Millisecond-scale values, so NormalizeTimestampMs passes them through.
	m := sparkplug.Metric{HasTimestamp: true, Timestamp: 1_700_000_000_111}
	if ts := resolveTimestamp(m, 1_700_000_000_222, true); ts != 1_700_000_000_111 {
		t.Fatalf("metric timestamp should win: got %d", ts)
	}

	m2 := sparkplug.Metric{}
	if ts := resolveTimestamp(m2, 1_700_000_000_222, true); ts != 1_700_000_000_222 {
		t.Fatalf("payload timestamp should be used when metric has none: got %d", ts)
	}

	m3 := sparkplug.Metric{}
	if ts := resolveTimestamp(m3, 0, false); ts <= 0 {
		t.Fatalf("expected a wall-clock fallback timestamp, got %d", ts)
	}
}

func TestClassifyPropertyValue(t *testing.T) {
	cases := []struct {
		raw  any
		want string
	}{
		{int64(1), "Int64"},
		{uint64(1), "Int64"},
		{float64(1.5), "Double"},
		{true, "Boolean"},
		{"hello", "String"},
	}
	for _, c := range cases {
		if got := classifyPropertyValue(c.raw); got != c.want {
			t.Errorf("classifyPropertyValue(%v) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestInferCommandValue(t *testing.T) {
	cases := []struct {
		raw  string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"42.5", 42.5},
		{"hello", "hello"},
	}
	for _, c := range cases {
		if got := inferCommandValue(c.raw); got != c.want {
			t.Errorf("inferCommandValue(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestNodeSeqWrapsAt256(t *testing.T) {
	ns := newNodeSeq()
	var last uint64
	for i := 0; i < 256; i++ {
		last = ns.take("G1", "N1")
	}
	if last != 255 {
		t.Fatalf("expected sequence to reach 255 after 256 draws, got %d", last)
	}
	if next := ns.take("G1", "N1"); next != 0 {
		t.Fatalf("expected sequence to wrap to 0, got %d", next)
	}
}
