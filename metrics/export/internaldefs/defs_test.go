package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
)

func TestCumulative(t *testing.T) {
	got := Cumulative([]uint64{1, 0, 2})
	want := [BucketCount]uint64{1, 1, 3, 3, 3, 3, 3, 3}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if Cumulative(nil) != ([BucketCount]uint64{}) {
		t.Fatal("nil input must give zero buckets")
	}
}

func TestDefinitionsAreUnique(t *testing.T) {
	seenID := map[authcore.MetricID]string{}
	seenName := map[string]bool{}

	check := func(id authcore.MetricID, name string) {
		if prev, ok := seenID[id]; ok {
			t.Fatalf("id %d used by %s and %s", id, prev, name)
		}
		if seenName[name] {
			t.Fatalf("duplicate name %s", name)
		}
		if !strings.HasPrefix(name, "authcore_") {
			t.Fatalf("name %s lacks prefix", name)
		}
		seenID[id] = name
		seenName[name] = true
	}
	for _, d := range CounterDefs {
		check(d.ID, d.Name)
		if !strings.HasSuffix(d.Name, "_total") {
			t.Fatalf("counter %s lacks _total suffix", d.Name)
		}
	}
	for _, d := range HistogramDefs {
		check(d.ID, d.Name)
	}
	if seenName[AuditDroppedName] {
		t.Fatal("audit dropped name collides with an engine metric")
	}
}
