package eventing

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestDeduplicatorFirstSightingOnly(t *testing.T) {
	d := NewDeduplicator(0)
	key := "Sensor-7_2025-02-10 12:00:00"
	if !d.IsNew(key) {
		t.Fatalf("first sighting should be new")
	}
	for i := 0; i < 3; i++ {
		if d.IsNew(key) {
			t.Fatalf("repeat %d reported as new", i)
		}
	}
	if !d.Seen(key) || d.Len() != 1 {
		t.Fatalf("expected key to be remembered once, len=%d", d.Len())
	}
}

func TestDeduplicatorUnboundedKeepsAllKeys(t *testing.T) {
	d := NewDeduplicator(-1)
	for i := 0; i < 1000; i++ {
		d.IsNew(fmt.Sprintf("k%d", i))
	}
	if d.Len() != 1000 || !d.Seen("k0") {
		t.Fatalf("expected all keys retained, len=%d", d.Len())
	}
}

func TestDeduplicatorCapacityEvictsOldest(t *testing.T) {
	d := NewDeduplicator(2)
	d.IsNew("a")
	d.IsNew("b")
	d.IsNew("c")
	if d.Len() != 2 {
		t.Fatalf("len: %d", d.Len())
	}
	if d.Seen("a") {
		t.Fatalf("oldest key should have been evicted")
	}
	if d.IsNew("b") || d.IsNew("c") {
		t.Fatalf("retained keys should still be duplicates")
	}
	if !d.IsNew("a") {
		t.Fatalf("evicted key should be new again")
	}
}

func TestNewRecordIDIsUUID(t *testing.T) {
	id := NewRecordID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("record id %q: %v", id, err)
	}
	if id == NewRecordID() {
		t.Fatalf("record ids should differ")
	}
}
