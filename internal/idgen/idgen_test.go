package idgen

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUUIDGenerator(t *testing.T) {
	g := NewUUIDGenerator()
	id := g.NewID()
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("invalid uuid %q: %v", id, err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("expected v4, got v%d", parsed.Version())
	}
	if id == g.NewID() {
		t.Fatal("duplicate id")
	}
}

func TestULIDGeneratorMonotonicWithinMillisecond(t *testing.T) {
	g := NewULIDGenerator()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	prev := g.NewIDAt(at)
	for i := 0; i < 100; i++ {
		next := g.NewIDAt(at)
		if next <= prev {
			t.Fatalf("id %q not greater than %q", next, prev)
		}
		prev = next
	}
}

func TestULIDGeneratorSortsByTime(t *testing.T) {
	g := NewULIDGenerator()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	early := g.NewIDAt(at)
	late := g.NewIDAt(at.Add(time.Millisecond))
	if late <= early {
		t.Fatalf("later id %q sorts before %q", late, early)
	}
}
