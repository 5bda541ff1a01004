package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces unique identifiers.
type Generator interface {
	NewID() string
}

// UUIDGenerator generates UUID v4 IDs.
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUIDGenerator.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// ULIDGenerator generates ULIDs that sort by creation time. IDs created
// within the same millisecond stay strictly increasing.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewULIDGenerator creates a new ULIDGenerator.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (g *ULIDGenerator) NewID() string {
	return g.NewIDAt(g.now())
}

// NewIDAt generates a ULID carrying the timestamp t.
func (g *ULIDGenerator) NewIDAt(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}
