package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// DefaultIDPrefix is used when a variant does not configure its own prefix.
const DefaultIDPrefix = "TILE"

// IDGenerator produces short human-readable order identifiers of the form
// PREFIX-MMDDNNNN, where NNNN is uniform in [1000, 9999].
//
// Identifiers are not unique keys: two orders on the same day collide with
// probability 1/9000 and nothing downstream deduplicates them.
type IDGenerator struct {
	Prefix   string
	Location *time.Location
	Now      func() time.Time
	// Intn returns a value in [0, n). Defaults to math/rand/v2.
	Intn func(n int) int
}

// NewIDGenerator returns a generator using the wall clock and math/rand/v2.
func NewIDGenerator(prefix string, loc *time.Location) *IDGenerator {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	if loc == nil {
		loc = time.UTC
	}
	return &IDGenerator{Prefix: prefix, Location: loc, Now: time.Now, Intn: rand.IntN}
}

// Next returns a fresh order identifier.
func (g *IDGenerator) Next() string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	intn := rand.IntN
	if g.Intn != nil {
		intn = g.Intn
	}
	loc := g.Location
	if loc == nil {
		loc = time.UTC
	}
	prefix := g.Prefix
	if prefix == "" {
		prefix = DefaultIDPrefix
	}

	suffix := 1000 + intn(9000)
	return fmt.Sprintf("%s-%s%04d", prefix, now().In(loc).Format("0102"), suffix)
}
