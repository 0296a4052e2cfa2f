// Package reference generates transaction references. A reference is the
// idempotency key of a ledger entry and the request id sent to providers:
// a Lagos local timestamp (YYYYMMDDHHmm) followed by a lowercase ULID.
package reference

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	stampLayout = "200601021504"
	stampLen    = len(stampLayout)
	// Len is the length of every generated reference.
	Len = stampLen + ulid.EncodedSize
)

var lagos = loadLagos()

func loadLagos() *time.Location {
	loc, err := time.LoadLocation("Africa/Lagos")
	if err != nil {
		return time.FixedZone("WAT", 60*60)
	}

	return loc
}

// Generator is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy io.Reader
}

func NewGenerator() *Generator {
	return &Generator{
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorAt uses now as the time source.
func NewGeneratorAt(now func() time.Time) *Generator {
	g := NewGenerator()
	g.now = now

	return g
}

func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now()
	id := ulid.MustNew(ulid.Timestamp(t), g.entropy)

	return t.In(lagos).Format(stampLayout) + strings.ToLower(id.String())
}

var std = NewGenerator()

// Generate returns a new reference from the package generator.
func Generate() string {
	return std.Generate()
}

// Valid reports whether ref has the shape Generate produces.
func Valid(ref string) bool {
	if len(ref) != Len {
		return false
	}

	_, err := time.ParseInLocation(stampLayout, ref[:stampLen], lagos)
	if err != nil {
		return false
	}

	_, err = ulid.ParseStrict(strings.ToUpper(ref[stampLen:]))

	return err == nil
}
