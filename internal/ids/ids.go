package ids

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns an identifier whose time component is t. Ids minted within the
// same millisecond stay strictly increasing.
func NewAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Valid reports whether s parses as an identifier produced by New.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
