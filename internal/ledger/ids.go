package ledger

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator assigns transaction ids.
type IDGenerator interface {
	NewID(now time.Time) (string, error)
}

// ULIDs hands out lexicographically sortable ids. Ids generated within the
// same millisecond are strictly increasing, so one generator never repeats.
type ULIDs struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewULIDs() *ULIDs {
	return NewULIDsFrom(rand.Reader)
}

// NewULIDsFrom draws randomness from r instead of crypto/rand.
func NewULIDsFrom(r io.Reader) *ULIDs {
	return &ULIDs{entropy: ulid.Monotonic(r, 0)}
}

func (g *ULIDs) NewID(now time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), g.entropy)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}
