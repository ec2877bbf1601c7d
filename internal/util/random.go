package util

import (
	"crypto/rand"
	"fmt"
	mrand "math/rand/v2"
	"sync"
	"time"
)

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

// DisplayIDSource hands out non-secret handles for listing credentials.
// It is not cryptographically secure and collisions are possible.
type DisplayIDSource struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

func NewDisplayIDSource() *DisplayIDSource {
	seed := uint64(time.Now().UnixNano())
	return &DisplayIDSource{rng: mrand.New(mrand.NewPCG(seed, seed>>17|1))}
}

// Next returns a non-negative int32.
func (s *DisplayIDSource) Next() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int32()
}
