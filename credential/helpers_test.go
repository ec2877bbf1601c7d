package credential_test

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmcleod/gatekeeper/credential"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fastHasher keeps store tests quick; hash format is covered separately.
func fastHasher(t *testing.T) *credential.KDFHasher {
	t.Helper()
	h, err := credential.NewKDFHasher(credential.HasherConfig{
		SaltSize:   16,
		KeySize:    32,
		Iterations: 1000,
		Algorithm:  "SHA256",
		Delimiter:  ":",
	})
	require.NoError(t, err)
	return h
}

func newTestStore(t *testing.T, opts ...credential.Option) (*credential.Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	base := []credential.Option{
		credential.WithLogger(slog.New(slog.DiscardHandler)),
		credential.WithClock(clock.Now),
		credential.WithPasswordHasher(fastHasher(t)),
	}
	s, err := credential.NewStore(append(base, opts...)...)
	require.NoError(t, err)
	return s, clock
}

var (
	camLogin = credential.Permission{Service: "cam", Name: "login"}
	camAdmin = credential.Permission{Service: "cam", Name: "admin"}
	camRS    = credential.Permission{Service: "cam", Name: "rs"}
)
