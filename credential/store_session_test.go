package credential_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/gatekeeper/credential"
)

func shortSessions() []credential.Option {
	return []credential.Option{
		credential.WithSessionIdleTimeout(2 * time.Second),
		credential.WithSessionAbsoluteTimeout(5 * time.Second),
	}
}

func TestSession_CreateAndAuthenticate(t *testing.T) {
	s, _ := newTestStore(t)
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)

	token, err := s.CreateSession(id)
	require.NoError(t, err)

	assert.Equal(t, credential.Authenticated(id, "alice"), s.AuthenticateSession(token))
	assert.Equal(t, credential.Authorized(id, "alice", camLogin), s.AuthorizeSession(token, camLogin))
	assert.Equal(t, credential.Authenticated(id, "alice"), s.AuthorizeSession(token, camAdmin))
}

func TestSession_BadTokens(t *testing.T) {
	s, _ := newTestStore(t)
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)
	apiKey, _, err := s.CreateAPIKey(id, credential.NewPermissions(camLogin))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":      "",
		"garbage":    "not a token",
		"unknown":    mustGenerate(t, credential.DefaultSessionSecretLen, id),
		"api key":    apiKey,
		"other user": mustGenerate(t, credential.DefaultSessionSecretLen, [16]byte{1}),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, credential.Failed(), s.AuthenticateSession(token))
			assert.Equal(t, credential.Failed(), s.AuthorizeSession(token, camLogin))
			assert.Equal(t, credential.Failed(), s.AuthenticateStrictSession(token, "pw1"))
		})
	}
}

func TestSession_IdleExpiry(t *testing.T) {
	s, clock := newTestStore(t, shortSessions()...)
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)
	token, err := s.CreateSession(id)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	require.True(t, s.AuthenticateSession(token).IsAuthenticated(), "expiry is exclusive of the boundary")

	clock.Advance(2*time.Second + time.Millisecond)
	assert.Equal(t, credential.Failed(), s.AuthenticateSession(token))

	sessions, err := s.ListSessions(id)
	require.NoError(t, err)
	assert.Empty(t, sessions, "expired session is evicted")
}

func TestSession_SlidingUntilAbsolute(t *testing.T) {
	s, clock := newTestStore(t, shortSessions()...)
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)
	token, err := s.CreateSession(id)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		clock.Advance(time.Second)
		require.True(t, s.AuthenticateSession(token).IsAuthenticated(), "use at %ds", i)
	}

	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, credential.Failed(), s.AuthenticateSession(token), "absolute expiry does not slide")
	assert.Equal(t, credential.Failed(), s.AuthenticateSession(token))
}

func TestSession_ListedExpiriesSlide(t *testing.T) {
	s, clock := newTestStore(t, shortSessions()...)
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)
	start := clock.Now()
	token, err := s.CreateSession(id)
	require.NoError(t, err)

	clock.Advance(time.Second)
	require.True(t, s.AuthenticateSession(token).IsAuthenticated())

	sessions, err := s.ListSessions(id)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, start, sessions[0].CreatedAt)
	assert.Equal(t, start.Add(3*time.Second), sessions[0].IdleExpiresAt)
	assert.Equal(t, start.Add(5*time.Second), sessions[0].AbsoluteExpiresAt)
}

func TestSession_ClockSkew(t *testing.T) {
	s, clock := newTestStore(t, append(shortSessions(), credential.WithClockSkew(time.Second))...)
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)
	token, err := s.CreateSession(id)
	require.NoError(t, err)

	clock.Advance(time.Second + time.Millisecond)
	assert.Equal(t, credential.Failed(), s.AuthenticateSession(token))
}

func TestSession_RevokeThenAuthenticate(t *testing.T) {
	s, _ := newTestStore(t)
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)
	token, err := s.CreateSession(id)
	require.NoError(t, err)

	require.NoError(t, s.RevokeSession(token))
	assert.Equal(t, credential.Failed(), s.AuthenticateSession(token))
	assert.ErrorIs(t, s.RevokeSession(token), credential.ErrNotFound)
	assert.ErrorIs(t, s.RevokeSession("garbage"), credential.ErrMalformed)
}

func TestSession_RevokeByDisplayID(t *testing.T) {
	s, _ := newTestStore(t)
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)
	keep, err := s.CreateSession(id)
	require.NoError(t, err)
	drop, err := s.CreateSession(id)
	require.NoError(t, err)

	sessions, err := s.ListSessions(id)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	require.NoError(t, s.RevokeSessionByDisplayID(id, sessions[1].DisplayID))
	after, err := s.ListSessions(id)
	require.NoError(t, err)
	require.Len(t, after, 1)

	alive := 0
	for _, tok := range []string{keep, drop} {
		if s.AuthenticateSession(tok).IsAuthenticated() {
			alive++
		}
	}
	assert.Equal(t, 1, alive)

	assert.ErrorIs(t, s.RevokeSessionByDisplayID(id, -1), credential.ErrNotFound)
}

func TestSession_RevokeAllAndOthers(t *testing.T) {
	s, _ := newTestStore(t)
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)

	tokens := make([]string, 4)
	for i := range tokens {
		tokens[i], err = s.CreateSession(id)
		require.NoError(t, err)
	}

	n, err := s.RevokeOtherSessions(tokens[0])
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, s.AuthenticateSession(tokens[0]).IsAuthenticated())
	for _, tok := range tokens[1:] {
		assert.Equal(t, credential.Failed(), s.AuthenticateSession(tok))
	}

	n, err = s.RevokeAllSessions(id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, credential.Failed(), s.AuthenticateSession(tokens[0]))

	n, err = s.RevokeAllSessions(id)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.RevokeOtherSessions(tokens[0])
	assert.ErrorIs(t, err, credential.ErrNotFound)
}

func TestSession_Strict(t *testing.T) {
	s, _ := newTestStore(t)
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)
	token, err := s.CreateSession(id)
	require.NoError(t, err)

	assert.Equal(t, credential.Authenticated(id, "alice"), s.AuthenticateStrictSession(token, "pw1"))
	assert.Equal(t, credential.Authorized(id, "alice", camLogin), s.AuthorizeStrictSession(token, "pw1", camLogin))
	assert.Equal(t, credential.Authenticated(id, "alice"), s.AuthorizeStrictSession(token, "pw1", camAdmin))

	assert.Equal(t, credential.Failed(), s.AuthenticateStrictSession(token, "wrong"))
	assert.Equal(t, credential.Failed(), s.AuthenticateSession(token), "wrong password revokes the session")
}

func TestSession_ListEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)
	sessions, err := s.ListSessions(id)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSession_Sweep(t *testing.T) {
	s, clock := newTestStore(t, shortSessions()...)
	a, err := s.CreateUser("a", "pw")
	require.NoError(t, err)
	b, err := s.CreateUser("b", "pw")
	require.NoError(t, err)
	_, err = s.CreateSession(a)
	require.NoError(t, err)
	_, err = s.CreateSession(b)
	require.NoError(t, err)

	clock.Advance(time.Second)
	fresh, err := s.CreateSession(b)
	require.NoError(t, err)

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 1, s.Stats().Sessions)
	assert.True(t, s.AuthenticateSession(fresh).IsAuthenticated())
	assert.Zero(t, s.Sweep())
}

func TestSession_RunSweeperStops(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSession_ConcurrentUse(t *testing.T) {
	s, clock := newTestStore(t)
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				token, err := s.CreateSession(id)
				if !assert.NoError(t, err) {
					return
				}
				assert.True(t, s.AuthorizeSession(token, camLogin).IsAuthorized())
				clock.Advance(time.Millisecond)
				_, _ = s.ListSessions(id)
				assert.NoError(t, s.RevokeSession(token))
				assert.Equal(t, credential.Failed(), s.AuthenticateSession(token))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 50 {
			s.Sweep()
		}
	}()
	wg.Wait()

	sessions, err := s.ListSessions(id)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSession_MintingGivesUpOnCollisions(t *testing.T) {
	constant := func([]byte) []byte { return []byte("same") }
	codec, err := credential.NewTokenCodec(credential.MinSecretLen, constant)
	require.NoError(t, err)
	s, _ := newTestStore(t, credential.WithSessionCodec(codec), credential.WithAPIKeyCodec(codec))
	id, err := s.CreateUser("alice", "pw1")
	require.NoError(t, err)

	_, err = s.CreateSession(id)
	require.NoError(t, err)
	_, err = s.CreateSession(id)
	assert.ErrorIs(t, err, credential.ErrConflict)

	_, _, err = s.CreateAPIKey(id, credential.Permissions{})
	require.NoError(t, err)
	_, _, err = s.CreateAPIKey(id, credential.Permissions{})
	assert.ErrorIs(t, err, credential.ErrConflict)
	assert.Equal(t, credential.Stats{Users: 1, Sessions: 1, APIKeys: 1}, s.Stats())
}
