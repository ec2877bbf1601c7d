package api_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/gatekeeper/api"
	"github.com/jmcleod/gatekeeper/authorizer"
	"github.com/jmcleod/gatekeeper/credential"
)

const internalToken = "internal-secret"

func internalCheck(t *testing.T, ts *testServer, path, token string, body authorizer.CheckRequest) *http.Response {
	t.Helper()
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return doJSON(t, ts.Client(), http.MethodPost, ts.url(path), body, h)
}

func TestInternalRoutes_HiddenWithoutToken(t *testing.T) {
	ts := setupServer(t)
	createUser(t, ts, "alice")

	resp := internalCheck(t, ts, "/internal/authenticate/cam", "anything", authorizer.CheckRequest{
		Username: "alice", Password: testPassword,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInternalRoutes_RejectWrongToken(t *testing.T) {
	ts := setupServer(t, api.WithInternalToken(internalToken))
	createUser(t, ts, "alice")

	for name, token := range map[string]string{"missing": "", "wrong": "not-it"} {
		t.Run(name, func(t *testing.T) {
			resp := internalCheck(t, ts, "/internal/authenticate/cam", token, authorizer.CheckRequest{
				Username: "alice", Password: testPassword,
			})
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestInternalAuthenticate(t *testing.T) {
	ts := setupServer(t, api.WithInternalToken(internalToken))
	createUser(t, ts, "alice")
	c := login(t, ts, "alice", testPassword)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	var session string
	for _, ck := range c.client.Jar.Cookies(u) {
		if ck.Name == authorizer.SessionCookie {
			session = ck.Value
		}
	}
	require.NotEmpty(t, session)

	tests := []struct {
		name string
		req  authorizer.CheckRequest
		want credential.AuthState
	}{
		{"credentials", authorizer.CheckRequest{Username: "alice", Password: testPassword}, credential.StateAuthenticated},
		{"wrong password", authorizer.CheckRequest{Username: "alice", Password: "nope"}, credential.StateFailed},
		{"session", authorizer.CheckRequest{SessionToken: session}, credential.StateAuthenticated},
		{"strict session", authorizer.CheckRequest{SessionToken: session, Password: testPassword}, credential.StateAuthenticated},
		{"unknown api key", authorizer.CheckRequest{APIKey: "nope"}, credential.StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := internalCheck(t, ts, "/internal/authenticate/cam", internalToken, tt.req)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			res := decode[credential.AuthorizationResult](t, resp)
			assert.Equal(t, tt.want, res.State())
			if tt.want != credential.StateFailed {
				assert.Equal(t, c.userID, res.UserID().String())
				assert.Equal(t, "alice", res.Username())
			}
		})
	}
}

func TestInternalAuthorize(t *testing.T) {
	ts := setupServer(t, api.WithInternalToken(internalToken))
	id, err := ts.store.CreateUser("alice", testPassword)
	require.NoError(t, err)
	key, _, err := ts.store.CreateAPIKey(id, credential.NewPermissions(camRS))
	require.NoError(t, err)

	creds := authorizer.CheckRequest{Username: "alice", Password: testPassword}

	resp := internalCheck(t, ts, "/internal/authorize/cam/"+api.PermReadSelf, internalToken, creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[credential.AuthorizationResult](t, resp)
	require.True(t, res.IsAuthorized())
	got, ok := res.Permission()
	require.True(t, ok)
	assert.Equal(t, camRS, got)

	// Held identity, missing permission.
	resp = internalCheck(t, ts, "/internal/authorize/cam/"+api.PermReadAdmin, internalToken, creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, credential.StateAuthenticated, decode[credential.AuthorizationResult](t, resp).State())

	resp = internalCheck(t, ts, "/internal/authorize/cam/"+api.PermReadSelf, internalToken, authorizer.CheckRequest{APIKey: key})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[credential.AuthorizationResult](t, resp).IsAuthorized())

	// The key was minted with read_self only.
	resp = internalCheck(t, ts, "/internal/authorize/cam/"+api.PermWriteSelf, internalToken, authorizer.CheckRequest{APIKey: key})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[credential.AuthorizationResult](t, resp).IsAuthorized())
}

func TestInternalCheck_StrictSessionWrongPasswordRevokes(t *testing.T) {
	ts := setupServer(t, api.WithInternalToken(internalToken))
	id, err := ts.store.CreateUser("alice", testPassword)
	require.NoError(t, err)
	session, err := ts.store.CreateSession(id)
	require.NoError(t, err)

	resp := internalCheck(t, ts, "/internal/authenticate/cam", internalToken, authorizer.CheckRequest{
		SessionToken: session, Password: "nope",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, credential.StateFailed, decode[credential.AuthorizationResult](t, resp).State())

	resp = internalCheck(t, ts, "/internal/authenticate/cam", internalToken, authorizer.CheckRequest{SessionToken: session})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, credential.StateFailed, decode[credential.AuthorizationResult](t, resp).State())
}

func TestInternalCheck_BadRequests(t *testing.T) {
	ts := setupServer(t, api.WithInternalToken(internalToken))

	resp := internalCheck(t, ts, "/internal/authenticate/cam", internalToken, authorizer.CheckRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = internalCheck(t, ts, "/internal/authenticate/cam", internalToken, authorizer.CheckRequest{Username: "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInternalCheck_SharesLoginLockout(t *testing.T) {
	ts := setupServer(t, api.WithInternalToken(internalToken))
	createUser(t, ts, "alice")

	wrong := authorizer.CheckRequest{Username: "alice", Password: "nope"}
	var last *http.Response
	for range 10 {
		last = internalCheck(t, ts, "/internal/authenticate/cam", internalToken, wrong)
		if last.StatusCode == http.StatusTooManyRequests {
			break
		}
		require.Equal(t, http.StatusOK, last.StatusCode)
	}
	require.Equal(t, http.StatusTooManyRequests, last.StatusCode)

	resp := internalCheck(t, ts, "/internal/authenticate/cam", internalToken, authorizer.CheckRequest{
		Username: "alice", Password: testPassword,
	})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = doJSON(t, newClient(t), http.MethodPost, ts.url("/auth/login"), nil, loginHeader("alice", testPassword))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
