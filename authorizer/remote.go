package authorizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmcleod/gatekeeper/credential"
)

// CheckRequest is the body of the internal authenticate and authorize
// routes. Exactly one kind of material is consulted, in the order API key,
// session (strict when Password is also set), then username and password.
type CheckRequest struct {
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
}

const (
	remoteTimeout      = 5 * time.Second
	maxRemoteBodySize  = 16 << 10
	internalAuthPrefix = "Bearer "
)

// RemoteBackend answers Backend queries by calling a gatekeeper server's
// internal routes. Transport errors and non-200 answers yield Failed.
type RemoteBackend struct {
	baseURL string
	service string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

var _ Backend = (*RemoteBackend)(nil)

// RemoteOption configures a RemoteBackend.
type RemoteOption func(*RemoteBackend)

func WithHTTPClient(c *http.Client) RemoteOption {
	return func(b *RemoteBackend) { b.client = c }
}

func WithRemoteLogger(l *slog.Logger) RemoteOption {
	return func(b *RemoteBackend) { b.logger = l }
}

// NewRemoteBackend targets the API mounted at baseURL (for example
// https://gatekeeper:8443/api/v1). service names the caller in
// authenticate requests; token is the server's internal API token.
func NewRemoteBackend(baseURL, service, token string, opts ...RemoteOption) *RemoteBackend {
	b := &RemoteBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		service: service,
		token:   token,
		client:  &http.Client{Timeout: remoteTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "remote_backend")
	return b
}

func (b *RemoteBackend) AuthenticateCredentials(username, password string) credential.AuthorizationResult {
	return b.check(nil, CheckRequest{Username: username, Password: password})
}

func (b *RemoteBackend) AuthorizeCredentials(username, password string, p credential.Permission) credential.AuthorizationResult {
	return b.check(&p, CheckRequest{Username: username, Password: password})
}

func (b *RemoteBackend) AuthenticateSession(token string) credential.AuthorizationResult {
	return b.check(nil, CheckRequest{SessionToken: token})
}

func (b *RemoteBackend) AuthorizeSession(token string, p credential.Permission) credential.AuthorizationResult {
	return b.check(&p, CheckRequest{SessionToken: token})
}

func (b *RemoteBackend) AuthenticateStrictSession(token, password string) credential.AuthorizationResult {
	return b.check(nil, CheckRequest{SessionToken: token, Password: password})
}

func (b *RemoteBackend) AuthorizeStrictSession(token, password string, p credential.Permission) credential.AuthorizationResult {
	return b.check(&p, CheckRequest{SessionToken: token, Password: password})
}

func (b *RemoteBackend) AuthenticateAPIKey(token string) credential.AuthorizationResult {
	return b.check(nil, CheckRequest{APIKey: token})
}

func (b *RemoteBackend) AuthorizeAPIKey(token string, p credential.Permission) credential.AuthorizationResult {
	return b.check(&p, CheckRequest{APIKey: token})
}

// check posts req to the authenticate route, or to the authorize route
// when p is set. Empty material never leaves the process.
func (b *RemoteBackend) check(p *credential.Permission, req CheckRequest) credential.AuthorizationResult {
	if req == (CheckRequest{}) {
		return credential.Failed()
	}
	endpoint := b.baseURL + "/internal/authenticate/" + url.PathEscape(b.service)
	if p != nil {
		endpoint = b.baseURL + "/internal/authorize/" + url.PathEscape(p.Service) + "/" + url.PathEscape(p.Name)
	}
	res, err := b.post(endpoint, req)
	if err != nil {
		b.logger.Warn("remote check failed", "endpoint", endpoint, "error", err)
		return credential.Failed()
	}
	if p != nil {
		if got, ok := res.Permission(); ok && got != *p {
			b.logger.Warn("remote check authorized a different permission", "want", p.String(), "got", got.String())
			return credential.Failed()
		}
	}
	return res
}

func (b *RemoteBackend) post(endpoint string, body CheckRequest) (credential.AuthorizationResult, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return credential.Failed(), err
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return credential.Failed(), err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", internalAuthPrefix+b.token)

	resp, err := b.client.Do(req)
	if err != nil {
		return credential.Failed(), err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxRemoteBodySize))
		return credential.Failed(), fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var res credential.AuthorizationResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRemoteBodySize)).Decode(&res); err != nil {
		return credential.Failed(), fmt.Errorf("decoding result: %w", err)
	}
	return res, nil
}
