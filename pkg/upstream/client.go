// Package upstream talks to the session-authenticated streaming service on
// behalf of the proxy. It owns the whole session lifecycle: the proxy core
// only ever sees the four operations of Client and the two sentinel errors.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable marks content the upstream cannot produce right now.
	// Re-authenticating does not help.
	ErrUnavailable = errors.New("upstream content unavailable")

	// ErrSessionExpired marks a fetch rejected because the session token is
	// no longer accepted. Only segment fetches report it.
	ErrSessionExpired = errors.New("upstream session expired")
)

type Client interface {
	FetchPlaylist(ctx context.Context, channel string) (string, error)
	FetchSegment(ctx context.Context, path string) ([]byte, error)
	ResetSession(ctx context.Context) error
	Authenticate(ctx context.Context) error
}

type Credentials struct {
	Username string
	Password string
	Region   string
}

// HTTPClient implements Client against a token-session HTTP upstream: a login
// endpoint trades credentials for a bearer token, fetches carry the token.
type HTTPClient struct {
	base  *url.URL
	login *url.URL
	creds Credentials
	log   *zap.Logger

	// ResetSession swaps in a fresh http.Client rather than mutating the
	// current one, which http.Client.Do may be reading concurrently.
	mu    sync.Mutex
	http  *http.Client
	token string
}

const requestTimeout = 30 * time.Second

func NewHTTPClient(baseUrl, loginUrl string, creds Credentials, log *zap.Logger) (*HTTPClient, error) {
	base, err := url.Parse(baseUrl)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing base url %q", baseUrl)
	}

	login, err := url.Parse(loginUrl)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing login url %q", loginUrl)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.WithMessage(err, "creating cookie jar")
	}

	return &HTTPClient{
		base:  base,
		login: login,
		creds: creds,
		log:   log,
		http:  &http.Client{Jar: jar, Timeout: requestTimeout},
	}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Region   string `json:"region"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (c *HTTPClient) Authenticate(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{
		Username: c.creds.Username,
		Password: c.creds.Password,
		Region:   c.creds.Region,
	})
	if err != nil {
		return errors.WithMessage(err, "encoding login request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.login.String(), bytes.NewReader(body))
	if err != nil {
		return errors.WithMessage(err, "building login request")
	}
	req.Header.Set("Content-Type", "application/json")

	cli, _ := c.session()
	res, err := cli.Do(req)
	if err != nil {
		return errors.WithMessage(err, "posting login request")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return errors.Errorf("login rejected: %s => %d", c.login.String(), res.StatusCode)
	}

	lr := loginResponse{}
	if err := json.NewDecoder(res.Body).Decode(&lr); err != nil {
		return errors.WithMessage(err, "decoding login response")
	}
	if lr.Token == "" {
		return errors.New("login response carries no token")
	}

	c.mu.Lock()
	c.token = lr.Token
	c.mu.Unlock()

	c.log.Info("authenticated with upstream", zap.String("region", c.creds.Region))
	return nil
}

// ResetSession drops the token and all session cookies. The next Authenticate
// starts from a clean slate.
func (c *HTTPClient) ResetSession(ctx context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return errors.WithMessage(err, "resetting cookie jar")
	}

	c.mu.Lock()
	c.token = ""
	c.http = &http.Client{
		Transport: c.http.Transport,
		Timeout:   c.http.Timeout,
		Jar:       jar,
	}
	c.mu.Unlock()

	c.log.Debug("upstream session dropped")
	return nil
}

func (c *HTTPClient) FetchPlaylist(ctx context.Context, channel string) (string, error) {
	res, err := c.get(ctx, c.resolve(channel+".m3u8"))
	if err != nil {
		c.log.Warn("playlist fetch failed", zap.String("channel", channel), zap.Error(err))
		return "", ErrUnavailable
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		c.log.Debug("playlist not served",
			zap.String("channel", channel),
			zap.Int("status_code", res.StatusCode))
		return "", ErrUnavailable
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		c.log.Warn("reading playlist failed", zap.String("channel", channel), zap.Error(err))
		return "", ErrUnavailable
	}
	return string(body), nil
}

func (c *HTTPClient) FetchSegment(ctx context.Context, segment string) ([]byte, error) {
	res, err := c.get(ctx, c.resolve(segment))
	if err != nil {
		c.log.Warn("segment fetch failed", zap.String("segment", segment), zap.Error(err))
		return nil, ErrUnavailable
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(res.Body)
		if err != nil {
			c.log.Warn("reading segment failed", zap.String("segment", segment), zap.Error(err))
			return nil, ErrUnavailable
		}
		return body, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrSessionExpired
	default:
		c.log.Debug("segment not served",
			zap.String("segment", segment),
			zap.Int("status_code", res.StatusCode))
		return nil, ErrUnavailable
	}
}

func (c *HTTPClient) resolve(p string) *url.URL {
	u := *c.base
	u.Path = path.Join("/", u.Path, p)
	return &u
}

func (c *HTTPClient) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	cli, token := c.session()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return cli.Do(req)
}

func (c *HTTPClient) session() (*http.Client, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.http, c.token
}
