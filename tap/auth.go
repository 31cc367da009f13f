package tap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// TokenExpiryMargin is how long before expiry an access token is refreshed.
	TokenExpiryMargin = 120 * time.Second

	// DefaultTokenLifetime is assumed when the token endpoint omits access_token_expiration.
	DefaultTokenLifetime = 30 * time.Minute

	// RateLimitedRefresh is the error_description Clover returns when a refresh is
	// attempted while the current access token is still valid.
	RateLimitedRefresh = "Rate limit exceeded: access_token not expired"
)

// Authenticator supplies the headers that authorise an API request.
type Authenticator interface {
	AuthHeaders(ctx context.Context) (map[string]string, error)
}

// APIKeyAuthenticator authorises sandbox requests with a static API token.
type APIKeyAuthenticator struct {
	token string
}

func NewAPIKeyAuthenticator(token string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{token: token}
}

func (a *APIKeyAuthenticator) AuthHeaders(ctx context.Context) (map[string]string, error) {
	if a.token == "" {
		return nil, &AuthError{Body: "api_token is empty"}
	}
	return map[string]string{"Authorization": "Bearer " + a.token}, nil
}

// Credential is the OAuth client and token pair used against the production API.
type Credential struct {
	ClientID     string
	ClientSecret string
	Token        *oauth2.Token
}

// ExpiresAt returns the token expiry in epoch seconds, or 0 when unknown.
func (c Credential) ExpiresAt() int64 {
	if c.Token == nil || c.Token.Expiry.IsZero() {
		return 0
	}
	return c.Token.Expiry.Unix()
}

// CredentialStore persists a rotated credential so the next run can use it.
type CredentialStore interface {
	SaveCredential(ctx context.Context, cred Credential) error
}

// OAuthAuthenticator authorises requests with an access token, refreshing it
// through the token endpoint when it is about to expire. Clover rotates the
// refresh token on every refresh, so each new pair is handed to the CredentialStore.
// Refreshes are serialised; concurrent callers share one refresh.
type OAuthAuthenticator struct {
	tokenURL   string
	newRequest func(url string) *requests.Builder
	store      CredentialStore
	policy     RetryPolicy
	now        func() time.Time

	group singleflight.Group
	mu    sync.Mutex
	cred  Credential
}

type OAuthOption func(*OAuthAuthenticator)

func WithTokenURL(url string) OAuthOption {
	return func(a *OAuthAuthenticator) {
		if url != "" {
			a.tokenURL = url
		}
	}
}

func WithCredentialStore(store CredentialStore) OAuthOption {
	return func(a *OAuthAuthenticator) {
		a.store = store
	}
}

func WithRefreshRetryPolicy(policy RetryPolicy) OAuthOption {
	return func(a *OAuthAuthenticator) {
		a.policy = policy
	}
}

// WithRequestBuilder sets how token requests are built, e.g. SyncContext.APIBuilder.
func WithRequestBuilder(newRequest func(url string) *requests.Builder) OAuthOption {
	return func(a *OAuthAuthenticator) {
		a.newRequest = newRequest
	}
}

func WithClock(now func() time.Time) OAuthOption {
	return func(a *OAuthAuthenticator) {
		a.now = now
	}
}

func NewOAuthAuthenticator(cred Credential, opts ...OAuthOption) *OAuthAuthenticator {
	if cred.Token == nil {
		cred.Token = &oauth2.Token{}
	}
	result := &OAuthAuthenticator{
		tokenURL: DefaultTokenURL,
		newRequest: func(url string) *requests.Builder {
			return requests.URL(url).Client(&http.Client{Timeout: HTTPRequestTimeout})
		},
		policy: RefreshRetryPolicy(),
		now:    time.Now,
		cred:   cred,
	}
	for _, opt := range opts {
		opt(result)
	}
	return result
}

// IsTokenValid reports whether the access token is present and at least
// TokenExpiryMargin away from expiry.
func (a *OAuthAuthenticator) IsTokenValid() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokenValidLocked()
}

func (a *OAuthAuthenticator) tokenValidLocked() bool {
	t := a.cred.Token
	if t == nil || t.AccessToken == "" || t.Expiry.IsZero() {
		return false
	}
	return t.Expiry.Sub(a.now()) >= TokenExpiryMargin
}

// AuthHeaders returns the bearer header, refreshing the token first when needed.
func (a *OAuthAuthenticator) AuthHeaders(ctx context.Context) (map[string]string, error) {
	if !a.IsTokenValid() {
		if err := a.refresh(ctx, true); err != nil {
			return nil, err
		}
	}
	a.mu.Lock()
	access := a.cred.Token.AccessToken
	a.mu.Unlock()
	if access == "" {
		return nil, &AuthError{Body: "no access token available"}
	}
	return map[string]string{"Authorization": "Bearer " + access}, nil
}

// Token implements oauth2.TokenSource.
func (a *OAuthAuthenticator) Token() (*oauth2.Token, error) {
	if _, err := a.AuthHeaders(context.Background()); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	token := *a.cred.Token
	return &token, nil
}

// Credential returns a copy of the current credential.
func (a *OAuthAuthenticator) Credential() Credential {
	a.mu.Lock()
	defer a.mu.Unlock()
	result := a.cred
	token := *a.cred.Token
	result.Token = &token
	return result
}

// Refresh exchanges the refresh token for a new token pair.
// Empty responses are retried under the refresh policy; a rejected refresh
// returns an *AuthError.
func (a *OAuthAuthenticator) Refresh(ctx context.Context) error {
	return a.refresh(ctx, false)
}

// refresh joins any refresh in flight. With onlyIfInvalid a token refreshed by
// another caller in the meantime is reused instead of being rotated again.
func (a *OAuthAuthenticator) refresh(ctx context.Context, onlyIfInvalid bool) error {
	_, err, _ := a.group.Do("refresh", func() (any, error) {
		if onlyIfInvalid && a.IsTokenValid() {
			return nil, nil
		}
		return nil, a.policy.Do(ctx, func() error {
			return a.refreshOnce(ctx)
		})
	})
	return err
}

func (a *OAuthAuthenticator) refreshOnce(ctx context.Context) error {
	a.mu.Lock()
	body := map[string]string{
		"refresh_token": a.cred.Token.RefreshToken,
		"client_id":     a.cred.ClientID,
	}
	a.mu.Unlock()

	var status int
	var buf bytes.Buffer
	err := a.newRequest(a.tokenURL).
		Post().
		BodyJSON(&body).
		AddValidator(func(res *http.Response) error {
			status = res.StatusCode
			return nil
		}).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh access token %w", err)
	}

	raw := bytes.TrimSpace(buf.Bytes())
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return fmt.Errorf("%w from token endpoint (status %d)", ErrEmptyResponse, status)
	}
	response := gjson.ParseBytes(raw)
	if response.Get("error_description").String() == RateLimitedRefresh {
		Logger().Info("access token refresh rate limited, keeping the current token")
		return nil
	}
	if status < 200 || status >= 300 {
		return &AuthError{StatusCode: status, Body: string(raw)}
	}
	access := response.Get("access_token").String()
	if access == "" {
		return &AuthError{StatusCode: status, Body: string(raw)}
	}

	a.mu.Lock()
	refresh := response.Get("refresh_token").String()
	if refresh == "" {
		refresh = a.cred.Token.RefreshToken
	}
	token := &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: refresh,
	}
	// access_token_expiration is a lifetime in seconds
	lifetime := time.Duration(response.Get("access_token_expiration").Int()) * time.Second
	if lifetime <= 0 {
		Logger().Warn("token response has no access_token_expiration, assuming the default lifetime",
			zap.Duration("lifetime", DefaultTokenLifetime))
		lifetime = DefaultTokenLifetime
	}
	token.Expiry = a.now().Add(lifetime)
	a.cred.Token = token
	cred := a.cred
	a.mu.Unlock()

	// the rotated refresh token is logged so a run that fails to persist it can be recovered
	Logger().Info("refreshed access token",
		zap.String("refresh_token", refresh),
		zap.Time("expires_at", token.Expiry))

	if a.store != nil {
		if err := a.store.SaveCredential(ctx, cred); err != nil {
			Logger().Error("failed to persist refreshed credential", zap.Error(err))
		}
	}
	return nil
}

// NewAuthenticator returns the authenticator for the configured environment.
func NewAuthenticator(cfg Config, store CredentialStore, newRequest func(url string) *requests.Builder) (Authenticator, error) {
	if cfg.IsSandbox == nil {
		return nil, errors.New("is_sandbox must be set before choosing an authenticator")
	}
	if cfg.Sandbox() {
		return NewAPIKeyAuthenticator(cfg.APIToken), nil
	}
	opts := []OAuthOption{
		WithTokenURL(cfg.RefreshURL()),
		WithCredentialStore(store),
	}
	if newRequest != nil {
		opts = append(opts, WithRequestBuilder(newRequest))
	}
	return NewOAuthAuthenticator(cfg.Credential(), opts...), nil
}
