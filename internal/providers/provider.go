// Package providers connects users to external data sources over OAuth2 and
// turns their API responses into records the ingest pipeline understands.
//
// A provider only reads: Fetch returns a complete Batch or an error, and
// nothing is written until the caller applies the batch.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"lifedash/internal/core"
	applog "lifedash/internal/log"
)

var (
	// ErrUnknownProvider is returned for a service name with no provider.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrNotConnected is returned when the user has no stored token.
	ErrNotConnected = errors.New("provider not connected")
)

// Provider is one external service.
type Provider interface {
	Name() string
	OAuth2Config() *oauth2.Config
	AuthCodeOptions() []oauth2.AuthCodeOption
	// Fetch reads the user's recent data with an authorized client.
	Fetch(ctx context.Context, client *http.Client, req FetchRequest) (Batch, error)
}

// FetchRequest carries what a provider needs besides the HTTP client.
type FetchRequest struct {
	UserID  string
	RealmID string
	Now     time.Time
}

// Target is a budget target derived from provider data.
type Target struct {
	Category string
	Month    core.Month
	Amount   core.Money
}

// Batch is everything one provider sync produced for one user.
type Batch struct {
	Provider     string
	UserID       string
	Transactions []core.RawTransaction
	Health       []core.HealthMetrics
	Glucose      []core.GlucoseReading
	Targets      []Target
	// Skipped counts upstream records that could not be converted.
	Skipped int
}

// Records is the number of items in the batch.
func (b Batch) Records() int {
	return len(b.Transactions) + len(b.Health) + len(b.Glucose) + len(b.Targets)
}

// TokenStore persists OAuth grants.
type TokenStore interface {
	GetToken(ctx context.Context, userID, provider string) (core.ProviderToken, error)
	SaveToken(ctx context.Context, t core.ProviderToken) error
	ListTokenProviders(ctx context.Context, userID string) ([]string, error)
}

// Registry holds the configured providers and their token storage.
type Registry struct {
	providers map[string]Provider
	order     []string
	tokens    TokenStore
	client    *http.Client
	logger    *applog.Logger
	now       func() time.Time
}

// NewRegistry registers providers in the given order. Every outbound call is
// bounded by timeout.
func NewRegistry(tokens TokenStore, timeout time.Duration, logger *applog.Logger, providers ...Provider) *Registry {
	if logger == nil {
		logger = applog.Discard()
	}
	r := &Registry{
		providers: make(map[string]Provider, len(providers)),
		tokens:    tokens,
		client:    newHTTPClient(timeout),
		logger:    logger.WithComponent(applog.ComponentProvider),
		now:       time.Now,
	}
	for _, p := range providers {
		if _, dup := r.providers[p.Name()]; dup {
			continue
		}
		r.providers[p.Name()] = p
		r.order = append(r.order, p.Name())
	}
	return r
}

// WithClock replaces time.Now for fetch windows.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// AuthCodeURL returns the consent page URL for provider carrying state.
func (r *Registry) AuthCodeURL(provider, state string) (string, error) {
	p, err := r.Get(provider)
	if err != nil {
		return "", err
	}
	return p.OAuth2Config().AuthCodeURL(state, p.AuthCodeOptions()...), nil
}

// Exchange trades an authorization code for a token and stores it.
func (r *Registry) Exchange(ctx context.Context, provider, userID, code, realmID string) error {
	p, err := r.Get(provider)
	if err != nil {
		return err
	}
	if code == "" {
		return core.NewValidationError("code", "is required")
	}

	tok, err := p.OAuth2Config().Exchange(r.clientContext(ctx), code)
	if err != nil {
		return toUpstream(provider, fmt.Errorf("exchange code: %w", err))
	}

	if err := r.tokens.SaveToken(ctx, fromOAuth2(userID, provider, realmID, tok)); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Provider connected", applog.FieldProvider, provider, applog.FieldUserID, userID)
	return nil
}

// Fetch loads the user's token, refreshing and persisting it when needed,
// and asks the provider for its data.
func (r *Registry) Fetch(ctx context.Context, userID, provider string) (Batch, error) {
	p, err := r.Get(provider)
	if err != nil {
		return Batch{}, err
	}

	stored, err := r.tokens.GetToken(ctx, userID, provider)
	if errors.Is(err, core.ErrNotFound) {
		return Batch{}, fmt.Errorf("%w: %s", ErrNotConnected, provider)
	}
	if err != nil {
		return Batch{}, err
	}

	cctx := r.clientContext(ctx)
	src := &persistingTokenSource{
		base:   p.OAuth2Config().TokenSource(cctx, toOAuth2(stored)),
		last:   stored.AccessToken,
		ctx:    ctx,
		stored: stored,
		store:  r.tokens,
		logger: r.logger,
	}
	client := oauth2.NewClient(cctx, src)
	client.Timeout = r.client.Timeout

	batch, err := p.Fetch(ctx, client, FetchRequest{UserID: userID, RealmID: stored.RealmID, Now: r.now()})
	if err != nil {
		return Batch{}, toUpstream(provider, err)
	}
	batch.Provider = provider
	batch.UserID = userID
	return batch, nil
}

// Connections reports for every registered provider whether the user has a
// stored token.
func (r *Registry) Connections(ctx context.Context, userID string) (map[string]bool, error) {
	connected, err := r.tokens.ListTokenProviders(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(r.order))
	for _, name := range r.order {
		out[name] = false
	}
	for _, name := range connected {
		if _, ok := out[name]; ok {
			out[name] = true
		}
	}
	return out, nil
}

func (r *Registry) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, r.client)
}

// persistingTokenSource writes refreshed tokens back to the store.
type persistingTokenSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	last   string
	ctx    context.Context
	stored core.ProviderToken
	store  TokenStore
	logger *applog.Logger
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last {
		return tok, nil
	}
	s.last = tok.AccessToken

	refreshed := fromOAuth2(s.stored.UserID, s.stored.Provider, s.stored.RealmID, tok)
	if err := s.store.SaveToken(s.ctx, refreshed); err != nil {
		s.logger.WarnContext(s.ctx, "Failed to persist refreshed token",
			applog.FieldProvider, s.stored.Provider, applog.FieldUserID, s.stored.UserID, applog.FieldError, err)
	}
	return tok, nil
}

func toOAuth2(t core.ProviderToken) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}

func fromOAuth2(userID, provider, realmID string, tok *oauth2.Token) core.ProviderToken {
	return core.ProviderToken{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		RealmID:      realmID,
	}
}
