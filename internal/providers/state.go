package providers

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"lifedash/internal/cache"
)

// DefaultStateTTL bounds the time between starting and finishing a consent.
const DefaultStateTTL = 10 * time.Minute

var (
	// ErrInvalidState is returned for a state that fails verification.
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrStateReused is returned when a state is presented a second time.
	ErrStateReused = errors.New("oauth state already used")
)

type stateClaims struct {
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// StateManager issues and verifies the signed state parameter of OAuth
// redirects. A state binds the user to the provider and can be redeemed once.
type StateManager struct {
	secret []byte
	ttl    time.Duration
	used   *cache.LRUCache[struct{}]
	now    func() time.Time
}

func NewStateManager(secret string, ttl time.Duration) *StateManager {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateManager{
		secret: []byte(secret),
		ttl:    ttl,
		// Entries outlive the token they guard.
		used: cache.NewLRUCache[struct{}](10000, ttl+time.Minute),
		now:  time.Now,
	}
}

// WithClock replaces time.Now for issuing and verifying.
func (m *StateManager) WithClock(now func() time.Time) *StateManager {
	m.now = now
	m.used.WithClock(now)
	return m
}

// UsedStates exposes the redeemed-state cache for periodic cleanup.
func (m *StateManager) UsedStates() cache.Cleaner {
	return m.used
}

// Issue returns a state for userID connecting provider.
func (m *StateManager) Issue(provider, userID string) (string, error) {
	now := m.now()
	claims := stateClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// Redeem verifies state for provider and returns the user it was issued to.
// A state is accepted at most once.
func (m *StateManager) Redeem(provider, state string) (string, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.Provider != provider {
		return "", fmt.Errorf("%w: issued for %s", ErrInvalidState, claims.Provider)
	}
	if claims.Subject == "" || claims.ID == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidState)
	}
	if !m.used.Add(claims.ID, struct{}{}) {
		return "", ErrStateReused
	}
	return claims.Subject, nil
}
