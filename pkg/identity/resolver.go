package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lib/pq"
)

// Store is the persistence surface the resolver needs
type Store interface {
	// GetUserBySessionHash resolves an unexpired, unrevoked session token
	// hash to its user row.
	GetUserBySessionHash(ctx context.Context, tokenHash string) (*User, error)

	// GetUserByEmail resolves an OIDC subject's email to its user row.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// Resolver resolves a raw credential to an identity
type Resolver interface {
	Resolve(ctx context.Context, credential string) (*Identity, error)
}

// Service resolves opaque session tokens and (when configured) OIDC ID
// tokens. Results are memoized for a short TTL so the several policy checks
// within one request hit the store once.
//
// Fails closed: expected lookup failures (no matching row, or the backing
// table not existing yet during provisioning) resolve to ErrUnauthenticated.
// Anything else propagates.
type Service struct {
	store    Store
	tokens   *TokenGenerator
	verifier *oidc.IDTokenVerifier
	cache    *expirable.LRU[string, *Identity]
}

// Option configures the resolver service
type Option func(*Service)

// WithOIDCVerifier enables the OIDC credential path
func WithOIDCVerifier(verifier *oidc.IDTokenVerifier) Option {
	return func(s *Service) { s.verifier = verifier }
}

// WithCache sets the memoization cache dimensions
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = expirable.NewLRU[string, *Identity](size, nil, ttl)
	}
}

// NewService creates a resolver service
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tokens: NewTokenGenerator(),
		cache:  expirable.NewLRU[string, *Identity](4096, nil, 30*time.Second),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve maps a credential to the caller's identity. The credential is
// either an opaque vg_ session token or an OIDC ID token (JWT) from the
// hosted auth provider.
func (s *Service) Resolve(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrUnauthenticated
	}

	// Memoization key is the hash, never the raw credential.
	cacheKey := s.tokens.HashToken(credential)
	if id, ok := s.cache.Get(cacheKey); ok {
		return id, nil
	}

	var id *Identity
	var err error
	if strings.HasPrefix(credential, TokenPrefix) {
		id, err = s.resolveSession(ctx, credential)
	} else if s.verifier != nil {
		id, err = s.resolveOIDC(ctx, credential)
	} else {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}

	s.cache.Add(cacheKey, id)
	return id, nil
}

// Invalidate drops the memoized identity for a credential. Called on
// session revocation so a revoked token stops resolving immediately instead
// of riding out the cache TTL.
func (s *Service) Invalidate(credential string) {
	if credential == "" {
		return
	}
	s.cache.Remove(s.tokens.HashToken(credential))
}

func (s *Service) resolveSession(ctx context.Context, token string) (*Identity, error) {
	if err := s.tokens.ValidateTokenFormat(token); err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.store.GetUserBySessionHash(ctx, s.tokens.HashToken(token))
	if err != nil {
		return nil, s.classifyLookupError(err)
	}
	return user.Identity(), nil
}

func (s *Service) resolveOIDC(ctx context.Context, rawToken string) (*Identity, error) {
	idToken, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil || claims.Email == "" {
		return nil, ErrUnauthenticated
	}

	// A verified provider token with no application user row means the
	// signup flow has not provisioned this user yet. That is an expected
	// eventual-consistency gap, not an error.
	user, err := s.store.GetUserByEmail(ctx, claims.Email)
	if err != nil {
		return nil, s.classifyLookupError(err)
	}
	return user.Identity(), nil
}

// classifyLookupError separates expected lookup failures from genuine store
// faults. "Relation does not exist" covers a freshly provisioned deployment
// whose user table has not been migrated yet.
func (s *Service) classifyLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrUnauthenticated) {
		return ErrUnauthenticated
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" { // undefined_table
		return ErrUnauthenticated
	}
	return err
}
