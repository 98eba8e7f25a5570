// Package auth resolves the calling account from a signed session token.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/model"
)

// DefaultCookieName is the session cookie read by the resolver.
const DefaultCookieName = "token"

// DefaultTTL is the lifetime of issued tokens.
const DefaultTTL = 30 * 24 * time.Hour

// AccountGetter looks up accounts by ID.
type AccountGetter interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
}

// Claims is the token payload. Subject holds the account ID.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Resolver verifies HS256 session tokens and loads the matching account.
type Resolver struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
	accounts   AccountGetter
	now        func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCookieName overrides the session cookie name.
func WithCookieName(name string) Option {
	return func(r *Resolver) {
		if name != "" {
			r.cookieName = name
		}
	}
}

// WithTTL overrides the lifetime of issued tokens.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock replaces the clock used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver.
func NewResolver(secret string, accounts AccountGetter, opts ...Option) *Resolver {
	r := &Resolver{
		secret:     []byte(secret),
		cookieName: DefaultCookieName,
		ttl:        DefaultTTL,
		accounts:   accounts,
		now:        time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CookieName returns the session cookie name.
func (r *Resolver) CookieName() string {
	return r.cookieName
}

// Issue signs a token for the account.
func (r *Resolver) Issue(acct model.Account) (string, error) {
	now := r.now()
	claims := Claims{
		Email: acct.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", eris.Wrap(err, "auth: sign token")
	}
	return tok, nil
}

// Verify parses a token and returns its claims.
func (r *Resolver) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "auth: verify token")
	}
	if claims.Subject == "" {
		return nil, eris.New("auth: token has no subject")
	}
	return claims, nil
}

// ResolveCaller returns the authenticated caller for the request, or nil
// for a guest. A missing, invalid or expired token, or one naming an
// unknown account, makes the request a guest. Only store failures are
// returned as errors.
func (r *Resolver) ResolveCaller(req *http.Request) (*model.Caller, error) {
	token := r.tokenFrom(req)
	if token == "" {
		return nil, nil
	}
	claims, err := r.Verify(token)
	if err != nil {
		zap.L().Debug("auth: rejecting token", zap.Error(err))
		return nil, nil
	}
	acct, err := r.accounts.GetAccount(req.Context(), claims.Subject)
	if err != nil {
		return nil, eris.Wrap(err, "auth: load account")
	}
	if acct == nil {
		return nil, nil
	}
	return &model.Caller{AccountID: acct.ID, Email: acct.Email, Balance: acct.Points}, nil
}

func (r *Resolver) tokenFrom(req *http.Request) string {
	if c, err := req.Cookie(r.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	h := req.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
