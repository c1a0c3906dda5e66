// Package auth turns bearer tokens into a Principal carried on the context.
package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthorized is returned for missing, malformed or expired tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the caller's role may not perform the
	// operation.
	ErrForbidden = errors.New("forbidden")
)

// Role is the kind of account behind a request.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleRestaurant Role = "restaurant"
	RoleCourier    Role = "courier"
	RoleAdmin      Role = "admin"
)

func (r Role) valid() bool {
	switch r {
	case RoleCustomer, RoleRestaurant, RoleCourier, RoleAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   Role
}

// HasRole reports whether p has one of roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Require returns ErrForbidden unless p has one of roles. Admins pass
// every check.
func (p Principal) Require(roles ...Role) error {
	if p.Role == RoleAdmin || p.HasRole(roles...) {
		return nil
	}
	return errors.Wrapf(ErrForbidden, "role %s", p.Role)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the Principal stored in ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 tokens.
type Tokens struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// NewTokens returns Tokens signing with key. An empty issuer disables the
// issuer check.
func NewTokens(key []byte, issuer string) *Tokens {
	return &Tokens{key: key, issuer: issuer, now: time.Now}
}

// Issue signs a token for p valid for ttl.
func (t *Tokens) Issue(p Principal, ttl time.Duration) (string, error) {
	now := t.now()
	c := claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.key)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return s, nil
}

// Verify parses token and returns its Principal.
func (t *Tokens) Verify(token string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	var c claims
	if _, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return t.key, nil
	}, opts...); err != nil {
		return Principal{}, errors.Wrap(ErrUnauthorized, err.Error())
	}
	if c.Subject == "" || !c.Role.valid() {
		return Principal{}, ErrUnauthorized
	}
	return Principal{UserID: c.Subject, Role: c.Role}, nil
}
