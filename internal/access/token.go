package access

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer token payload.
type Claims struct {
	jwt.RegisteredClaims
	Role       Role    `json:"role"`
	Warehouses []int64 `json:"warehouses,omitempty"`
}

// TokenParser verifies HS256 bearer tokens issued by the identity provider.
type TokenParser struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenParser constructs a TokenParser.
func NewTokenParser(secret, issuer string) (*TokenParser, error) {
	if secret == "" {
		return nil, errors.New("access: token secret required")
	}
	return &TokenParser{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Parse validates the token and returns its principal.
func (p *TokenParser) Parse(raw string) (Principal, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("access: invalid token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return Principal{}, fmt.Errorf("access: subject: %w", err)
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, fmt.Errorf("access: subject %q is not a user id", sub)
	}
	return Principal{ID: id, Role: claims.Role, WarehouseScope: claims.Warehouses}, nil
}

// Issue signs a token for p. Used by tooling and tests.
func (p *TokenParser) Issue(principal Principal, ttl time.Duration) (string, error) {
	now := p.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(principal.ID, 10),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:       principal.Role,
		Warehouses: principal.WarehouseScope,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
