package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// Claims is the token body issued by the auth service. StaffID, when present,
// names the provider the caller acts as; otherwise Subject does.
type Claims struct {
	jwt.RegisteredClaims
	BusinessID string `json:"business_id,omitempty"`
	StaffID    string `json:"staff_id,omitempty"`
	Role       string `json:"role,omitempty"`
}

// ProviderID is the identity a provider-scoped request runs as.
func (c *Claims) ProviderID() string {
	if c.StaffID != "" {
		return c.StaffID
	}
	return c.Subject
}

type VerifierConfig struct {
	// Secret verifies HS256 tokens. Empty disables them.
	Secret string
	// Keys resolves RS256 keys by kid. Nil disables them.
	Keys   *JWKSClient
	Issuer string
}

type Verifier struct {
	cfg VerifierConfig
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Secret == "" && cfg.Keys == nil {
		return nil, errors.New("auth: a secret or a jwks client is required")
	}
	return &Verifier{cfg: cfg}, nil
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods()),
		jwt.WithLeeway(10 * time.Second),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, v.key, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *Verifier) methods() []string {
	var m []string
	if v.cfg.Secret != "" {
		m = append(m, jwt.SigningMethodHS256.Alg())
	}
	if v.cfg.Keys != nil {
		m = append(m, jwt.SigningMethodRS256.Alg())
	}
	return m
}

func (v *Verifier) key(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return []byte(v.cfg.Secret), nil
	case *jwt.SigningMethodRSA:
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", ErrInvalidToken)
		}
		return v.cfg.Keys.Get(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

// SignHS256 issues a token for local tooling and tests.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
