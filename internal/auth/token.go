package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is the session window applied when TokenConfig.TTL is zero.
	DefaultTokenTTL = 60 * time.Minute

	// MinSecretLength is the shortest accepted HMAC signing secret.
	MinSecretLength = 32
)

// Claims is the claim set carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TokenConfig configures a TokenService. It is read once at startup.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration

	// Now overrides the clock; tests use it to step across the expiry boundary.
	Now func() time.Time
}

// TokenService issues and validates HS256 session tokens. It holds no
// mutable state and is safe for concurrent use.
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

// NewTokenService validates cfg and builds a TokenService.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d characters", MinSecretLength)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("token issuer and audience are required")
	}
	if cfg.TTL < 0 {
		return nil, errors.New("token TTL must not be negative")
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ts := &TokenService{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      now,
	}

	// No leeway: a token is accepted only while iat <= now < exp.
	ts.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	return ts, nil
}

// TTL returns the configured session window.
func (ts *TokenService) TTL() time.Duration {
	return ts.ttl
}

// Issue signs a token for staff. The subject is the decimal staff id.
func (ts *TokenService) Issue(staff *Staff) (string, time.Time, error) {
	if staff == nil || staff.ID <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: cannot issue a token without a persisted identity", ErrTokenInvalid)
	}

	// Claim times are whole seconds. Truncating here keeps exp exactly one
	// TTL after iat.
	now := ts.now().Truncate(time.Second)
	expires := now.Add(ts.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(staff.ID, 10),
			Issuer:    ts.issuer,
			Audience:  jwt.ClaimStrings{ts.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Name:  staff.Username,
		Email: staff.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Validate checks signature, algorithm, issuer, audience and the
// [issued-at, expiry) window with no clock leeway, returning the claims
// unmodified on success.
// Expired tokens yield ErrTokenExpired; every other failure ErrTokenInvalid.
func (ts *TokenService) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	claims := &Claims{}
	token, err := ts.parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return ts.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ValidateAndResolve validates tokenString and resolves its subject to a
// staff id. Any failure yields Unauthenticated.
func (ts *TokenService) ValidateAndResolve(tokenString string) int64 {
	claims, err := ts.Validate(tokenString)
	if err != nil {
		return Unauthenticated
	}
	return ResolveID(claims)
}
