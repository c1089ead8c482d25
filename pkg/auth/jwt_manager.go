package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingToken  = errors.New("missing token")
	ErrInvalidHeader = errors.New("invalid Authorization header")
)

// TokenClass selects the signing key and lifetime. Access and refresh tokens
// never verify against each other's key.
type TokenClass int

const (
	AccessToken TokenClass = iota
	RefreshToken
)

func (c TokenClass) String() string {
	if c == RefreshToken {
		return "refresh"
	}
	return "access"
}

type TokenConfig struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

// Profile is the identity snapshot embedded into access tokens.
type Profile struct {
	Username string
	Email    string
	FullName string
}

type Claims struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullname,omitempty"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	keys map[TokenClass][]byte
	ttls map[TokenClass]time.Duration
}

func NewJWTManager(cfg TokenConfig) *JWTManager {
	return &JWTManager{
		keys: map[TokenClass][]byte{
			AccessToken:  []byte(cfg.AccessSecret),
			RefreshToken: []byte(cfg.RefreshSecret),
		},
		ttls: map[TokenClass]time.Duration{
			AccessToken:  cfg.AccessTTL,
			RefreshToken: cfg.RefreshTTL,
		},
	}
}

// GenerateAccess creates an access token for userID carrying the profile.
func (m *JWTManager) GenerateAccess(userID string, p Profile) (string, error) {
	return m.sign(AccessToken, Claims{
		Username:         p.Username,
		Email:            p.Email,
		FullName:         p.FullName,
		RegisteredClaims: m.registered(AccessToken, userID),
	})
}

// GenerateRefresh creates a refresh token carrying only the user id.
func (m *JWTManager) GenerateRefresh(userID string) (string, error) {
	return m.sign(RefreshToken, Claims{RegisteredClaims: m.registered(RefreshToken, userID)})
}

// Verify parses and checks a token of the given class. Every failure
// (bad signature, expired, malformed, wrong class) matches ErrInvalidToken.
func (m *JWTManager) Verify(token string, class TokenClass) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	key := m.keys[class]
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Expiry returns when a valid token of the given class expires.
func (m *JWTManager) Expiry(token string, class TokenClass) (time.Time, error) {
	claims, err := m.Verify(token, class)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time, nil
}

func (m *JWTManager) TTL(class TokenClass) time.Duration {
	return m.ttls[class]
}

func (m *JWTManager) registered(class TokenClass, userID string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttls[class])),
	}
}

func (m *JWTManager) sign(class TokenClass, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.keys[class])
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", class, err)
	}
	return signed, nil
}

// ExtractTokenFromHeader returns the bearer token from the Authorization header.
func ExtractTokenFromHeader(r *http.Request) (string, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrInvalidHeader
	}
	return strings.TrimSpace(parts[1]), nil
}

// ExtractToken prefers the named cookie and falls back to the Authorization header.
func ExtractToken(r *http.Request, cookieName string) (string, error) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return ExtractTokenFromHeader(r)
}
