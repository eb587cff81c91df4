package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/remitdesk/remitdesk/internal/rbac"
)

// TokenCookieName is the cookie carrying the signed session token.
const TokenCookieName = "remitdesk_token"

// ErrTokenSecretMissing is returned when no signing secret is configured.
var ErrTokenSecretMissing = errors.New("auth: token secret missing")

// Claims is the JWT body of a session token.
type Claims struct {
	Role   string `json:"role"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(secret, issuer string, ttl time.Duration, secure bool) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrTokenSecretMissing
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl, secure: secure, now: time.Now}, nil
}

// Issue signs a token for user.
func (m *TokenManager) Issue(user *User) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.ttl)
	claims := Claims{
		Role:   string(user.Role),
		Email:  user.Email,
		Name:   user.Name,
		Status: user.Status,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies signature, issuer and expiry, returning the decoded claim.
func (m *TokenManager) Parse(raw string) (*rbac.Claim, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("auth: token without subject")
	}
	role, _ := rbac.ParseRole(claims.Role)
	return &rbac.Claim{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Status:  claims.Status,
		Role:    role,
		RawRole: claims.Role,
	}, nil
}

// Verify implements rbac.SessionVerifier. A request without a token has no session.
func (m *TokenManager) Verify(r *http.Request) (*rbac.Claim, error) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return nil, nil
	}
	if err := r.Context().Err(); err != nil {
		return nil, err
	}
	return m.Parse(raw)
}

// SetCookie writes the token cookie.
func (m *TokenManager) SetCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the token cookie.
func (m *TokenManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if cookie, err := r.Cookie(TokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

var _ rbac.SessionVerifier = (*TokenManager)(nil)
