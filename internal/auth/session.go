// Package auth issues and verifies signed member session tokens carried in
// an HTTP cookie.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName is the cookie the session token travels in.
const SessionCookieName = "club_session"

// SessionTTL is how long an issued session stays valid.
const SessionTTL = 7 * 24 * time.Hour

var (
	// ErrSessionInvalid indicates a token that failed verification.
	ErrSessionInvalid = errors.New("session token is invalid")
	// ErrSessionExpired indicates a token past its expiry.
	ErrSessionExpired = errors.New("session token is expired")
	// ErrNoSession indicates a request without a session cookie.
	ErrNoSession = errors.New("no session")
)

// Session identifies one authenticated member.
type Session struct {
	MemberID   string
	MemberName string
	ExpiresAt  time.Time
}

// sessionClaims is the internal claims type used for JWT parsing.
type sessionClaims struct {
	jwt.RegisteredClaims
	MemberName string `json:"member_name"`
}

// Manager signs and verifies session tokens with a shared HMAC secret.
type Manager struct {
	secret []byte
	now    func() time.Time
}

// NewManager builds a session manager. The secret must not be empty; a nil
// clock falls back to time.Now.
func NewManager(secret []byte, now func() time.Time) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{secret: secret, now: now}, nil
}

// Issue signs a session token for the member.
func (m *Manager) Issue(memberID, memberName string) (string, error) {
	if m == nil || len(m.secret) == 0 {
		return "", errors.New("session manager is not configured")
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return "", errors.New("member id is required")
	}
	now := m.now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
		},
		MemberName: memberName,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token.
func (m *Manager) Verify(token string) (Session, error) {
	if m == nil || len(m.secret) == 0 {
		return Session{}, errors.New("session manager is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrSessionInvalid
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(m.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return Session{}, ErrSessionExpired
	}
	if err != nil {
		return Session{}, ErrSessionInvalid
	}
	if strings.TrimSpace(parsed.Subject) == "" || parsed.ExpiresAt == nil {
		return Session{}, ErrSessionInvalid
	}
	return Session{
		MemberID:   parsed.Subject,
		MemberName: parsed.MemberName,
		ExpiresAt:  parsed.ExpiresAt.Time.UTC(),
	}, nil
}

// FromRequest extracts and verifies the session carried by the request.
func (m *Manager) FromRequest(r *http.Request) (Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return Session{}, ErrNoSession
	}
	return m.Verify(cookie.Value)
}

// SetCookie writes the session cookie on the response.
func SetCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie on the response.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
