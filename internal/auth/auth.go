// Package auth issues and verifies the bearer tokens that gate both the
// REST surface and the realtime relay, and owns password hashing.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/collabhq/collabd/internal/db"
	platformerrors "github.com/collabhq/collabd/internal/errors"
)

const bcryptCost = 10

// Identity is the token payload carried on every authenticated request.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens with a shared HMAC secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager builds a token manager. A zero TTL defaults to 24 hours.
func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// IssueToken signs a token for the given user.
func (m *Manager) IssueToken(u *db.User) (string, error) {
	now := time.Now()
	claims := &Identity{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", platformerrors.ErrInternal("sign token", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a token, returning the identity it
// carries. Expired, malformed, or badly signed tokens all map to the
// same invalid-token error.
func (m *Manager) VerifyToken(token string) (*Identity, error) {
	var identity Identity
	parsed, err := jwt.ParseWithClaims(token, &identity, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, platformerrors.ErrTokenInvalid()
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, platformerrors.ErrTokenInvalid()
	}
	return &identity, nil
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", platformerrors.ErrInternal("hash password", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
