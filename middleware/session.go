package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/duynhne/campus-portal/config"
	"github.com/duynhne/campus-portal/internal/core/domain"
)

const visitorIDKey = "visitor_id"

// ErrInvalidSession indicates a session cookie that fails verification.
var ErrInvalidSession = errors.New("invalid session cookie")

// SessionClaims is the persisted identity session. It carries the identity
// service refresh token so a sign-in survives restarts of this process.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email        string `json:"email,omitempty"`
	RefreshToken string `json:"rt"`
}

// SessionCookies signs, reads and clears the persisted session and the visitor cookie.
type SessionCookies struct {
	secret  []byte
	name    string
	visitor string
	ttl     time.Duration
	secure  bool
	now     func() time.Time
}

// NewSessionCookies creates the cookie codec from configuration.
func NewSessionCookies(cfg config.SessionConfig) *SessionCookies {
	return &SessionCookies{
		secret:  []byte(cfg.Secret),
		name:    cfg.CookieName,
		visitor: cfg.VisitorCookie,
		ttl:     cfg.TTL,
		secure:  cfg.SecureCookies,
		now:     time.Now,
	}
}

// Encode signs user into a session token.
func (s *SessionCookies) Encode(user *domain.User) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Email:        user.Email,
		RefreshToken: user.RefreshToken,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Decode verifies a session token and returns the persisted user.
func (s *SessionCookies) Decode(raw string) (*domain.User, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if !token.Valid || claims.Subject == "" || claims.RefreshToken == "" {
		return nil, ErrInvalidSession
	}
	return &domain.User{UID: claims.Subject, Email: claims.Email, RefreshToken: claims.RefreshToken}, nil
}

// Read returns the persisted user of the request, or nil when absent or invalid.
func (s *SessionCookies) Read(c *gin.Context) (*domain.User, error) {
	raw, err := c.Cookie(s.name)
	if err != nil || raw == "" {
		return nil, nil
	}
	return s.Decode(raw)
}

// Write persists user, or clears the cookie when user is nil.
func (s *SessionCookies) Write(c *gin.Context, user *domain.User) error {
	if user == nil || user.RefreshToken == "" {
		s.set(c, s.name, "", -1)
		return nil
	}
	signed, err := s.Encode(user)
	if err != nil {
		return err
	}
	s.set(c, s.name, signed, int(s.ttl.Seconds()))
	return nil
}

func (s *SessionCookies) set(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", s.secure, true)
}

// VisitorMiddleware assigns every browser a random visitor id cookie. The id
// only keys in-memory state and grants nothing by itself.
func (s *SessionCookies) VisitorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(s.visitor)
		if _, perr := uuid.Parse(id); err != nil || perr != nil {
			id = uuid.NewString()
			// Session cookie: no MaxAge, the browser drops it on close.
			s.set(c, s.visitor, id, 0)
		}
		c.Set(visitorIDKey, id)
		c.Next()
	}
}

// VisitorID returns the id assigned by VisitorMiddleware.
func VisitorID(c *gin.Context) string {
	return c.GetString(visitorIDKey)
}

// GateGuard redirects to redirectTo unless passed reports true for the request.
// The check is synchronous; there is no loading state.
func GateGuard(passed func(c *gin.Context) bool, redirectTo string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !passed(c) {
			c.Redirect(http.StatusSeeOther, redirectTo)
			c.Abort()
			return
		}
		c.Next()
	}
}
