package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken  = errors.New("auth: missing token")
	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrUserMismatch  = errors.New("auth: token does not match user")
	ErrChannelDenied = errors.New("auth: channel not allowed")
)

// Claims identifies who may open push channels.
type Claims struct {
	UserID string `json:"user_id"`
	// Channels restricts the channels the holder may open; empty allows all.
	Channels []string `json:"channels,omitempty"`
	jwt.RegisteredClaims
}

// Allows reports whether the claims grant access to channel.
func (c *Claims) Allows(channel string) bool {
	if len(c.Channels) == 0 {
		return true
	}
	for _, ch := range c.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}

// TokenService issues and validates HMAC-signed channel tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for userID limited to channels (all when empty).
func (s *TokenService) Issue(userID string, channels ...string) (string, error) {
	if userID == "" {
		return "", errors.New("auth: user id is required")
	}
	now := s.now()
	claims := Claims{
		UserID:   userID,
		Channels: channels,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString and returns its claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: user_id claim is empty", ErrInvalidToken)
	}
	return claims, nil
}

// Authorize validates tokenString for opening channel as userID.
func (s *TokenService) Authorize(tokenString, userID, channel string) (*Claims, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.UserID != userID {
		return nil, ErrUserMismatch
	}
	if !claims.Allows(channel) {
		return nil, ErrChannelDenied
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// TokenFromRequest returns the bearer token of r, falling back to the
// "token" query parameter for clients that cannot set headers (EventSource).
func TokenFromRequest(r *http.Request) string {
	if token := BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// AuthorizeRequest checks r for opening channel as userID. A nil service
// accepts every request.
func (s *TokenService) AuthorizeRequest(r *http.Request, userID, channel string) error {
	if s == nil {
		return nil
	}
	_, err := s.Authorize(TokenFromRequest(r), userID, channel)
	return err
}

// HTTPStatus maps an authorization error to a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUserMismatch), errors.Is(err, ErrChannelDenied):
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}
