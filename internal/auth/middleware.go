// Package auth guards routes with bearer tokens signed by a shared secret.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/example/face-vision/internal/config"
)

var (
	ErrMissingToken   = errors.New("authorization header required")
	ErrMalformedToken = errors.New("invalid authorization header")
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("token has no subject")
)

type subjectKey struct{}

// Verifier validates HMAC-signed bearer tokens.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

// NewVerifier builds a verifier from cfg. It returns nil when no secret is
// configured.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	secret := strings.TrimSpace(cfg.JWTSecret)
	if secret == "" {
		return nil
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if aud := strings.TrimSpace(cfg.JWTAudience); aud != "" {
		opts = append(opts, jwt.WithAudience(aud))
	}
	return &Verifier{key: []byte(secret), parser: jwt.NewParser(opts...)}
}

// Verify checks an Authorization header value and returns the token subject.
func (v *Verifier) Verify(header string) (string, error) {
	raw, err := bearerToken(header)
	if err != nil {
		return "", err
	}
	claims := &jwt.RegisteredClaims{}
	_, err = v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}

// Middleware aborts with 401 unless the request carries a valid token. The
// subject is stored on the request context.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := v.Verify(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason(err), "code": "unauthorized"})
			return
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), subjectKey{}, subject))
		c.Next()
	}
}

// Protect returns the middleware chain for non-public routes, empty when
// cfg has no secret.
func Protect(cfg config.AuthConfig) []gin.HandlerFunc {
	v := NewVerifier(cfg)
	if v == nil {
		return nil
	}
	return []gin.HandlerFunc{v.Middleware()}
}

// Subject returns the authenticated subject stored by Middleware.
func Subject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey{}).(string)
	return subject, ok && subject != ""
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedToken
	}
	return token, nil
}

// reason hides parser details from clients.
func reason(err error) string {
	for _, known := range []error{ErrMissingToken, ErrMalformedToken, ErrInvalidToken, ErrMissingSubject} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrInvalidToken.Error()
}
