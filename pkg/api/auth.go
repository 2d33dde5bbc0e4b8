package api

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// SubjectKey is the user value holding the authenticated token subject
const SubjectKey = "subject"

// TokenAuth checks HS256 bearer tokens on admin routes
type TokenAuth struct {
	secret []byte
	issuer string
	logger *zap.Logger
}

// NewTokenAuth creates a checker. An empty secret disables authentication.
func NewTokenAuth(secret, issuer string, logger *zap.Logger) *TokenAuth {
	return &TokenAuth{
		secret: []byte(secret),
		issuer: issuer,
		logger: logger,
	}
}

// Enabled reports whether tokens are required
func (a *TokenAuth) Enabled() bool {
	return len(a.secret) > 0
}

// Require wraps handler so it only runs for requests with a valid token
func (a *TokenAuth) Require(handler HandlerFunc) HandlerFunc {
	if !a.Enabled() {
		return handler
	}

	return func(ctx *fasthttp.RequestCtx) error {
		token := bearerToken(ctx)
		if token == "" {
			return a.reject(ctx, "missing bearer token")
		}

		subject, err := a.Validate(token)
		if err != nil {
			a.logger.Warn("Admin authentication failed",
				zap.String("path", string(ctx.Path())),
				zap.String("remote_addr", ctx.RemoteAddr().String()),
				zap.Error(err))
			return a.reject(ctx, "invalid token")
		}

		ctx.SetUserValue(SubjectKey, subject)
		return handler(ctx)
	}
}

// Validate parses and verifies a token and returns its subject
func (a *TokenAuth) Validate(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("invalid subject claim: %w", err)
	}
	return subject, nil
}

// Sign issues a token for subject. It backs the `cassette token` command and
// tests.
func (a *TokenAuth) Sign(subject string, claims jwt.RegisteredClaims) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("no signing secret configured")
	}
	claims.Subject = subject
	if claims.Issuer == "" {
		claims.Issuer = a.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *TokenAuth) reject(ctx *fasthttp.RequestCtx, reason string) error {
	ctx.Response.Header.Set("WWW-Authenticate", `Bearer realm="cassette"`)
	writeJSON(ctx, fasthttp.StatusUnauthorized, map[string]string{
		"error":   "Unauthorized",
		"message": reason,
	})
	return nil
}

func bearerToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
