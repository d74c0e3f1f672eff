// Package mw contains HTTP middleware for the control surface.
package mw

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ClaimsKey is the context key for caller claims.
	ClaimsKey ContextKey = "caller_claims"
)

// Signed header names.
const (
	HeaderClient    = "X-Portalscan-Client"
	HeaderTimestamp = "X-Portalscan-Timestamp"
	HeaderSignature = "X-Portalscan-Signature"
)

// MaxClockSkew bounds how old a signed request may be.
const MaxClockSkew = 5 * time.Minute

// Auth sources recorded on Claims.
const (
	SourceSigned    = "signed"
	SourceJWT       = "jwt"
	SourceAnonymous = "anonymous"
)

// Claims identifies the caller of a request.
type Claims struct {
	Subject string
	Source  string
}

// GetClaims retrieves caller claims from context.
func GetClaims(ctx context.Context) *Claims {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// APISecret validates X-Portalscan-* signed headers (optional).
	APISecret string

	// JWTSecret validates HS256 bearer tokens (optional).
	JWTSecret string

	// AllowUnauthenticated lets requests without credentials through.
	// Presented credentials are still verified.
	AllowUnauthenticated bool

	Logger *slog.Logger
}

// Auth returns authentication middleware that supports:
// 1. Signed headers (if APISecret is set)
// 2. Bearer JWTs (if JWTSecret is set)
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r.Header.Get, r.Method, r.URL.Path, cfg, time.Now())
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Debug("authentication failed", "path", r.URL.Path, "error", err)
				}
				writeAuthError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate resolves the caller from request headers. It is shared by the
// chi middleware and the huma middleware.
func authenticate(header func(string) string, method, path string, cfg AuthConfig, now time.Time) (*Claims, error) {
	if cfg.APISecret != "" && header(HeaderSignature) != "" {
		return validateSignedHeaders(header, method, path, cfg.APISecret, now)
	}

	if authHeader := header("Authorization"); authHeader != "" && cfg.JWTSecret != "" {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		return validateToken(cfg.JWTSecret, token)
	}

	if cfg.AllowUnauthenticated {
		return &Claims{Subject: "anonymous", Source: SourceAnonymous}, nil
	}
	if cfg.APISecret == "" && cfg.JWTSecret == "" {
		return nil, ErrNotConfigured
	}
	return nil, ErrMissingCredentials
}

// validateSignedHeaders checks the HMAC over timestamp, client, method and path.
func validateSignedHeaders(header func(string) string, method, path, secret string, now time.Time) (*Claims, error) {
	signature := header(HeaderSignature)
	timestamp := header(HeaderTimestamp)
	client := header(HeaderClient)
	if signature == "" || timestamp == "" || client == "" {
		return nil, ErrMissingCredentials
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	if age := now.Sub(time.Unix(ts, 0)); age > MaxClockSkew || age < -MaxClockSkew {
		return nil, ErrTimestampExpired
	}

	expected := Signature(secret, timestamp, client, method, path)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, ErrInvalidSignature
	}
	return &Claims{Subject: client, Source: SourceSigned}, nil
}

// Signature computes the hex HMAC-SHA256 a client sends in HeaderSignature.
func Signature(secret, timestamp, client, method, path string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + ":" + client + ":" + method + ":" + path))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignRequest sets the signed headers on req.
func SignRequest(req *http.Request, secret, client string, now time.Time) {
	ts := strconv.FormatInt(now.Unix(), 10)
	req.Header.Set(HeaderClient, client)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, Signature(secret, ts, client, req.Method, req.URL.Path))
}

func validateToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, &AuthError{Message: "invalid token", Err: err}
	}

	rc, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || rc.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Claims{Subject: rc.Subject, Source: SourceJWT}, nil
}

// IssueToken mints an HS256 bearer token for subject.
func IssueToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", ErrNotConfigured
	}
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func writeAuthError(w http.ResponseWriter, err error) {
	msg := "unauthorized"
	var authErr *AuthError
	if errors.As(err, &authErr) {
		msg = authErr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Errors
var (
	ErrMissingCredentials = &AuthError{Message: "missing credentials"}
	ErrNotConfigured      = &AuthError{Message: "authentication not configured"}
	ErrTimestampExpired   = &AuthError{Message: "timestamp expired"}
	ErrInvalidSignature   = &AuthError{Message: "invalid signature"}
	ErrInvalidToken       = &AuthError{Message: "invalid token"}
	ErrTokenExpired       = &AuthError{Message: "token expired"}
)

// AuthError represents an authentication error.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
