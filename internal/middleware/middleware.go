package middleware

import (
	"errors"
	"strings"

	apierrors "github.com/aimerfeng/minerewards/internal/errors"
	"github.com/aimerfeng/minerewards/internal/identity"
	"github.com/aimerfeng/minerewards/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys for storing request information
const (
	ContextKeyUserID        = "user_id"
	ContextKeyClaims        = "claims"
	ContextKeyRequestID     = "request_id"
	ContextKeyCorrelationID = "correlation_id"
)

// ErrMissingBearer is returned for an Authorization header without a bearer token
var ErrMissingBearer = errors.New("missing bearer token")

// Authenticator validates access tokens issued for the rewards API
type Authenticator struct {
	issuer *identity.Issuer
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(issuer *identity.Issuer) *Authenticator {
	return &Authenticator{issuer: issuer}
}

// Auth validates the Bearer token of the request. On success the uid is
// placed both on the gin context and on the request context, where the
// reward service resolves it.
func (a *Authenticator) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			respondWithError(c, apierrors.ErrNotAuthenticatedError)
			c.Abort()
			return
		}

		claims, err := a.issuer.ValidateAccessToken(tokenString)
		if err != nil {
			logging.LogSecurityEvent("invalid_token", "", c.ClientIP(), err.Error())
			if errors.Is(err, identity.ErrTokenExpired) {
				respondWithError(c, apierrors.ErrTokenExpiredError)
			} else {
				respondWithError(c, apierrors.ErrInvalidCredentialsError)
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyClaims, claims)
		c.Request = c.Request.WithContext(identity.WithUID(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

// extractBearerToken extracts the token from a Bearer authorization header
func extractBearerToken(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrMissingBearer
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingBearer
	}
	return token, nil
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, err *apierrors.APIError) {
	reqID := c.GetString(ContextKeyRequestID)
	corrID := c.GetString(ContextKeyCorrelationID)
	if corrID == "" {
		corrID = reqID
	}

	c.JSON(err.HTTPStatus, apierrors.NewErrorResponse(
		err,
		reqID,
		corrID,
		c.Request.URL.Path,
		c.Request.Method,
	))
}

// GetUserIDFromContext extracts the user ID from the gin context
// Returns empty string if not found
func GetUserIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// GetClaimsFromContext extracts the full claims from the gin context
// Returns nil if not found
func GetClaimsFromContext(c *gin.Context) *identity.Claims {
	claims, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	cl, _ := claims.(*identity.Claims)
	return cl
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// CorrelationID propagates a correlation ID from upstream, falling back to
// the request ID
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = c.GetString(ContextKeyRequestID)
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
		}
		c.Set(ContextKeyCorrelationID, correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// GetCorrelationIDFromContext extracts the correlation ID from the gin context
func GetCorrelationIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}

// GetRequestIDFromContext extracts the request ID from the gin context
func GetRequestIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// CORS configures CORS headers
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			if o == origin || o == "*" {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Correlation-ID, Idempotency-Key")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Remaining, Retry-After, Idempotent-Replayed")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "43200") // 12 hours
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
