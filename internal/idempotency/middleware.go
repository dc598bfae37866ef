package idempotency

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	apierrors "github.com/aimerfeng/minerewards/internal/errors"
	"github.com/aimerfeng/minerewards/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ReplayHeader marks a response served from the store
const ReplayHeader = "Idempotent-Replayed"

type bodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware guards op for requests carrying an Idempotency-Key header. It
// must run after authentication. Requests without a key pass through, and
// Redis errors let the request run unguarded. Only 2xx responses are stored.
func (g *Guard) Middleware(op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderKey)
		uid := c.GetString("user_id")
		if key == "" || uid == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		rec, err := g.Begin(ctx, uid, op, key)
		switch {
		case errors.Is(err, ErrInvalidKey):
			abortWithError(c, apierrors.NewInvalidRequestError("Idempotency-Key must be 1-255 characters"))
			return
		case errors.Is(err, ErrInFlight):
			abortWithError(c, apierrors.ErrRequestInFlightError)
			return
		case err != nil:
			log.Warn().Err(err).Str("user_id", uid).Str("operation", op).Msg("Idempotency guard unavailable")
			c.Next()
			return
		case rec != nil:
			monitoring.RecordIdempotencyReplay(op)
			c.Header(ReplayHeader, "true")
			c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
			c.Abort()
			return
		}

		w := &bodyWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w
		c.Next()

		// The request context may already be cancelled once the client is gone.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		// Only successes are replayed; any other outcome frees the key for a retry.
		status := w.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			if err := g.Abort(storeCtx, uid, op, key); err != nil {
				log.Warn().Err(err).Str("user_id", uid).Str("operation", op).Msg("Failed to release idempotency key")
			}
			return
		}
		if err := g.Complete(storeCtx, uid, op, key, Record{Status: status, Body: w.body.Bytes()}); err != nil {
			log.Warn().Err(err).Str("user_id", uid).Str("operation", op).Msg("Failed to store idempotent response")
		}
	}
}

func abortWithError(c *gin.Context, err *apierrors.APIError) {
	c.AbortWithStatusJSON(err.HTTPStatus, apierrors.NewErrorResponse(
		err,
		c.GetString("request_id"),
		c.GetString("correlation_id"),
		c.Request.URL.Path,
		c.Request.Method,
	))
}
