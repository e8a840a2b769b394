package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const idempotencyTTL = 24 * time.Hour

// bodyRecorder captures the response so it can be stored for replay.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotent makes a mutating endpoint safe to retry. A request carrying an
// Idempotency-Key header that was already processed gets the stored response
// back verbatim; the same key with a different body is rejected.
func Idempotent(keys repository.IdempotencyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Failed to read request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		sum := sha256.Sum256(append([]byte(c.Request.Method+" "+c.FullPath()+"\n"), body...))
		requestHash := hex.EncodeToString(sum[:])

		if stored, findErr := keys.Find(c.Request.Context(), key); findErr == nil && !stored.IsExpired() {
			if stored.RequestHash != requestHash {
				c.AbortWithStatusJSON(http.StatusConflict, response.Error(http.StatusConflict, "Idempotency-Key was already used with a different request"))
				return
			}
			c.Header("Idempotency-Replayed", "true")
			c.Data(stored.ResponseCode, "application/json", []byte(stored.ResponseBody))
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Next()

		// Only successful outcomes are worth replaying; failures should be
		// retryable with the same key.
		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			return
		}

		record := model.IdempotencyKey{
			Key:          key,
			UserID:       actorFromContext(c),
			Endpoint:     c.FullPath(),
			RequestHash:  requestHash,
			ResponseCode: status,
			ResponseBody: recorder.body.String(),
			ExpiresAt:    time.Now().Add(idempotencyTTL),
		}
		if createErr := keys.Create(c.Request.Context(), &record); createErr != nil {
			// A concurrent duplicate may have won the insert; the stored
			// response will serve the next retry either way.
			log.Warn().Err(createErr).Str("key", key).Msg("failed to store idempotency record")
		}
	}
}

func actorFromContext(c *gin.Context) *uuid.UUID {
	raw, ok := c.Get("userID")
	if !ok {
		return nil
	}
	str, ok := raw.(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(str)
	if err != nil {
		return nil
	}
	return &id
}
