package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"procurement/internal/database"
	"procurement/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupIdempotentRouter(t *testing.T) (*gin.Engine, *int) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		sqlDB, dbErr := db.DB()
		if dbErr == nil {
			_ = sqlDB.Close()
		}
	})

	calls := 0
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.PUT("/things/:id/act", Idempotent(repository.NewIdempotencyRepository(db)), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"call": calls})
	})
	return router, &calls
}

func TestIdempotentReplaysStoredResponse(t *testing.T) {
	router, calls := setupIdempotentRouter(t)

	do := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/things/1/act", strings.NewReader(body))
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := do("key-1", `{"a":1}`)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, 1, *calls)

	// Retry with the same key and body: handler not invoked again, the
	// stored response comes back.
	second := do("key-1", `{"a":1}`)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotency-Replayed"))

	// Same key with a different body is a conflict.
	third := do("key-1", `{"a":2}`)
	assert.Equal(t, http.StatusConflict, third.Code)
	assert.Equal(t, 1, *calls)

	// No key: every request executes.
	do("", `{"a":1}`)
	do("", `{"a":1}`)
	assert.Equal(t, 3, *calls)
}
