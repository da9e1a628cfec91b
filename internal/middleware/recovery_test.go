package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Recover from panic", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery())
		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		req := httptest.NewRequest("GET", "/panic", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != 500 {
			t.Errorf("Expected status 500, got %d", w.Code)
		}
	})

	t.Run("Normal request without panic", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery())
		router.GET("/normal", func(c *gin.Context) {
			c.String(200, "OK")
		})

		req := httptest.NewRequest("GET", "/normal", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != 200 {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})
}

func TestRecoveryWithWriter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Custom recovery writer", func(t *testing.T) {
		called := false
		customWriter := func(c *gin.Context, err any) {
			called = true
		}

		router := gin.New()
		router.Use(RecoveryWithWriter(customWriter))
		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		req := httptest.NewRequest("GET", "/panic", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if !called {
			t.Error("Expected custom writer to be called")
		}

		if w.Code != 500 {
			t.Errorf("Expected status 500, got %d", w.Code)
		}
	})
}

func TestSafeGoWithContext(t *testing.T) {
	t.Run("Recover from named goroutine panic", func(t *testing.T) {
		done := make(chan bool)

		SafeGoWithContext("test-goroutine", func() {
			defer func() {
				done <- true
			}()
			panic("named goroutine panic")
		})

		<-done
	})

	t.Run("Normal named goroutine execution", func(t *testing.T) {
		done := make(chan bool)

		SafeGoWithContext("test-goroutine", func() {
			done <- true
		})

		<-done
	})
}
