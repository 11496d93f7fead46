package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func limitedRouter(rl *RateLimiter, userID uint) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID != 0 {
			c.Set(ContextUserID, userID)
		}
		c.Next()
	})
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	return router
}

func hit(router *gin.Engine, remoteAddr string) int {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	defer rl.Stop()
	router := limitedRouter(rl, 0)

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, hit(router, "10.0.0.1:12345"))
	}
	expected := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range expected {
		if codes[i] != expected[i] {
			t.Errorf("request %d status = %d, expected %d", i+1, codes[i], expected[i])
		}
	}
}

func TestRateLimit_IndependentPerIP(t *testing.T) {
	rl := NewRateLimiter(1, 1, ByIP)
	defer rl.Stop()
	router := limitedRouter(rl, 0)

	if code := hit(router, "10.0.0.1:12345"); code != http.StatusOK {
		t.Errorf("IP1 status = %d, expected 200", code)
	}
	if code := hit(router, "10.0.0.2:12345"); code != http.StatusOK {
		t.Errorf("IP2 status = %d, expected 200", code)
	}
}

func TestRateLimit_ByUserSharesBucketAcrossIPs(t *testing.T) {
	rl := NewRateLimiter(1, 1, ByUser)
	defer rl.Stop()
	router := limitedRouter(rl, 9)

	if code := hit(router, "10.0.0.1:1"); code != http.StatusOK {
		t.Errorf("first status = %d, expected 200", code)
	}
	if code := hit(router, "10.0.0.2:1"); code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, expected 429", code)
	}
}
