package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	handler(c)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return resp
}

func TestSuccessAndCreated(t *testing.T) {
	tests := []struct {
		name    string
		handler gin.HandlerFunc
		status  int
		message string
	}{
		{"success", func(c *gin.Context) { Success(c, gin.H{"id": 1}) }, http.StatusOK, "ok"},
		{"created", func(c *gin.Context) { Created(c, gin.H{"id": 1}) }, http.StatusCreated, "created"},
		{"accepted", func(c *gin.Context) { Accepted(c, gin.H{"jobId": "x"}) }, http.StatusAccepted, "accepted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(tt.handler)
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			resp := parseResponse(t, w)
			if resp.Code != 0 {
				t.Errorf("expected code 0, got %d", resp.Code)
			}
			if resp.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, resp.Message)
			}
		})
	}
}

func TestPaginated(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Paginated(c, []string{"a", "b"}, 12, 2, 10)
	})

	var body struct {
		Data PageData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Data.Total != 12 || body.Data.Page != 2 || body.Data.PageSize != 10 {
		t.Errorf("unexpected page data %+v", body.Data)
	}
}

func TestShortcutHelpers(t *testing.T) {
	tests := []struct {
		name    string
		handler gin.HandlerFunc
		status  int
	}{
		{"bad request", func(c *gin.Context) { BadRequest(c, "invalid input") }, http.StatusBadRequest},
		{"unauthorized", func(c *gin.Context) { Unauthorized(c, "token expired") }, http.StatusUnauthorized},
		{"forbidden", func(c *gin.Context) { Forbidden(c, "admin required") }, http.StatusForbidden},
		{"not found", func(c *gin.Context) { NotFound(c, "missing") }, http.StatusNotFound},
		{"server error", func(c *gin.Context) { ServerError(c, "boom") }, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(tt.handler)
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			if resp := parseResponse(t, w); resp.Code != tt.status {
				t.Errorf("expected code %d, got %d", tt.status, resp.Code)
			}
		})
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"app error", NewBadRequest("validation failed"), http.StatusBadRequest, "validation failed"},
		{"gone", NewGone("job expired"), http.StatusGone, "job expired"},
		{"wrapped app error", fmt.Errorf("load car: %w", NewNotFound("car not found")), http.StatusNotFound, "car not found"},
		{"generic error", errors.New("something went wrong"), http.StatusInternalServerError, "something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(func(c *gin.Context) { Error(c, tt.err) })
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			if resp := parseResponse(t, w); resp.Message != tt.msg {
				t.Errorf("expected message %q, got %q", tt.msg, resp.Message)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("wrap: %w", NewNotFound("x"))) {
		t.Error("expected wrapped not-found to be detected")
	}
	if IsNotFound(NewForbidden("x")) {
		t.Error("forbidden should not be reported as not found")
	}
	if IsNotFound(errors.New("x")) {
		t.Error("plain error should not be reported as not found")
	}
}
