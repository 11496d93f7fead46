package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/internal/utils"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-middleware-testing")
}

func serve(router *gin.Engine, method, path, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	token, _ := utils.GenerateToken(7, "kim", models.RoleStaff, 1)

	router := gin.New()
	router.Use(AuthRequired())
	router.GET("/protected", func(c *gin.Context) {
		user := CurrentUser(c)
		if user.ID != 7 || user.Username != "kim" || user.Role != models.RoleStaff {
			t.Errorf("CurrentUser() = %+v", user)
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"no scheme", "InvalidToken", http.StatusUnauthorized},
		{"basic scheme", "Basic token123", http.StatusUnauthorized},
		{"bearer without token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer invalid.jwt.token", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
		{"lower-case scheme", "bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := serve(router, "GET", "/protected", tt.header); w.Code != tt.want {
				t.Errorf("status = %d, expected %d", w.Code, tt.want)
			}
		})
	}
}

func TestRoleRequired(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		middleware gin.HandlerFunc
		want       int
	}{
		{"admin route no role", "", AdminRequired(), http.StatusForbidden},
		{"admin route staff", models.RoleStaff, AdminRequired(), http.StatusForbidden},
		{"admin route manager", models.RoleManager, AdminRequired(), http.StatusForbidden},
		{"admin route admin", models.RoleAdmin, AdminRequired(), http.StatusOK},
		{"manager route staff", models.RoleStaff, ManagerRequired(), http.StatusForbidden},
		{"manager route manager", models.RoleManager, ManagerRequired(), http.StatusOK},
		{"manager route admin", models.RoleAdmin, ManagerRequired(), http.StatusOK},
		{"lower-case role", "admin", AdminRequired(), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(func(c *gin.Context) {
				if tt.role != "" {
					c.Set(ContextRole, tt.role)
				}
				c.Next()
			})
			router.Use(tt.middleware)
			router.GET("/r", func(c *gin.Context) { c.Status(http.StatusOK) })

			if w := serve(router, "GET", "/r", ""); w.Code != tt.want {
				t.Errorf("status = %d, expected %d", w.Code, tt.want)
			}
		})
	}
}

func TestContextGetters(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if id := GetUserID(c); id != 0 {
		t.Errorf("GetUserID() = %d, expected 0", id)
	}
	if UserIDPtr(c) != nil {
		t.Error("UserIDPtr() should be nil without a user")
	}
	if GetUsername(c) != "" || GetRole(c) != "" {
		t.Error("username and role should be empty")
	}

	c.Set(ContextUserID, uint(42))
	c.Set(ContextUsername, "kim")
	c.Set(ContextRole, models.RoleManager)
	if id := GetUserID(c); id != 42 {
		t.Errorf("GetUserID() = %d, expected 42", id)
	}
	if p := UserIDPtr(c); p == nil || *p != 42 {
		t.Errorf("UserIDPtr() = %v, expected 42", p)
	}
	if GetUsername(c) != "kim" || GetRole(c) != models.RoleManager {
		t.Errorf("username/role = %q/%q", GetUsername(c), GetRole(c))
	}

	// wrong types never panic
	c.Set(ContextUserID, "42")
	if id := GetUserID(c); id != 0 {
		t.Errorf("GetUserID() with string = %d, expected 0", id)
	}
}
