package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/comadj/car-system/internal/middleware"
	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/internal/services"
	"github.com/gin-gonic/gin"
)

// headerUser reads the caller from test headers so one router can serve
// several users.
func headerUser(c *gin.Context) {
	id, _ := strconv.Atoi(c.GetHeader("X-User"))
	c.Set(middleware.ContextUserID, uint(id))
	c.Set(middleware.ContextUsername, "user"+c.GetHeader("X-User"))
	c.Set(middleware.ContextRole, c.GetHeader("X-Role"))
	c.Next()
}

func newCarRouter(t *testing.T) *gin.Engine {
	t.Helper()
	h := NewCarHandler(newTestDB(t), time.UTC)
	r := gin.New()
	r.Use(headerUser)
	g := r.Group("/api/cars")
	g.GET("", h.List)
	g.GET("/filters", h.FilterOptions)
	g.GET("/import/template", h.ImportTemplate)
	g.POST("/import", h.Import)
	g.POST("/rescore", h.Rescore)
	g.GET("/:id", h.Get)
	g.POST("", h.Create)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	return r
}

func doAs(router *gin.Engine, method, path string, body interface{}, userID uint, role string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User", fmt.Sprint(userID))
	req.Header.Set("X-Role", role)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCarHandler_CRUD(t *testing.T) {
	r := newCarRouter(t)

	w := doAs(r, http.MethodPost, "/api/cars", gin.H{
		"corporation":      "삼송",
		"event_type":       "ONE_TIME",
		"issue_date":       "2026-03-02",
		"open_issue":       "포장 불량",
		"importance":       2,
		"subjective_score": 3,
	}, 9, models.RoleStaff)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	var car models.Car
	decode(t, w, &car)
	if car.ID == 0 || car.Status != "CLOSED" || car.CreatedBy == nil || *car.CreatedBy != 9 {
		t.Errorf("created car = %+v", car)
	}
	path := fmt.Sprintf("/api/cars/%d", car.ID)

	if w := doAs(r, http.MethodPost, "/api/cars", gin.H{"event_type": "WEEKLY", "issue_date": "2026-03-02"}, 9, models.RoleStaff); w.Code != http.StatusBadRequest {
		t.Errorf("create with bad event type = %d, expected 400", w.Code)
	}

	var list services.CarListResponse
	decode(t, doAs(r, http.MethodGet, "/api/cars?eventType=ONE_TIME", nil, 9, models.RoleStaff), &list)
	if list.Total != 1 || len(list.Items) != 1 {
		t.Errorf("list = %+v", list)
	}

	w = doAs(r, http.MethodPut, path, gin.H{"open_issue": "포장 불량 재발"}, 9, models.RoleStaff)
	decode(t, w, &car)
	if w.Code != http.StatusOK || car.OpenIssue != "포장 불량 재발" {
		t.Errorf("update = %d %+v", w.Code, car)
	}

	deletes := []struct {
		name string
		user uint
		role string
		want int
	}{
		{"other staff", 10, models.RoleStaff, http.StatusForbidden},
		{"bad id", 9, models.RoleStaff, http.StatusBadRequest},
		{"manager", 11, models.RoleManager, http.StatusOK},
		{"already gone", 11, models.RoleManager, http.StatusNotFound},
	}
	for _, tt := range deletes {
		t.Run(tt.name, func(t *testing.T) {
			p := path
			if tt.name == "bad id" {
				p = "/api/cars/x"
			}
			if w := doAs(r, http.MethodDelete, p, nil, tt.user, tt.role); w.Code != tt.want {
				t.Errorf("delete = %d, expected %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCarHandler_Import(t *testing.T) {
	r := newCarRouter(t)

	w := doAs(r, http.MethodGet, "/api/cars/import/template", nil, 1, models.RoleStaff)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("template = %d (%d bytes)", w.Code, w.Body.Len())
	}
	template := w.Body.Bytes()

	upload := func(name string, data []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, _ := mw.CreateFormFile("file", name)
		part.Write(data)
		mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/cars/import", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("X-User", "1")
		req.Header.Set("X-Role", models.RoleStaff)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	w = upload("cars.xlsx", template)
	var result services.ImportResult
	decode(t, w, &result)
	if w.Code != http.StatusOK || result.Created != 1 {
		t.Errorf("import template = %d %+v", w.Code, result)
	}
	if w := upload("cars.txt", []byte("x")); w.Code != http.StatusBadRequest {
		t.Errorf("import .txt = %d, expected 400", w.Code)
	}

	var rescored struct {
		Updated int `json:"updated"`
	}
	w = doAs(r, http.MethodPost, "/api/cars/rescore", nil, 1, models.RoleManager)
	decode(t, w, &rescored)
	// imported rows are scored on insert
	if w.Code != http.StatusOK || rescored.Updated != 0 {
		t.Errorf("rescore = %d %+v", w.Code, rescored)
	}
}
