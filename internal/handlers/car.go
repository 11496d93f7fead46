package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/comadj/car-system/internal/middleware"
	"github.com/comadj/car-system/internal/services"
	"github.com/comadj/car-system/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const maxImportSize = 10 << 20

type CarHandler struct {
	carService *services.CarService
	importer   *services.CarImporter
}

func NewCarHandler(db *gorm.DB, loc *time.Location) *CarHandler {
	return &CarHandler{
		carService: services.NewCarService(db, loc),
		importer:   services.NewCarImporter(db),
	}
}

// GET /api/cars
func (h *CarHandler) List(c *gin.Context) {
	var req services.CarListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	resp, err := h.carService.List(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GET /api/cars/filters
func (h *CarHandler) FilterOptions(c *gin.Context) {
	opts, err := h.carService.GetFilterOptions()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, opts)
}

func (h *CarHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "CAR")
	if !ok {
		return
	}
	car, err := h.carService.GetByID(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, car)
}

func (h *CarHandler) Create(c *gin.Context) {
	var req services.CarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	car, err := h.carService.Create(&req, middleware.UserIDPtr(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, car)
}

func (h *CarHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "CAR")
	if !ok {
		return
	}
	var req services.CarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	car, err := h.carService.Update(id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, car)
}

func (h *CarHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "CAR")
	if !ok {
		return
	}
	if err := h.carService.Delete(id, middleware.CurrentUser(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "CAR deleted"})
}

// Import accepts a multipart "file" field holding an .xlsx or .csv sheet.
// POST /api/cars/import
func (h *CarHandler) Import(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	if header.Size > maxImportSize {
		response.BadRequest(c, "file is larger than 10MB")
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".xlsx" && ext != ".csv" {
		response.BadRequest(c, "only .xlsx and .csv files are supported")
		return
	}

	file, err := header.Open()
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	defer file.Close()

	result, err := h.importer.Import(file, header.Filename, middleware.UserIDPtr(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// GET /api/cars/import/template
func (h *CarHandler) ImportTemplate(c *gin.Context) {
	var buf bytes.Buffer
	if err := services.WriteTemplate(&buf); err != nil {
		response.ServerError(c, err.Error())
		return
	}
	sendXLSX(c, "CAR_upload_template.xlsx", buf.Bytes())
}

// Rescore recomputes the derived scores of every CAR.
// POST /api/cars/rescore
func (h *CarHandler) Rescore(c *gin.Context) {
	updated, err := h.carService.RescoreAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"updated": updated})
}

func sendXLSX(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(filename)))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
