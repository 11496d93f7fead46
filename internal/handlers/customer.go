package handlers

import (
	"github.com/comadj/car-system/internal/services"
	"github.com/comadj/car-system/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type CustomerHandler struct {
	customerService *services.CustomerService
}

func NewCustomerHandler(db *gorm.DB) *CustomerHandler {
	return &CustomerHandler{customerService: services.NewCustomerService(db)}
}

// GET /api/customers
func (h *CustomerHandler) List(c *gin.Context) {
	var req services.CustomerListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	contacts, err := h.customerService.List(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contacts)
}

func (h *CustomerHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "customer")
	if !ok {
		return
	}
	contact, err := h.customerService.GetByID(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contact)
}

func (h *CustomerHandler) Create(c *gin.Context) {
	var req services.CustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	contact, err := h.customerService.Create(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, contact)
}

func (h *CustomerHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "customer")
	if !ok {
		return
	}
	var req services.CustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	contact, err := h.customerService.Update(id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contact)
}

func (h *CustomerHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "customer")
	if !ok {
		return
	}
	if err := h.customerService.Delete(id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "customer deleted"})
}

// Dedupe merges duplicate contacts.
// POST /api/customers/dedupe
func (h *CustomerHandler) Dedupe(c *gin.Context) {
	result, err := h.customerService.Dedupe()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
