package handlers

import (
	"strconv"

	"github.com/comadj/car-system/pkg/response"
	"github.com/gin-gonic/gin"
)

// idParam parses the :id path parameter and answers 400 when it is not a
// positive integer.
func idParam(c *gin.Context, what string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+what+" id")
		return 0, false
	}
	return uint(id), true
}
