package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	occupancydomain "github.com/smallbiznis/dormhub/internal/occupancy/domain"
)

func (s *Server) CheckIn(c *gin.Context) {
	var req occupancydomain.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.occupancySvc.CheckIn(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetOccupancy(c *gin.Context) {
	resp, err := s.occupancySvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CheckOut(c *gin.Context) {
	var req occupancydomain.CheckOutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	req.OccupancyID = strings.TrimSpace(c.Param("id"))

	resp, err := s.occupancySvc.CheckOut(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
