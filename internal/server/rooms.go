package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	roomdomain "github.com/smallbiznis/dormhub/internal/room/domain"
	"github.com/smallbiznis/dormhub/pkg/db/pagination"
)

type createRoomRequest struct {
	Number   string `json:"number"`
	Floor    int    `json:"floor"`
	Capacity int    `json:"capacity"`
	// Price accepts a JSON number or string.
	Price flexibleString `json:"price"`
}

func (s *Server) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.roomSvc.Create(c.Request.Context(), roomdomain.CreateRoomRequest{
		Number:   req.Number,
		Floor:    req.Floor,
		Capacity: req.Capacity,
		Price:    string(req.Price),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListRooms(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.roomSvc.List(c.Request.Context(), roomdomain.ListRoomRequest{
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
		Status:    strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRoom(c *gin.Context) {
	resp, err := s.roomSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRoomSnapshots(c *gin.Context) {
	snapshots, err := s.aggregator.Snapshots(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshots})
}

func (s *Server) GetRoomSnapshot(c *gin.Context) {
	snapshot, err := s.aggregator.SnapshotForRoom(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}
