package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/chxlky/trello-board-planner/integrations"
	"github.com/chxlky/trello-board-planner/internal/models"
	"github.com/chxlky/trello-board-planner/internal/planner"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BoardPlanner is implemented by *planner.Planner.
type BoardPlanner interface {
	CreateBoard(ctx context.Context, description string) (string, error)
	AddList(ctx context.Context, boardID, name string) (string, error)
	AddCard(ctx context.Context, listID, title, description string) (string, error)
	ListBoards(ctx context.Context) []models.BoardSummary
}

type Handler struct {
	Planner BoardPlanner
	// Workers holds one slot per board creation allowed to run at once.
	Workers chan struct{}
}

type createBoardRequest struct {
	Description string `json:"description" binding:"required"`
}

type addListRequest struct {
	Name string `json:"name" binding:"required"`
}

type addCardRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// RegisterRoutes mounts the board endpoints under group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/boards", h.CreateBoardHandler)
	group.GET("/boards", h.ListBoardsHandler)
	group.POST("/boards/:boardID/lists", h.AddListHandler)
	group.POST("/lists/:listID/cards", h.AddCardHandler)
	group.GET("/health", h.HealthCheckHandler)
}

func (h *Handler) CreateBoardHandler(c *gin.Context) {
	var req createBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description is required"})
		return
	}

	if h.Workers != nil {
		select {
		case h.Workers <- struct{}{}:
			defer func() { <-h.Workers }()
		case <-c.Request.Context().Done():
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled while waiting for a worker"})
			return
		}
	}

	url, err := h.Planner.CreateBoard(c.Request.Context(), req.Description)
	if err != nil {
		zap.L().Error("Error creating board", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	zap.L().Info("Board created", zap.String("url", url))
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

func (h *Handler) ListBoardsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.Planner.ListBoards(c.Request.Context()))
}

func (h *Handler) AddListHandler(c *gin.Context) {
	var req addListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	id, err := h.Planner.AddList(c.Request.Context(), c.Param("boardID"), req.Name)
	if err != nil {
		zap.L().Error("Error adding list", zap.String("boardID", c.Param("boardID")), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) AddCardHandler(c *gin.Context) {
	var req addCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	id, err := h.Planner.AddCard(c.Request.Context(), c.Param("listID"), req.Title, req.Description)
	if err != nil {
		zap.L().Error("Error adding card", zap.String("listID", c.Param("listID")), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, planner.ErrInvalidPlan):
		return http.StatusBadGateway
	case errors.Is(err, integrations.ErrCompletionRateLimited),
		errors.Is(err, integrations.ErrTrelloRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, integrations.ErrTrelloNotFound):
		return http.StatusNotFound
	case errors.Is(err, integrations.ErrTrelloUnauthorized):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
