package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"agromarket_backend/services/recommendations"

	"github.com/gin-gonic/gin"
)

// RecommendationController handles recommendation endpoints
type RecommendationController struct {
	engine *recommendations.Engine
	store  recommendations.Store
}

// NewRecommendationController creates a new recommendation controller
func NewRecommendationController(engine *recommendations.Engine, store recommendations.Store) *RecommendationController {
	return &RecommendationController{engine: engine, store: store}
}

// GenerateRequest is the payload for requesting a recommendation
type GenerateRequest struct {
	Commodity string `json:"commodity" binding:"required"`
	Market    string `json:"market"`
}

// AcknowledgeRequest is the payload for acknowledging a recommendation
type AcknowledgeRequest struct {
	Note string `json:"note"`
}

// List returns the authenticated user's recommendations
// GET /api/v1/recommendations
func (ctrl *RecommendationController) List(c *gin.Context) {
	userID := c.GetString("user_id")
	status := c.Query("status")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	recs, err := ctrl.store.ListByUser(c.Request.Context(), userID, status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":           len(recs),
		"recommendations": recs,
	})
}

// Get returns a single recommendation by id
// GET /api/v1/recommendations/:id
func (ctrl *RecommendationController) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recommendation id"})
		return
	}

	rec, err := ctrl.store.GetByID(c.Request.Context(), uint(id))
	if errors.Is(err, recommendations.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "recommendation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// Generate asks the engine for a recommendation on a commodity/market.
// Returns the existing ACTIVE recommendation when one is still valid.
// POST /api/v1/recommendations/generate
func (ctrl *RecommendationController) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("user_id")
	rec, err := ctrl.engine.Generate(c.Request.Context(), userID, req.Commodity, req.Market)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusOK, gin.H{
			"recommendation": nil,
			"message":        "No actionable signal for this commodity",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recommendation": rec})
}

// Acknowledge marks a recommendation as seen, with an optional note
// POST /api/v1/recommendations/:id/acknowledge
func (ctrl *RecommendationController) Acknowledge(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recommendation id"})
		return
	}

	var req AcknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := ctrl.engine.Acknowledge(c.Request.Context(), uint(id), req.Note)
	if errors.Is(err, recommendations.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "recommendation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recommendation": rec})
}
