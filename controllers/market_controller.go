package controllers

import (
	"net/http"
	"strconv"
	"time"

	"agromarket_backend/models"
	"agromarket_backend/services/marketdata"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// MarketController handles commodity and price endpoints
type MarketController struct {
	db     *gorm.DB
	source marketdata.Source
}

// NewMarketController creates a new market controller
func NewMarketController(db *gorm.DB, source marketdata.Source) *MarketController {
	return &MarketController{db: db, source: source}
}

// GetCommodities lists tracked commodities
// GET /api/v1/commodities
func (ctrl *MarketController) GetCommodities(c *gin.Context) {
	var commodities []models.Commodity
	if err := ctrl.db.Where("status = ?", "active").Order("name ASC").Find(&commodities).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":       len(commodities),
		"commodities": commodities,
	})
}

// GetMarkets lists tracked markets
// GET /api/v1/markets
func (ctrl *MarketController) GetMarkets(c *gin.Context) {
	var markets []models.Market
	if err := ctrl.db.Where("status = ?", "active").Order("name ASC").Find(&markets).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(markets),
		"markets": markets,
	})
}

// GetPrices returns recent price history for a commodity
// GET /api/v1/commodities/:name/prices
func (ctrl *MarketController) GetPrices(c *gin.Context) {
	name := c.Param("name")
	market := c.Query("market")
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))

	query := ctrl.db.
		Where("commodity = ? AND observed_at >= ?", name, time.Now().AddDate(0, 0, -days))
	if market != "" {
		query = query.Where("market = ?", market)
	}

	var prices []models.CommodityPrice
	if err := query.Order("observed_at DESC").Limit(limit).Find(&prices).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"commodity": name,
		"market":    market,
		"count":     len(prices),
		"prices":    prices,
	})
}

// GetQuote returns the most recent observed price for a commodity
// GET /api/v1/commodities/:name/quote
func (ctrl *MarketController) GetQuote(c *gin.Context) {
	name := c.Param("name")
	market := c.Query("market")

	obs, err := ctrl.source.LatestPrice(c.Request.Context(), name, market, time.Time{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if obs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no price observed for commodity"})
		return
	}

	c.JSON(http.StatusOK, obs)
}
