package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type blockParams struct {
	Blocked bool `json:"blocked"`
}

func SetBlocked(c *gin.Context) {
	app := c.MustGet("app").(*App)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var params blockParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := app.Ledger.SetBlocked(c.Request.Context(), uint(id), params.Blocked); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "blocked": params.Blocked})
}

type meterParams struct {
	TokenAddress string          `json:"token_address" binding:"required"`
	TokenPrice   decimal.Decimal `json:"token_price"`
}

func ConfigureMeter(c *gin.Context) {
	app := c.MustGet("app").(*App)
	var params meterParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if params.TokenPrice.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token_price must be positive"})
		return
	}
	m, err := app.Ledger.ConfigureMeter(c.Request.Context(), params.TokenAddress, params.TokenPrice)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
