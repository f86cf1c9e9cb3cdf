package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func GetPool(c *gin.Context) {
	app := c.MustGet("app").(*App)
	pool, err := app.Ledger.ActivePool(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

func GetStats(c *gin.Context) {
	app := c.MustGet("app").(*App)
	stats, err := app.Ledger.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
