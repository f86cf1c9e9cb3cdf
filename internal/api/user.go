package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func GetUser(c *gin.Context) {
	app := c.MustGet("app").(*App)
	data, err := app.Ledger.Profile(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

type userParams struct {
	Name string `json:"name" binding:"required,max=64"`
}

func UpdateUser(c *gin.Context) {
	app := c.MustGet("app").(*App)
	var params userParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := app.Ledger.UpdateProfile(c.Request.Context(), currentUser(c), params.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func GetActivities(c *gin.Context) {
	app := c.MustGet("app").(*App)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	acts, err := app.Ledger.Activities(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(acts), "results": acts})
}

func GetReferrals(c *gin.Context) {
	app := c.MustGet("app").(*App)
	level, err := strconv.Atoi(c.DefaultQuery("level", "0"))
	if err != nil || level < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid level"})
		return
	}
	data, err := app.Ledger.Referrals(c.Request.Context(), currentUser(c), level)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}
