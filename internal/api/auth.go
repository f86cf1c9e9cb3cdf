package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"suibison/internal/api/jwt"
	"suibison/internal/ledger"
)

type registerParams struct {
	ExternalId string `json:"external_id" binding:"required,max=64"`
	Name       string `json:"name" binding:"max=64"`
	Referrer   string `json:"referrer" binding:"max=64"` // invite code or external id of the referrer
}

// Register signs a user up or in and returns a session token. An unknown referrer does not fail
// the signup and is reported as a warning.
func Register(c *gin.Context) {
	app := c.MustGet("app").(*App)
	var params registerParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := app.Ledger.Register(c.Request.Context(), ledger.RegisterInput{
		ExternalId: params.ExternalId,
		Name:       params.Name,
		Referrer:   params.Referrer,
	})
	warning := ""
	if errors.Is(err, ledger.ErrReferrerNotFound) {
		warning, err = ledger.Code(err), nil
	}
	if err != nil {
		respondError(c, err)
		return
	}
	token, err := jwt.GenerateJWT(app.JwtSecret, user.Id, user.ExternalId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user":    user,
		"warning": warning,
	})
}
