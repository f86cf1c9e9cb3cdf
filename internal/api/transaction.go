package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"suibison/internal/bisonapi"
	"suibison/internal/ledger"
	"suibison/internal/worker"
)

// Stake queues a sweep of the user's custodial balance and waits for the worker's answer.
func Stake(c *gin.Context) {
	app := c.MustGet("app").(*App)
	task, err := worker.NewStakeDepositTask(currentUser(c), uuid.NewString())
	if err != nil {
		respondError(c, err)
		return
	}
	info, err := app.Tasks.EnqueueContext(c.Request.Context(), task)
	if err != nil {
		respondError(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), app.StakeTimeout)
	defer cancel()
	done, err := bisonapi.WaitForAsynqTaskResult(ctx, app.Results, info.Queue, info.ID)
	if err != nil {
		c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "error": err.Error()})
		return
	}
	var res worker.StakeResult
	if err := json.Unmarshal(done.Result, &res); err != nil {
		respondError(c, err)
		return
	}
	if res.Error != "" {
		respondCode(c, res.Error, gin.H{"transfer": res.Transfer})
		return
	}
	c.JSON(http.StatusOK, res.Transfer)
}

type withdrawParams struct {
	Address string `json:"address" binding:"required"`
}

func Withdraw(c *gin.Context) {
	app := c.MustGet("app").(*App)
	var params withdrawParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tr, err := app.Ledger.Withdraw(c.Request.Context(), currentUser(c), params.Address)
	if err != nil {
		if tr != nil {
			respondCode(c, ledger.Code(err), gin.H{"transfer": tr})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}
