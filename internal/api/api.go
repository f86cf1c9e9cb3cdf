package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"suibison/internal/bisonapi"
	"suibison/internal/ledger"
)

// TaskQueue is the part of *asynq.Client the handlers enqueue with.
type TaskQueue interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// App is what every handler finds under the "app" key of the gin context.
type App struct {
	Ledger       *ledger.Engine
	Tasks        TaskQueue
	Results      bisonapi.TaskInspector
	JwtSecret    []byte
	StakeTimeout time.Duration
}

var statusByCode = map[string]int{
	"referrer_not_found":    http.StatusNotFound,
	"user_not_found":        http.StatusNotFound,
	"user_blocked":          http.StatusForbidden,
	"active_pool_not_found": http.StatusNotFound,
	"meter_not_found":       http.StatusServiceUnavailable,
	"rate_unavailable":      http.StatusServiceUnavailable,
	"insufficient_funds":    http.StatusBadRequest,
	"invalid_address":       http.StatusBadRequest,
	"transfer_failed":       http.StatusBadGateway,
	"transfer_pending":      http.StatusConflict,
	"withdrawal_pending":    http.StatusConflict,
	"busy":                  http.StatusConflict,
}

func respondCode(c *gin.Context, code string, extra gin.H) {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := gin.H{"error": code}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func respondError(c *gin.Context, err error) {
	code := ledger.Code(err)
	if code == "internal" {
		_ = c.Error(err)
	}
	respondCode(c, code, nil)
}

func currentUser(c *gin.Context) uint {
	return c.MustGet("user_id").(uint)
}
