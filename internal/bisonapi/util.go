package bisonapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places of the staked asset's smallest unit.
const Precision = 9

const (
	MessageTargetNotify = "notify"
	MessageTargetSync   = "sync"
)

// WsResponseData is what gets published on notification_ch@<user id> and relayed over the websocket.
type WsResponseData struct {
	Target string   `json:"target"`
	Data   Activity `json:"data"`
}

// NotificationChannel is the redis pub/sub channel of a user.
func NotificationChannel(userId uint) string {
	return fmt.Sprintf("notification_ch@%d", userId)
}

func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.RoundDown(Precision)
}

// TaskInspector is the part of *asynq.Inspector used to poll for task results.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

// WaitForAsynqTaskResult polls until the task completes, is archived or ctx ends.
func WaitForAsynqTaskResult(ctx context.Context, i TaskInspector, queue, taskID string) (*asynq.TaskInfo, error) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			taskInfo, err := i.GetTaskInfo(queue, taskID)
			if err != nil {
				return nil, err
			}
			if taskInfo.State == asynq.TaskStateArchived {
				return taskInfo, errors.New(taskInfo.LastErr)
			}
			if taskInfo.CompletedAt.IsZero() {
				continue
			}
			return taskInfo, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("context closed")
		}
	}
}
