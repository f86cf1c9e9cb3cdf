package worker

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"suibison/internal/bisonapi"
)

const (
	TypeBalanceSync   = "balance:sync"
	TypeTransferRetry = "transfer:retry"
	TypeStakingAccrue = "staking:accrue"
	TypeRankCredit    = "rank:credit"
	TypePoolWindow    = "pool:window"
	TypePoolPayout    = "pool:payout"
	TypeRateRefresh   = "rate:refresh"
	TypeStakeDeposit  = "stake:deposit"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// StakeRetention is how long a finished stake:deposit result stays readable by the api.
const StakeRetention = time.Hour

type StakePayload struct {
	UserId uint `json:"user_id"`
}

// StakeResult is written as the task result of stake:deposit. Error holds a ledger error code.
type StakeResult struct {
	Transfer *bisonapi.Transfer `json:"transfer,omitempty"`
	Error    string             `json:"error,omitempty"`
}

func NewStakeDepositTask(userId uint, taskId string) (*asynq.Task, error) {
	payload, err := json.Marshal(StakePayload{UserId: userId})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeStakeDeposit, payload,
		asynq.TaskID(taskId),
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(0),
		asynq.Retention(StakeRetention),
	), nil
}
