package worker

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

type Periodic struct {
	Spec  string
	Type  string
	Queue string
}

// Schedule is the cron table of the ledger jobs, in UTC.
var Schedule = []Periodic{
	{"@every 1m", TypeBalanceSync, QueueDefault},
	{"@every 2m", TypeTransferRetry, QueueCritical},
	{"5 0 * * *", TypeStakingAccrue, QueueDefault},
	{"10 0 * * *", TypeRankCredit, QueueDefault},
	{"0 0 * * 1", TypePoolWindow, QueueCritical},
	{"@hourly", TypePoolWindow, QueueLow},
	{"*/30 * * * *", TypePoolPayout, QueueDefault},
	{"0 * * * *", TypeRateRefresh, QueueLow},
}

func NewScheduler(opt asynq.RedisConnOpt, log *logrus.Logger) (*asynq.Scheduler, error) {
	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   log,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
				log.WithError(err).Warn("[scheduler] enqueue failed")
			}
		},
	})
	for _, p := range Schedule {
		// a run still queued or in flight suppresses the next tick
		_, err := s.Register(p.Spec, asynq.NewTask(p.Type, nil),
			asynq.Queue(p.Queue),
			asynq.MaxRetry(0),
			asynq.Unique(time.Minute),
		)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}
