package ledger

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"suibison/internal/bisonapi"
)

// Publisher fans committed activities out to live clients.
type Publisher interface {
	Publish(ctx context.Context, acts []bisonapi.Activity)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, []bisonapi.Activity) {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string) error { return nil }

type RedisPublisher struct {
	rdb *redis.Client
	log *logrus.Entry
}

func NewRedisPublisher(rdb *redis.Client, log *logrus.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, log: log.WithField("component", "publisher")}
}

func (p *RedisPublisher) Publish(ctx context.Context, acts []bisonapi.Activity) {
	for _, a := range acts {
		payload, err := json.Marshal(bisonapi.WsResponseData{Target: bisonapi.MessageTargetNotify, Data: a})
		if err != nil {
			continue
		}
		if err := p.rdb.Publish(ctx, bisonapi.NotificationChannel(a.UserId), payload).Err(); err != nil {
			p.log.WithError(err).WithField("user_id", a.UserId).Warn("[notify] publish failed")
		}
	}
}
