package subscription

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"dayplan-api/domain"
)

// Publisher broadcasts task change events to every service instance through a
// Redis pub/sub channel.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher creates a Publisher on the given channel.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// PublishChange announces that userID's tasks changed on the given day.
func (p *Publisher) PublishChange(ctx context.Context, userID, date string) error {
	data, err := sonic.Marshal(domain.ChangeEvent{UserID: userID, Date: date})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}

// Listen consumes task change events from the channel and invokes notify for
// each one. It reconnects when the pub/sub channel closes and returns once
// ctx is cancelled.
func Listen(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, notify func(userID, date string)) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev domain.ChangeEvent
				if err := sonic.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Errorf("unable to parse change event: %v", err)
					continue
				}
				notify(ev.UserID, ev.Date)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
