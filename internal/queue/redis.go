package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const pollTimeout = time.Second

// Redis is a list-backed queue. Enqueue pushes on the left of <name>; Dequeue
// atomically moves the right-most task into <name>:inflight:<consumer>, and
// Ack removes it from there. Each consumer owns its in-flight list, so a
// restarting worker only recovers its own deliveries.
type Redis struct {
	rdb      *redis.Client
	name     string
	inflight string
	log      *logrus.Entry
}

// DialRedis connects using a redis:// URL and checks the connection.
func DialRedis(ctx context.Context, url, name, consumer string, log *logrus.Entry) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(rdb, name, consumer, log), nil
}

// NewRedis builds a queue on rdb. consumer must be stable across restarts of
// the same worker and unique among live workers.
func NewRedis(rdb *redis.Client, name, consumer string, log *logrus.Entry) *Redis {
	return &Redis{
		rdb:      rdb,
		name:     name,
		inflight: name + ":inflight:" + consumer,
		log: log.WithFields(logrus.Fields{
			"component": "queue",
			"queue":     name,
			"consumer":  consumer,
		}),
	}
}

func (q *Redis) Enqueue(ctx context.Context, t Task) error {
	raw, err := encode(t)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.name, raw).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	q.log.WithFields(logrus.Fields{"task_id": t.ID, "interview_id": t.InterviewID.String()}).Debug("task enqueued")
	return nil
}

func (q *Redis) Dequeue(ctx context.Context) (*Delivery, error) {
	raw, err := q.rdb.BLMove(ctx, q.name, q.inflight, "RIGHT", "LEFT", pollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	d, err := decode(raw)
	if err != nil {
		// a poison message would be redelivered forever
		q.log.WithError(err).WithField("payload", raw).Error("dropping undecodable task")
		_ = q.rdb.LRem(ctx, q.inflight, 1, raw).Err()
		return nil, nil
	}
	return d, nil
}

func (q *Redis) Ack(ctx context.Context, d *Delivery) error {
	if err := q.rdb.LRem(ctx, q.inflight, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack task %s: %w", d.Task.ID, err)
	}
	return nil
}

func (q *Redis) Requeue(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.LMove(ctx, q.inflight, q.name, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("requeue: %w", err)
		}
		n++
	}
	if n > 0 {
		q.log.WithField("count", n).Warn("requeued unacknowledged tasks")
	}
	return n, nil
}

// Depth returns the number of waiting tasks and of tasks in flight across
// every consumer.
func (q *Redis) Depth(ctx context.Context) (waiting, inflight int64, err error) {
	waiting, err = q.rdb.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	iter := q.rdb.Scan(ctx, 0, q.name+":inflight:*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := q.rdb.LLen(ctx, iter.Val()).Result()
		if err != nil {
			return 0, 0, fmt.Errorf("queue depth: %w", err)
		}
		inflight += n
	}
	if err := iter.Err(); err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return waiting, inflight, nil
}

func (q *Redis) Close() error { return q.rdb.Close() }
