package database

import (
	"context"
	"encoding/json"
	"fmt"

	"messenger/internal/models"
	"messenger/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// MessagesChannel is the pub/sub channel every committed message is
// published on.
const MessagesChannel = "messenger:messages"

// RedisPublisher announces committed messages to Redis subscribers and keeps
// a capped per-room list of the most recent ones.
type RedisPublisher struct {
	rdb          *redis.Client
	historyLimit int64
}

func NewRedisPublisher(ctx context.Context, redisURL string, historyLimit int) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Connected to redis at %s", opts.Addr)
	return newRedisPublisher(rdb, historyLimit), nil
}

func newRedisPublisher(rdb *redis.Client, historyLimit int) *RedisPublisher {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &RedisPublisher{rdb: rdb, historyLimit: int64(historyLimit)}
}

// RoomKey is the list holding the recent messages of a room.
func RoomKey(room string) string {
	return "messenger:room:" + room + ":messages"
}

func (p *RedisPublisher) SaveMessage(ctx context.Context, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	key := RoomKey(msg.Room())
	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -p.historyLimit, -1)
		pipe.Publish(ctx, MessagesChannel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
